package mp4

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const identity = 0x40000000

// Display matrices of the track header, in 16.16 fixed point.
var rotationMatrices = map[int][9]uint32{
	0:   {0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, identity},
	90:  {0, 0x00010000, 0, 0xFFFF0000, 0, 0, 0, 0, identity},
	180: {0xFFFF0000, 0, 0, 0, 0xFFFF0000, 0, 0, 0, identity},
	270: {0, 0xFFFF0000, 0, 0x00010000, 0, 0, 0, 0, identity},
}

// applyRotation rewrites the tkhd matrix of the first track in an
// initialization segment.
func applyRotation(init []byte, degrees int) error {
	matrix, ok := rotationMatrices[degrees]
	if !ok {
		return errors.Errorf("mp4: unsupported orientation %d", degrees)
	}
	if degrees == 0 {
		return nil
	}

	moov, ok := findBox(init, "moov")
	if !ok {
		return errors.New("mp4: init segment has no moov box")
	}
	trak, ok := findBox(moov, "trak")
	if !ok {
		return errors.New("mp4: init segment has no trak box")
	}
	tkhd, ok := findBox(trak, "tkhd")
	if !ok {
		return errors.New("mp4: init segment has no tkhd box")
	}

	// Offsets are relative to the box payload, after the 8 byte header.
	offset := 40
	if tkhd[0] == 1 {
		offset = 52
	}
	if len(tkhd) < offset+36 {
		return errors.New("mp4: truncated tkhd box")
	}
	for i, v := range matrix {
		binary.BigEndian.PutUint32(tkhd[offset+4*i:], v)
	}
	return nil
}

// findBox returns the payload of the first child box named typ. The
// returned slice aliases buf.
func findBox(buf []byte, typ string) ([]byte, bool) {
	for len(buf) >= 8 {
		size := int(binary.BigEndian.Uint32(buf[0:4]))
		if size < 8 || size > len(buf) {
			return nil, false
		}
		if string(buf[4:8]) == typ {
			return buf[8:size], true
		}
		buf = buf[size:]
	}
	return nil, false
}
