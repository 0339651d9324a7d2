// Package flv builds FLV video tag bodies for H.264 and writes them either
// into a file or, through the RTMP publisher, onto the wire.
package flv

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/yutopp/go-amf0"

	"surface-recorder/internal/avc"
	"surface-recorder/internal/models"
)

const (
	codecAVC = 7

	frameTypeKey   = 1
	frameTypeInter = 2

	avcSequenceHeader = 0
	avcNALU           = 1
	avcEndOfSequence  = 2
)

func videoTagBody(frameType, packetType byte, cts int32, payload []byte) []byte {
	body := make([]byte, 5, 5+len(payload))
	body[0] = frameType<<4 | codecAVC
	body[1] = packetType
	body[2] = byte(cts >> 16)
	body[3] = byte(cts >> 8)
	body[4] = byte(cts)
	return append(body, payload...)
}

// SequenceHeader returns the video tag body carrying the decoder
// configuration. It must precede every picture.
func SequenceHeader(format models.OutputFormat) ([]byte, error) {
	rec, err := avc.DecoderConfigurationRecord(format.SPS, format.PPS)
	if err != nil {
		return nil, errors.Wrap(err, "flv: sequence header")
	}
	return videoTagBody(frameTypeKey, avcSequenceHeader, 0, rec), nil
}

// PictureBody converts an Annex-B access unit into a video tag body. It
// returns nil when the unit holds nothing but parameter sets.
func PictureBody(data []byte, key bool) ([]byte, error) {
	payload, err := avc.ToAVCC(data)
	if err != nil {
		return nil, errors.Wrap(err, "flv")
	}
	if payload == nil {
		return nil, nil
	}
	frameType := byte(frameTypeInter)
	if key {
		frameType = frameTypeKey
	}
	// No B-frames, so the composition time offset is always zero.
	return videoTagBody(frameType, avcNALU, 0, payload), nil
}

// EndOfSequence returns the video tag body closing the stream
func EndOfSequence() []byte {
	return videoTagBody(frameTypeKey, avcEndOfSequence, 0, nil)
}

// Metadata returns the AMF0 onMetaData script body describing format.
// orientation is carried as a rotation hint for players that honour it.
func Metadata(format models.OutputFormat, orientation int) ([]byte, error) {
	var buf bytes.Buffer
	enc := amf0.NewEncoder(&buf)
	if err := enc.Encode("onMetaData"); err != nil {
		return nil, errors.Wrap(err, "flv: encode metadata name")
	}
	props := map[string]interface{}{
		"width":        float64(format.Width),
		"height":       float64(format.Height),
		"framerate":    float64(format.FrameRate),
		"videocodecid": float64(codecAVC),
		"hasVideo":     true,
		"hasAudio":     false,
		"encoder":      "surface-recorder",
	}
	if format.BitRate > 0 {
		props["videodatarate"] = float64(format.BitRate) / 1000
	}
	if orientation != 0 {
		props["rotation"] = float64(orientation)
	}
	if err := enc.Encode(props); err != nil {
		return nil, errors.Wrap(err, "flv: encode metadata")
	}
	return buf.Bytes(), nil
}

// Timestamp converts a presentation time to FLV milliseconds
func Timestamp(presentationTimeUs int64) uint32 {
	if presentationTimeUs <= 0 {
		return 0
	}
	return uint32(presentationTimeUs / 1000)
}
