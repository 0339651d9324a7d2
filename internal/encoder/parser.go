package encoder

import (
	"bufio"
	"bytes"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/config"
	"surface-recorder/internal/models"
)

const maxAccessUnitSize = 16 << 20

var audPrefix = []byte{0x00, 0x00, 0x01, 0x09}

type eventKind int

const (
	eventFormat eventKind = iota
	eventBuffer
)

// event is one result the encoder hands to DequeueOutputBuffer
type event struct {
	kind   eventKind
	format models.OutputFormat
	data   []byte
	info   models.BufferInfo
}

// splitAccessUnits is a bufio.SplitFunc cutting an Annex-B stream in front
// of every access unit delimiter
func splitAccessUnits(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if len(data) > len(audPrefix) {
		if i := bytes.Index(data[len(audPrefix):], audPrefix); i >= 0 {
			end := i + len(audPrefix)
			if data[end-1] == 0x00 {
				end--
			}
			return end, data[:end], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parser turns access units into encoder events. It announces the output
// format once, on the first unit carrying both parameter sets.
type parser struct {
	cfg        config.Encoder
	log        logrus.FieldLogger
	formatSent bool
	frames     int64
}

func newParser(cfg config.Encoder, log logrus.FieldLogger) *parser {
	return &parser{cfg: cfg, log: log}
}

func (p *parser) parse(au []byte, emit func(event)) {
	var nalus h264.AnnexB
	if err := nalus.Unmarshal(au); err != nil {
		p.log.WithError(err).WithField("size", len(au)).Warn("skipping malformed access unit")
		return
	}

	var sps, pps []byte
	key, slice := false, false
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			sps = nalu
		case h264.NALUTypePPS:
			pps = nalu
		case h264.NALUTypeIDR:
			key, slice = true, true
		case h264.NALUTypeNonIDR:
			slice = true
		}
	}

	if !p.formatSent && sps != nil && pps != nil {
		p.announce(sps, pps, emit)
	}
	if !slice {
		return
	}

	info := models.BufferInfo{
		Size:               len(au),
		PresentationTimeUs: p.frames * 1_000_000 / int64(p.cfg.FrameRate),
	}
	if key {
		info.Flags |= models.FlagKeyFrame
	}
	p.frames++
	emit(event{kind: eventBuffer, data: au, info: info})
}

func (p *parser) announce(sps, pps []byte, emit func(event)) {
	format := models.OutputFormat{
		MIMEType:  models.MIMETypeAVC,
		Width:     p.cfg.Width,
		Height:    p.cfg.Height,
		FrameRate: p.cfg.FrameRate,
		BitRate:   p.cfg.BitRate,
		SPS:       append([]byte(nil), sps...),
		PPS:       append([]byte(nil), pps...),
	}
	var s h264.SPS
	if err := s.Unmarshal(sps); err == nil {
		format.Width, format.Height = s.Width(), s.Height()
	} else {
		p.log.WithError(err).Warn("could not parse SPS, using configured size")
	}

	params, err := h264.AnnexB{format.SPS, format.PPS}.Marshal()
	if err != nil {
		p.log.WithError(err).Warn("could not marshal parameter sets")
		return
	}
	p.formatSent = true
	emit(event{kind: eventFormat, format: format})
	emit(event{
		kind: eventBuffer,
		data: params,
		info: models.BufferInfo{Size: len(params), Flags: models.FlagConfigData},
	})
}

// scan reads r to its end and emits one event per access unit, followed by
// an end of stream buffer.
func (p *parser) scan(r io.Reader, emit func(event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxAccessUnitSize)
	scanner.Split(splitAccessUnits)
	for scanner.Scan() {
		au := append([]byte(nil), scanner.Bytes()...)
		p.parse(au, emit)
	}
	emit(event{
		kind: eventBuffer,
		data: []byte{},
		info: models.BufferInfo{
			PresentationTimeUs: p.frames * 1_000_000 / int64(p.cfg.FrameRate),
			Flags:              models.FlagEndOfStream,
		},
	})
	return scanner.Err()
}
