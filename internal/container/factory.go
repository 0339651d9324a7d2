// Package container picks the concrete encoder and container writer for a
// configuration.
package container

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/config"
	"surface-recorder/internal/encoder"
	"surface-recorder/internal/flv"
	"surface-recorder/internal/mp4"
	"surface-recorder/internal/recorder"
	"surface-recorder/internal/rtmp"
)

// WriterFactory returns a factory producing the writer selected by
// out.Format. Each call opens a fresh file or connection.
func WriterFactory(out config.Output, log logrus.FieldLogger) recorder.WriterFactory {
	return func() (recorder.ContainerWriter, error) {
		var (
			w   recorder.ContainerWriter
			err error
		)
		// Typed nils must not leak into the interface.
		switch out.Format {
		case config.FormatMP4:
			var mw *mp4.Writer
			if mw, err = mp4.Create(out.Path, log); err == nil {
				w = mw
			}
		case config.FormatFLV:
			var fw *flv.Container
			if fw, err = flv.Create(out.Path, log); err == nil {
				w = fw
			}
		case config.FormatRTMP:
			var p *rtmp.Publisher
			if p, err = rtmp.Dial(out.RTMPURL, rtmp.DefaultPattern, log); err == nil {
				w = p
			}
		default:
			err = errors.Errorf("unknown output format %q", out.Format)
		}
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// EncoderFactory returns a factory producing ffmpeg-backed encoders
func EncoderFactory(log logrus.FieldLogger) recorder.EncoderFactory {
	return func(cfg config.Encoder) (recorder.Encoder, error) {
		e, err := encoder.New(cfg, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
