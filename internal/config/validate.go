package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var result *multierror.Error
	if err := c.Encoder.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Output.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Validate checks the encoder parameters
func (e Encoder) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if e.Width <= 0 || e.Height <= 0 {
		add("encoder: invalid resolution %dx%d", e.Width, e.Height)
	} else if e.Width%2 != 0 || e.Height%2 != 0 {
		add("encoder: resolution %dx%d must be even for 4:2:0 input", e.Width, e.Height)
	}
	if e.FrameRate <= 0 {
		add("encoder: frame rate must be positive, got %d", e.FrameRate)
	}
	if e.KeyFrameInterval < 0 {
		add("encoder: key frame interval must not be negative, got %d", e.KeyFrameInterval)
	}
	if e.BitRate <= 0 {
		add("encoder: bit rate must be positive, got %d", e.BitRate)
	}
	switch e.RateControl {
	case RateControlVBR, RateControlCBR, RateControlCQ:
	default:
		add("encoder: unknown rate control mode %q", e.RateControl)
	}
	switch e.ColorFormat {
	case ColorFormatSurface, ColorFormatYUV420P, ColorFormatNV12:
	default:
		add("encoder: unknown color format %q", e.ColorFormat)
	}
	if e.PollTimeout <= 0 {
		add("encoder: poll timeout must be positive, got %s", e.PollTimeout)
	}
	if e.FlushTimeout < 0 {
		add("encoder: flush timeout must not be negative, got %s", e.FlushTimeout)
	}
	return result.ErrorOrNil()
}

// Validate checks the output destination
func (o Output) Validate() error {
	switch o.Format {
	case FormatMP4, FormatFLV:
		if strings.TrimSpace(o.Path) == "" {
			return errors.Errorf("output: path is required for %s", o.Format)
		}
	case FormatRTMP:
		if !strings.HasPrefix(o.RTMPURL, "rtmp://") {
			return errors.Errorf("output: rtmp url %q must start with rtmp://", o.RTMPURL)
		}
	default:
		return errors.Errorf("output: unknown format %q", o.Format)
	}
	switch o.OrientationHint {
	case 0, 90, 180, 270:
	default:
		return errors.Errorf("output: orientation hint must be 0, 90, 180 or 270, got %d", o.OrientationHint)
	}
	return nil
}
