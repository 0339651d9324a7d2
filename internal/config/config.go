package config

import (
	"net/url"
	"time"
)

// RateControlMode selects how the encoder spends its bit budget
type RateControlMode string

const (
	RateControlVBR RateControlMode = "vbr"
	RateControlCBR RateControlMode = "cbr"
	RateControlCQ  RateControlMode = "cq"
)

// ColorFormat is the pixel layout the input surface accepts
type ColorFormat string

const (
	// ColorFormatSurface lets the encoder binding pick its native layout.
	ColorFormatSurface ColorFormat = "surface"
	ColorFormatYUV420P ColorFormat = "yuv420p"
	ColorFormatNV12    ColorFormat = "nv12"
)

// Format is the container the recording is written to
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatFLV  Format = "flv"
	FormatRTMP Format = "rtmp"
)

// Config holds all configuration for the application
type Config struct {
	Encoder Encoder `mapstructure:"encoder"`
	Output  Output  `mapstructure:"output"`

	// Status server configuration
	HTTPAddr string `mapstructure:"http_addr"`

	LogLevel string `mapstructure:"log_level"`
}

// Encoder holds the parameters an encoder is configured with
type Encoder struct {
	Width            int             `mapstructure:"width"`
	Height           int             `mapstructure:"height"`
	FrameRate        int             `mapstructure:"frame_rate"`
	KeyFrameInterval int             `mapstructure:"key_frame_interval"` // seconds
	BitRate          int             `mapstructure:"bit_rate"`           // bits per second
	RateControl      RateControlMode `mapstructure:"rate_control"`
	ColorFormat      ColorFormat     `mapstructure:"color_format"`

	// Binding configuration
	Codec      string `mapstructure:"codec"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`

	// PollTimeout bounds a single output dequeue.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// FlushTimeout bounds the final drain on stop.
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// Output holds where and how the recording is persisted
type Output struct {
	Path            string `mapstructure:"path"`
	Format          Format `mapstructure:"format"`
	RTMPURL         string `mapstructure:"rtmp_url"`
	OrientationHint int    `mapstructure:"orientation_hint"` // degrees
}

// Target identifies the recording destination. At most one session may
// record into a target at a time.
func (o Output) Target() string {
	if o.Format == FormatRTMP {
		if u, err := url.Parse(o.RTMPURL); err == nil {
			u.RawQuery = ""
			return u.String()
		}
		return o.RTMPURL
	}
	return o.Path
}

// FrameSize returns the size in bytes of one raw 4:2:0 picture
func (e Encoder) FrameSize() int {
	return e.Width*e.Height + 2*((e.Width/2)*(e.Height/2))
}

// GOPSize returns the key frame distance in frames
func (e Encoder) GOPSize() int {
	if e.KeyFrameInterval <= 0 {
		return e.FrameRate
	}
	return e.FrameRate * e.KeyFrameInterval
}

// DefaultEncoder returns the encoder defaults: 1080p30 at 6 Mbps VBR with a
// key frame every five seconds.
func DefaultEncoder() Encoder {
	return Encoder{
		Width:            1920,
		Height:           1080,
		FrameRate:        30,
		KeyFrameInterval: 5,
		BitRate:          6_000_000,
		RateControl:      RateControlVBR,
		ColorFormat:      ColorFormatSurface,
		Codec:            "libx264",
		FFmpegPath:       "ffmpeg",
		PollTimeout:      10 * time.Millisecond,
		FlushTimeout:     2 * time.Second,
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Encoder: DefaultEncoder(),
		Output: Output{
			Path:            "./recordings/encoded.mp4",
			Format:          FormatMP4,
			OrientationHint: 90,
		},
		HTTPAddr: ":8080",
		LogLevel: "info",
	}
}
