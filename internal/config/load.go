package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RECORDER_ENCODER_BIT_RATE.
const EnvPrefix = "RECORDER"

// NewViper returns a viper instance preloaded with DefaultConfig, reading
// environment overrides and, when configFile is empty, an optional
// recorder.yaml from the working directory or $HOME/.recorder.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
		return v, nil
	}

	v.SetConfigName("recorder")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.recorder")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return v, nil
}

// FromViper decodes and validates a Config
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the configuration from defaults, an optional file and the
// environment.
func Load(configFile string) (Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

func setDefaults(v *viper.Viper, cfg Config) {
	e := cfg.Encoder
	v.SetDefault("encoder.width", e.Width)
	v.SetDefault("encoder.height", e.Height)
	v.SetDefault("encoder.frame_rate", e.FrameRate)
	v.SetDefault("encoder.key_frame_interval", e.KeyFrameInterval)
	v.SetDefault("encoder.bit_rate", e.BitRate)
	v.SetDefault("encoder.rate_control", string(e.RateControl))
	v.SetDefault("encoder.color_format", string(e.ColorFormat))
	v.SetDefault("encoder.codec", e.Codec)
	v.SetDefault("encoder.ffmpeg_path", e.FFmpegPath)
	v.SetDefault("encoder.poll_timeout", e.PollTimeout)
	v.SetDefault("encoder.flush_timeout", e.FlushTimeout)

	o := cfg.Output
	v.SetDefault("output.path", o.Path)
	v.SetDefault("output.format", string(o.Format))
	v.SetDefault("output.rtmp_url", o.RTMPURL)
	v.SetDefault("output.orientation_hint", o.OrientationHint)

	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("log_level", cfg.LogLevel)
}
