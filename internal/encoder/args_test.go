package encoder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"surface-recorder/internal/config"
)

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Encoder)
		want   map[string]string
		absent []string
	}{
		{
			name:   "Defaults",
			mutate: func(*config.Encoder) {},
			want: map[string]string{
				"-s":         "1920x1080",
				"-framerate": "30",
				"-pix_fmt":   "yuv420p",
				"-g":         "150",
				"-c:v":       "libx264",
				"-b:v":       "6000000",
				"-maxrate":   "9000000",
				"-bufsize":   "12000000",
				"-bf":        "0",
			},
			absent: []string{"-crf", "-minrate"},
		},
		{
			name: "Constant bit rate",
			mutate: func(c *config.Encoder) {
				c.RateControl = config.RateControlCBR
				c.BitRate = 2_000_000
			},
			want: map[string]string{
				"-b:v":     "2000000",
				"-minrate": "2000000",
				"-maxrate": "2000000",
				"-bufsize": "2000000",
			},
		},
		{
			name: "Constant quality",
			mutate: func(c *config.Encoder) {
				c.RateControl = config.RateControlCQ
			},
			want:   map[string]string{"-crf": "23", "-maxrate": "6000000"},
			absent: []string{"-b:v"},
		},
		{
			name: "NV12 input and one second key frames",
			mutate: func(c *config.Encoder) {
				c.ColorFormat = config.ColorFormatNV12
				c.KeyFrameInterval = 0
				c.Codec = "h264_nvenc"
			},
			want: map[string]string{"-pix_fmt": "nv12", "-g": "30", "-c:v": "h264_nvenc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultEncoder()
			tt.mutate(&cfg)
			args := ffmpegArgs(cfg)

			for flag, want := range tt.want {
				got, ok := argValue(args, flag)
				if assert.True(t, ok, "missing %s", flag) {
					assert.Equal(t, want, got, flag)
				}
			}
			for _, flag := range tt.absent {
				_, ok := argValue(args, flag)
				assert.False(t, ok, "unexpected %s", flag)
			}
			assert.Equal(t, "pipe:1", args[len(args)-1])
		})
	}
}

func TestCreateFFmpegCommand(t *testing.T) {
	cfg := config.DefaultEncoder()
	cfg.FFmpegPath = "/opt/ffmpeg/bin/ffmpeg"
	cmd := createFFmpegCommand(context.Background(), cfg)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cmd.Path)
	assert.True(t, strings.Contains(strings.Join(cmd.Args, " "), "h264_metadata=aud=insert"))
}
