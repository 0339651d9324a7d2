package encoder

import (
	"context"
	"os/exec"
	"strconv"

	"surface-recorder/internal/config"
)

// pixelFormat returns the raw layout ffmpeg expects on stdin
func pixelFormat(cf config.ColorFormat) string {
	if cf == config.ColorFormatNV12 {
		return "nv12"
	}
	return "yuv420p"
}

// rateControlArgs maps the rate control mode onto libx264 style options
func rateControlArgs(cfg config.Encoder) []string {
	b := cfg.BitRate
	switch cfg.RateControl {
	case config.RateControlCBR:
		return []string{
			"-b:v", strconv.Itoa(b),
			"-minrate", strconv.Itoa(b),
			"-maxrate", strconv.Itoa(b),
			"-bufsize", strconv.Itoa(b),
		}
	case config.RateControlCQ:
		return []string{
			"-crf", "23",
			"-maxrate", strconv.Itoa(b),
			"-bufsize", strconv.Itoa(2 * b),
		}
	default:
		return []string{
			"-b:v", strconv.Itoa(b),
			"-maxrate", strconv.Itoa(b + b/2),
			"-bufsize", strconv.Itoa(2 * b),
		}
	}
}

// ffmpegArgs builds the command line reading raw pictures on stdin and
// writing an H.264 elementary stream on stdout
func ffmpegArgs(cfg config.Encoder) []string {
	gop := strconv.Itoa(cfg.GOPSize())
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", pixelFormat(cfg.ColorFormat),
		"-s", strconv.Itoa(cfg.Width) + "x" + strconv.Itoa(cfg.Height),
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", "pipe:0",
		"-an",
		"-c:v", cfg.Codec,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
		"-bf", "0", // no reordering, presentation order is decode order
	}
	args = append(args, rateControlArgs(cfg)...)
	return append(args,
		"-bsf:v", "h264_metadata=aud=insert", // every access unit opens with a delimiter
		"-f", "h264",
		"pipe:1",
	)
}

// createFFmpegCommand creates the encoder process command
func createFFmpegCommand(ctx context.Context, cfg config.Encoder) *exec.Cmd {
	return exec.CommandContext(ctx, cfg.FFmpegPath, ffmpegArgs(cfg)...)
}
