package encoder

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surface-recorder/internal/config"
	"surface-recorder/internal/models"
)

const helperEnv = "RECORDER_WANT_HELPER_PROCESS"

// helperCommand runs this test binary as a stand-in for ffmpeg
func helperCommand(ctx context.Context, cfg config.Encoder) *exec.Cmd {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--", strconv.Itoa(cfg.FrameSize()))
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	return cmd
}

// TestHelperProcess answers every raw picture with one access unit, the
// first one carrying the parameter sets.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	frameSize, _ := strconv.Atoi(args[1])

	frame := make([]byte, frameSize)
	for n := 0; ; n++ {
		if _, err := io.ReadFull(os.Stdin, frame); err != nil {
			break
		}
		if n == 0 {
			os.Stdout.Write(annexB(testAUD, testSPS, testPPS, testIDR))
		} else {
			os.Stdout.Write(annexB(testAUD, testPFrame))
		}
	}
	os.Exit(0)
}

func smallConfig() config.Encoder {
	cfg := config.DefaultEncoder()
	cfg.Width = 16
	cfg.Height = 16
	cfg.FlushTimeout = 5 * time.Second
	return cfg
}

func dequeueUntilEOS(t *testing.T, e *Encoder) (statuses []int, infos []models.BufferInfo, data [][]byte) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var info models.BufferInfo
		status := e.DequeueOutputBuffer(&info, 50*time.Millisecond)
		if status == models.InfoTryAgainLater {
			continue
		}
		statuses = append(statuses, status)
		if status < 0 {
			continue
		}
		infos = append(infos, info)
		data = append(data, e.OutputBuffer(status))
		require.NoError(t, e.ReleaseOutputBuffer(status, false))
		if info.IsEndOfStream() {
			return statuses, infos, data
		}
	}
	t.Fatal("no end of stream from encoder")
	return nil, nil, nil
}

func TestEncoderRoundTrip(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := smallConfig()
	e := newEncoder(cfg, logger, helperCommand)

	surface, err := e.CreateInputSurface()
	require.NoError(t, err)
	assert.Error(t, surface.WriteFrame(make([]byte, cfg.FrameSize())), "writes fail before start")

	require.NoError(t, e.Start())
	assert.ErrorIs(t, e.Start(), errStarted)

	assert.Error(t, surface.WriteFrame(make([]byte, 3)), "wrong frame size")
	for i := 0; i < 5; i++ {
		require.NoError(t, surface.WriteFrame(make([]byte, cfg.FrameSize())))
	}
	require.NoError(t, e.SignalEndOfInputStream())

	statuses, infos, data := dequeueUntilEOS(t, e)
	require.Equal(t, models.InfoOutputFormatChanged, statuses[0])

	format := e.OutputFormat()
	assert.Equal(t, models.MIMETypeAVC, format.MIMEType)
	assert.Equal(t, testSPS, format.SPS)
	assert.Equal(t, testPPS, format.PPS)
	assert.Equal(t, 1920, format.Width, "size comes from the SPS")
	assert.Equal(t, 1080, format.Height)

	require.Len(t, infos, 7, "config, five pictures, end of stream")
	assert.True(t, infos[0].IsConfigData())
	assert.Equal(t, annexB(testSPS, testPPS), data[0])
	assert.True(t, infos[1].IsKeyFrame())
	for i := 2; i < 6; i++ {
		assert.False(t, infos[i].IsKeyFrame())
		assert.Equal(t, int64(i-1)*1_000_000/30, infos[i].PresentationTimeUs)
	}
	assert.True(t, infos[6].IsEndOfStream())
	assert.Zero(t, infos[6].Size)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Release())
	require.NoError(t, e.Release())
	assert.ErrorIs(t, surface.WriteFrame(make([]byte, cfg.FrameSize())), ErrSurfaceReleased)
}

func TestEncoderDequeueTimesOut(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := newEncoder(smallConfig(), logger, helperCommand)
	defer e.Release()

	var info models.BufferInfo
	start := time.Now()
	assert.Equal(t, models.InfoTryAgainLater, e.DequeueOutputBuffer(&info, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, models.InfoTryAgainLater, e.DequeueOutputBuffer(&info, 0))
}

func TestEncoderLifecycleErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("Start without surface", func(t *testing.T) {
		e := newEncoder(smallConfig(), logger, helperCommand)
		assert.ErrorIs(t, e.Start(), errNoSurface)
		assert.ErrorIs(t, e.SignalEndOfInputStream(), errNoSurface)
		assert.NoError(t, e.Stop())
		assert.NoError(t, e.Release())
	})

	t.Run("Surface after release", func(t *testing.T) {
		e := newEncoder(smallConfig(), logger, helperCommand)
		require.NoError(t, e.Release())
		_, err := e.CreateInputSurface()
		assert.ErrorIs(t, err, errReleased)
	})

	t.Run("Unknown buffer", func(t *testing.T) {
		e := newEncoder(smallConfig(), logger, helperCommand)
		defer e.Release()
		assert.Nil(t, e.OutputBuffer(4))
		assert.ErrorIs(t, e.ReleaseOutputBuffer(4, false), errUnknownIndex)
	})

	t.Run("Missing binary", func(t *testing.T) {
		cfg := smallConfig()
		cfg.FFmpegPath = "/nonexistent/ffmpeg"
		_, err := New(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Invalid configuration", func(t *testing.T) {
		cfg := smallConfig()
		cfg.FrameRate = 0
		_, err := New(cfg, logger)
		assert.Error(t, err)
	})
}

func TestEncoderReleaseWhileRunning(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := smallConfig()
	e := newEncoder(cfg, logger, helperCommand)

	surface, err := e.CreateInputSurface()
	require.NoError(t, err)
	require.NoError(t, e.Start())
	require.NoError(t, surface.WriteFrame(make([]byte, cfg.FrameSize())))

	done := make(chan struct{})
	go func() {
		_ = e.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("release did not terminate the process")
	}
	assert.ErrorIs(t, surface.WriteFrame(make([]byte, cfg.FrameSize())), ErrSurfaceReleased,
		"releasing the encoder invalidates its surface")
}
