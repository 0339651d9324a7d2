// A complete runnable example that:
//  1. Configures a recording session (encoder, input surface, container writer)
//  2. Draws moving colour bars into the encoder's input surface
//  3. Drains the encoder on a dedicated worker into an MP4, FLV or RTMP target
//  4. Stops the session, flushing the encoder and finalizing the container
//  5. Optionally serves the session status and the recorded file over HTTP
//
// Build & run:
//
//	go run ./cmd/main.go record --duration 5s -o ./recordings/encoded.mp4
//
// Publish to an RTMP server instead of a file:
//
//	go run ./cmd/main.go record --format rtmp --rtmp-url rtmp://localhost/live/cam
//
// Inspect the session and download the file:
//
//	go run ./cmd/main.go record --serve
//	http://localhost:8080/recording
//
// Every setting can also come from recorder.yaml or RECORDER_* variables,
// e.g. RECORDER_ENCODER_CODEC=h264_nvenc.
//
// -----------------------------------------------------------------------------
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"surface-recorder/internal/config"
	"surface-recorder/internal/container"
	httpserver "surface-recorder/internal/http"
	"surface-recorder/internal/pattern"
	"surface-recorder/internal/recorder"
)

type recordOptions struct {
	configFile string
	duration   time.Duration
	frames     int
	serve      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "surface-recorder",
		Short:        "Record an encoded video stream into a container",
		SilenceUsage: true,
	}
	root.AddCommand(newRecordCommand())
	return root
}

func newRecordCommand() *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a synthetic test pattern",
		Long: `Configures a session, feeds it moving colour bars for the requested
duration or frame count, and stops it. The output format, encoder and
target come from flags, recorder.yaml or RECORDER_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(opts.configFile)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return runRecord(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default ./recorder.yaml)")
	flags.DurationVarP(&opts.duration, "duration", "d", time.Second, "how long to record")
	flags.IntVar(&opts.frames, "frames", 0, "stop after this many frames instead of --duration")
	flags.BoolVar(&opts.serve, "serve", false, "serve the session status until interrupted")

	defaults := config.DefaultConfig()
	flags.StringP("output", "o", defaults.Output.Path, "container file path")
	flags.String("format", string(defaults.Output.Format), "container format: mp4, flv or rtmp")
	flags.String("rtmp-url", defaults.Output.RTMPURL, "publish URL for the rtmp format")
	flags.Int("orientation", defaults.Output.OrientationHint, "orientation hint in degrees")
	flags.Int("width", defaults.Encoder.Width, "picture width")
	flags.Int("height", defaults.Encoder.Height, "picture height")
	flags.Int("fps", defaults.Encoder.FrameRate, "frame rate")
	flags.Int("bitrate", defaults.Encoder.BitRate, "target bit rate in bits per second")
	flags.String("rate-control", string(defaults.Encoder.RateControl), "rate control: vbr, cbr or cq")
	flags.String("codec", defaults.Encoder.Codec, "ffmpeg video encoder")
	flags.String("http-addr", defaults.HTTPAddr, "status server address")
	flags.String("log-level", defaults.LogLevel, "log level")
	return cmd
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"output":       "output.path",
	"format":       "output.format",
	"rtmp-url":     "output.rtmp_url",
	"orientation":  "output.orientation_hint",
	"width":        "encoder.width",
	"height":       "encoder.height",
	"fps":          "encoder.frame_rate",
	"bitrate":      "encoder.bit_rate",
	"rate-control": "encoder.rate_control",
	"codec":        "encoder.codec",
	"http-addr":    "http_addr",
	"log-level":    "log_level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func runRecord(parent context.Context, cfg config.Config, opts *recordOptions) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := recorder.NewRegistry()
	session := recorder.NewSession(cfg,
		container.EncoderFactory(logger),
		container.WriterFactory(cfg.Output, logger),
		recorder.WithLogger(logger),
		recorder.WithRegistry(registry),
	)

	var httpServer *http.Server
	if opts.serve {
		httpServer = httpserver.NewServer(cfg, registry, session, logger).SetupServer()
		go func() {
			logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("HTTP server error")
			}
		}()
		defer httpServer.Close()
	}

	if err := session.Configure(); err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		_ = session.Stop()
		return err
	}

	surface, err := session.InputSurface()
	if err != nil {
		_ = session.Stop()
		return err
	}

	recordCtx := sigCtx
	if opts.frames <= 0 {
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(sigCtx, opts.duration)
		defer cancel()
	}

	firstFrame := make(chan error, 1)
	go func() {
		firstFrame <- session.WaitForFirstFrame(recordCtx)
	}()

	producer := pattern.NewProducer(pattern.NewGenerator(cfg.Encoder), cfg.Encoder.FrameRate, logger)
	started := time.Now()
	drawn, muxed, runErr := producer.Run(recordCtx, surface, session.NotifyFrameAvailable, opts.frames)
	if runErr != nil {
		logger.WithError(runErr).Error("producer failed")
	}

	stopErr := session.Stop()
	if err := <-firstFrame; err != nil {
		logger.WithError(err).Warn("no frame reached the container")
	}

	logger.WithFields(logrus.Fields{
		"session": session.ID(),
		"target":  session.Target(),
		"drawn":   drawn,
		"wrote":   muxed,
		"muxed":   session.FramesMuxed(),
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("recording finished")

	if opts.serve && sigCtx.Err() == nil {
		logger.Infof("Download the recording at http://localhost%s/recording, interrupt to exit", cfg.HTTPAddr)
		<-sigCtx.Done()
	}

	if runErr != nil {
		return runErr
	}
	return stopErr
}
