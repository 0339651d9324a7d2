// Package encoder drives an ffmpeg process as an asynchronous H.264
// encoder. Raw pictures go in through the input surface and encoded access
// units come back through DequeueOutputBuffer.
package encoder

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/config"
	"surface-recorder/internal/models"
	"surface-recorder/internal/recorder"
)

const eventQueueSize = 64

var (
	errNoSurface    = errors.New("encoder: input surface not created")
	errStarted      = errors.New("encoder: already started")
	errReleased     = errors.New("encoder: released")
	errUnknownIndex = errors.New("encoder: unknown output buffer")
)

type commandFunc func(ctx context.Context, cfg config.Encoder) *exec.Cmd

// Encoder is an ffmpeg process behind the recorder's encoder contract
type Encoder struct {
	cfg     config.Encoder
	log     logrus.FieldLogger
	command commandFunc

	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	surface *Surface
	events  chan event
	exited  chan struct{}
	readers sync.WaitGroup

	active   atomic.Bool // process running and accepting input
	started  atomic.Bool
	released atomic.Bool
	waitErr  error

	mu        sync.Mutex
	format    models.OutputFormat
	buffers   map[int][]byte
	nextIndex int
}

// New creates an encoder for cfg. The process is spawned by Start.
func New(cfg config.Encoder, log logrus.FieldLogger) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, errors.Wrapf(err, "encoder: %s not found", cfg.FFmpegPath)
	}
	return newEncoder(cfg, log, createFFmpegCommand), nil
}

func newEncoder(cfg config.Encoder, log logrus.FieldLogger, command commandFunc) *Encoder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Encoder{
		cfg:     cfg,
		log:     log.WithField("encoder", cfg.Codec),
		command: command,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan event, eventQueueSize),
		exited:  make(chan struct{}),
		buffers: make(map[int][]byte),
	}
}

// CreateInputSurface prepares the process pipes and returns the surface
// pictures are written to. It must be called once, before Start.
func (e *Encoder) CreateInputSurface() (recorder.Surface, error) {
	if e.released.Load() {
		return nil, errReleased
	}
	if e.surface != nil {
		return nil, errors.New("encoder: input surface already created")
	}

	cmd := e.command(e.ctx, e.cfg)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "encoder: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "encoder: stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "encoder: stderr pipe")
	}

	e.cmd = cmd
	e.stdout = stdout
	e.stderr = stderr
	e.surface = newSurface(e, stdin, e.cfg.FrameSize())
	return e.surface, nil
}

// Start spawns the process and the goroutines reading its output
func (e *Encoder) Start() error {
	if e.released.Load() {
		return errReleased
	}
	if e.surface == nil {
		return errNoSurface
	}
	if !e.started.CompareAndSwap(false, true) {
		return errStarted
	}

	if err := e.cmd.Start(); err != nil {
		return errors.Wrap(err, "encoder: start ffmpeg")
	}
	e.active.Store(true)
	e.log.WithField("pid", e.cmd.Process.Pid).Info("started encoder process")

	e.readers.Add(2)
	go e.readOutput()
	go e.readDiagnostics()
	go e.monitor()
	return nil
}

// readOutput feeds parsed access units into the event queue
func (e *Encoder) readOutput() {
	defer e.readers.Done()
	p := newParser(e.cfg, e.log)
	err := p.scan(e.stdout, func(ev event) {
		select {
		case e.events <- ev:
		case <-e.ctx.Done():
		}
	})
	if err != nil && !errors.Is(err, io.EOF) {
		e.log.WithError(err).Warn("encoder output ended with error")
	}
}

func (e *Encoder) readDiagnostics() {
	defer e.readers.Done()
	scanner := bufio.NewScanner(e.stderr)
	for scanner.Scan() {
		e.log.WithField("ffmpeg", scanner.Text()).Debug("encoder diagnostics")
	}
}

// monitor waits for the process to exit
func (e *Encoder) monitor() {
	// Wait must not run before the pipes are fully read.
	e.readers.Wait()
	e.waitErr = e.cmd.Wait()
	e.active.Store(false)
	if e.waitErr != nil && e.ctx.Err() == nil {
		e.log.WithError(e.waitErr).Warn("encoder process exited")
	} else {
		e.log.Debug("encoder process exited")
	}
	close(e.exited)
}

// SignalEndOfInputStream closes the process input. Output already queued
// stays available and is followed by an end of stream buffer.
func (e *Encoder) SignalEndOfInputStream() error {
	if e.surface == nil {
		return errNoSurface
	}
	return e.surface.closeInput()
}

// DequeueOutputBuffer waits up to timeout for the next output. It returns
// a buffer index, or one of models.InfoTryAgainLater and
// models.InfoOutputFormatChanged.
func (e *Encoder) DequeueOutputBuffer(info *models.BufferInfo, timeout time.Duration) int {
	var ev event
	select {
	case ev = <-e.events:
	default:
		if timeout <= 0 {
			return models.InfoTryAgainLater
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case ev = <-e.events:
		case <-timer.C:
			return models.InfoTryAgainLater
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.kind == eventFormat {
		e.format = ev.format
		return models.InfoOutputFormatChanged
	}
	index := e.nextIndex
	e.nextIndex++
	e.buffers[index] = ev.data
	*info = ev.info
	return index
}

// OutputFormat returns the last announced format
func (e *Encoder) OutputFormat() models.OutputFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// OutputBuffer returns the data of a dequeued buffer, nil if index is not
// held.
func (e *Encoder) OutputBuffer(index int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffers[index]
}

// ReleaseOutputBuffer hands a buffer back. Nothing is rendered by this
// encoder, so render is ignored.
func (e *Encoder) ReleaseOutputBuffer(index int, render bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buffers[index]; !ok {
		return errors.Wrapf(errUnknownIndex, "index %d", index)
	}
	delete(e.buffers, index)
	return nil
}

// Stop closes the input and waits for the process to exit, killing it
// after the flush timeout.
func (e *Encoder) Stop() error {
	if !e.started.Load() {
		return nil
	}
	if e.surface != nil {
		_ = e.surface.closeInput()
	}

	select {
	case <-e.exited:
		e.log.Debug("encoder process exited cleanly")
	case <-time.After(e.cfg.FlushTimeout):
		e.log.Warn("encoder process did not exit, forcing termination")
		e.cancel()
		<-e.exited
		return nil
	}
	if e.waitErr != nil && e.ctx.Err() == nil {
		return errors.Wrap(e.waitErr, "encoder: ffmpeg")
	}
	return nil
}

// Release terminates the process if it still runs and drops held buffers.
// Further calls do nothing.
func (e *Encoder) Release() error {
	if e.released.Swap(true) {
		return nil
	}
	e.cancel()
	if e.surface != nil {
		_ = e.surface.Release()
	}
	if e.started.Load() {
		<-e.exited
	}

	e.mu.Lock()
	e.buffers = make(map[int][]byte)
	e.mu.Unlock()
	return nil
}
