package recorder

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/config"
)

var defaultRegistry = NewRegistry()

// Session records one video stream into one container target. Configure,
// Start and Stop drive the lifecycle; the producer calls
// NotifyFrameAvailable after each picture it draws into the input surface.
type Session struct {
	cfg        config.Config
	baseLog    logrus.FieldLogger
	log        logrus.FieldLogger
	newEncoder EncoderFactory
	newWriter  WriterFactory
	registry   *Registry

	mu        sync.Mutex // serializes lifecycle calls
	state     atomicState
	id        atomic.Value // string
	encoder   Encoder
	surface   Surface
	worker    atomic.Pointer[worker]
	last      atomic.Pointer[worker] // worker of the previous recording
	finished  atomic.Bool
	configErr error
	acquired  bool
	lastCount atomic.Uint64
}

// Option customizes a Session
type Option func(*Session)

// WithLogger sets the logger sessions derive their entries from
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) {
		s.baseLog = log
	}
}

// WithRegistry sets the registry enforcing one session per target
func WithRegistry(r *Registry) Option {
	return func(s *Session) {
		s.registry = r
	}
}

// NewSession creates an idle session. Nothing is allocated until Configure.
func NewSession(cfg config.Config, newEncoder EncoderFactory, newWriter WriterFactory, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg,
		baseLog:    logrus.StandardLogger(),
		newEncoder: newEncoder,
		newWriter:  newWriter,
		registry:   defaultRegistry,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.baseLog.WithField("target", s.Target())
	return s
}

// Configure builds the encoder, its input surface, the container writer and
// the worker that will own them. The worker is not started. On failure the
// session stays Idle and unusable until a later Configure succeeds.
func (s *Session) Configure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Is(StateIdle) || s.worker.Load() != nil {
		return &ConfigurationError{Op: "session", Err: ErrBusy}
	}

	s.finished.Store(false)
	id := uuid.NewString()
	s.id.Store(id)
	s.log = s.baseLog.WithFields(logrus.Fields{"session": id, "target": s.Target()})

	if err := s.registry.acquire(s.Target(), s); err != nil {
		return s.failConfigure("target", err)
	}
	s.acquired = true

	if err := s.cfg.Encoder.Validate(); err != nil {
		return s.failConfigure("encoder", err)
	}
	enc, err := s.newEncoder(s.cfg.Encoder)
	if err != nil {
		return s.failConfigure("encoder", err)
	}
	surface, err := enc.CreateInputSurface()
	if err != nil {
		s.releaseQuietly("encoder", enc.Release)
		return s.failConfigure("input surface", err)
	}
	writer, err := s.newWriter()
	if err != nil {
		s.releaseQuietly("input surface", surface.Release)
		s.releaseQuietly("encoder", enc.Release)
		return s.failConfigure("container writer", err)
	}

	d := newDrainer(enc, writer, s.cfg.Encoder.PollTimeout, s.cfg.Output.OrientationHint, s.log)
	s.encoder = enc
	s.surface = surface
	s.worker.Store(newWorker(d, s.isRecording, s.cfg.Encoder.FlushTimeout, s.log))
	s.configErr = nil
	s.lastCount.Store(0)

	s.log.WithFields(logrus.Fields{
		"width":     s.cfg.Encoder.Width,
		"height":    s.cfg.Encoder.Height,
		"frameRate": s.cfg.Encoder.FrameRate,
		"bitRate":   s.cfg.Encoder.BitRate,
	}).Info("session configured")
	return nil
}

func (s *Session) failConfigure(op string, err error) error {
	cerr := &ConfigurationError{Op: op, Err: err}
	s.configErr = cerr
	if s.acquired {
		s.registry.release(s.Target(), s)
		s.acquired = false
	}
	s.log.WithError(err).Error("failed to configure session")
	return cerr
}

func (s *Session) releaseQuietly(what string, release func() error) {
	if err := release(); err != nil {
		s.log.WithError(err).Warnf("failed to release %s", what)
	}
}

func (s *Session) notConfigured() error {
	if s.configErr != nil {
		return errors.Wrapf(ErrNotConfigured, "last configure failed: %v", s.configErr)
	}
	return ErrNotConfigured
}

// InputSurface returns the handle the producer draws into
func (s *Session) InputSurface() (Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return nil, s.notConfigured()
	}
	return s.surface, nil
}

// Start starts the encoder and the worker, and blocks until the worker is
// ready to drain.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.worker.Load()
	if w == nil || s.encoder == nil {
		return s.notConfigured()
	}
	if !s.state.Is(StateIdle) || w.loadState() != workerNotStarted {
		return ErrBusy
	}

	if err := s.encoder.Start(); err != nil {
		s.log.WithError(err).Error("failed to start encoder")
		return errors.Wrap(err, "start encoder")
	}
	w.start()
	w.waitUntilReady()
	s.state.Store(StateRecording)
	s.log.Info("recording started")
	return nil
}

func (s *Session) isRecording() bool {
	return s.state.Is(StateRecording)
}

// NotifyFrameAvailable tells the session a picture was drawn into the input
// surface. It runs one drain pass and reports whether a sample reached the
// container. It is a no-op unless the session is recording. Callers must
// not invoke it from several goroutines at once.
func (s *Session) NotifyFrameAvailable() (bool, error) {
	if !s.isRecording() {
		return false, nil
	}
	w := s.worker.Load()
	if w == nil {
		return false, nil
	}

	wrote, err := w.frameAvailable()
	if err != nil {
		var warn *DrainWarning
		switch {
		case errors.As(err, &warn):
			return wrote, nil
		case errors.Is(err, ErrShutdown) && !s.isRecording():
			return false, nil
		}
		return wrote, err
	}
	return wrote, nil
}

// WaitForFirstFrame blocks until the container holds at least one sample.
// It returns ErrNoFrame if the session stops first. After Stop it answers
// for the recording that just ended.
func (s *Session) WaitForFirstFrame(ctx context.Context) error {
	w := s.worker.Load()
	if w == nil {
		w = s.last.Load()
	}
	if w == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.notConfigured()
	}
	return w.waitForFirstFrame(ctx)
}

// Stop ends the recording: the encoder input is closed, the worker drains
// the remaining output and finalizes the container, and every resource is
// released. The session is Idle when Stop returns, even if it returns a
// *FinalizationError.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.worker.Load()
	if w == nil && s.encoder == nil {
		s.state.Store(StateIdle)
		return nil
	}

	s.state.Store(StateStopping)
	s.log.Info("stopping session")

	var result *multierror.Error
	started := w != nil && w.loadState() != workerNotStarted
	if started {
		if err := s.encoder.SignalEndOfInputStream(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "signal end of input"))
		}
	}
	if w != nil {
		if err := w.shutdown(); err != nil {
			result = multierror.Append(result, err)
		}
		s.lastCount.Store(w.framesMuxed())
	}
	if s.encoder != nil {
		if err := s.encoder.Stop(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "stop encoder"))
		}
		if err := s.encoder.Release(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "release encoder"))
		}
	}
	if s.surface != nil {
		if err := s.surface.Release(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "release input surface"))
		}
	}

	if w != nil {
		s.last.Store(w)
	}
	s.encoder = nil
	s.surface = nil
	s.worker.Store(nil)
	if s.acquired {
		s.registry.release(s.Target(), s)
		s.acquired = false
	}
	s.state.Store(StateIdle)
	s.finished.Store(started)

	if err := result.ErrorOrNil(); err != nil {
		s.log.WithError(err).Error("session stopped with release failures")
		return &FinalizationError{Err: err}
	}
	s.log.WithField("frames", s.lastCount.Load()).Info("session stopped")
	return nil
}

// Finished reports whether a recording was started and then stopped since
// the last Configure, so its container is complete.
func (s *Session) Finished() bool {
	return s.finished.Load()
}

// State returns the lifecycle state
func (s *Session) State() State {
	return s.state.Load()
}

// FramesMuxed returns how many drain passes wrote at least one sample. After
// Stop it keeps the count of the last recording.
func (s *Session) FramesMuxed() uint64 {
	if w := s.worker.Load(); w != nil {
		return w.framesMuxed()
	}
	return s.lastCount.Load()
}

// ID returns the identifier of the current configuration, empty before the
// first Configure.
func (s *Session) ID() string {
	id, _ := s.id.Load().(string)
	return id
}

// Target returns the recording destination
func (s *Session) Target() string {
	return s.cfg.Output.Target()
}

// Config returns the configuration the session was created with
func (s *Session) Config() config.Config {
	return s.cfg
}
