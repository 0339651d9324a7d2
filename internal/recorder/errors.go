package recorder

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConfigured is returned when an operation needs a successful Configure.
	ErrNotConfigured = errors.New("recorder: session not configured")
	// ErrNotReady is returned when the worker has not reached its loop yet.
	ErrNotReady = errors.New("recorder: worker not ready")
	// ErrShutdown is returned once the worker has left its loop.
	ErrShutdown = errors.New("recorder: worker shut down")
	// ErrBusy is returned when Configure or Start is called in the wrong state.
	ErrBusy = errors.New("recorder: session busy")
	// ErrTargetBusy is returned when another session records into the same target.
	ErrTargetBusy = errors.New("recorder: target already recording")
	// ErrNoFrame is returned by WaitForFirstFrame when the worker stops
	// before any sample was muxed.
	ErrNoFrame = errors.New("recorder: no frame was muxed")
)

// ConfigurationError reports an encoder or writer setup failure. A session
// that returned it from Configure cannot be started.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("recorder: configure %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DrainWarning is a non-fatal anomaly observed while draining the encoder.
type DrainWarning struct {
	Status int
	Reason string
	Err    error
}

func (w *DrainWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("recorder: drain (status %d): %s: %v", w.Status, w.Reason, w.Err)
	}
	return fmt.Sprintf("recorder: drain (status %d): %s", w.Status, w.Reason)
}

func (w *DrainWarning) Unwrap() error { return w.Err }

// FinalizationError collects the failures of releasing a session's
// resources. The session is Idle regardless.
type FinalizationError struct {
	Err error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("recorder: finalize: %v", e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }
