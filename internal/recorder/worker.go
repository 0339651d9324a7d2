package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/models"
)

type request struct {
	msg   models.Message
	reply chan result
}

type result struct {
	written int
	err     error
}

// worker owns the encoder output and the container writer of one session.
// Every drain and the final flush run on its goroutine, in queue order.
type worker struct {
	log          logrus.FieldLogger
	drainer      *drainer
	recording    func() bool
	flushTimeout time.Duration

	queue      chan request
	ready      chan struct{}
	firstFrame chan struct{}
	done       chan struct{}

	state  atomic.Int32
	frames atomic.Uint64

	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

func newWorker(d *drainer, recording func() bool, flushTimeout time.Duration, log logrus.FieldLogger) *worker {
	return &worker{
		log:          log,
		drainer:      d,
		recording:    recording,
		flushTimeout: flushTimeout,
		queue:        make(chan request),
		ready:        make(chan struct{}),
		firstFrame:   make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (w *worker) loadState() workerState { return workerState(w.state.Load()) }

func (w *worker) setState(s workerState) { w.state.Store(int32(s)) }

// start launches the loop goroutine. Subsequent calls do nothing.
func (w *worker) start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

func (w *worker) run() {
	defer func() {
		w.setState(workerTerminated)
		close(w.done)
		w.log.Debug("encoder worker loop quit")
	}()

	w.setState(workerLooping)
	close(w.ready)
	w.log.Debug("encoder worker ready")

	for {
		req := <-w.queue
		switch req.msg {
		case models.MsgFrameAvailable:
			n, err := w.drainer.drain(drainRecording, w.recording)
			if n > 0 {
				w.countFrame()
			}
			req.reply <- result{written: n, err: err}
		case models.MsgShutdown:
			w.setState(workerShuttingDown)
			req.reply <- result{err: w.finish()}
			return
		default:
			w.log.WithField("message", req.msg).Error("unknown worker message")
			req.reply <- result{err: errors.Errorf("unknown message %d", req.msg)}
		}
	}
}

func (w *worker) countFrame() {
	if w.frames.Add(1) == 1 {
		close(w.firstFrame)
	}
}

// finish drains what the encoder still holds and finalizes the writer.
func (w *worker) finish() error {
	if w.flushTimeout > 0 {
		deadline := time.Now().Add(w.flushTimeout)
		n, err := w.drainer.drain(drainFlush, func() bool {
			return time.Now().Before(deadline)
		})
		if n > 0 {
			// The flush is one more pass; frames held back by encoder
			// latency count like any other.
			w.countFrame()
		}
		if err != nil {
			w.log.WithError(err).Warn("final drain ended early")
		}
		w.log.WithField("samples", n).Debug("flushed remaining encoder output")
	}
	return w.drainer.finalize()
}

// waitUntilReady blocks until the loop is running.
func (w *worker) waitUntilReady() {
	<-w.ready
}

// waitForFirstFrame blocks until a drain pass has muxed a sample, the
// worker terminates, or ctx is done.
func (w *worker) waitForFirstFrame(ctx context.Context) error {
	select {
	case <-w.firstFrame:
		w.log.Debug("waited for first frame")
		return nil
	case <-w.done:
		if w.frames.Load() > 0 {
			return nil
		}
		return ErrNoFrame
	case <-ctx.Done():
		return ctx.Err()
	}
}

// frameAvailable runs exactly one drain pass on the worker goroutine and
// waits for it. It reports whether a sample was written.
func (w *worker) frameAvailable() (bool, error) {
	switch w.loadState() {
	case workerNotStarted:
		return false, ErrNotReady
	case workerShuttingDown, workerTerminated:
		return false, ErrShutdown
	}

	reply := make(chan result, 1)
	select {
	case w.queue <- request{msg: models.MsgFrameAvailable, reply: reply}:
	case <-w.done:
		return false, ErrShutdown
	}
	res := <-reply
	return res.written > 0, res.err
}

// shutdown asks the loop to flush, finalize the writer and exit, then
// waits for it. A worker that never started only releases its writer.
// Safe to call more than once.
func (w *worker) shutdown() error {
	w.shutdownOnce.Do(func() {
		started := true
		w.startOnce.Do(func() { started = false })
		if !started {
			w.setState(workerShuttingDown)
			w.shutdownErr = w.drainer.finalize()
			w.setState(workerTerminated)
			close(w.done)
			return
		}

		w.log.Debug("shutdown")
		<-w.ready
		reply := make(chan result, 1)
		w.queue <- request{msg: models.MsgShutdown, reply: reply}
		res := <-reply
		<-w.done
		w.shutdownErr = res.err
	})
	return w.shutdownErr
}

func (w *worker) framesMuxed() uint64 { return w.frames.Load() }
