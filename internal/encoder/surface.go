package encoder

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrSurfaceReleased is returned when writing to a released surface
var ErrSurfaceReleased = errors.New("encoder: input surface released")

// Surface is the write side of the encoder: one raw 4:2:0 picture per call
type Surface struct {
	encoder   *Encoder
	stdin     io.WriteCloser
	frameSize int

	writeMu   sync.Mutex // keeps pictures whole on the pipe
	closed    atomic.Bool
	released  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newSurface(e *Encoder, stdin io.WriteCloser, frameSize int) *Surface {
	return &Surface{encoder: e, stdin: stdin, frameSize: frameSize}
}

// FrameSize returns the number of bytes WriteFrame expects
func (s *Surface) FrameSize() int { return s.frameSize }

// WriteFrame submits one picture to the encoder
func (s *Surface) WriteFrame(frame []byte) error {
	if len(frame) != s.frameSize {
		return errors.Errorf("encoder: frame is %d bytes, want %d", len(frame), s.frameSize)
	}
	switch {
	case s.released.Load():
		return ErrSurfaceReleased
	case s.closed.Load():
		return errors.New("encoder: input already ended")
	case !s.encoder.active.Load():
		return errors.New("encoder: not running")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(frame); err != nil {
		return errors.Wrap(err, "encoder: write frame")
	}
	return nil
}

// closeInput ends the picture stream. A write blocked on the pipe fails.
func (s *Surface) closeInput() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.stdin.Close()
	})
	return s.closeErr
}

// Release ends the input and invalidates the surface
func (s *Surface) Release() error {
	s.released.Store(true)
	return s.closeInput()
}
