package recorder

import (
	"time"

	"surface-recorder/internal/config"
	"surface-recorder/internal/models"
)

// Encoder is the capability surface of a video encoder. Output buffers are
// identified by the non-negative index returned from DequeueOutputBuffer and
// stay valid until ReleaseOutputBuffer.
type Encoder interface {
	CreateInputSurface() (Surface, error)
	Start() error
	SignalEndOfInputStream() error

	// DequeueOutputBuffer waits up to timeout for one output chunk. It
	// returns a buffer index and fills info, or one of the models.Info*
	// values.
	DequeueOutputBuffer(info *models.BufferInfo, timeout time.Duration) int
	OutputFormat() models.OutputFormat
	// OutputBuffer returns the data of a dequeued buffer, or nil if the
	// index is unknown.
	OutputBuffer(index int) []byte
	ReleaseOutputBuffer(index int, render bool) error

	Stop() error
	Release() error
}

// Surface is the opaque handle a producer draws raw pictures into.
type Surface interface {
	WriteFrame(frame []byte) error
	Release() error
}

// ContainerWriter assembles encoded samples into a container. AddTrack and
// SetOrientationHint must precede Start; WriteSampleData must follow it.
type ContainerWriter interface {
	AddTrack(format models.OutputFormat) (int, error)
	SetOrientationHint(degrees int) error
	Start() error
	WriteSampleData(track int, data []byte, info models.BufferInfo) error
	Stop() error
	Release() error
}

// EncoderFactory builds and configures an encoder.
type EncoderFactory func(cfg config.Encoder) (Encoder, error)

// WriterFactory builds the container writer of one session.
type WriterFactory func() (ContainerWriter, error)
