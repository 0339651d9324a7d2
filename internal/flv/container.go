package flv

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/models"
)

var (
	errNotStarted     = errors.New("flv: container not started")
	errAlreadyStarted = errors.New("flv: container already started")
	errTrackExists    = errors.New("flv: only one video track is supported")
)

// Container records one H.264 track into an FLV file
type Container struct {
	out    io.WriteCloser
	writer *Writer
	log    logrus.FieldLogger

	mu          sync.Mutex
	format      *models.OutputFormat
	orientation int
	started     bool
	stopped     bool
	released    bool
	lastTS      uint32
	tags        int
}

// NewContainer creates a container writing to out, which it closes on
// Release
func NewContainer(out io.WriteCloser, log logrus.FieldLogger) *Container {
	return &Container{
		out:    out,
		writer: NewWriter(out),
		log:    log.WithField("container", "flv"),
	}
}

// Create opens path for writing, creating its directory when needed
func Create(path string, log logrus.FieldLogger) (*Container, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "flv: create output directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "flv: open output file")
	}
	return NewContainer(f, log.WithField("path", path)), nil
}

// AddTrack registers the video track
func (c *Container) AddTrack(format models.OutputFormat) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.started:
		return -1, errAlreadyStarted
	case c.format != nil:
		return -1, errTrackExists
	case format.MIMEType != models.MIMETypeAVC:
		return -1, errors.Errorf("flv: unsupported mime type %q", format.MIMEType)
	case !format.HasParameterSets():
		return -1, errors.New("flv: format carries no SPS/PPS")
	}
	c.format = &format
	return 0, nil
}

// SetOrientationHint keeps the rotation for the onMetaData tag
func (c *Container) SetOrientationHint(degrees int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errAlreadyStarted
	}
	c.orientation = degrees
	return nil
}

// Start writes the header, the metadata and the sequence header
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errAlreadyStarted
	}
	if c.format == nil {
		return errors.New("flv: no track added")
	}

	meta, err := Metadata(*c.format, c.orientation)
	if err != nil {
		return err
	}
	seq, err := SequenceHeader(*c.format)
	if err != nil {
		return err
	}
	if err := c.writer.WriteScript(0, meta); err != nil {
		return errors.Wrap(err, "flv: write metadata")
	}
	if err := c.writer.WriteVideo(0, seq); err != nil {
		return errors.Wrap(err, "flv: write sequence header")
	}

	c.started = true
	c.log.Info("container started")
	return nil
}

// WriteSampleData writes one access unit given in Annex-B form
func (c *Container) WriteSampleData(track int, data []byte, info models.BufferInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopped {
		return errNotStarted
	}
	if track != 0 {
		return errors.Errorf("flv: unknown track %d", track)
	}

	body, err := PictureBody(data, info.IsKeyFrame())
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	ts := Timestamp(info.PresentationTimeUs)
	if err := c.writer.WriteVideo(ts, body); err != nil {
		return errors.Wrap(err, "flv: write picture")
	}
	c.lastTS = ts
	c.tags++
	return nil
}

// Stop writes the end of sequence tag
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return errNotStarted
	}
	if c.stopped {
		return nil
	}
	c.stopped = true
	if err := c.writer.WriteVideo(c.lastTS, EndOfSequence()); err != nil {
		return errors.Wrap(err, "flv: write end of sequence")
	}
	c.log.WithField("tags", c.tags).Info("container stopped")
	return nil
}

// Release closes the output. Further calls do nothing.
func (c *Container) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	return errors.Wrap(c.out.Close(), "flv: close output")
}
