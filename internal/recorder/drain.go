package recorder

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/models"
)

const trackUnset = -1

type drainMode int

const (
	// drainRecording ends the pass as soon as the encoder has nothing ready.
	drainRecording drainMode = iota
	// drainFlush keeps polling until end of stream or until keepGoing fails.
	drainFlush
)

// drainer moves encoder output into the container writer. It is owned by a
// single worker goroutine and must not be called concurrently.
type drainer struct {
	encoder     Encoder
	writer      ContainerWriter
	log         logrus.FieldLogger
	pollTimeout time.Duration
	orientation int

	info      models.BufferInfo
	format    *models.OutputFormat
	track     int
	started   bool
	writerErr error
	samples   uint64
}

func newDrainer(encoder Encoder, writer ContainerWriter, pollTimeout time.Duration, orientation int, log logrus.FieldLogger) *drainer {
	return &drainer{
		encoder:     encoder,
		writer:      writer,
		log:         log,
		pollTimeout: pollTimeout,
		orientation: orientation,
		track:       trackUnset,
	}
}

// drain pulls every chunk that is immediately available. keepGoing is
// checked before each poll. It returns the number of samples written; the
// error, if any, is a *DrainWarning that ended the pass early.
func (d *drainer) drain(mode drainMode, keepGoing func() bool) (int, error) {
	written := 0
	for keepGoing() {
		status := d.encoder.DequeueOutputBuffer(&d.info, d.pollTimeout)
		switch {
		case status == models.InfoTryAgainLater:
			if mode == drainRecording {
				return written, nil
			}
		case status == models.InfoOutputFormatChanged:
			d.captureFormat()
		case status < 0:
			d.log.WithField("status", status).Warn("unexpected result from encoder dequeue")
		default:
			wrote, stop, err := d.handleBuffer(status, mode)
			if wrote {
				written++
			}
			if err != nil {
				return written, err
			}
			if stop {
				return written, nil
			}
		}
	}
	return written, nil
}

func (d *drainer) captureFormat() {
	format := d.encoder.OutputFormat()
	if d.format != nil {
		d.log.WithField("format", format).Warn("encoder output format changed again, keeping the first one")
		return
	}
	d.format = &format
	d.log.WithField("format", format).Info("encoder output format changed")
}

// handleBuffer muxes one dequeued buffer and hands it back to the encoder.
// stop reports that the pass must end.
func (d *drainer) handleBuffer(index int, mode drainMode) (wrote, stop bool, err error) {
	data := d.encoder.OutputBuffer(index)
	if data == nil {
		d.log.WithField("index", index).Error("encoder output buffer was nil")
		return false, true, &DrainWarning{Status: index, Reason: "output buffer absent"}
	}

	info := d.info
	if info.IsConfigData() {
		// Parameter sets already reached the writer through the output format.
		d.log.Debug("ignoring codec config buffer")
		info.Size = 0
	}

	if info.Size != 0 {
		if d.format == nil {
			d.log.WithField("size", info.Size).Warn("dropping chunk received before the output format")
		} else {
			wrote, err = d.writeSample(data, info)
		}
	}

	if relErr := d.encoder.ReleaseOutputBuffer(index, false); relErr != nil {
		d.log.WithError(relErr).WithField("index", index).Warn("failed to release encoder output buffer")
	}

	if err != nil {
		d.log.WithError(err).Warn("container write failed, ending drain pass")
		return wrote, true, err
	}

	if info.IsEndOfStream() {
		if mode == drainRecording {
			d.log.Warn("reached end of stream unexpectedly")
		} else {
			d.log.Debug("reached end of stream")
		}
		return wrote, true, nil
	}
	return wrote, false, nil
}

func (d *drainer) writeSample(data []byte, info models.BufferInfo) (bool, error) {
	if d.writerErr != nil {
		return false, &DrainWarning{Reason: "container writer unusable", Err: d.writerErr}
	}
	if info.Offset < 0 || info.Offset+info.Size > len(data) {
		return false, &DrainWarning{
			Reason: "chunk exceeds its buffer",
			Err:    errors.Errorf("offset %d size %d buffer %d", info.Offset, info.Size, len(data)),
		}
	}

	if d.track == trackUnset {
		if err := d.startWriter(); err != nil {
			d.writerErr = err
			return false, &DrainWarning{Reason: "container writer start failed", Err: err}
		}
	}

	payload := data[info.Offset : info.Offset+info.Size]
	if err := d.writer.WriteSampleData(d.track, payload, info); err != nil {
		return false, &DrainWarning{Reason: "write sample", Err: err}
	}
	d.samples++

	d.log.WithFields(logrus.Fields{
		"size": info.Size,
		"pts":  info.PresentationTimeUs,
		"key":  info.IsKeyFrame(),
	}).Debug("sent chunk to container writer")
	return true, nil
}

// startWriter creates the single track and starts the writer. It runs at
// most once per session, before the first sample.
func (d *drainer) startWriter() error {
	track, err := d.writer.AddTrack(*d.format)
	if err != nil {
		return errors.Wrap(err, "add track")
	}
	if err := d.writer.SetOrientationHint(d.orientation); err != nil {
		return errors.Wrap(err, "set orientation hint")
	}
	if err := d.writer.Start(); err != nil {
		return errors.Wrap(err, "start container writer")
	}
	d.track = track
	d.started = true
	d.log.WithField("track", track).Info("started container writer")
	return nil
}

// finalize stops and releases the container writer. Call once.
func (d *drainer) finalize() error {
	var result *multierror.Error
	if d.started {
		if err := d.writer.Stop(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "stop container writer"))
		}
	}
	if err := d.writer.Release(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "release container writer"))
	}
	return result.ErrorOrNil()
}
