// Package mp4 writes a single H.264 track into a fragmented MP4 file.
package mp4

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/avc"
	"surface-recorder/internal/models"
)

const (
	timeScale = 90000
	trackID   = 1

	// A fragment is cut at the first key frame after this many ticks.
	minFragmentDuration = timeScale
)

var (
	errNotStarted     = errors.New("mp4: writer not started")
	errAlreadyStarted = errors.New("mp4: writer already started")
	errTrackExists    = errors.New("mp4: only one video track is supported")
	errUnknownTrack   = errors.New("mp4: unknown track")
)

type sample struct {
	dts     int64
	payload []byte
	key     bool
}

// Writer implements the container writer contract on top of fMP4. Samples
// are buffered until the next key frame so every fragment starts with a
// sync sample, and each sample's duration comes from its successor.
type Writer struct {
	out io.WriteCloser
	log logrus.FieldLogger

	mu          sync.Mutex
	format      *models.OutputFormat
	orientation int
	started     bool
	stopped     bool
	released    bool

	sequence      uint32
	fragmentStart int64
	fragment      []*fmp4.Sample
	pending       *sample
	firstDTS      int64
	haveFirst     bool
	samples       int
}

// NewWriter creates a writer that owns out and closes it on Release
func NewWriter(out io.WriteCloser, log logrus.FieldLogger) *Writer {
	return &Writer{
		out:      out,
		log:      log.WithField("container", "mp4"),
		sequence: 1,
	}
}

// Create opens path for writing, creating its directory when needed
func Create(path string, log logrus.FieldLogger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mp4: create output directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "mp4: open output file")
	}
	return NewWriter(f, log.WithField("path", path)), nil
}

// AddTrack registers the video track. Only one track is accepted.
func (w *Writer) AddTrack(format models.OutputFormat) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return -1, errAlreadyStarted
	}
	if w.format != nil {
		return -1, errTrackExists
	}
	if format.MIMEType != models.MIMETypeAVC {
		return -1, errors.Errorf("mp4: unsupported mime type %q", format.MIMEType)
	}
	if !format.HasParameterSets() {
		return -1, errors.New("mp4: format carries no SPS/PPS")
	}
	var sps h264.SPS
	if err := sps.Unmarshal(format.SPS); err != nil {
		return -1, errors.Wrap(err, "mp4: invalid SPS")
	}
	w.format = &format
	w.log.WithFields(logrus.Fields{
		"width":  sps.Width(),
		"height": sps.Height(),
	}).Debug("added video track")
	return 0, nil
}

// SetOrientationHint records the display rotation. It must precede Start.
func (w *Writer) SetOrientationHint(degrees int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errAlreadyStarted
	}
	if _, ok := rotationMatrices[degrees]; !ok {
		return errors.Errorf("mp4: unsupported orientation %d", degrees)
	}
	w.orientation = degrees
	return nil
}

// Start writes the initialization segment
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errAlreadyStarted
	}
	if w.format == nil {
		return errors.New("mp4: no track added")
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        trackID,
			TimeScale: timeScale,
			Codec: &mp4.CodecH264{
				SPS: w.format.SPS,
				PPS: w.format.PPS,
			},
		}},
	}
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return errors.Wrap(err, "mp4: marshal init segment")
	}
	data := buf.Bytes()
	if err := applyRotation(data, w.orientation); err != nil {
		return err
	}
	if _, err := w.out.Write(data); err != nil {
		return errors.Wrap(err, "mp4: write init segment")
	}

	w.started = true
	w.log.WithField("orientation", w.orientation).Info("container started")
	return nil
}

// WriteSampleData buffers one access unit given in Annex-B form
func (w *Writer) WriteSampleData(track int, data []byte, info models.BufferInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.stopped {
		return errNotStarted
	}
	if track != 0 {
		return errors.Wrapf(errUnknownTrack, "track %d", track)
	}

	payload, err := avc.ToAVCC(data)
	if err != nil {
		return errors.Wrap(err, "mp4")
	}
	if len(payload) == 0 {
		return nil
	}

	dts := info.PresentationTimeUs * timeScale / 1_000_000
	if !w.haveFirst {
		w.firstDTS = dts
		w.fragmentStart = 0
		w.haveFirst = true
	}
	next := &sample{
		dts:     dts - w.firstDTS,
		payload: payload,
		key:     info.IsKeyFrame(),
	}
	if w.pending != nil {
		if err := w.push(next); err != nil {
			return err
		}
	}
	w.pending = next
	w.samples++
	return nil
}

// push appends the pending sample to the fragment, using next to compute
// its duration, and cuts the fragment when next opens a new one.
func (w *Writer) push(next *sample) error {
	duration := next.dts - w.pending.dts
	if duration <= 0 {
		duration = w.defaultDuration()
	}
	w.fragment = append(w.fragment, &fmp4.Sample{
		Duration:        uint32(duration),
		IsNonSyncSample: !w.pending.key,
		Payload:         w.pending.payload,
	})

	if next.key && next.dts-w.fragmentStart >= minFragmentDuration {
		if err := w.flushFragment(); err != nil {
			return err
		}
		w.fragmentStart = next.dts
	}
	return nil
}

func (w *Writer) defaultDuration() int64 {
	if w.format != nil && w.format.FrameRate > 0 {
		return int64(timeScale / w.format.FrameRate)
	}
	return timeScale / 30
}

func (w *Writer) flushFragment() error {
	if len(w.fragment) == 0 {
		return nil
	}
	part := &fmp4.Part{
		SequenceNumber: w.sequence,
		Tracks: []*fmp4.PartTrack{{
			ID:       trackID,
			BaseTime: uint64(w.fragmentStart),
			Samples:  w.fragment,
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return errors.Wrap(err, "mp4: marshal fragment")
	}
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "mp4: write fragment")
	}
	w.log.WithFields(logrus.Fields{
		"sequence": w.sequence,
		"samples":  len(w.fragment),
	}).Debug("wrote fragment")
	w.sequence++
	w.fragment = nil
	return nil
}

// Stop flushes buffered samples. The file stays open until Release.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return errNotStarted
	}
	if w.stopped {
		return nil
	}
	w.stopped = true

	if w.pending != nil {
		w.fragment = append(w.fragment, &fmp4.Sample{
			Duration:        uint32(w.defaultDuration()),
			IsNonSyncSample: !w.pending.key,
			Payload:         w.pending.payload,
		})
		w.pending = nil
	}
	if err := w.flushFragment(); err != nil {
		return err
	}
	w.log.WithField("samples", w.samples).Info("container stopped")
	return nil
}

// Release closes the output. Further calls do nothing.
func (w *Writer) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true
	if err := w.out.Close(); err != nil {
		return errors.Wrap(err, "mp4: close output")
	}
	return nil
}
