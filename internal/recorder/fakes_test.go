package recorder

import (
	"errors"
	"sync"
	"time"

	"surface-recorder/internal/models"
)

// H.264 parameter sets of a 1920x1080 baseline stream.
var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	testPPS = []byte{0x68, 0xce, 0x38, 0x80}

	testIDR    = []byte{0x65, 0x88, 0x84, 0x00, 0x10}
	testPFrame = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

func testFormat() models.OutputFormat {
	return models.OutputFormat{
		MIMEType:  models.MIMETypeAVC,
		Width:     1920,
		Height:    1080,
		FrameRate: 30,
		SPS:       testSPS,
		PPS:       testPPS,
	}
}

// output is one scripted dequeue result. status >= 0 yields a buffer.
type output struct {
	status  int
	info    models.BufferInfo
	data    []byte
	nilData bool
}

func formatChanged() output { return output{status: models.InfoOutputFormatChanged} }

func tryAgain() output { return output{status: models.InfoTryAgainLater} }

func chunk(data []byte, pts int64, flags models.BufferFlags) output {
	return output{
		info: models.BufferInfo{Size: len(data), PresentationTimeUs: pts, Flags: flags},
		data: data,
	}
}

func configChunk() output {
	return chunk(annexB(testSPS, testPPS), 0, models.FlagConfigData)
}

func endOfStream() output {
	return output{info: models.BufferInfo{Flags: models.FlagEndOfStream}, data: []byte{}}
}

// fakeEncoder replays scripted outputs. When driven through its surface it
// behaves like a hardware encoder holding latency frames back until the
// end of input is signalled.
type fakeEncoder struct {
	mu sync.Mutex

	latency int
	fps     int
	gop     int

	outputs  []output
	buffers  map[int][]byte
	nextIdx  int
	dequeues int
	released int
	rendered int

	formatSent bool
	pending    int
	emitted    int

	started     bool
	inputClosed bool
	stopped     bool
	freed       bool
	surface     *fakeSurface

	surfaceErr error
	startErr   error
	stopErr    error
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{
		latency: 2,
		fps:     30,
		gop:     150,
		buffers: make(map[int][]byte),
	}
}

func (e *fakeEncoder) script(outputs ...output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs = append(e.outputs, outputs...)
}

func (e *fakeEncoder) remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outputs)
}

func (e *fakeEncoder) frameQueued() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.formatSent {
		e.outputs = append(e.outputs, formatChanged(), configChunk())
		e.formatSent = true
	}
	e.pending++
	for e.pending > e.latency {
		e.emitLocked()
	}
}

func (e *fakeEncoder) emitLocked() {
	e.pending--
	pts := int64(e.emitted) * 1_000_000 / int64(e.fps)
	if e.emitted%e.gop == 0 {
		e.outputs = append(e.outputs, chunk(annexB(testIDR), pts, models.FlagKeyFrame))
	} else {
		e.outputs = append(e.outputs, chunk(annexB(testPFrame), pts, 0))
	}
	e.emitted++
}

func (e *fakeEncoder) CreateInputSurface() (Surface, error) {
	if e.surfaceErr != nil {
		return nil, e.surfaceErr
	}
	e.surface = &fakeSurface{encoder: e}
	return e.surface, nil
}

func (e *fakeEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.started = true
	return nil
}

func (e *fakeEncoder) SignalEndOfInputStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.pending > 0 {
		e.emitLocked()
	}
	e.outputs = append(e.outputs, endOfStream())
	e.inputClosed = true
	return nil
}

func (e *fakeEncoder) DequeueOutputBuffer(info *models.BufferInfo, timeout time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dequeues++
	if len(e.outputs) == 0 {
		return models.InfoTryAgainLater
	}
	o := e.outputs[0]
	e.outputs = e.outputs[1:]
	if o.status < 0 {
		return o.status
	}
	idx := e.nextIdx
	e.nextIdx++
	if !o.nilData {
		e.buffers[idx] = o.data
	}
	*info = o.info
	return idx
}

func (e *fakeEncoder) OutputFormat() models.OutputFormat {
	return testFormat()
}

func (e *fakeEncoder) OutputBuffer(index int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffers[index]
}

func (e *fakeEncoder) ReleaseOutputBuffer(index int, render bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.buffers, index)
	e.released++
	if render {
		e.rendered++
	}
	return nil
}

func (e *fakeEncoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return e.stopErr
}

func (e *fakeEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.freed = true
	return nil
}

func (e *fakeEncoder) snapshot() (dequeues, released, rendered int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dequeues, e.released, e.rendered
}

type fakeSurface struct {
	mu       sync.Mutex
	encoder  *fakeEncoder
	frames   int
	released bool
}

var errSurfaceReleased = errors.New("surface released")

func (s *fakeSurface) WriteFrame(frame []byte) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return errSurfaceReleased
	}
	s.frames++
	s.mu.Unlock()
	s.encoder.frameQueued()
	return nil
}

func (s *fakeSurface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

func (s *fakeSurface) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// fakeWriter records every call and refuses samples before Start.
type fakeWriter struct {
	mu sync.Mutex

	ops         []string
	tracks      int
	orientation int
	started     bool
	samples     []models.BufferInfo
	payloads    [][]byte

	addErr     error
	startErr   error
	writeErr   error
	stopErr    error
	releaseErr error
}

func (w *fakeWriter) record(op string) {
	w.ops = append(w.ops, op)
}

func (w *fakeWriter) AddTrack(format models.OutputFormat) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("addTrack")
	if w.addErr != nil {
		return -1, w.addErr
	}
	if !format.HasParameterSets() {
		return -1, errors.New("format without parameter sets")
	}
	w.tracks++
	return w.tracks - 1, nil
}

func (w *fakeWriter) SetOrientationHint(degrees int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("orientation")
	w.orientation = degrees
	return nil
}

func (w *fakeWriter) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("start")
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *fakeWriter) WriteSampleData(track int, data []byte, info models.BufferInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("write")
	if !w.started {
		return errors.New("write before start")
	}
	if w.writeErr != nil {
		return w.writeErr
	}
	w.samples = append(w.samples, info)
	w.payloads = append(w.payloads, append([]byte(nil), data...))
	return nil
}

func (w *fakeWriter) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("stop")
	w.started = false
	return w.stopErr
}

func (w *fakeWriter) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("release")
	return w.releaseErr
}

func (w *fakeWriter) calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.ops...)
}

func (w *fakeWriter) count(op string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, o := range w.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (w *fakeWriter) sampleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}
