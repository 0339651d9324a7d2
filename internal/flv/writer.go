package flv

import (
	"encoding/binary"
	"io"
	"sync"
)

// Tag types
const (
	TagVideo  byte = 9
	TagScript byte = 18
)

const headerFlagVideo = 0x01

// Writer handles FLV tag writing with thread safety
type Writer struct {
	writer     io.Writer
	writeMutex sync.Mutex
	headerOnce sync.Once
	headerErr  error
}

// NewWriter creates a new FLV writer
func NewWriter(writer io.Writer) *Writer {
	return &Writer{
		writer: writer,
	}
}

// WriteHeader writes the FLV header announcing a video-only file. Only the
// first call writes.
func (w *Writer) WriteHeader() error {
	w.headerOnce.Do(func() {
		header := []byte{'F', 'L', 'V', 0x01, headerFlagVideo, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
		_, w.headerErr = w.writer.Write(header)
	})
	return w.headerErr
}

// WriteTag writes a properly formatted FLV tag
func (w *Writer) WriteTag(tagType byte, timestamp uint32, data []byte) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	w.writeMutex.Lock()
	defer w.writeMutex.Unlock()

	dataSize := uint32(len(data))
	tagHeader := makeFLVTagHeader(tagType, dataSize, timestamp)

	if _, err := w.writer.Write(tagHeader); err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}

	prevTagSize := make([]byte, 4)
	binary.BigEndian.PutUint32(prevTagSize, dataSize+11)
	_, err := w.writer.Write(prevTagSize)
	return err
}

// WriteVideo writes a video tag
func (w *Writer) WriteVideo(timestamp uint32, data []byte) error {
	return w.WriteTag(TagVideo, timestamp, data)
}

// WriteScript writes a script tag (metadata)
func (w *Writer) WriteScript(timestamp uint32, data []byte) error {
	return w.WriteTag(TagScript, timestamp, data)
}

// makeFLVTagHeader creates an FLV tag header
func makeFLVTagHeader(tagType byte, dataSize uint32, timestamp uint32) []byte {
	header := make([]byte, 11)
	header[0] = tagType
	header[1] = byte(dataSize >> 16)
	header[2] = byte(dataSize >> 8)
	header[3] = byte(dataSize)
	header[4] = byte(timestamp >> 16)
	header[5] = byte(timestamp >> 8)
	header[6] = byte(timestamp)
	header[7] = byte(timestamp >> 24) // TimestampExtended
	return header
}
