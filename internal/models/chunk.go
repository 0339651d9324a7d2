package models

// BufferFlags describes an encoded chunk.
type BufferFlags uint32

const (
	// FlagKeyFrame marks a chunk that starts a decodable sequence.
	FlagKeyFrame BufferFlags = 1 << iota
	// FlagConfigData marks codec parameter sets. They travel in the
	// OutputFormat, never as a sample.
	FlagConfigData
	// FlagEndOfStream marks the last chunk the encoder will produce.
	FlagEndOfStream
)

// Has reports whether all bits of f are set.
func (b BufferFlags) Has(f BufferFlags) bool {
	return b&f == f
}

// BufferInfo holds the metadata of one encoder output chunk
type BufferInfo struct {
	Offset int
	Size   int
	Flags  BufferFlags
	// PresentationTimeUs is the presentation timestamp in microseconds.
	PresentationTimeUs int64
}

// IsKeyFrame returns whether the chunk carries a key frame
func (i BufferInfo) IsKeyFrame() bool {
	return i.Flags.Has(FlagKeyFrame)
}

// IsConfigData returns whether the chunk carries codec configuration
func (i BufferInfo) IsConfigData() bool {
	return i.Flags.Has(FlagConfigData)
}

// IsEndOfStream returns whether the chunk is the last one
func (i BufferInfo) IsEndOfStream() bool {
	return i.Flags.Has(FlagEndOfStream)
}

// Results of an output dequeue that are not buffer indexes. Every value
// below zero is informational; unknown negative values must be tolerated.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3
)
