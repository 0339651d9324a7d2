package models

import "fmt"

// MIMETypeAVC is the only video MIME type the recorder muxes.
const MIMETypeAVC = "video/avc"

// OutputFormat is the codec-negotiated description of the encoded stream.
// It becomes known once per session and is not modified afterwards.
type OutputFormat struct {
	MIMEType  string
	Width     int
	Height    int
	FrameRate int
	BitRate   int

	// H.264 parameter sets without start codes.
	SPS []byte
	PPS []byte
}

// HasParameterSets returns whether both SPS and PPS are present
func (f OutputFormat) HasParameterSets() bool {
	return len(f.SPS) > 0 && len(f.PPS) > 0
}

func (f OutputFormat) String() string {
	return fmt.Sprintf("{mime=%s %dx%d@%d sps=%d pps=%d}",
		f.MIMEType, f.Width, f.Height, f.FrameRate, len(f.SPS), len(f.PPS))
}
