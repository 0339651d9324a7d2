package models

// Message is a request handled by an encoder worker's loop.
type Message int

const (
	MsgFrameAvailable Message = iota
	MsgShutdown
)

func (m Message) String() string {
	switch m {
	case MsgFrameAvailable:
		return "frame-available"
	case MsgShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
