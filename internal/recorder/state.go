package recorder

import "sync/atomic"

// State is the lifecycle state of a Session
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type atomicState struct{ v atomic.Int32 }

func (a *atomicState) Load() State     { return State(a.v.Load()) }
func (a *atomicState) Store(s State)   { a.v.Store(int32(s)) }
func (a *atomicState) Is(s State) bool { return a.Load() == s }

type workerState int32

const (
	workerNotStarted workerState = iota
	workerLooping
	workerShuttingDown
	workerTerminated
)

func (s workerState) String() string {
	switch s {
	case workerNotStarted:
		return "not-started"
	case workerLooping:
		return "looping"
	case workerShuttingDown:
		return "shutting-down"
	case workerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
