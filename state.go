package camilladsp

import "strings"

// ProcessingState is the engine's processing state.
type ProcessingState string

const (
	StateRunning  ProcessingState = "RUNNING"
	StatePaused   ProcessingState = "PAUSED"
	StateInactive ProcessingState = "INACTIVE"
)

// parseProcessingState accepts the three known states in any letter case.
func parseProcessingState(text string) (ProcessingState, bool) {
	for _, state := range []ProcessingState{StateRunning, StatePaused, StateInactive} {
		if strings.EqualFold(text, string(state)) {
			return state, true
		}
	}
	return "", false
}

// ConnState is the client's position in the request/reply cycle.
type ConnState int32

const (
	ConnDisconnected ConnState = iota
	ConnIdle
	ConnAwaitingReply
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnIdle:
		return "idle"
	case ConnAwaitingReply:
		return "awaiting reply"
	default:
		return "unknown"
	}
}
