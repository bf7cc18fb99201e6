// Package types provides the core data types for the agentboard server.
package types

// SessionState tracks where a live session is in its lifecycle.
type SessionState string

const (
	StateStarting       SessionState = "starting"
	StateRunning        SessionState = "running"
	StateAwaitingAnswer SessionState = "awaiting_answer"
	StateCompleted      SessionState = "completed"
	StateFailed         SessionState = "failed"
	StateCancelled      SessionState = "cancelled"
)

// Live reports whether the state counts as an in-flight session.
func (s SessionState) Live() bool {
	switch s {
	case StateStarting, StateRunning, StateAwaitingAnswer:
		return true
	}
	return false
}

// Terminal reports whether the state ends a session.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// SessionStatus is the externally visible snapshot of a live session.
type SessionStatus struct {
	Key             string       `json:"key"`
	State           SessionState `json:"state"`
	StartedAt       int64        `json:"startedAt"`
	PendingQuestion []Question   `json:"pendingQuestion,omitempty"`
}
