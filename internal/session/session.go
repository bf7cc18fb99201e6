package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// session is the in-memory state of one live unit of work. It is owned
// exclusively by its Registry; all mutation happens under the registry mutex
// or from the session's own pump goroutine.
type session struct {
	key       string
	cancel    context.CancelFunc
	startedAt time.Time

	// invocation is set by the pump once the adapter has started.
	invocation adapter.Invocation

	// buffer accumulates text deltas for variants that synthesize a final
	// result from the stream (e.g. inline edit).
	buffer strings.Builder

	// lastActive drives idle eviction. It starts at startedAt and is
	// refreshed by adapter events and explicit touches.
	lastActive time.Time

	state   types.SessionState
	pending []types.Question

	// answering marks a pending question as claimed by an in-flight
	// SubmitAnswer so a concurrent answer for the same key is rejected.
	answering bool

	// resume unblocks the pump after a question is answered and the
	// adapter acknowledged the answer.
	resume chan struct{}

	// abort unblocks the question gate when the session is cancelled
	// while awaiting an answer.
	abort     chan struct{}
	abortOnce sync.Once

	// cancelRequested marks the session so the pump reports cancelled
	// rather than completed when its stream winds down.
	cancelRequested bool

	// done is closed when the pump goroutine exits.
	done chan struct{}
}

func newSession(key string, cancel context.CancelFunc, now time.Time) *session {
	return &session{
		key:        key,
		cancel:     cancel,
		startedAt:  now,
		lastActive: now,
		state:      types.StateStarting,
		resume:     make(chan struct{}, 1),
		abort:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// requestAbort closes the abort channel exactly once.
func (s *session) requestAbort() {
	s.abortOnce.Do(func() {
		close(s.abort)
	})
}

// status snapshots the externally visible session state. Callers hold the
// registry mutex.
func (s *session) status() types.SessionStatus {
	st := types.SessionStatus{
		Key:       s.key,
		State:     s.state,
		StartedAt: s.startedAt.UnixMilli(),
	}
	if len(s.pending) > 0 {
		st.PendingQuestion = append([]types.Question(nil), s.pending...)
	}
	return st
}
