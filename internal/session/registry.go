package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logging"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// DefaultGracePeriod bounds how long a graceful close may take before the
// registry escalates to a hard abort.
const DefaultGracePeriod = 3 * time.Second

// Finalizer runs after a session completes successfully, receiving the
// accumulated text buffer and the final log sequence context. Variants use it
// to synthesize a result (e.g. diffing generated code against the original).
type Finalizer func(key string, buffer string, term adapter.Terminal)

// Options configures a Registry for one variant.
type Options struct {
	// Name tags log lines and has no other semantics.
	Name string
	// Store receives every session's output.
	Store logstore.Store
	// Bus receives live republished events.
	Bus *event.Bus
	// Invoker starts the variant's adapter invocations.
	Invoker adapter.Invoker
	// GracePeriod bounds graceful close; DefaultGracePeriod when zero.
	GracePeriod time.Duration
	// IdleTimeout marks sessions for sweep eviction; zero means never.
	IdleTimeout time.Duration
	// Finalize, when set, runs on successful completion.
	Finalize Finalizer
	// Now is the clock, injectable for tests; time.Now when nil.
	Now func() time.Time
}

// Registry is a concurrency-safe map of live sessions for one variant. At
// most one live session exists per key: starting a session under an existing
// key supersedes the prior one.
type Registry struct {
	name    string
	store   logstore.Store
	bus     *event.Bus
	invoker adapter.Invoker
	grace   time.Duration
	idle    time.Duration
	final   Finalizer
	now     func() time.Time
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry creates a registry from options.
func NewRegistry(opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		name:     opts.Name,
		store:    opts.Store,
		bus:      opts.Bus,
		invoker:  opts.Invoker,
		grace:    opts.GracePeriod,
		idle:     opts.IdleTimeout,
		final:    opts.Finalize,
		now:      opts.Now,
		log:      logging.Component(opts.Name),
		sessions: make(map[string]*session),
	}
}

// Start registers a session under key and launches its pump. If a session
// already exists under key it is cancelled and removed first; the new run
// never merges with the old one. Start returns immediately: spawn and
// runtime failures surface through the log store and publish channel as a
// terminal failed state, never here.
func (r *Registry) Start(key string, req adapter.Request) {
	r.mu.Lock()
	if old, ok := r.sessions[key]; ok {
		delete(r.sessions, key)
		r.beginCancel(old)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(key, cancel, r.now())
	r.sessions[key] = s
	r.mu.Unlock()

	r.bus.Publish(event.Event{Type: event.SessionStarted, SessionKey: key})
	go r.pump(ctx, s, req)
}

// Cancel requests cancellation of the session under key. It returns false
// when no session exists, which is a no-op rather than an error. Graceful
// close is attempted first; the hard abort follows after the grace period.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, key)
	r.beginCancel(s)
	r.mu.Unlock()
	return true
}

// beginCancel starts the graceful-then-hard cancellation of a session.
// Callers hold the registry mutex; the slow parts run in the background.
func (r *Registry) beginCancel(s *session) {
	s.cancelRequested = true
	s.requestAbort()
	inv := s.invocation

	go func() {
		closed := false
		if inv != nil {
			closed = inv.Close() == nil
		}
		if !closed {
			// No graceful path: hard abort right away.
			s.cancel()
			return
		}
		select {
		case <-s.done:
		case <-time.After(r.grace):
			r.log.Debug().Str("sessionKey", s.key).Msg("grace period elapsed, hard aborting")
		}
		s.cancel()
	}()
}

// IsRunning reports whether a live session exists under key.
func (r *Registry) IsRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	return ok && s.state.Live()
}

// HasPendingQuestion reports whether the session under key is paused
// awaiting an answer.
func (r *Registry) HasPendingQuestion(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	return ok && s.state == types.StateAwaitingAnswer
}

// Status returns a snapshot of the session under key.
func (r *Registry) Status(key string) (types.SessionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return types.SessionStatus{}, false
	}
	return s.status(), true
}

// Keys returns the keys of all live sessions.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}

// SubmitAnswer resolves a pending question. It returns false when no session
// under key is awaiting an answer; nothing is logged or published in that
// case. Otherwise the answer is recorded as a synthetic structured log
// entry, forwarded into the still-open invocation, and once the adapter
// acknowledges it the session returns to running and the pump resumes.
func (r *Registry) SubmitAnswer(ctx context.Context, key string, answer types.Answer) bool {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok || s.state != types.StateAwaitingAnswer || s.answering {
		r.mu.Unlock()
		return false
	}
	// Claim the gate so a concurrent answer for the same key loses.
	s.answering = true
	inv := s.invocation
	r.mu.Unlock()

	r.appendAnswer(key, answer)

	if inv != nil {
		if err := inv.Answer(ctx, answer); err != nil {
			r.log.Warn().Str("sessionKey", key).Err(err).Msg("failed to deliver answer to adapter")
		}
	}

	r.mu.Lock()
	s.answering = false
	if cur, ok := r.sessions[key]; ok && cur == s && s.state == types.StateAwaitingAnswer {
		s.state = types.StateRunning
		s.pending = nil
		s.lastActive = r.now()
	}
	r.mu.Unlock()

	r.bus.Publish(event.Event{
		Type:       event.QuestionAnswered,
		SessionKey: key,
		Data:       event.QuestionAnsweredData{Answer: answer},
	})

	select {
	case s.resume <- struct{}{}:
	default:
	}
	return true
}

// Touch refreshes the idle clock of the session under key.
func (r *Registry) Touch(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return false
	}
	s.lastActive = r.now()
	return true
}

// EvictIdle cancels every session idle past the registry's timeout and
// returns the evicted keys. Registries with no idle timeout never evict.
func (r *Registry) EvictIdle() []string {
	if r.idle <= 0 {
		return nil
	}

	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var evicted []string
	for key, s := range r.sessions {
		if s.lastActive.Before(cutoff) {
			delete(r.sessions, key)
			r.beginCancel(s)
			evicted = append(evicted, key)
		}
	}
	r.mu.Unlock()

	for _, key := range evicted {
		r.log.Info().Str("sessionKey", key).Msg("evicted idle session")
	}
	return evicted
}

// Close cancels every live session. Used on shutdown. The cancel flags are
// set under the mutex because the pumps read them under it.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for key, s := range r.sessions {
		delete(r.sessions, key)
		s.cancelRequested = true
		s.requestAbort()
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
	}
}

// remove drops the session from the map if it is still the registered one.
// Returns false when the session was already superseded or removed, which
// makes duplicate terminal events no-ops.
func (r *Registry) remove(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.key]; ok && cur == s {
		delete(r.sessions, s.key)
		return true
	}
	return false
}

// touchSession refreshes a session's idle clock from the pump.
func (r *Registry) touchSession(s *session) {
	r.mu.Lock()
	s.lastActive = r.now()
	r.mu.Unlock()
}
