package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// resultPayload is the synthesized log payload for terminal events that the
// adapter did not describe itself.
type resultPayload struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// questionPayload is the synthesized log payload for a question request, so
// the transcript is self-describing on replay.
type questionPayload struct {
	Type      string           `json:"type"`
	Questions []types.Question `json:"questions"`
}

// answerPayload is the synthesized log payload for a submitted answer.
type answerPayload struct {
	Type    string       `json:"type"`
	Answers types.Answer `json:"answers"`
}

// pump drives one session for its entire life: it invokes the adapter,
// drains its event stream into the log store and publish channel, runs the
// question gate, and owns the terminal-state transition. It never returns an
// error; every outcome is a state transition observable on the bus.
func (r *Registry) pump(ctx context.Context, s *session, req adapter.Request) {
	defer close(s.done)
	defer func() {
		// A panicking pump must still surface as failed, never hang.
		if p := recover(); p != nil {
			r.log.Error().Str("sessionKey", s.key).Any("panic", p).Msg("pump panicked")
			r.fail(s, fmt.Sprintf("internal error: %v", p))
		}
	}()

	inv, err := r.invoker.Invoke(ctx, req)
	if err != nil {
		// Spawn failure: one terminal failed entry, no retry.
		r.fail(s, fmt.Sprintf("failed to start: %v", err))
		return
	}

	r.mu.Lock()
	if s.cancelRequested {
		r.mu.Unlock()
		_ = inv.Close()
		s.cancel()
		go drain(inv)
		r.finishCancelled(s)
		return
	}
	s.invocation = inv
	s.state = types.StateRunning
	r.mu.Unlock()
	r.bus.Publish(event.Event{Type: event.SessionRunning, SessionKey: s.key})

	for {
		ev, err := inv.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream exhausted without a terminal event.
				if r.wasCancelled(s) {
					r.finishCancelled(s)
					return
				}
				r.finish(s, adapter.Terminal{Success: true})
				return
			}
			// Context cancellation, or the adapter broke mid-stream.
			if r.wasCancelled(s) || ctx.Err() != nil {
				go drain(inv)
				r.finishCancelled(s)
				return
			}
			go drain(inv)
			r.fail(s, fmt.Sprintf("adapter stream failed: %v", err))
			return
		}

		r.touchSession(s)

		switch ev := ev.(type) {
		case adapter.Progress:
			r.append(s.key, types.EntryStructured, ev.Payload)
			if ev.Delta != "" {
				s.buffer.WriteString(ev.Delta)
			}

		case adapter.Raw:
			// A malformed payload is downgraded, never fatal.
			r.append(s.key, types.EntryRaw, rawJSON(ev.Payload))

		case adapter.QuestionRequest:
			if !r.gate(ctx, s, ev) {
				go drain(inv)
				r.finishCancelled(s)
				return
			}

		case adapter.Terminal:
			go drain(inv)
			if r.wasCancelled(s) {
				// Cancellation won the race: the terminal entry is
				// retained but the session ends cancelled.
				r.finishCancelled(s)
				return
			}
			payload := ev.Payload
			if payload == nil {
				payload = marshalResult(ev)
			}
			r.append(s.key, types.EntryStructured, payload)
			r.finish(s, ev)
			return
		}
	}
}

// gate suspends the pump while a question is outstanding. The adapter is not
// polled for further events: the underlying process is itself blocked waiting
// for the answer. Returns false when the session was cancelled instead of
// answered.
func (r *Registry) gate(ctx context.Context, s *session, q adapter.QuestionRequest) bool {
	if payload, err := json.Marshal(questionPayload{Type: "question", Questions: q.Questions}); err == nil {
		r.append(s.key, types.EntryStructured, payload)
	}

	r.mu.Lock()
	s.state = types.StateAwaitingAnswer
	s.pending = q.Questions
	r.mu.Unlock()

	r.bus.Publish(event.Event{
		Type:       event.QuestionAsked,
		SessionKey: s.key,
		Data:       event.QuestionAskedData{Questions: q.Questions},
	})

	// No timeout here: a human may take arbitrarily long. Only an answer
	// or cancellation breaks the wait.
	select {
	case <-s.resume:
		return true
	case <-s.abort:
		return false
	case <-ctx.Done():
		return false
	}
}

// fail appends a terminal failed entry and transitions the session.
func (r *Registry) fail(s *session, message string) {
	term := adapter.Terminal{Success: false, Message: message}
	r.append(s.key, types.EntryStructured, marshalResult(term))
	r.finish(s, term)
}

// finish transitions a session to completed or failed, publishes the
// terminal notification, runs the finalizer on success, and removes the
// session. Duplicate terminal events are no-ops: remove only succeeds for
// the session still registered under its key.
func (r *Registry) finish(s *session, term adapter.Terminal) {
	removed := r.remove(s)

	r.mu.Lock()
	alreadyTerminal := s.state.Terminal()
	if !alreadyTerminal {
		if term.Success {
			s.state = types.StateCompleted
		} else {
			s.state = types.StateFailed
		}
	}
	buffer := s.buffer.String()
	r.mu.Unlock()

	if !removed || alreadyTerminal {
		return
	}

	if term.Success {
		if r.final != nil {
			r.final(s.key, buffer, term)
		}
		r.bus.Publish(event.Event{Type: event.SessionCompleted, SessionKey: s.key})
		return
	}

	r.bus.Publish(event.Event{
		Type:       event.SessionFailed,
		SessionKey: s.key,
		Data:       event.SessionFailedData{Message: term.Message},
	})
	r.log.Warn().Str("sessionKey", s.key).Str("reason", term.Message).Msg("session failed")
}

// finishCancelled marks the session cancelled and publishes the terminal
// notification. No result is finalized and partial log output is retained.
func (r *Registry) finishCancelled(s *session) {
	r.remove(s)

	r.mu.Lock()
	already := s.state.Terminal()
	if !already {
		s.state = types.StateCancelled
	}
	r.mu.Unlock()
	if already {
		return
	}

	r.bus.Publish(event.Event{Type: event.SessionCancelled, SessionKey: s.key})
	r.log.Info().Str("sessionKey", s.key).Msg("session cancelled")
}

// wasCancelled reports whether cancellation was requested for the session.
func (r *Registry) wasCancelled(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.cancelRequested
}

// append records one entry and republishes it verbatim. A failed append is
// logged and the session continues: losing one entry must not kill the run.
func (r *Registry) append(key string, kind types.LogEntryKind, payload json.RawMessage) {
	entry, err := r.store.Append(context.Background(), key, kind, payload)
	if err != nil {
		r.log.Error().Str("sessionKey", key).Err(err).Msg("log append failed")
		return
	}

	r.bus.Publish(event.Event{
		Type:       event.LogAppended,
		SessionKey: key,
		Data:       event.LogAppendedData{Entry: entry},
	})
}

// appendAnswer records a submitted answer as a structured entry.
func (r *Registry) appendAnswer(key string, answer types.Answer) {
	payload, err := json.Marshal(answerPayload{Type: "answer", Answers: answer})
	if err != nil {
		return
	}
	r.append(key, types.EntryStructured, payload)
}

// drain consumes a stream to exhaustion so abandoned invocations release
// their reader goroutines and the child process gets reaped.
func drain(inv adapter.Invocation) {
	for {
		if _, err := inv.Next(context.Background()); err != nil {
			return
		}
	}
}

// marshalResult synthesizes a log payload from a terminal event.
func marshalResult(term adapter.Terminal) json.RawMessage {
	status := "success"
	if !term.Success {
		status = "failure"
	}
	payload, err := json.Marshal(resultPayload{
		Type:     "result",
		Status:   status,
		Message:  term.Message,
		ExitCode: term.ExitCode,
	})
	if err != nil {
		return json.RawMessage(`{"type":"result"}`)
	}
	return payload
}

// rawJSON wraps an unparseable payload so it is still valid JSON in the log.
func rawJSON(payload []byte) json.RawMessage {
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return json.RawMessage(`{"raw":""}`)
	}
	return wrapped
}
