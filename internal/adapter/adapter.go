// Package adapter defines the process adapter capability the orchestration
// core drives: start a run, drain its event stream, feed answers back in, and
// shut it down. The core never sees a concrete SDK or process, only this
// contract.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/agentboard-ai/agentboard/pkg/types"
)

// Request describes one adapter invocation.
type Request struct {
	// Command is the argv to spawn for process-backed adapters.
	Command []string
	// Dir is the working directory for the invocation.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Prompt is the initial instruction delivered to the invocation.
	Prompt string
}

// Event is the tagged union of adapter stream output.
type Event interface {
	adapterEvent()
}

// Progress is a structured progress event (assistant message, tool use,
// tool result). Payload is appended to the log verbatim.
type Progress struct {
	Payload json.RawMessage
	// Delta is the text delta, if any, for variants that accumulate a
	// buffer (e.g. inline edit).
	Delta string
}

func (Progress) adapterEvent() {}

// Raw is the fallback for output that failed to parse. A single malformed
// payload never aborts an otherwise healthy stream.
type Raw struct {
	Payload []byte
}

func (Raw) adapterEvent() {}

// QuestionRequest pauses the invocation until an answer is delivered back
// via Invocation.Answer.
type QuestionRequest struct {
	Questions []types.Question
}

func (QuestionRequest) adapterEvent() {}

// Terminal ends the stream.
type Terminal struct {
	Success bool
	// Message carries the human-readable failure reason when Success is false.
	Message string
	// ExitCode is the process exit code for process-backed adapters.
	ExitCode int
	// Payload, when present, is appended to the log verbatim.
	Payload json.RawMessage
}

func (Terminal) adapterEvent() {}

// Invocation is one running adapter invocation.
type Invocation interface {
	// Next blocks until the next event or stream exhaustion (io.EOF).
	Next(ctx context.Context) (Event, error)
	// Answer forwards a question answer into the still-open invocation.
	Answer(ctx context.Context, answer types.Answer) error
	// Close requests a graceful shutdown. Hard abort is the caller's
	// context cancellation.
	Close() error
}

// Invoker starts invocations.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Invocation, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (Invocation, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (Invocation, error) {
	return f(ctx, req)
}
