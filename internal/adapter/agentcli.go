package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/agentboard-ai/agentboard/pkg/types"
)

const (
	// maxLineSize bounds a single agent output line.
	maxLineSize = 4 * 1024 * 1024
	// sigkillDelay is how long a process group gets after SIGTERM.
	sigkillDelay = 200 * time.Millisecond
)

// envelope is the wire shape of one agent CLI output line.
type envelope struct {
	Type      string           `json:"type"`
	Text      string           `json:"text,omitempty"`
	Questions []types.Question `json:"questions,omitempty"`
	Status    string           `json:"status,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// answerEnvelope is the wire shape of an answer delivered on the agent's stdin.
type answerEnvelope struct {
	Type    string              `json:"type"`
	Answers map[string][]string `json:"answers"`
}

// AgentCLI spawns an agent CLI process and streams its JSON-line output.
// Each stdout line is a JSON envelope tagged by "type": anything that is not
// a question or a result is classified as progress, and lines that fail to
// parse surface as Raw events.
type AgentCLI struct {
	// Command is the default argv, used when a request carries none.
	Command []string
}

// NewAgentCLI creates an invoker for the given agent command line.
func NewAgentCLI(command []string) *AgentCLI {
	return &AgentCLI{Command: command}
}

// Invoke spawns the agent process and begins draining it.
func (a *AgentCLI) Invoke(ctx context.Context, req Request) (Invocation, error) {
	argv := req.Command
	if len(argv) == 0 {
		argv = a.Command
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("no agent command configured")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	inv := &agentInvocation{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan Event, 16),
	}

	if req.Prompt != "" {
		line, _ := json.Marshal(envelope{Type: "prompt", Text: req.Prompt})
		if _, err := stdin.Write(append(line, '\n')); err != nil {
			killProcessGroup(cmd)
			_ = cmd.Wait()
			return nil, fmt.Errorf("failed to deliver prompt: %w", err)
		}
	}

	go inv.read(stdout)
	return inv, nil
}

// agentInvocation is one running agent process.
type agentInvocation struct {
	cmd    *exec.Cmd
	events chan Event

	stdinMu sync.Mutex
	stdin   io.WriteCloser
	closed  bool
}

// read drains stdout line by line into the event channel, then waits for the
// process and synthesizes a terminal event if the agent never emitted one.
func (inv *agentInvocation) read(stdout io.Reader) {
	defer close(inv.events)

	sawTerminal := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev, terminal := classifyLine(line)
		if terminal {
			sawTerminal = true
		}
		inv.events <- ev
	}

	err := inv.cmd.Wait()
	if sawTerminal {
		return
	}

	// The agent exited without announcing a result. A clean exit counts as
	// success; anything else is a runtime failure.
	if err == nil {
		inv.events <- Terminal{Success: true}
		return
	}
	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	inv.events <- Terminal{
		Success:  false,
		ExitCode: exitCode,
		Message:  fmt.Sprintf("agent exited unexpectedly: %v", err),
	}
}

// classifyLine maps one stdout line onto the adapter event union.
func classifyLine(line []byte) (Event, bool) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil || env.Type == "" {
		return Raw{Payload: append([]byte(nil), line...)}, false
	}

	switch env.Type {
	case "question":
		return QuestionRequest{Questions: env.Questions}, false
	case "result":
		success := env.Status != "failure"
		return Terminal{
			Success: success,
			Message: env.Message,
			Payload: append(json.RawMessage(nil), line...),
		}, true
	default:
		return Progress{
			Payload: append(json.RawMessage(nil), line...),
			Delta:   env.Text,
		}, false
	}
}

// Next returns the next event or io.EOF once the process is done.
func (inv *agentInvocation) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-inv.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	}
}

// Answer writes the answer as a JSON line on the agent's stdin.
func (inv *agentInvocation) Answer(ctx context.Context, answer types.Answer) error {
	inv.stdinMu.Lock()
	defer inv.stdinMu.Unlock()

	if inv.closed {
		return fmt.Errorf("invocation already closed")
	}

	line, err := json.Marshal(answerEnvelope{Type: "answer", Answers: answer})
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	if _, err := inv.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to deliver answer: %w", err)
	}
	return nil
}

// Close closes stdin, signalling the agent to wrap up. The read goroutine
// keeps draining until the process exits.
func (inv *agentInvocation) Close() error {
	inv.stdinMu.Lock()
	defer inv.stdinMu.Unlock()

	if inv.closed {
		return nil
	}
	inv.closed = true
	return inv.stdin.Close()
}

// setProcessGroup puts the child in its own process group on unix so the
// whole tree can be killed together.
func setProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}

// killProcessGroup terminates the child and its descendants.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid

	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/pid", fmt.Sprint(pid), "/f", "/t").Run()
		return
	}

	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillDelay)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}
