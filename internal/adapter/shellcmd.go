package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/agentboard-ai/agentboard/pkg/types"
)

// shellLine is the payload shape of one line of shell output.
type shellLine struct {
	Stream string `json:"stream"` // "stdout" | "stderr"
	Line   string `json:"line"`
}

// ShellCommand spawns a shell running one command and streams its output
// line by line. The terminal event records the exit code.
type ShellCommand struct {
	// Shell is the shell binary; detected from $SHELL when empty.
	Shell string
}

// NewShellCommand creates an invoker running commands under the user's shell.
func NewShellCommand() *ShellCommand {
	return &ShellCommand{Shell: detectShell()}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

// Invoke starts the shell. The command line is carried in req.Prompt.
func (s *ShellCommand) Invoke(ctx context.Context, req Request) (Invocation, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("no command to run")
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, s.Shell, "/c", req.Prompt)
	} else {
		cmd = exec.CommandContext(ctx, s.Shell, "-c", req.Prompt)
	}
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	inv := &shellInvocation{
		cmd:    cmd,
		events: make(chan Event, 16),
	}
	go inv.read(stdout, stderr)
	return inv, nil
}

// shellInvocation is one running shell command.
type shellInvocation struct {
	cmd    *exec.Cmd
	events chan Event

	closeOnce sync.Once
}

func (inv *shellInvocation) read(stdout, stderr io.Reader) {
	defer close(inv.events)

	var wg sync.WaitGroup
	wg.Add(2)
	go inv.scanStream("stdout", stdout, &wg)
	go inv.scanStream("stderr", stderr, &wg)
	wg.Wait()

	err := inv.cmd.Wait()
	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	msg := ""
	if exitCode != 0 {
		msg = fmt.Sprintf("command exited with code %d", exitCode)
	}
	inv.events <- Terminal{
		Success:  exitCode == 0,
		ExitCode: exitCode,
		Message:  msg,
	}
}

func (inv *shellInvocation) scanStream(name string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		payload, err := json.Marshal(shellLine{Stream: name, Line: scanner.Text()})
		if err != nil {
			continue
		}
		inv.events <- Progress{Payload: payload, Delta: scanner.Text() + "\n"}
	}
}

func (inv *shellInvocation) Next(ctx context.Context) (Event, error) {
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

// Answer is not supported: shells have no interactive question protocol.
func (inv *shellInvocation) Answer(ctx context.Context, answer types.Answer) error {
	return fmt.Errorf("shell sessions do not accept answers")
}

// Close asks the process group to terminate. SIGTERM first gives the command
// a chance to flush; the registry escalates by cancelling the context.
func (inv *shellInvocation) Close() error {
	inv.closeOnce.Do(func() {
		killProcessGroup(inv.cmd)
	})
	return nil
}
