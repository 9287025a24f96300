package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/jkaninda/pyguard-terminal/internal/validator"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultKillGrace = 5 * time.Second

	// maxLineBytes caps a single output line to prevent OOM from chatty
	// commands; longer lines end the affected stream's drain.
	maxLineBytes = 1 << 20 // 1 MB
)

// Config configures the execution engine.
type Config struct {
	SandboxRoot   string        // Working directory for every spawned child.
	CLIName       string        // Alias clients type, e.g. "pyguard".
	Interpreter   string        // Interpreter the alias rewrites to, e.g. "python3".
	Entrypoint    string        // CLI entrypoint script, e.g. "cli.py".
	CredentialEnv string        // Env var the fix/analyze operations require.
	Timeout       time.Duration // Wall-clock bound on the whole streaming phase. 0 = 60s.
	KillGrace     time.Duration // Grace between SIGTERM and SIGKILL. 0 = 5s.
}

// Executor runs one admitted command at a time and streams its output as an
// ordered, finite sequence of events. Safe for concurrent use across
// commands; each invocation owns its child process exclusively.
type Executor struct {
	cfg    Config
	hook   *validator.Hook // nil = pre-execution validation disabled.
	logger *slog.Logger

	lookPath func(string) (string, error) // Injectable for tests.
	getenv   func(string) string
}

// NewExecutor creates an execution engine. hook may be nil to disable the
// static validation layer.
func NewExecutor(cfg Config, hook *validator.Hook, logger *slog.Logger) *Executor {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = defaultKillGrace
	}
	if cfg.CLIName == "" {
		cfg.CLIName = "pyguard"
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Entrypoint == "" {
		cfg.Entrypoint = "cli.py"
	}
	if cfg.CredentialEnv == "" {
		cfg.CredentialEnv = "ANTHROPIC_API_KEY"
	}
	return &Executor{
		cfg:      cfg,
		hook:     hook,
		logger:   logger,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

// helpLines is the fixed help output, emitted without spawning anything.
var helpLines = []string{
	"PyGuard Terminal - Available Commands:",
	"",
	"PyGuard Commands:",
	"  pyguard --help         - Show PyGuard CLI help",
	"  pyguard extract        - Extract bug patterns from /patterns",
	"  pyguard fix            - Fix bugs in Python code",
	"  pyguard analyze        - Analyze code for bugs",
	"  pyguard list-patterns  - List known bug patterns",
	"",
	"Terminal Commands:",
	"  clear                  - Clear terminal screen",
	"  ls                     - List files in current directory",
	"  pwd                    - Print working directory",
	"  cat [file]             - Display file contents",
	"",
	"Examples:",
	"  pyguard fix --code \"def test(): pass\"",
	"  pyguard analyze --file sample.py",
	"  ls",
	"",
	"Note: Only PyGuard commands are allowed. Other commands are blocked for security.",
}

// Execute runs the command and returns its event channel. The channel is
// closed after the terminal event on every path. The caller must drain it.
// Cancelling ctx terminates a running child the same way a timeout does.
func (e *Executor) Execute(ctx context.Context, command string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		e.run(ctx, strings.TrimSpace(command), out)
	}()
	return out
}

func (e *Executor) run(ctx context.Context, command string, out chan<- Event) {
	switch command {
	case "":
		return
	case "clear":
		out <- Event{Kind: EventClear}
		return
	case "help":
		for _, line := range helpLines {
			out <- Event{Kind: EventStdout, Line: line}
		}
		out <- Event{Kind: EventComplete}
		return
	}

	// The fix/analyze operations call out to an external API; fail fast
	// when the credential is not configured rather than spawning a child
	// that will fail slowly.
	gated := e.cfg.CLIName + " fix"
	analyze := e.cfg.CLIName + " analyze"
	if strings.Contains(command, gated) || strings.Contains(command, analyze) {
		if e.getenv(e.cfg.CredentialEnv) == "" {
			out <- Event{
				Kind:    EventError,
				Message: fmt.Sprintf("Error: %s not configured on server. Contact admin to configure API key.", e.cfg.CredentialEnv),
			}
			return
		}
	}

	// Rewrite the CLI alias into the underlying interpreter invocation.
	parts := strings.Fields(command)
	if parts[0] == e.cfg.CLIName {
		parts = append([]string{e.cfg.Interpreter, e.cfg.Entrypoint}, parts[1:]...)
	}

	// Static validation hook: interpreter+file invocations are inspected
	// before any process is spawned.
	if e.hook != nil {
		if report, ok := e.hook.GateCommand(strings.Join(parts, " ")); !ok {
			out <- Event{Kind: EventError, Message: report}
			return
		}
	}

	if _, err := e.lookPath(parts[0]); err != nil {
		out <- Event{
			Kind:    EventNotFound,
			Message: fmt.Sprintf("Command not found: %s. Type \"help\" to see available commands.", parts[0]),
		}
		return
	}

	e.spawn(ctx, parts, out)
}

// spawn runs the child and streams both pipes until exit, timeout, or
// cancellation. The child is always reaped before spawn returns.
func (e *Executor) spawn(ctx context.Context, parts []string, out chan<- Event) {
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = e.cfg.SandboxRoot
	cmd.Env = os.Environ() // Environment passes through unmodified.

	// Own process group so termination reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		out <- Event{Kind: EventError, Message: "Error: " + err.Error()}
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		out <- Event{Kind: EventError, Message: "Error: " + err.Error()}
		return
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		out <- Event{Kind: EventError, Message: "Error: " + err.Error()}
		return
	}

	e.logger.Info("command spawned",
		slog.String("command", strings.Join(parts, " ")),
		slog.Int("pid", cmd.Process.Pid),
		slog.Duration("timeout", e.cfg.Timeout),
	)

	// One reader per pipe; intra-stream order is preserved by each reader,
	// cross-stream interleaving is whatever the scheduler produces.
	var wg sync.WaitGroup
	wg.Add(2)
	go e.drain(&wg, stdout, EventStdout, out)
	go e.drain(&wg, stderr, EventStderr, out)

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		// Non-zero exit is a result, not an engine error — stderr has
		// already been streamed.
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			out <- Event{Kind: EventError, Message: "Error: " + err.Error()}
			return
		}
		e.logger.Info("command completed",
			slog.Int("exit_code", cmd.ProcessState.ExitCode()),
			slog.Duration("duration", time.Since(start)),
		)
		out <- Event{Kind: EventComplete}

	case <-timer.C:
		e.terminate(cmd, done)
		e.logger.Warn("command timed out",
			slog.Duration("timeout", e.cfg.Timeout),
		)
		out <- Event{
			Kind:    EventTimeout,
			Message: fmt.Sprintf("Command timed out after %s", e.cfg.Timeout),
		}

	case <-ctx.Done():
		// Transport gone: treated like a timeout — terminate and reap.
		e.terminate(cmd, done)
		out <- Event{
			Kind:    EventError,
			Message: "Command canceled",
		}
	}
}

// drain reads one pipe line-by-line, forwarding each decoded non-empty line.
// Lines that are not valid UTF-8 are dropped. Read errors end the drain; the
// pipe closing on child exit is the normal end condition.
func (e *Executor) drain(wg *sync.WaitGroup, r io.Reader, kind EventKind, out chan<- Event) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || !utf8.ValidString(line) {
			continue
		}
		out <- Event{Kind: kind, Line: line}
	}
}

// terminate sends SIGTERM to the child's process group, waits up to the kill
// grace for exit, then SIGKILLs. Blocks until the child is reaped.
func (e *Executor) terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	grace := time.NewTimer(e.cfg.KillGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-done
	}
}
