package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = t.TempDir()
	}
	return NewExecutor(cfg, nil, testLogger())
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				for i, got := range events {
					if got.Terminal() && i != len(events)-1 {
						t.Fatalf("terminal event %q at index %d of %d", got.Kind, i, len(events))
					}
				}
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out draining events, got %d so far", len(events))
		}
	}
}

func TestExecuteClear(t *testing.T) {
	e := newTestExecutor(t, Config{})
	events := collect(t, e.Execute(context.Background(), "clear"))
	if len(events) != 1 || events[0].Kind != EventClear {
		t.Fatalf("expected single clear event, got %+v", events)
	}
}

func TestExecuteEmpty(t *testing.T) {
	e := newTestExecutor(t, Config{})
	events := collect(t, e.Execute(context.Background(), "   "))
	if len(events) != 0 {
		t.Fatalf("expected no events for blank command, got %+v", events)
	}
}

func TestExecuteHelp(t *testing.T) {
	e := newTestExecutor(t, Config{})
	events := collect(t, e.Execute(context.Background(), "help"))
	if len(events) < 2 {
		t.Fatalf("expected help lines plus complete, got %d events", len(events))
	}
	last := events[len(events)-1]
	if last.Kind != EventComplete {
		t.Fatalf("expected terminal complete event, got %+v", last)
	}
	var sawUsage bool
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != EventStdout {
			t.Fatalf("help must stream stdout events only, got %+v", ev)
		}
		if strings.Contains(ev.Line, "pyguard fix") {
			sawUsage = true
		}
	}
	if !sawUsage {
		t.Error("help output missing pyguard fix usage line")
	}
}

func TestExecuteEchoRoundTrip(t *testing.T) {
	e := newTestExecutor(t, Config{})
	events := collect(t, e.Execute(context.Background(), "echo hello world"))

	var lines []string
	var completes int
	for _, ev := range events {
		switch ev.Kind {
		case EventStdout:
			lines = append(lines, ev.Line)
		case EventComplete:
			completes++
		default:
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	if completes != 1 {
		t.Fatalf("expected exactly one complete event, got %d", completes)
	}
	if events[len(events)-1].Kind != EventComplete {
		t.Fatal("complete must be the final event")
	}
	if len(lines) != 1 || lines[0] != "hello world" {
		t.Fatalf("unexpected stdout lines %v", lines)
	}
}

func TestExecuteMultiLineOrdering(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "lines.sh")
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&sb, "echo line-%d\n", i)
	}
	if err := os.WriteFile(script, []byte(sb.String()), 0o755); err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(t, Config{SandboxRoot: root})
	events := collect(t, e.Execute(context.Background(), "sh "+script))

	var lines []string
	for _, ev := range events {
		if ev.Kind == EventStdout {
			lines = append(lines, ev.Line)
		}
	}
	if len(lines) != 20 {
		t.Fatalf("expected 20 stdout lines, got %d", len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line-%d", i+1); line != want {
			t.Fatalf("line %d out of order: got %q want %q", i, line, want)
		}
	}
	if events[len(events)-1].Kind != EventComplete {
		t.Fatal("complete must be the final event")
	}
}

func TestExecuteStderrStreamed(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "err.sh")
	body := "#!/bin/sh\necho oops >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(t, Config{SandboxRoot: root})
	events := collect(t, e.Execute(context.Background(), "sh "+script))

	var sawStderr bool
	for _, ev := range events {
		if ev.Kind == EventStderr && ev.Line == "oops" {
			sawStderr = true
		}
	}
	if !sawStderr {
		t.Fatalf("expected stderr line, got %+v", events)
	}
	// Non-zero exit still completes normally.
	if events[len(events)-1].Kind != EventComplete {
		t.Fatalf("expected complete after non-zero exit, got %+v", events[len(events)-1])
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(t, Config{
		Timeout:   300 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})

	start := time.Now()
	events := collect(t, e.Execute(context.Background(), "sleep 30"))
	elapsed := time.Since(start)

	if len(events) == 0 {
		t.Fatal("expected a timeout event")
	}
	last := events[len(events)-1]
	if last.Kind != EventTimeout {
		t.Fatalf("expected timeout terminal event, got %+v", last)
	}
	if !strings.Contains(last.Message, "timed out") {
		t.Fatalf("unexpected timeout message %q", last.Message)
	}
	// Termination must not wait for the child's natural exit.
	if elapsed > 5*time.Second {
		t.Fatalf("timeout handling took %s, child likely not killed", elapsed)
	}
}

func TestExecuteContextCanceled(t *testing.T) {
	e := newTestExecutor(t, Config{KillGrace: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Execute(ctx, "sleep 30")
	time.Sleep(100 * time.Millisecond)
	cancel()

	events := collect(t, ch)
	if len(events) == 0 {
		t.Fatal("expected a terminal event after cancellation")
	}
	if last := events[len(events)-1]; last.Kind != EventError {
		t.Fatalf("expected error terminal event, got %+v", last)
	}
}

func TestExecuteCommandNotFound(t *testing.T) {
	e := newTestExecutor(t, Config{})
	e.lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}

	events := collect(t, e.Execute(context.Background(), "ls"))
	if len(events) != 1 || events[0].Kind != EventNotFound {
		t.Fatalf("expected single not-found event, got %+v", events)
	}
	if !strings.Contains(events[0].Message, "Command not found: ls") {
		t.Fatalf("unexpected message %q", events[0].Message)
	}
}

func TestExecuteCredentialMissing(t *testing.T) {
	for _, op := range []string{"pyguard fix --code \"x=1\"", "pyguard analyze --file a.py"} {
		t.Run(strings.Fields(op)[1], func(t *testing.T) {
			e := newTestExecutor(t, Config{})
			e.getenv = func(string) string { return "" }

			events := collect(t, e.Execute(context.Background(), op))
			if len(events) != 1 || events[0].Kind != EventError {
				t.Fatalf("expected single error event, got %+v", events)
			}
			if !strings.Contains(events[0].Message, "ANTHROPIC_API_KEY not configured") {
				t.Fatalf("unexpected message %q", events[0].Message)
			}
		})
	}
}

func TestExecuteCredentialNotRequiredForOtherOps(t *testing.T) {
	e := newTestExecutor(t, Config{})
	e.getenv = func(string) string { return "" }
	e.lookPath = func(string) (string, error) { return "", fmt.Errorf("not found") }

	// list-patterns proceeds to the spawn path (stopped here by lookPath).
	events := collect(t, e.Execute(context.Background(), "pyguard list-patterns"))
	if len(events) != 1 || events[0].Kind != EventNotFound {
		t.Fatalf("expected not-found (no credential gate), got %+v", events)
	}
}

func TestExecuteAliasRewrite(t *testing.T) {
	var looked string
	e := newTestExecutor(t, Config{})
	e.lookPath = func(name string) (string, error) {
		looked = name
		return "", fmt.Errorf("not found")
	}

	collect(t, e.Execute(context.Background(), "pyguard list-patterns"))
	if looked != "python3" {
		t.Fatalf("alias not rewritten to interpreter, lookPath saw %q", looked)
	}
}
