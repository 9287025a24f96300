package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/pyguard-terminal/internal/patterns"
)

func newHook(t *testing.T, root string) *Hook {
	t.Helper()
	v := New(patterns.Open(filepath.Join(root, "patterns_db.json"), nil), nil)
	return NewHook(v, root, "cli.py", nil)
}

func TestIsPythonExecution(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"python3 script.py", true},
		{"python script.py --flag", true},
		{"py tool.py", true},
		{"pyguard analyze --file x.py", false},
		{"ls", false},
		{"echo python", false}, // No trailing whitespace after the token.
	}
	for _, tc := range tests {
		if got := IsPythonExecution(tc.cmd); got != tc.want {
			t.Errorf("IsPythonExecution(%q) = %v, want %v", tc.cmd, got, tc.want)
		}
	}
}

func TestExtractPythonFile(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"python3 script.py", "script.py"},
		{"python3 path/to/file.py --verbose", "path/to/file.py"},
		{"python3 -c 'print(1)'", ""},
		{"python3 -m module", ""},
		{"python3", ""},
	}
	for _, tc := range tests {
		if got := ExtractPythonFile(tc.cmd); got != tc.want {
			t.Errorf("ExtractPythonFile(%q) = %q, want %q", tc.cmd, got, tc.want)
		}
	}
}

func TestGateCommand_BlocksBuggyFile(t *testing.T) {
	root := t.TempDir()
	src := "x = 1\nif x = 1:\n    print(x)\n"
	if err := os.WriteFile(filepath.Join(root, "buggy.py"), []byte(src), 0600); err != nil {
		t.Fatal(err)
	}

	h := newHook(t, root)
	msg, ok := h.GateCommand("python3 buggy.py")
	if ok {
		t.Fatal("buggy file allowed through")
	}
	if !strings.Contains(msg, "assignment (=) instead of comparison") {
		t.Errorf("message = %q, want comparison error detail", msg)
	}
}

func TestGateCommand_AllowsCleanFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "ok.py"), []byte("print('ok')\n"), 0600); err != nil {
		t.Fatal(err)
	}

	h := newHook(t, root)
	if msg, ok := h.GateCommand("python3 ok.py"); !ok {
		t.Errorf("clean file blocked: %s", msg)
	}
}

func TestGateCommand_SkipsNonPython(t *testing.T) {
	h := newHook(t, t.TempDir())
	if _, ok := h.GateCommand("ls -la"); !ok {
		t.Error("non-python command blocked")
	}
}

func TestGateCommand_SkipsInlineCode(t *testing.T) {
	h := newHook(t, t.TempDir())
	if _, ok := h.GateCommand("python3 -c 'if x = 1: pass'"); !ok {
		t.Error("inline invocation blocked; nothing to inspect")
	}
}

func TestGateCommand_SkipsMissingFile(t *testing.T) {
	h := newHook(t, t.TempDir())
	// Interpreter should surface the real error.
	if _, ok := h.GateCommand("python3 nonexistent.py"); !ok {
		t.Error("missing file blocked")
	}
}

func TestGateCommand_SkipsCLIEntrypoint(t *testing.T) {
	root := t.TempDir()
	// Even a cli.py with heuristic triggers is exempt — the wrapped CLI's
	// own execution is not gated.
	if err := os.WriteFile(filepath.Join(root, "cli.py"), []byte("if x = 1:\n    pass\n"), 0600); err != nil {
		t.Fatal(err)
	}

	h := newHook(t, root)
	if _, ok := h.GateCommand("python3 cli.py analyze"); !ok {
		t.Error("CLI entrypoint was gated")
	}
}

func TestGateCommand_WarningsDoNotBlock(t *testing.T) {
	root := t.TempDir()
	db := `{
  "version": "1.0",
  "total_patterns": 1,
  "patterns": [
    {
      "id": "pattern_001",
      "error_type": "TypeError",
      "difficulty": "easy",
      "buggy_code": "print('ok')",
      "error_message": "boom",
      "source_file": "a.png"
    }
  ]
}`
	if err := os.WriteFile(filepath.Join(root, "patterns_db.json"), []byte(db), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "warn.py"), []byte("print('ok')"), 0600); err != nil {
		t.Fatal(err)
	}

	h := newHook(t, root)
	if msg, ok := h.GateCommand("python3 warn.py"); !ok {
		t.Errorf("warning-only file blocked: %s", msg)
	}
}
