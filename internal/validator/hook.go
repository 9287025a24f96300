package validator

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

var (
	pythonInvocation = regexp.MustCompile(`\b(python|python3|py)\s+`)
	pythonFileArg    = regexp.MustCompile(`\b(?:python|python3|py)\s+(\S+\.py)\b`)
)

// IsPythonExecution reports whether the command invokes a Python interpreter.
func IsPythonExecution(command string) bool {
	return pythonInvocation.MatchString(command)
}

// ExtractPythonFile returns the .py file path an interpreter invocation
// targets, or "" when none can be resolved (inline code via a flag, piped
// stdin, and so on).
func ExtractPythonFile(command string) string {
	m := pythonFileArg.FindStringSubmatch(command)
	if m == nil {
		return ""
	}
	return m[1]
}

// CodeValidator is the validation capability the hook needs. Satisfied by
// *Validator and by instrumentation wrappers around it.
type CodeValidator interface {
	Validate(source string) []Issue
}

// Hook gates interpreter invocations before the execution engine spawns
// them. Only file-based invocations it can statically inspect are checked;
// everything else passes through. The wrapped CLI's own entrypoint is
// exempt — its internal script execution is not this hook's concern.
type Hook struct {
	validator  CodeValidator
	root       string // Directory relative file paths resolve against.
	entrypoint string // CLI entrypoint script name, e.g. "cli.py".
	logger     *slog.Logger
}

// NewHook creates a pre-execution hook around the given validator.
func NewHook(v CodeValidator, root, entrypoint string, logger *slog.Logger) *Hook {
	return &Hook{validator: v, root: root, entrypoint: entrypoint, logger: logger}
}

// GateCommand validates the Python file a command would execute. It returns
// a formatted issue report and false when execution must be blocked; ("",
// true) means the command may proceed. Unreadable or unresolvable targets
// are allowed through so the interpreter can surface the real error.
func (h *Hook) GateCommand(command string) (string, bool) {
	if !IsPythonExecution(command) {
		return "", true
	}

	file := ExtractPythonFile(command)
	if file == "" {
		return "", true
	}
	if filepath.Base(file) == h.entrypoint {
		return "", true
	}

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.root, path)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		// Missing file: let the interpreter report it.
		return "", true
	}

	issues := h.validator.Validate(string(code))
	blocking := false
	for _, is := range issues {
		if is.Severity == SeverityError {
			blocking = true
			break
		}
	}
	if !blocking {
		return "", true
	}

	if h.logger != nil {
		h.logger.Info("execution blocked by static validation",
			slog.String("file", file),
			slog.Int("issues", len(issues)),
		)
	}
	return FormatIssues(issues), false
}
