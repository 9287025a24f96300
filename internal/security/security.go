// Package security implements the command admission gate: an allow-list check
// on the base command followed by a blocked-pattern scan over the full text.
//
// Pattern matching is a best-effort denial layer, not a real shell parser.
// It rejects the enumerated dangerous constructs; it does not guarantee that
// every unsafe command is caught. Real isolation must come from the execution
// environment, not from this gate.
package security

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of an admission check.
type Verdict struct {
	Allowed bool
	Reason  string // Human-readable denial reason. Empty when allowed.
}

// allowedCommands are the only base commands a client may run: the PyGuard
// CLI, the interpreter it runs under, and a small set of read-only utilities.
var allowedCommands = map[string]bool{
	"pyguard": true, // All pyguard subcommands.
	"python3": true, // Interpreter (for the pyguard CLI).
	"clear":   true,
	"ls":      true,
	"cat":     true,
	"pwd":     true,
	"echo":    true,
	"help":    true,
}

// blockedPatterns deny dangerous constructs anywhere in the command text.
// Checked in order; the first match denies. Matching is case-insensitive.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s`),  // File deletion.
	regexp.MustCompile(`(?i)sudo`),  // Privilege elevation.
	regexp.MustCompile(`(?i)curl`),  // Network fetch.
	regexp.MustCompile(`(?i)wget`),  // Downloads.
	regexp.MustCompile(`(?i)pip\s`), // Package installation.
	regexp.MustCompile(`&&`),        // Command chaining.
	regexp.MustCompile(`\|\|`),      // OR chaining.
	regexp.MustCompile(`\|`),        // Pipes.
	regexp.MustCompile(`;`),         // Command separator.
	regexp.MustCompile(`\$\(`),      // Command substitution.
	regexp.MustCompile("`"),         // Backticks.
	regexp.MustCompile(`\.\./`),     // Path traversal.
	regexp.MustCompile(`>`),         // Output redirection.
	regexp.MustCompile(`<`),         // Input redirection.
}

// bareInterpreter matches a python invocation anywhere in the command text.
// RE2 has no lookahead, so the "python only via pyguard" rule is completed
// in code: such invocations are denied unless the text references pyguard.
var bareInterpreter = regexp.MustCompile(`(?i)python3?\s`)

// Gate validates raw command strings before any execution resource is spent.
// Immutable after construction and safe for concurrent use.
type Gate struct {
	allowed map[string]bool
}

// NewGate creates an admission gate with the built-in allow and deny sets.
// extraAllowed adds base command names to the allow list; the deny patterns
// still apply to them.
func NewGate(extraAllowed ...string) *Gate {
	allowed := make(map[string]bool, len(allowedCommands)+len(extraAllowed))
	for name := range allowedCommands {
		allowed[name] = true
	}
	for _, name := range extraAllowed {
		allowed[strings.ToLower(name)] = true
	}
	return &Gate{allowed: allowed}
}

// Check decides whether the raw command may run. Deterministic and
// side-effect free: the same input always yields the same verdict.
func (g *Gate) Check(raw string) Verdict {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Verdict{Allowed: false, Reason: "Empty command"}
	}

	base := strings.Fields(trimmed)[0]
	if !g.allowed[strings.ToLower(base)] {
		return Verdict{
			Allowed: false,
			Reason:  "Command '" + base + "' not allowed. Use 'help' for available commands.",
		}
	}

	if bareInterpreter.MatchString(trimmed) && !strings.Contains(strings.ToLower(trimmed), "pyguard") {
		return Verdict{
			Allowed: false,
			Reason:  "Command contains forbidden pattern. Use 'help' for available commands.",
		}
	}

	for _, p := range blockedPatterns {
		if p.MatchString(trimmed) {
			return Verdict{
				Allowed: false,
				Reason:  "Command contains forbidden pattern. Use 'help' for available commands.",
			}
		}
	}

	return Verdict{Allowed: true}
}
