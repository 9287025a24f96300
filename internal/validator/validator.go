// Package validator statically checks Python source before the gateway
// commits to a real execution. Three tiers run in strict sequence: a syntax
// scan, line-by-line bug heuristics, and a similarity comparison against the
// known bug-pattern database. A blocking finding in an earlier tier skips
// the later ones.
package validator

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jkaninda/pyguard-terminal/internal/patterns"
)

// Kind classifies a validation issue.
type Kind string

const (
	KindSyntaxError      Kind = "SyntaxError"
	KindComparisonError  Kind = "ComparisonError"
	KindMissingColon     Kind = "MissingColon"
	KindArgumentMismatch Kind = "ArgumentMismatch"
	KindPatternMatch     Kind = "PatternMatch"
)

// Severity is the weight of an issue. Errors block execution; warnings are
// advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from the validator. Produced transiently; never
// persisted.
type Issue struct {
	Kind       Kind
	Line       int
	Message    string
	Severity   Severity
	Suggestion string
	Snippet    string
	PatternID  string // Set only for pattern-similarity findings.
}

// maxPatternEntries caps how many database entries the similarity tier
// compares against, for speed.
const maxPatternEntries = 5

// similarityThreshold is the normalized overlap ratio above which a pattern
// match is reported.
const similarityThreshold = 0.6

// Validator runs the three-tier check. The pattern database handle is
// injected and read-only; a nil or empty database disables the third tier.
type Validator struct {
	db     *patterns.DB
	logger *slog.Logger
}

// New creates a validator backed by the given pattern database.
func New(db *patterns.DB, logger *slog.Logger) *Validator {
	return &Validator{db: db, logger: logger}
}

// Validate checks the source and returns issues in tier order. An empty
// result means the source is clean.
func (v *Validator) Validate(source string) []Issue {
	// Tier 1: syntax. A broken parse cannot be meaningfully bug-checked
	// further, so a finding here ends validation.
	if issue := checkSyntax(source); issue != nil {
		return []Issue{*issue}
	}

	// Tier 2: line heuristics.
	issues := checkHeuristics(source)

	// Tier 3: pattern similarity, only when no heuristic error blocks it.
	for _, is := range issues {
		if is.Severity == SeverityError {
			return issues
		}
	}
	if match := v.checkPatternSimilarity(source); match != nil {
		issues = append(issues, *match)
	}

	return issues
}

var (
	conditionLine = regexp.MustCompile(`^\s*(if|elif|while)\s+`)
	assignInLine  = regexp.MustCompile(`\w+\s*=\s*\w+`)
	comparisonOp  = regexp.MustCompile(`[!=<>]=`)
	blockKeyword  = regexp.MustCompile(`^\s*(if|elif|else|for|while|def|class|try|except|finally|with)\b`)
	colonAtEnd    = regexp.MustCompile(`:\s*(#.*)?$`)
	zeroParamDef  = regexp.MustCompile(`def\s+(\w+)\s*\(\s*\)`)
)

// checkHeuristics applies the line-by-line bug rules. All findings carry
// severity error.
func checkHeuristics(source string) []Issue {
	var issues []Issue
	lines := strings.Split(source, "\n")

	for i, line := range lines {
		lineNo := i + 1
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}

		// Bare assignment inside a condition: almost always a mistyped ==.
		if conditionLine.MatchString(line) {
			if assignInLine.MatchString(line) && !comparisonOp.MatchString(line) {
				issues = append(issues, Issue{
					Kind:       KindComparisonError,
					Line:       lineNo,
					Message:    "Possible assignment (=) instead of comparison (==) in conditional",
					Severity:   SeverityError,
					Suggestion: "Change = to == for comparison",
					Snippet:    stripped,
				})
			}
		}

		// Block keyword without a terminating colon (trailing comments
		// excluded).
		if blockKeyword.MatchString(line) && !colonAtEnd.MatchString(line) {
			issues = append(issues, Issue{
				Kind:       KindMissingColon,
				Line:       lineNo,
				Message:    "Missing colon (:) after control statement",
				Severity:   SeverityError,
				Suggestion: "Add : at the end of this line",
				Snippet:    stripped,
			})
		}

		// Zero-parameter definition whose name is called with arguments
		// elsewhere in the same source.
		if m := zeroParamDef.FindStringSubmatch(line); m != nil {
			if calledWithArgs(lines, m[1]) {
				issues = append(issues, Issue{
					Kind:       KindArgumentMismatch,
					Line:       lineNo,
					Message:    "Function defined without parameters but called with arguments",
					Severity:   SeverityError,
					Suggestion: "Add parameter to function definition",
					Snippet:    stripped,
				})
			}
		}
	}

	return issues
}

// calledWithArgs reports whether name is invoked with at least one argument
// on any non-definition line.
func calledWithArgs(lines []string, name string) bool {
	call := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(\s*[^)\s]`)
	def := regexp.MustCompile(`^\s*def\s+` + regexp.QuoteMeta(name) + `\b`)
	for _, line := range lines {
		if def.MatchString(line) {
			continue
		}
		if call.MatchString(line) {
			return true
		}
	}
	return false
}

// checkPatternSimilarity compares the source against up to five database
// entries and reports the first one whose similarity exceeds the threshold.
func (v *Validator) checkPatternSimilarity(source string) *Issue {
	if v.db == nil {
		return nil
	}

	lower := strings.ToLower(source)
	for _, entry := range v.db.Entries(maxPatternEntries) {
		score := similarity(lower, strings.ToLower(entry.BuggyCode))
		if score > similarityThreshold {
			if v.logger != nil {
				v.logger.Debug("pattern similarity match",
					slog.String("pattern_id", entry.ID),
					slog.Float64("score", score),
				)
			}
			return &Issue{
				Kind:       KindPatternMatch,
				Message:    fmt.Sprintf("Code structure similar to known bug: %s", entry.ErrorType),
				Severity:   SeverityWarning,
				Suggestion: fmt.Sprintf("Review pattern %s for potential issues", entry.ID),
				PatternID:  entry.ID,
			}
		}
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// similarity computes the character-position overlap ratio of the two
// strings after stripping all whitespace.
func similarity(a, b string) float64 {
	ca := whitespace.ReplaceAllString(a, "")
	cb := whitespace.ReplaceAllString(b, "")
	if ca == "" || cb == "" {
		return 0
	}

	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if ca[i] == cb[i] {
			matches++
		}
	}

	maxLen := len(ca)
	if len(cb) > maxLen {
		maxLen = len(cb)
	}
	return float64(matches) / float64(maxLen)
}
