package validator

import (
	"fmt"
	"strings"
)

// maxDetailedErrors caps how many errors are rendered in full; the rest are
// summarized by count.
const maxDetailedErrors = 3

// FormatIssues renders issues into a single human-readable report: errors
// first, then warnings, each with line, message, snippet, and suggested fix
// where available.
func FormatIssues(issues []Issue) string {
	var errs, warns []Issue
	for _, is := range issues {
		if is.Severity == SeverityError {
			errs = append(errs, is)
		} else {
			warns = append(warns, is)
		}
	}

	var b strings.Builder
	b.WriteString("Pre-runtime validation failed\n\n")

	if len(errs) > 0 {
		fmt.Fprintf(&b, "Found %d error(s):\n\n", len(errs))
		detailed := errs
		if len(detailed) > maxDetailedErrors {
			detailed = detailed[:maxDetailedErrors]
		}
		for _, is := range detailed {
			fmt.Fprintf(&b, "  Line %d: %s\n", is.Line, is.Message)
			if is.Snippet != "" {
				fmt.Fprintf(&b, "    Code: %s\n", is.Snippet)
			}
			if is.Suggestion != "" {
				fmt.Fprintf(&b, "    Fix: %s\n", is.Suggestion)
			}
			b.WriteString("\n")
		}
		if rest := len(errs) - len(detailed); rest > 0 {
			fmt.Fprintf(&b, "  ...and %d more error(s)\n\n", rest)
		}
	}

	if len(warns) > 0 {
		fmt.Fprintf(&b, "Found %d warning(s):\n\n", len(warns))
		for _, is := range warns {
			fmt.Fprintf(&b, "  %s\n", is.Message)
			if is.Suggestion != "" {
				fmt.Fprintf(&b, "    %s\n", is.Suggestion)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Fix these issues before running, or correct the file and retry.")
	return b.String()
}
