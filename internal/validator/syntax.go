package validator

import (
	"fmt"
	"strings"
)

// checkSyntax scans the source for structural parse failures: unbalanced
// brackets, unterminated strings, and unterminated triple-quoted strings.
// It is a lightweight scanner, not a full Python parser — it catches the
// class of breakage that makes further line heuristics meaningless. At most
// one issue is reported, matching the fail-fast behavior of a real parser.
func checkSyntax(source string) *Issue {
	lines := strings.Split(source, "\n")

	type open struct {
		ch   byte
		line int
	}
	var stack []open

	inTriple := false
	var tripleQuote string
	tripleLine := 0

	for i, line := range lines {
		lineNo := i + 1

		j := 0
		for j < len(line) {
			if inTriple {
				if strings.HasPrefix(line[j:], tripleQuote) {
					inTriple = false
					j += 3
					continue
				}
				j++
				continue
			}

			ch := line[j]
			switch ch {
			case '#':
				// Comment: rest of line is ignored.
				j = len(line)

			case '\'', '"':
				q := string(ch)
				if strings.HasPrefix(line[j:], q+q+q) {
					inTriple = true
					tripleQuote = q + q + q
					tripleLine = lineNo
					j += 3
					continue
				}
				end := scanString(line, j)
				if end < 0 {
					return &Issue{
						Kind:       KindSyntaxError,
						Line:       lineNo,
						Message:    "unterminated string literal",
						Severity:   SeverityError,
						Suggestion: "Close the string with matching quote",
						Snippet:    strings.TrimSpace(line),
					}
				}
				j = end

			case '(', '[', '{':
				stack = append(stack, open{ch: ch, line: lineNo})
				j++

			case ')', ']', '}':
				if len(stack) == 0 || closerFor(stack[len(stack)-1].ch) != ch {
					return &Issue{
						Kind:       KindSyntaxError,
						Line:       lineNo,
						Message:    fmt.Sprintf("unmatched '%c'", ch),
						Severity:   SeverityError,
						Suggestion: "Check for missing colons, quotes, or parentheses",
						Snippet:    strings.TrimSpace(line),
					}
				}
				stack = stack[:len(stack)-1]
				j++

			default:
				j++
			}
		}
	}

	if inTriple {
		return &Issue{
			Kind:       KindSyntaxError,
			Line:       tripleLine,
			Message:    "unterminated triple-quoted string literal",
			Severity:   SeverityError,
			Suggestion: "Close the string with matching quote",
			Snippet:    snippetAt(lines, tripleLine),
		}
	}
	if len(stack) > 0 {
		last := stack[len(stack)-1]
		return &Issue{
			Kind:       KindSyntaxError,
			Line:       last.line,
			Message:    fmt.Sprintf("'%c' was never closed", last.ch),
			Severity:   SeverityError,
			Suggestion: "Check for missing colons, quotes, or parentheses",
			Snippet:    snippetAt(lines, last.line),
		}
	}

	return nil
}

// scanString advances past a single-quoted or double-quoted string starting
// at position start (which holds the opening quote). Returns the index just
// past the closing quote, or -1 when the string does not terminate on this
// line. Handles backslash escapes.
func scanString(line string, start int) int {
	quote := line[start]
	j := start + 1
	for j < len(line) {
		switch line[j] {
		case '\\':
			j += 2
		case quote:
			return j + 1
		default:
			j++
		}
	}
	return -1
}

func closerFor(opener byte) byte {
	switch opener {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

func snippetAt(lines []string, lineNo int) string {
	if lineNo >= 1 && lineNo <= len(lines) {
		return strings.TrimSpace(lines[lineNo-1])
	}
	return ""
}
