// Package terminal implements the process execution engine: built-in
// pseudo-commands, child process spawning inside the sandbox root, and
// ordered line-by-line streaming of both output pipes under a wall-clock
// timeout.
package terminal

// EventKind tags one entry in a command's output sequence.
type EventKind string

const (
	EventStdout   EventKind = "stdout"
	EventStderr   EventKind = "stderr"
	EventClear    EventKind = "clear"
	EventTimeout  EventKind = "timeout"
	EventNotFound EventKind = "not_found"
	EventError    EventKind = "error"
	EventComplete EventKind = "complete"
)

// Event is one element of the finite sequence a command execution produces.
// Stream events carry Line; control events carry Message. For a single
// invocation the sequence is produced exactly once and the terminal event
// (Complete, Timeout, NotFound, or Error) is always last.
type Event struct {
	Kind    EventKind
	Line    string
	Message string
}

// Terminal reports whether the event ends the sequence.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventClear, EventTimeout, EventNotFound, EventError, EventComplete:
		return true
	}
	return false
}
