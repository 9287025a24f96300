// Package protocol defines the WebSocket message types exchanged between the
// terminal gateway and a browser client. All messages are JSON-encoded.
package protocol

// MessageType identifies the kind of message sent to the client.
type MessageType string

const (
	// Gateway → Client
	MsgWaking   MessageType = "waking"   // Connection accepted, server warming up.
	MsgReady    MessageType = "ready"    // Session ready to accept commands.
	MsgStdout   MessageType = "stdout"   // One line of child stdout.
	MsgStderr   MessageType = "stderr"   // One line of child stderr (rendered with an error style).
	MsgError    MessageType = "error"    // Command rejected or failed.
	MsgClear    MessageType = "clear"    // Erase the client's visible output.
	MsgComplete MessageType = "complete" // No further output for the current command.
)

// Message is the wire format for gateway → client messages.
// Line carries stream output; Message carries human-readable status text.
type Message struct {
	Type    MessageType `json:"type"`
	Line    string      `json:"line,omitempty"`
	Message string      `json:"message,omitempty"`
}

// CommandRequest is the wire format for client → gateway messages.
type CommandRequest struct {
	Command string `json:"command"`
}

// Waking returns the cold-start handshake message.
func Waking() Message {
	return Message{Type: MsgWaking, Message: "Waking up server..."}
}

// Ready returns the session-ready handshake message.
func Ready() Message {
	return Message{Type: MsgReady, Message: "Connected to PyGuard Terminal"}
}

// Stdout wraps one line of child stdout.
func Stdout(line string) Message {
	return Message{Type: MsgStdout, Line: line}
}

// Stderr wraps one line of child stderr.
func Stderr(line string) Message {
	return Message{Type: MsgStderr, Line: line}
}

// Error wraps a rejection or failure message.
func Error(msg string) Message {
	return Message{Type: MsgError, Message: msg}
}

// Clear returns the clear-screen control message.
func Clear() Message {
	return Message{Type: MsgClear}
}

// Complete returns the end-of-command marker.
func Complete() Message {
	return Message{Type: MsgComplete}
}
