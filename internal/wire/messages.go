package wire

import "github.com/google/uuid"

// ReadyMessage is sent once, right after ensure_pty_attached succeeds.
type ReadyMessage struct {
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
}

func NewReadyMessage(id uuid.UUID) ReadyMessage {
	return ReadyMessage{Type: "ready", SessionID: id}
}

// ExitMessage is sent once, on the session's exit signal, then the
// socket is closed.
type ExitMessage struct {
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

func NewExitMessage(id uuid.UUID, code *int) ExitMessage {
	return ExitMessage{Type: "exit", SessionID: id, ExitCode: code}
}

// ErrorMessage is the JSON error envelope for protocol and back-pressure
// signaling.
type ErrorMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func NewErrorMessage(code, message string, retryable bool) ErrorMessage {
	return ErrorMessage{Type: "error", Code: code, Message: message, Retryable: retryable}
}

// ResizeCommand is the client's resize request.
type ResizeCommand struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// InputUTF8Command is the client's text-input request.
type InputUTF8Command struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// BinaryInputOpcode prefixes a raw-bytes input frame, bypassing UTF-8
// re-encoding — used for control bytes.
const BinaryInputOpcode = 0x01
