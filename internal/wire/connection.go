package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trybotster/hubd/internal/coreerr"
	"github.com/trybotster/hubd/internal/ptysession"
)

// HistoryChunkSize bounds each history-replay frame's payload (§4.5).
const HistoryChunkSize = 64 * 1024

// SessionManager is the subset of the agent manager the terminal wire
// depends on. agentmanager.Manager satisfies this directly.
type SessionManager interface {
	EnsurePTYAttached(ctx context.Context, sessionID uuid.UUID) (*ptysession.Session, error)
	InputSession(ctx context.Context, sessionID uuid.UUID, b []byte) error
	ResizeSession(sessionID uuid.UUID, cols, rows uint16) error
}

// Conn drives one client's terminal WebSocket connection for one
// session: replay + live streaming out, resize/input commands in.
type Conn struct {
	ws        *websocket.Conn
	mgr       SessionManager
	sessionID uuid.UUID
	logger    *slog.Logger
	seq       uint64
}

// NewConn wraps an already-upgraded WebSocket connection.
func NewConn(ws *websocket.Conn, mgr SessionManager, sessionID uuid.UUID, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{ws: ws, mgr: mgr, sessionID: sessionID, logger: logger}
}

func (c *Conn) nextSeq() uint64 {
	s := c.seq
	c.seq++
	return s
}

// Serve runs the full connect sequence (§4.5) and then the read/write
// loop until the client disconnects or the session exits. initialCols
// and initialRows of 0 mean "no initial resize requested".
func (c *Conn) Serve(ctx context.Context, initialCols, initialRows uint16) error {
	pty, err := c.mgr.EnsurePTYAttached(ctx, c.sessionID)
	if err != nil {
		return err
	}

	if initialCols > 0 && initialRows > 0 {
		_ = c.mgr.ResizeSession(c.sessionID, initialCols, initialRows)
	}

	if err := c.ws.WriteJSON(NewReadyMessage(c.sessionID)); err != nil {
		return fmt.Errorf("wire: write ready: %w", err)
	}

	for _, chunk := range pty.SnapshotChunked(HistoryChunkSize) {
		frame := EncodeFrame(FrameKindHistory, c.sessionID, c.nextSeq(), chunk)
		if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("wire: write history frame: %w", err)
		}
	}

	outSub := pty.SubscribeOutput()
	defer outSub.Unsubscribe()
	exitSub := pty.SubscribeExit()
	defer exitSub.Unsubscribe()

	readErrCh := make(chan error, 1)
	go c.readLoop(ctx, readErrCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrCh:
			return err

		case chunk, ok := <-outSub.C():
			if !ok {
				return nil
			}
			frame := EncodeFrame(FrameKindLive, c.sessionID, c.nextSeq(), chunk)
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("wire: write live frame: %w", err)
			}

		case lag, ok := <-outSub.Lag():
			if !ok {
				continue
			}
			msg := NewErrorMessage(string(coreerr.OutputLagged),
				fmt.Sprintf("output lagged, %d messages dropped", lag.Dropped), true)
			if err := c.ws.WriteJSON(msg); err != nil {
				return fmt.Errorf("wire: write lag error: %w", err)
			}

		case ev, ok := <-exitSub.C():
			if !ok {
				return nil
			}
			_ = c.ws.WriteJSON(NewExitMessage(c.sessionID, ev.ExitCode))
			return c.ws.Close()
		}
	}
}

// readLoop handles client commands: JSON resize/input_utf8 text
// frames, and opcode-prefixed raw-bytes binary frames.
func (c *Conn) readLoop(ctx context.Context, errCh chan<- error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}

		switch kind {
		case websocket.TextMessage:
			c.handleTextCommand(ctx, data)
		case websocket.BinaryMessage:
			c.handleBinaryCommand(ctx, data)
		}
	}
}

func (c *Conn) handleTextCommand(ctx context.Context, data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.sendInvalidCommand()
		return
	}

	switch probe.Type {
	case "resize":
		var cmd ResizeCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.sendInvalidCommand()
			return
		}
		if err := c.mgr.ResizeSession(c.sessionID, cmd.Cols, cmd.Rows); err != nil {
			c.sendWriteError(err)
		}

	case "input_utf8":
		var cmd InputUTF8Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.sendInvalidCommand()
			return
		}
		if err := c.mgr.InputSession(ctx, c.sessionID, []byte(cmd.Data)); err != nil {
			c.sendWriteError(err)
		}

	default:
		c.sendInvalidCommand()
	}
}

func (c *Conn) handleBinaryCommand(ctx context.Context, data []byte) {
	if len(data) < 1 || data[0] != BinaryInputOpcode {
		_ = c.ws.WriteJSON(NewErrorMessage(string(coreerr.InvalidBinaryFrame), "unrecognized binary frame", false))
		return
	}
	if err := c.mgr.InputSession(ctx, c.sessionID, data[1:]); err != nil {
		c.sendWriteError(err)
	}
}

func (c *Conn) sendInvalidCommand() {
	_ = c.ws.WriteJSON(NewErrorMessage(string(coreerr.InvalidCommand), "unrecognized command", false))
}

// sendWriteError classifies write errors per §4.5: messages containing
// "Session not found" or "not running" map to SESSION_NOT_FOUND,
// everything else to PTY_WRITE_ERROR — both retryable.
func (c *Conn) sendWriteError(err error) {
	msg := err.Error()
	code := coreerr.PTYWriteError
	if strings.Contains(msg, "Session not found") || strings.Contains(msg, "not running") {
		code = coreerr.SessionNotFound
	}
	_ = c.ws.WriteJSON(NewErrorMessage(string(code), msg, true))
}
