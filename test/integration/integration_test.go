// Package integration exercises the PTY session, output history, and
// terminal wire packages together end to end, over a real WebSocket
// connection, without requiring any external agent binary or service.
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trybotster/hubd/internal/ptysession"
	"github.com/trybotster/hubd/internal/wire"
)

// sessionManager adapts a single already-spawned ptysession.Session to
// wire.SessionManager, the same shape agentmanager.Manager satisfies
// in production.
type sessionManager struct {
	pty *ptysession.Session
}

func (m *sessionManager) EnsurePTYAttached(ctx context.Context, id uuid.UUID) (*ptysession.Session, error) {
	return m.pty, nil
}

func (m *sessionManager) InputSession(ctx context.Context, id uuid.UUID, b []byte) error {
	_, err := m.pty.Write(b)
	return err
}

func (m *sessionManager) ResizeSession(id uuid.UUID, cols, rows uint16) error {
	return m.pty.Resize(cols, rows)
}

func TestTerminalRoundTripThroughWebSocket(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	id := uuid.New()
	pty := ptysession.New(id, nil)
	if err := pty.Spawn(ptysession.SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "read line; echo echoed:$line"},
		Cols:    80,
		Rows:    24,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer pty.Kill()

	mgr := &sessionManager{pty: pty}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := wire.NewConn(ws, mgr, id, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Serve(ctx, 80, 24)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var ready wire.ReadyMessage
	if err := client.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Type != "ready" || ready.SessionID != id {
		t.Fatalf("unexpected ready message: %+v", ready)
	}

	input := wire.InputUTF8Command{Type: "input_utf8", Data: "hello\n"}
	if err := client.WriteJSON(input); err != nil {
		t.Fatalf("write input: %v", err)
	}

	deadline := time.Now().Add(4 * time.Second)
	var sawEcho bool
	for time.Now().Before(deadline) && !sawEcho {
		client.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		kind, data, err := client.ReadMessage()
		if err != nil {
			continue
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if containsBytes(frame.Payload, []byte("echoed:hello")) {
			sawEcho = true
		}
	}

	if !sawEcho {
		t.Fatalf("never observed the shell's echo over the wire")
	}
}

func containsBytes(haystack, needle []byte) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
