package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trybotster/hubd/internal/agentmanager"
)

func TestParsePort(t *testing.T) {
	cases := map[string]int{
		"127.0.0.1:7420": 7420,
		":8080":          8080,
		"localhost:9":    9,
		"no-port":        0,
		"bad:port":       0,
	}
	for addr, want := range cases {
		if got := parsePort(addr); got != want {
			t.Errorf("parsePort(%q) = %d, want %d", addr, got, want)
		}
	}
}

type memStore struct{}

func (memStore) Load(string) ([]agentmanager.PersistedAgentInfo, error) { return nil, nil }
func (memStore) Save(string, []agentmanager.PersistedAgentInfo) error   { return nil }

func TestHandleListSessionsReturnsEmptyArray(t *testing.T) {
	d := &Daemon{Agents: agentmanager.New(memStore{}, nil)}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	d.handleListSessions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sessions []agentmanager.AgentHandle
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestHandleTerminalRejectsInvalidSessionID(t *testing.T) {
	d := &Daemon{Agents: agentmanager.New(memStore{}, nil)}

	req := httptest.NewRequest(http.MethodGet, "/terminal/not-a-uuid", nil)
	w := httptest.NewRecorder()
	d.handleTerminal(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
