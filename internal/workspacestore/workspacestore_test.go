package workspacestore

import (
	"testing"

	"github.com/google/uuid"

	"github.com/trybotster/hubd/internal/agentmanager"
)

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	infos, err := store.Load("/workspace/a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no records, got %d", len(infos))
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []agentmanager.PersistedAgentInfo{
		{SessionID: uuid.New(), AgentKind: agentmanager.AgentKindClaudeCode, ConversationID: "abc"},
	}
	if err := store.Save("/workspace/a", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("/workspace/a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ConversationID != "abc" {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDifferentWorkspacesAreIsolated(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := []agentmanager.PersistedAgentInfo{{SessionID: uuid.New(), ConversationID: "a"}}
	b := []agentmanager.PersistedAgentInfo{{SessionID: uuid.New(), ConversationID: "b"}}

	if err := store.Save("/workspace/a", a); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := store.Save("/workspace/b", b); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	gotA, _ := store.Load("/workspace/a")
	gotB, _ := store.Load("/workspace/b")
	if len(gotA) != 1 || gotA[0].ConversationID != "a" {
		t.Fatalf("workspace a got %+v", gotA)
	}
	if len(gotB) != 1 || gotB[0].ConversationID != "b" {
		t.Fatalf("workspace b got %+v", gotB)
	}
}
