// Package agentmanager implements component D: the authoritative
// directory of logical sessions, their lifecycle operations, and
// reconciliation between persisted metadata and live OS state.
//
// Grounded on the teacher's internal/hub package (hub.go, lifecycle.go,
// actions.go, state.go): a sync.RWMutex-guarded map of live units plus
// lifecycle methods that mutate it, and a background tick loop — here
// generalized from the teacher's single "agent" concept to the spec's
// AgentHandle/PtySession split with an injected activity recorder.
package agentmanager

import (
	"time"

	"github.com/google/uuid"
)

// SessionId is the opaque, 128-bit identifier of a logical session,
// stable across respawns.
type SessionId = uuid.UUID

// AgentKind is the closed set of supported agent CLIs.
type AgentKind string

const (
	AgentKindClaudeCode AgentKind = "claude_code"
	AgentKindCodex      AgentKind = "codex"
	AgentKindGemini     AgentKind = "gemini"
)

// AgentKindSpec is the static capability table entry for one AgentKind,
// replacing per-call virtual dispatch (§9 design notes) with a single
// lookup at session-creation/resume time.
type AgentKindSpec struct {
	Name string
	// StartArgs builds argv for a fresh session given the conversation id.
	StartArgs func(conversationID string) []string
	// ResumeArgs builds argv for resuming an existing conversation.
	ResumeArgs func(conversationID string) []string
}

var kindSpecs = map[AgentKind]AgentKindSpec{
	AgentKindClaudeCode: {
		Name:       "Claude Code",
		StartArgs:  func(cid string) []string { return []string{"--session-id", cid} },
		ResumeArgs: func(cid string) []string { return []string{"--resume", cid} },
	},
	AgentKindCodex: {
		Name:       "Codex",
		StartArgs:  func(cid string) []string { return nil },
		ResumeArgs: func(cid string) []string { return []string{"resume", cid} },
	},
	AgentKindGemini: {
		Name:       "Gemini",
		StartArgs:  func(cid string) []string { return nil },
		ResumeArgs: func(cid string) []string { return []string{"--resume", cid} },
	},
}

// Spec returns the capability table entry for k, and whether k is known.
func (k AgentKind) Spec() (AgentKindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

// AgentStatus is the lifecycle status of an AgentHandle's current
// incarnation.
type AgentStatus string

const (
	StatusStarting AgentStatus = "starting"
	StatusRunning  AgentStatus = "running"
	StatusStopped  AgentStatus = "stopped"
	StatusFailed   AgentStatus = "failed"
	StatusRestored AgentStatus = "restored"
)

// Resumability records whether the agent CLI is expected to accept
// its resume sub-command for the handle's conversation.
type Resumability string

const (
	Resumable   Resumability = "resumable"
	Unresumable Resumability = "unresumable"
)

// AgentActivity is the activity-engine snapshot attached to a handle
// for observability (mirrors activity.State's wire-relevant fields).
type AgentActivity struct {
	Phase          string     `json:"phase"`
	IsIdle         bool       `json:"is_idle"`
	Reason         string     `json:"reason"`
	LastInputAt    *time.Time `json:"last_input_at,omitempty"`
	LastOutputAt   *time.Time `json:"last_output_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AgentHandle is the long-lived, user-facing record of one logical
// session, spanning possibly many OS process incarnations.
type AgentHandle struct {
	SessionID             SessionId    `json:"session_id"`
	AgentKind             AgentKind    `json:"agent_kind"`
	ConversationID        string       `json:"conversation_id,omitempty"`
	CustomName            string       `json:"custom_name,omitempty"`
	Pinned                bool         `json:"pinned"`
	Icon                  string       `json:"icon,omitempty"`
	SortOrder             *int64       `json:"sort_order,omitempty"`
	WorkspacePath          string       `json:"workspace_path"`
	Status                AgentStatus  `json:"status"`
	ProcessID             int          `json:"process_id,omitempty"`
	Resumability          Resumability `json:"resumability"`
	ResumeFailureReason   string       `json:"resume_failure_reason,omitempty"`
	RecoveredFromPrevious bool         `json:"recovered_from_previous"`
	CreatedAt             time.Time    `json:"created_at"`
	Activity              AgentActivity `json:"activity"`
}

// PersistedAgentInfo is the on-disk record round-tripped through the
// external workspace store. The manager treats it as input only; it
// writes it back after every lifecycle event.
type PersistedAgentInfo struct {
	SessionID           SessionId `json:"session_id"`
	WorkspacePath        string    `json:"workspace_path"`
	AgentKind            AgentKind `json:"agent_kind"`
	ConversationID       string    `json:"conversation_id,omitempty"`
	CustomName           string    `json:"custom_name,omitempty"`
	Pinned               bool      `json:"pinned"`
	Icon                 string    `json:"icon,omitempty"`
	SortOrder            *int64    `json:"sort_order,omitempty"`
	Resumability         Resumability `json:"resumability"`
	ResumeFailureReason  string    `json:"resume_failure_reason,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	PID                  int       `json:"pid,omitempty"`
}

func handleToPersisted(h AgentHandle) PersistedAgentInfo {
	return PersistedAgentInfo{
		SessionID:           h.SessionID,
		WorkspacePath:        h.WorkspacePath,
		AgentKind:            h.AgentKind,
		ConversationID:       h.ConversationID,
		CustomName:           h.CustomName,
		Pinned:               h.Pinned,
		Icon:                 h.Icon,
		SortOrder:            h.SortOrder,
		Resumability:         h.Resumability,
		ResumeFailureReason:  h.ResumeFailureReason,
		CreatedAt:            h.CreatedAt,
		PID:                  h.ProcessID,
	}
}
