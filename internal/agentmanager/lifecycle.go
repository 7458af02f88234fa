package agentmanager

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trybotster/hubd/internal/coreerr"
	"github.com/trybotster/hubd/internal/ptysession"
)

const (
	defaultCols = 120
	defaultRows = 40
)

// StartSession implements §4.4.1.
func (m *Manager) StartSession(ctx context.Context, kind AgentKind, workspacePath, customName string, env []string) (*AgentHandle, error) {
	if _, ok := kind.Spec(); !ok {
		return nil, coreerr.New(coreerr.UnknownAgentType, "unknown agent kind %q", kind)
	}
	if !m.isInstalled(kind) {
		return nil, coreerr.New(coreerr.AgentNotInstalled, "agent %s is not installed", kind)
	}

	program, err := m.programFor(kind)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	conversationID := newConversationID()
	customName = strings.TrimSpace(customName)

	spec, _ := kind.Spec()
	argv := spec.StartArgs(conversationID)

	pty := ptysession.New(sessionID, m.logger)
	if err := pty.Spawn(ptysession.SpawnConfig{
		Program:    program,
		Args:       argv,
		WorkingDir: workspacePath,
		Env:        buildEnv(env),
		Cols:       defaultCols,
		Rows:       defaultRows,
	}); err != nil {
		return nil, coreerr.Wrap(coreerr.PTYWriteError, err)
	}

	handle := &AgentHandle{
		SessionID:      sessionID,
		AgentKind:      kind,
		ConversationID: conversationID,
		CustomName:     customName,
		WorkspacePath:   workspacePath,
		Status:         StatusRunning,
		Resumability:   Resumable,
		CreatedAt:      time.Now().UTC(),
	}

	m.mu.Lock()
	m.handles[sessionID] = handle
	m.mu.Unlock()

	m.attachActivityMonitor(sessionID, pty, time.Now().UTC(), "")
	m.persist(workspacePath)

	return handle, nil
}

// RestoreSession implements §4.4.2.
func (m *Manager) RestoreSession(ctx context.Context, persisted PersistedAgentInfo) (SessionId, error) {
	if persisted.PID > 0 && processAlive(persisted.PID) {
		terminatePID(persisted.PID)
	}

	if !m.isInstalled(persisted.AgentKind) {
		return SessionId{}, coreerr.New(coreerr.AgentNotInstalled, "agent %s is not installed", persisted.AgentKind)
	}
	program, err := m.programFor(persisted.AgentKind)
	if err != nil {
		return SessionId{}, err
	}

	spec, _ := persisted.AgentKind.Spec()
	sessionID := persisted.SessionID

	handle := &AgentHandle{
		SessionID:      sessionID,
		AgentKind:      persisted.AgentKind,
		ConversationID: persisted.ConversationID,
		CustomName:     persisted.CustomName,
		Pinned:         persisted.Pinned,
		Icon:           persisted.Icon,
		SortOrder:      persisted.SortOrder,
		WorkspacePath:   persisted.WorkspacePath,
		CreatedAt:      persisted.CreatedAt,
	}

	pty := ptysession.New(sessionID, m.logger)
	spawnErr := pty.Spawn(ptysession.SpawnConfig{
		Program:    program,
		Args:       spec.ResumeArgs(persisted.ConversationID),
		WorkingDir: persisted.WorkspacePath,
		Env:        buildEnv(nil),
		Cols:       defaultCols,
		Rows:       defaultRows,
	})

	if spawnErr != nil {
		freshID := newConversationID()
		pty = ptysession.New(sessionID, m.logger)
		if err := pty.Spawn(ptysession.SpawnConfig{
			Program:    program,
			Args:       spec.StartArgs(freshID),
			WorkingDir: persisted.WorkspacePath,
			Env:        buildEnv(nil),
			Cols:       defaultCols,
			Rows:       defaultRows,
		}); err != nil {
			return SessionId{}, coreerr.Wrap(coreerr.PTYWriteError, err)
		}
		handle.ConversationID = freshID
		handle.Resumability = Unresumable
		handle.ResumeFailureReason = spawnErr.Error()
		handle.RecoveredFromPrevious = false
	} else {
		handle.Resumability = Resumable
		handle.RecoveredFromPrevious = true
	}

	handle.Status = StatusRestored

	m.mu.Lock()
	m.handles[sessionID] = handle
	m.mu.Unlock()

	m.attachActivityMonitor(sessionID, pty, time.Now().UTC(), "session_restored")
	m.persist(persisted.WorkspacePath)

	return sessionID, nil
}

// EnsurePTYAttached implements §4.4.3: an idempotent connect-or-respawn
// operation used when a client opens the terminal WebSocket.
func (m *Manager) EnsurePTYAttached(ctx context.Context, sessionID SessionId) (*ptysession.Session, error) {
	m.ReconcileSessionStatuses()

	m.mu.RLock()
	handle, ok := m.handles[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, coreerr.New(coreerr.SessionNotFound, "session %s not found", sessionID)
	}

	m.mu.RLock()
	live, hasLive := m.live[sessionID]
	m.mu.RUnlock()
	if hasLive && live.pty != nil && !live.pty.IsStopped() {
		return live.pty, nil
	}

	if handle.Resumability == Unresumable {
		return m.spawnFresh(ctx, handle)
	}

	persisted := handleToPersisted(*handle)
	if _, err := m.RestoreSession(ctx, persisted); err != nil {
		return nil, err
	}
	m.mu.RLock()
	live = m.live[sessionID]
	m.mu.RUnlock()
	return live.pty, nil
}

func (m *Manager) spawnFresh(ctx context.Context, handle *AgentHandle) (*ptysession.Session, error) {
	program, err := m.programFor(handle.AgentKind)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if old, ok := m.live[handle.SessionID]; ok {
		if old.cancel != nil {
			old.cancel()
		}
		if old.pty != nil {
			_ = old.pty.Kill()
		}
		delete(m.live, handle.SessionID)
	}
	m.mu.Unlock()

	freshID := newConversationID()
	spec, _ := handle.AgentKind.Spec()
	pty := ptysession.New(handle.SessionID, m.logger)
	if err := pty.Spawn(ptysession.SpawnConfig{
		Program:    program,
		Args:       spec.StartArgs(freshID),
		WorkingDir: handle.WorkspacePath,
		Env:        buildEnv(nil),
		Cols:       defaultCols,
		Rows:       defaultRows,
	}); err != nil {
		return nil, coreerr.Wrap(coreerr.PTYWriteError, err)
	}

	m.mu.Lock()
	handle.ConversationID = freshID
	handle.Status = StatusRunning
	handle.Resumability = Unresumable
	handle.ResumeFailureReason = "Previous conversation could not be resumed — started a fresh session"
	m.mu.Unlock()

	m.attachActivityMonitor(handle.SessionID, pty, time.Now().UTC(), "")
	m.persist(handle.WorkspacePath)

	return pty, nil
}

// ReconcileSessionStatuses implements §4.4.4.
func (m *Manager) ReconcileSessionStatuses() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, handle := range m.handles {
		live, hasLive := m.live[id]
		pidAlive := handle.ProcessID != 0 && processAlive(handle.ProcessID)
		ptyAlive := hasLive && live.pty != nil && !live.pty.IsStopped()

		switch {
		case ptyAlive || pidAlive:
			if handle.Status != StatusRestored {
				handle.Status = StatusRunning
			}
		case handle.Status == StatusRestored:
			// preserve — give the bootstrap response one chance to surface it
		default:
			handle.Status = StatusStopped
		}
	}
}

// TransitionRestoredToRunning flips any handle that is still Restored
// but now has a live PTY or process to Running. Runs after a
// ListSessions call surfaces the Restored handle once.
func (m *Manager) TransitionRestoredToRunning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, handle := range m.handles {
		if handle.Status != StatusRestored {
			continue
		}
		live, hasLive := m.live[id]
		ptyAlive := hasLive && live.pty != nil && !live.pty.IsStopped()
		pidAlive := handle.ProcessID != 0 && processAlive(handle.ProcessID)
		if ptyAlive || pidAlive {
			handle.Status = StatusRunning
		}
	}
}

func (m *Manager) persist(workspacePath string) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	var infos []PersistedAgentInfo
	for _, h := range m.handles {
		if h.WorkspacePath == workspacePath {
			infos = append(infos, handleToPersisted(*h))
		}
	}
	m.mu.RUnlock()
	if err := m.store.Save(workspacePath, infos); err != nil {
		m.logger.Warn("agentmanager: persist failed", "workspace", workspacePath, "error", err)
	}
}
