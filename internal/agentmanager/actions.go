package agentmanager

import (
	"context"
	"sort"

	"github.com/trybotster/hubd/internal/activity"
	"github.com/trybotster/hubd/internal/coreerr"
	"github.com/trybotster/hubd/internal/history"
)

const (
	// ScrollbackDefaultMaxBytes and ScrollbackCapBytes bound
	// capture_scrollback_raw (§4.4.7).
	ScrollbackDefaultMaxBytes = 512 * 1024
	ScrollbackCapBytes        = 2 * 1024 * 1024
)

// StopSession implements §4.4.7's stop_session: idempotent.
func (m *Manager) StopSession(id SessionId) error {
	m.mu.Lock()
	handle, ok := m.handles[id]
	live, hasLive := m.live[id]
	m.mu.Unlock()
	if !ok {
		return coreerr.New(coreerr.SessionNotFound, "session %s not found", id)
	}

	if hasLive {
		if live.cancel != nil {
			live.cancel()
		}
		if live.pty != nil {
			_ = live.pty.Kill()
		}
	}
	if handle.ProcessID != 0 {
		terminatePID(handle.ProcessID)
	}

	m.withState(id, func(e *activity.Engine) { e.OnSessionStopped(nowUTC(), "session_stopped") })

	m.mu.Lock()
	handle.Status = StatusStopped
	handle.ProcessID = 0
	workspacePath := handle.WorkspacePath
	delete(m.live, id)
	m.mu.Unlock()

	m.persist(workspacePath)
	return nil
}

// InputSession implements input_session: obtain or (re)spawn the PTY,
// write the bytes, then record the input in the activity engine.
func (m *Manager) InputSession(ctx context.Context, id SessionId, b []byte) error {
	pty, err := m.EnsurePTYAttached(ctx, id)
	if err != nil {
		return err
	}
	if _, err := pty.Write(b); err != nil {
		return coreerr.Wrap(coreerr.PTYWriteError, err)
	}
	m.RecordInput(id, b)
	return nil
}

// ResizeSession calls resize on the session's live PTY.
func (m *Manager) ResizeSession(id SessionId, cols, rows uint16) error {
	m.mu.RLock()
	live, ok := m.live[id]
	m.mu.RUnlock()
	if !ok || live.pty == nil {
		return coreerr.New(coreerr.SessionNotFound, "session %s not found", id)
	}
	if err := live.pty.Resize(cols, rows); err != nil {
		return coreerr.Wrap(coreerr.PTYResizeError, err)
	}
	return nil
}

// CaptureScrollbackRaw never spawns; it only reads existing history.
// A non-positive maxBytes means ScrollbackDefaultMaxBytes; larger
// values are capped to ScrollbackCapBytes.
func (m *Manager) CaptureScrollbackRaw(id SessionId, beforeOffset *uint64, maxBytes int) (history.Slice, error) {
	if maxBytes <= 0 {
		maxBytes = ScrollbackDefaultMaxBytes
	} else if maxBytes > ScrollbackCapBytes {
		maxBytes = ScrollbackCapBytes
	}
	m.mu.RLock()
	live, ok := m.live[id]
	m.mu.RUnlock()
	if !ok || live.pty == nil {
		return history.Slice{}, coreerr.New(coreerr.SessionNotFound, "session %s has no history", id)
	}
	return live.pty.SliceBefore(beforeOffset, maxBytes), nil
}

// RenameSession sets custom_name; returns false iff the handle did not exist.
func (m *Manager) RenameSession(id SessionId, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return false
	}
	h.CustomName = name
	return true
}

// SessionSettings are the field-level mutable UI settings on a handle.
type SessionSettings struct {
	Pinned    *bool
	Icon      *string
	SortOrder *int64
}

// UpdateSessionSettings applies any set fields; returns false iff the
// handle did not exist.
func (m *Manager) UpdateSessionSettings(id SessionId, s SessionSettings) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return false
	}
	if s.Pinned != nil {
		h.Pinned = *s.Pinned
	}
	if s.Icon != nil {
		h.Icon = *s.Icon
	}
	if s.SortOrder != nil {
		h.SortOrder = s.SortOrder
	}
	return true
}

// ListSessions implements §4.4.7's list_sessions: reconcile, clone all
// handles, refresh activity, transition Restored->Running, return.
func (m *Manager) ListSessions() []AgentHandle {
	m.ReconcileSessionStatuses()

	m.mu.RLock()
	out := make([]AgentHandle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, *h)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	m.TransitionRestoredToRunning()
	return out
}

// GetSession returns a clone of one handle, and whether it exists.
func (m *Manager) GetSession(id SessionId) (AgentHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	if !ok {
		return AgentHandle{}, false
	}
	return *h, true
}

// ShutdownAll implements the shutdown-all cancellation policy (§5):
// abort every activity monitor, stop every handle, but leave the
// handles themselves in the directory with status Stopped.
func (m *Manager) ShutdownAll() {
	m.mu.RLock()
	ids := make([]SessionId, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.StopSession(id)
	}
	m.monitorWg.Wait()
}
