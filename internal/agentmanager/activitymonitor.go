package agentmanager

import (
	"context"
	"time"

	"github.com/trybotster/hubd/internal/activity"
	"github.com/trybotster/hubd/internal/ptysession"
)

const activityTickInterval = 250 * time.Millisecond

// attachActivityMonitor installs (or replaces) the background task
// that feeds a session's output/exit/tick events into its activity
// engine, per §4.4.6. Re-attaching aborts any prior task for the
// session_id.
func (m *Manager) attachActivityMonitor(id SessionId, pty *ptysession.Session, now time.Time, initialReason string) {
	m.mu.Lock()
	if old, ok := m.live[id]; ok && old.cancel != nil {
		old.cancel()
	}
	engine := activity.NewUnknown(now)
	ctx, cancel := context.WithCancel(context.Background())
	m.live[id] = &liveSession{pty: pty, engine: engine, cancel: cancel}
	m.mu.Unlock()

	if initialReason != "" {
		m.withState(id, func(e *activity.Engine) { e.OnSessionStopped(now, initialReason) })
	}

	m.monitorWg.Add(1)
	go m.runActivityMonitor(ctx, id, pty)
}

// withState serializes every activity-state mutation through a single
// lock, mirroring the design note's "with_state" helper: lock, mutate,
// snapshot, copy the snapshot onto the handle, release. No activity
// event is broadcast.
func (m *Manager) withState(id SessionId, mutate func(*activity.Engine)) activity.State {
	m.activityMu.Lock()
	defer m.activityMu.Unlock()

	m.mu.RLock()
	live, ok := m.live[id]
	m.mu.RUnlock()
	if !ok {
		return activity.State{}
	}
	mutate(live.engine)
	snap := live.engine.State()

	m.mu.Lock()
	if h, ok := m.handles[id]; ok {
		h.Activity = AgentActivity{
			Phase:        string(snap.Phase),
			IsIdle:       snap.IsIdle,
			Reason:       snap.Reason,
			LastInputAt:  snap.LastInputAt,
			LastOutputAt: snap.LastOutputAt,
			UpdatedAt:    snap.UpdatedAt,
		}
	}
	m.mu.Unlock()
	return snap
}

func (m *Manager) runActivityMonitor(ctx context.Context, id SessionId, pty *ptysession.Session) {
	defer m.monitorWg.Done()

	outSub := pty.SubscribeOutput()
	defer outSub.Unsubscribe()
	exitSub := pty.SubscribeExit()
	defer exitSub.Unsubscribe()

	ticker := time.NewTicker(activityTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case chunk, ok := <-outSub.C():
			if !ok {
				continue
			}
			hint := activity.PromptHint(chunk)
			m.withState(id, func(e *activity.Engine) { e.OnOutput(time.Now().UTC(), hint) })

		case <-outSub.Lag():
			m.logger.Debug("agentmanager: output lagged", "session_id", id)

		case ev, ok := <-exitSub.C():
			if !ok {
				return
			}
			m.withState(id, func(e *activity.Engine) { e.OnSessionStopped(time.Now().UTC(), "session_exit") })
			m.handleSessionExit(id, ev)
			return

		case t := <-ticker.C:
			m.withState(id, func(e *activity.Engine) { e.OnTick(t.UTC(), m.timing) })
		}
	}
}

func (m *Manager) handleSessionExit(id SessionId, ev ptysession.ExitEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return
	}
	wasRestoredResumable := h.Status == StatusRestored && h.Resumability == Resumable
	h.Status = StatusStopped
	h.ProcessID = 0
	if wasRestoredResumable {
		h.Resumability = Unresumable
		h.ResumeFailureReason = "Previous conversation could not be resumed"
	}
}

// RecordInput feeds a user-originated write into the activity engine.
func (m *Manager) RecordInput(id SessionId, b []byte) {
	m.withState(id, func(e *activity.Engine) { e.OnInput(time.Now().UTC(), b) })
}
