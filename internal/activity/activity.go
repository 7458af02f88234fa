// Package activity implements the per-session activity inference
// engine: a pure, synchronous state machine that turns input/output
// byte events and ticks into a coarse phase, with a best-effort
// prompt-hint detector driving the awaiting-user transition.
//
// Kept deliberately free of I/O so it can be unit-tested exhaustively,
// per the teacher's general preference for small, synchronous,
// mutex-guarded state holders (internal/relay/state.go's BrowserState
// is the closest stylistic analog: lock, mutate, derive, unlock).
package activity

import (
	"strings"
	"time"
)

// Phase is the coarse activity phase of a session.
type Phase string

const (
	PhaseUnknown         Phase = "unknown"
	PhaseAwaitingUser    Phase = "awaiting_user"
	PhaseUserInput       Phase = "user_input"
	PhaseProcessing      Phase = "processing"
	PhaseStreamingOutput Phase = "streaming_output"
)

// TimingParams are the debounce/hold durations driving tick
// transitions. Injectable so tests can exercise transitions without
// real sleeps.
type TimingParams struct {
	IdleDebounce               time.Duration
	BusyMinHold                time.Duration
	ProcessingStale            time.Duration
	StreamingQuietToProcessing time.Duration
}

// DefaultTimingParams returns the production defaults from the spec.
func DefaultTimingParams() TimingParams {
	return TimingParams{
		IdleDebounce:               1200 * time.Millisecond,
		BusyMinHold:                500 * time.Millisecond,
		ProcessingStale:            120 * time.Second,
		StreamingQuietToProcessing: 1500 * time.Millisecond,
	}
}

// State is the activity engine's per-session state snapshot.
type State struct {
	Phase          Phase
	IsIdle         bool
	LastInputAt    *time.Time
	LastOutputAt   *time.Time
	PendingCommand bool
	BusySince      *time.Time
	Reason         string
	UpdatedAt      time.Time
}

// Engine holds one session's State and mutates it in response to the
// four event kinds. Not goroutine-safe by itself; callers (the agent
// manager's activity recorder) serialize access with their own lock,
// matching the "with_state" helper pattern described in the design
// notes.
type Engine struct {
	state State
}

// NewUnknown creates an Engine starting in PhaseUnknown at time t.
func NewUnknown(t time.Time) *Engine {
	return &Engine{state: State{Phase: PhaseUnknown, UpdatedAt: t}}
}

// State returns a copy of the current state snapshot.
func (e *Engine) State() State { return e.state }

func timePtr(t time.Time) *time.Time { return &t }

func since(ref *time.Time, now time.Time) time.Duration {
	if ref == nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(*ref)
}

// apply records a transition iff phase, is_idle, or reason changed,
// returning whether a change occurred.
func (e *Engine) apply(now time.Time, phase Phase, isIdle bool, reason string) bool {
	prev := e.state
	changed := prev.Phase != phase || prev.IsIdle != isIdle || prev.Reason != reason

	if isIdle && !prev.IsIdle {
		e.state.BusySince = nil
	} else if !isIdle && prev.IsIdle {
		e.state.BusySince = timePtr(now)
	} else if !isIdle && prev.BusySince == nil {
		e.state.BusySince = timePtr(now)
	}

	e.state.Phase = phase
	e.state.IsIdle = isIdle
	e.state.Reason = reason
	e.state.UpdatedAt = now
	return changed
}

func containsNewlineOrCR(b []byte) bool {
	for _, c := range b {
		if c == '\n' || c == '\r' {
			return true
		}
	}
	return false
}

// OnInput processes a user-originated write.
func (e *Engine) OnInput(now time.Time, b []byte) bool {
	e.state.LastInputAt = timePtr(now)

	if containsNewlineOrCR(b) {
		e.state.PendingCommand = true
		return e.apply(now, PhaseProcessing, false, "command_submitted")
	}

	switch e.state.Phase {
	case PhaseUnknown, PhaseAwaitingUser:
		return e.apply(now, PhaseUserInput, false, "input_observed")
	default:
		e.state.UpdatedAt = now
		return false
	}
}

// OnOutput processes an output burst; promptHint is the derived
// boolean from PromptHint.
func (e *Engine) OnOutput(now time.Time, promptHint bool) bool {
	e.state.LastOutputAt = timePtr(now)

	if promptHint {
		e.state.PendingCommand = false
		return e.apply(now, PhaseAwaitingUser, true, "prompt_hint")
	}

	if e.state.Phase == PhaseUserInput {
		e.state.UpdatedAt = now
		return false
	}
	return e.apply(now, PhaseStreamingOutput, false, "output_activity")
}

// OnTick processes a timer tick at 4 Hz per the spec.
func (e *Engine) OnTick(now time.Time, timing TimingParams) bool {
	switch e.state.Phase {
	case PhaseUserInput:
		if since(e.state.LastInputAt, now) >= timing.IdleDebounce {
			return e.apply(now, PhaseAwaitingUser, true, "input_idle")
		}
		return false

	case PhaseStreamingOutput:
		if e.state.PendingCommand {
			if since(e.state.LastOutputAt, now) >= timing.StreamingQuietToProcessing {
				return e.apply(now, PhaseProcessing, false, "awaiting_completion")
			}
			return false
		}
		if since(e.state.LastOutputAt, now) >= timing.IdleDebounce && e.busyFor(now) >= timing.BusyMinHold {
			return e.apply(now, PhaseAwaitingUser, true, "idle_timeout")
		}
		return false

	case PhaseProcessing:
		if e.state.PendingCommand {
			if e.state.LastOutputAt != nil && since(e.state.LastOutputAt, now) >= timing.IdleDebounce && e.busyFor(now) >= timing.BusyMinHold {
				e.state.PendingCommand = false
				return e.apply(now, PhaseAwaitingUser, true, "idle_timeout")
			}
			if since(e.state.LastInputAt, now) >= timing.ProcessingStale {
				e.state.PendingCommand = false
				return e.apply(now, PhaseUnknown, false, "processing_stale")
			}
			return false
		}
		if since(e.state.LastOutputAt, now) >= timing.IdleDebounce && e.busyFor(now) >= timing.BusyMinHold {
			return e.apply(now, PhaseAwaitingUser, true, "idle_timeout")
		}
		return false

	default:
		return false
	}
}

func (e *Engine) busyFor(now time.Time) time.Duration {
	if e.state.BusySince == nil {
		return 0
	}
	return now.Sub(*e.state.BusySince)
}

// OnSessionStopped transitions to Unknown with the caller-supplied
// reason, e.g. "session_exit" or "session_not_running".
func (e *Engine) OnSessionStopped(now time.Time, reason string) bool {
	e.state.PendingCommand = false
	return e.apply(now, PhaseUnknown, false, reason)
}

// PromptHint derives the §4.3.2 prompt-hint boolean from a raw output
// burst: strip ANSI, take the last non-blank line, reject outright if
// it's longer than 200 chars, and test it against the documented
// phrase/suffix set.
func PromptHint(burst []byte) bool {
	stripped := stripANSI(burst)
	lines := strings.Split(stripped, "\n")

	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" {
			last = trimmed
			break
		}
	}
	if last == "" {
		return false
	}
	if len(last) > 200 {
		return false
	}

	lower := strings.ToLower(last)
	switch {
	case strings.Contains(lower, "press enter"),
		strings.Contains(lower, "continue?"),
		strings.Contains(lower, "y/n"):
		return true
	}

	for _, suffix := range []string{"?>", "$", "$ ", "%", "% ", "#", "# ", ">", "> "} {
		if strings.HasSuffix(last, suffix) {
			return true
		}
	}
	return false
}

// stripANSI removes CSI (ESC [ ... final byte in 0x40-0x7E) and OSC
// (ESC ] ... BEL) sequences; a bare ESC followed by any other byte
// drops the escape and keeps the byte.
func stripANSI(b []byte) string {
	var out strings.Builder
	out.Grow(len(b))

	i := 0
	for i < len(b) {
		c := b[i]
		if c != 0x1b {
			out.WriteByte(c)
			i++
			continue
		}
		// ESC at end of buffer: drop it.
		if i+1 >= len(b) {
			i++
			continue
		}
		next := b[i+1]
		switch next {
		case '[':
			j := i + 2
			for j < len(b) && !(b[j] >= 0x40 && b[j] <= 0x7e) {
				j++
			}
			if j < len(b) {
				j++
			}
			i = j
		case ']':
			j := i + 2
			for j < len(b) && b[j] != 0x07 {
				j++
			}
			if j < len(b) {
				j++
			}
			i = j
		default:
			out.WriteByte(next)
			i += 2
		}
	}
	return out.String()
}
