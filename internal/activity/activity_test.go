package activity

import (
	"strings"
	"testing"
	"time"
)

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

func TestScenarioA_CommandSubmitted(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnInput(at(0), []byte("run tests\n"))
	s := e.State()
	if s.Phase != PhaseProcessing || s.IsIdle {
		t.Fatalf("got phase=%s idle=%v, want Processing/false", s.Phase, s.IsIdle)
	}
	if s.LastInputAt == nil || !s.LastInputAt.Equal(at(0)) {
		t.Fatalf("last_input_at not recorded")
	}
}

func TestScenarioB_PromptHint(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnOutput(at(0), true)
	s := e.State()
	if s.Phase != PhaseAwaitingUser || !s.IsIdle || s.Reason != "prompt_hint" {
		t.Fatalf("got %+v", s)
	}
}

func TestScenarioC_StreamingThenProcessing(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnInput(at(0), []byte("run tests\n")) // Processing, pending_command=true
	e.OnOutput(at(0), false)                // -> StreamingOutput
	if e.State().Phase != PhaseStreamingOutput {
		t.Fatalf("got phase=%s, want StreamingOutput", e.State().Phase)
	}
	e.OnTick(at(600), TimingParams{StreamingQuietToProcessing: 500 * time.Millisecond})
	if e.State().Phase != PhaseProcessing {
		t.Fatalf("got phase=%s, want Processing", e.State().Phase)
	}
}

func TestScenarioD_IdleTimeoutFromProcessing(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnInput(at(0), []byte("run tests\n"))
	e.OnOutput(at(0), false)
	e.OnTick(at(600), TimingParams{StreamingQuietToProcessing: 500 * time.Millisecond})

	e.OnTick(at(1200), TimingParams{IdleDebounce: 1000 * time.Millisecond, BusyMinHold: 200 * time.Millisecond})
	s := e.State()
	if s.Phase != PhaseAwaitingUser || s.Reason != "idle_timeout" || !s.IsIdle {
		t.Fatalf("got %+v", s)
	}
}

func TestScenarioE_EchoDuringUserInputDoesNotOverwrite(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnInput(at(0), []byte("typing"))
	if e.State().Phase != PhaseUserInput {
		t.Fatalf("got phase=%s, want UserInput", e.State().Phase)
	}
	changed := e.OnOutput(at(0), false)
	if changed {
		t.Fatalf("echo output must not register as a change")
	}
	if e.State().Phase != PhaseUserInput {
		t.Fatalf("phase overwritten to %s, want UserInput preserved", e.State().Phase)
	}
}

func TestScenarioF_ProcessingStaleClearsPending(t *testing.T) {
	e := NewUnknown(at(0))
	e.OnInput(at(0), []byte("run tests\n")) // Processing, pending_command=true, last_input_at=0
	timing := TimingParams{
		ProcessingStale: 120 * time.Second,
		IdleDebounce:    10 * time.Second, // keep idle_timeout branch from firing first
		BusyMinHold:     10 * time.Second,
	}
	e.OnTick(at(1000), timing) // not yet stale
	if e.State().Phase != PhaseProcessing {
		t.Fatalf("got phase=%s too early", e.State().Phase)
	}
	e.OnTick(at(121_000), timing)
	s := e.State()
	if s.Phase != PhaseUnknown || s.PendingCommand {
		t.Fatalf("got phase=%s pending=%v, want Unknown/false", s.Phase, s.PendingCommand)
	}
}

func TestPromptHintPositives(t *testing.T) {
	cases := []string{
		"$ ", "> ", "% ", "#", "Continue?", "proceed? y/n", "Select?>",
	}
	for _, c := range cases {
		if !PromptHint([]byte(c)) {
			t.Errorf("PromptHint(%q) = false, want true", c)
		}
	}
}

func TestPromptHintLongLineIsFalse(t *testing.T) {
	if PromptHint([]byte(strings.Repeat("x", 201))) {
		t.Fatalf("201-char line must not be a prompt hint")
	}
}

func TestPromptHintExactly200CharsIsTrue(t *testing.T) {
	line := strings.Repeat("x", 199) + "$"
	if !PromptHint([]byte(line)) {
		t.Fatalf("exactly-200-char line ending in a marker must be a prompt hint")
	}
}

func TestPromptHintOver200CharsRejectedEvenIfPrefixLooksLikeAPrompt(t *testing.T) {
	// The first 200 chars of this single line end in "$", which would
	// pass if the line were truncated to a 200-char prefix and
	// re-tested. The line must instead be rejected outright because
	// its full length exceeds 200.
	line := strings.Repeat("x", 199) + "$" + "zzzz"
	if PromptHint([]byte(line)) {
		t.Fatalf("over-200-char line must not be a prompt hint, even if its first 200 chars end in a marker")
	}
}

func TestPromptHintBlankIsFalse(t *testing.T) {
	if PromptHint([]byte("   \n\n  ")) {
		t.Fatalf("blank burst must not be a prompt hint")
	}
}

func TestPromptHintStripsANSI(t *testing.T) {
	if !PromptHint([]byte("\x1b[32m$ \x1b[0m")) {
		t.Fatalf("ANSI-wrapped prompt must still be detected")
	}
}
