package agentmanager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trybotster/hubd/internal/activity"
	"github.com/trybotster/hubd/internal/coreerr"
	"github.com/trybotster/hubd/internal/ptysession"
)

// WorkspaceStore is the external collaborator that persists
// PersistedAgentInfo records. The manager only consumes and produces
// these; no on-disk format is prescribed.
type WorkspaceStore interface {
	Load(workspacePath string) ([]PersistedAgentInfo, error)
	Save(workspacePath string, infos []PersistedAgentInfo) error
}

// availableAgent is one entry in the available-agents cache.
type availableAgent struct {
	Kind    AgentKind
	Name    string
	Path    string
	Version string
}

type agentsCache struct {
	mu          sync.RWMutex
	agents      []availableAgent
	refreshedAt time.Time
}

const availableAgentsTTL = 60 * time.Second

// liveSession couples an AgentHandle's in-memory incarnation with its
// PTY and activity engine.
type liveSession struct {
	pty    *ptysession.Session
	engine *activity.Engine
	cancel context.CancelFunc // stops the activity monitor goroutine
}

// Manager is the authoritative directory of logical sessions.
type Manager struct {
	logger *slog.Logger
	store  WorkspaceStore
	timing activity.TimingParams

	mu      sync.RWMutex
	handles map[SessionId]*AgentHandle
	live    map[SessionId]*liveSession

	activityMu sync.Mutex // guards per-engine state mutation ("with_state")

	agentsCache agentsCache

	monitorWg sync.WaitGroup
}

// New creates a Manager backed by store for persistence.
func New(store WorkspaceStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		store:   store,
		timing:  activity.DefaultTimingParams(),
		handles: make(map[SessionId]*AgentHandle),
		live:    make(map[SessionId]*liveSession),
	}
}

// resolveProgram finds an absolute path for an agent kind's binary
// on the process's own PATH, falling back to asking a login shell for
// `command -v`, which searches the login PATH (teacher's available-agents probe idiom from
// internal/hub/hub.go's tick-gated refresh, generalized here).
func resolveProgram(binary string) (path string, err error) {
	if p, err := exec.LookPath(binary); err == nil {
		return p, nil
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, shell, "-lic", fmt.Sprintf("command -v %s", binary)).Output()
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", binary, err)
	}
	p := strings.TrimSpace(string(out))
	if p == "" {
		return "", fmt.Errorf("resolve %s: not found", binary)
	}
	return p, nil
}

// loginPath returns the user's login PATH, falling back to the
// process's own PATH if a login shell can't be consulted.
func loginPath() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, shell, "-lic", "echo $PATH").Output(); err == nil {
		if p := strings.TrimSpace(string(out)); p != "" {
			return p
		}
	}
	return os.Getenv("PATH")
}

func binaryName(kind AgentKind) string {
	switch kind {
	case AgentKindClaudeCode:
		return "claude"
	case AgentKindCodex:
		return "codex"
	case AgentKindGemini:
		return "gemini"
	default:
		return string(kind)
	}
}

// AvailableAgents probes each known AgentKind's binary, caching the
// result for availableAgentsTTL. The expensive probe runs outside the
// cache lock. No version probe is run: Version is only carried over
// from the previous cache entry when the path is unchanged.
func (m *Manager) AvailableAgents(ctx context.Context) []availableAgent {
	m.agentsCache.mu.RLock()
	fresh := time.Since(m.agentsCache.refreshedAt) < availableAgentsTTL
	cached := m.agentsCache.agents
	m.agentsCache.mu.RUnlock()
	if fresh {
		return cached
	}

	prevByKind := make(map[AgentKind]availableAgent, len(cached))
	for _, a := range cached {
		prevByKind[a.Kind] = a
	}

	var probed []availableAgent
	for _, kind := range []AgentKind{AgentKindClaudeCode, AgentKindCodex, AgentKindGemini} {
		path, err := resolveProgram(binaryName(kind))
		if err != nil {
			continue
		}
		spec, _ := kind.Spec()
		entry := availableAgent{Kind: kind, Name: spec.Name, Path: path}
		if prev, ok := prevByKind[kind]; ok && prev.Path == path {
			entry.Version = prev.Version // reuse — avoid re-spawning version probes
		}
		probed = append(probed, entry)
	}

	m.agentsCache.mu.Lock()
	m.agentsCache.agents = probed
	m.agentsCache.refreshedAt = time.Now()
	m.agentsCache.mu.Unlock()
	return probed
}

func (m *Manager) isInstalled(kind AgentKind) bool {
	for _, a := range m.AvailableAgents(context.Background()) {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func (m *Manager) programFor(kind AgentKind) (string, error) {
	for _, a := range m.AvailableAgents(context.Background()) {
		if a.Kind == kind {
			return a.Path, nil
		}
	}
	return "", coreerr.New(coreerr.AgentNotInstalled, "agent %s is not installed", kind)
}

// buildEnv merges runner-declared env with injected defaults required
// for interactive TUIs (§4.4.5). Runner-declared keys always win.
func buildEnv(runnerEnv []string) []string {
	present := make(map[string]bool, len(runnerEnv))
	for _, kv := range runnerEnv {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			present[kv[:i]] = true
		}
	}
	env := append([]string{}, runnerEnv...)
	if !present["PATH"] {
		if p := loginPath(); p != "" {
			env = append(env, "PATH="+p)
		}
	}
	if !present["TERM"] {
		env = append(env, "TERM=xterm-256color")
	}
	if !present["COLORTERM"] {
		env = append(env, "COLORTERM=truecolor")
	}
	return env
}

func newConversationID() string {
	return uuid.NewString()
}
