// Package workspacestore provides a JSON-file-backed implementation of
// agentmanager.WorkspaceStore, one file per workspace, mirroring the
// teacher's config package's load-file/write-file-atomically idiom
// (internal/config/config.go's Save/loadFromFile).
package workspacestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/trybotster/hubd/internal/agentmanager"
)

// Store persists each workspace's agent roster as
// <dir>/<sha-free-name>.json. A single in-process mutex serializes
// writes; this is a reference implementation, not a multi-process one.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a Store that persists under dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("workspacestore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(workspacePath string) string {
	name := filenameSafe(workspacePath)
	return filepath.Join(s.dir, name+".json")
}

// Load returns the persisted agent roster for workspacePath, or an
// empty slice if nothing has been saved yet.
func (s *Store) Load(workspacePath string) ([]agentmanager.PersistedAgentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pathFor(workspacePath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspacestore: read: %w", err)
	}

	var infos []agentmanager.PersistedAgentInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("workspacestore: parse: %w", err)
	}
	return infos, nil
}

// Save writes the full agent roster for workspacePath, replacing
// whatever was previously persisted.
func (s *Store) Save(workspacePath string, infos []agentmanager.PersistedAgentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("workspacestore: marshal: %w", err)
	}

	path := s.pathFor(workspacePath)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("workspacestore: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("workspacestore: rename: %w", err)
	}
	return nil
}

// filenameSafe turns an arbitrary filesystem path into a single path
// component suitable as a filename, replacing path separators.
func filenameSafe(workspacePath string) string {
	out := make([]rune, 0, len(workspacePath))
	for _, r := range workspacePath {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	safe := string(out)
	if safe == "" {
		safe = "_root"
	}
	return safe
}
