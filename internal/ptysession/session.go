// Package ptysession implements component A of the session runtime:
// one OS pseudo-terminal and its child process, with output published
// to any number of subscribers without ever blocking the reader
// thread that drains the PTY master.
//
// Grounded on the teacher's internal/pty/session.go (reader loop,
// buffer, done channel) and internal/agent/agent.go's PTYSession
// (creack/pty spawn, termios/window sizing), generalized to the
// spec's offset-addressable history and lag-signaling broadcast
// instead of the teacher's plain slice buffer.
package ptysession

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/trybotster/hubd/internal/broadcast"
	"github.com/trybotster/hubd/internal/history"
)

const (
	readChunkSize      = 4096
	outputBroadcastCap = 4096
	// MaxHistoryBytes is the default Output History cap (§4.2).
	MaxHistoryBytes = history.DefaultMaxBytes
)

// SpawnConfig are the inputs to Spawn.
type SpawnConfig struct {
	Program    string
	Args       []string
	WorkingDir string
	Env        []string // ordered KEY=VALUE pairs
	Cols, Rows uint16
}

// ExitEvent is published exactly once when the child exits or is killed.
type ExitEvent struct {
	ExitCode *int
}

// Session owns one PTY master/slave pair and its child process.
type Session struct {
	ID SessionID

	logger *slog.Logger

	mu       sync.Mutex // serializes write/resize
	ptyFile  *os.File
	cmd      *exec.Cmd
	cols     uint16
	rows     uint16
	stopped  atomic.Bool
	exitOnce sync.Once

	history   *history.History
	outputHub *broadcast.Hub[[]byte]
	exitHub   *broadcast.Hub[ExitEvent]

	readerWg sync.WaitGroup
	done     chan struct{}
}

// SessionID is the opaque 128-bit identifier shared with the agent
// manager's SessionId.
type SessionID = uuid.UUID

// New allocates a Session shell (not yet spawned) identified by id.
func New(id SessionID, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:        id,
		logger:    logger,
		history:   history.New(MaxHistoryBytes),
		outputHub: broadcast.New[[]byte](outputBroadcastCap),
		exitHub:   broadcast.New[ExitEvent](4),
		done:      make(chan struct{}),
	}
}

// Spawn opens a PTY and starts cfg.Program as the slave-attached
// child, then adjusts the master's termios to suppress local echo.
// The adjustment happens after the child has started (not before),
// but before any Write can run, since both hold s.mu. No
// partially constructed session is ever observable: either this
// returns nil and the Session is fully live, or it returns an error
// and nothing was started.
func (s *Session) Spawn(cfg SpawnConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.Command(cfg.Program, cfg.Args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = cfg.Env

	size := &pty.Winsize{Cols: cfg.Cols, Rows: cfg.Rows}
	if size.Cols == 0 {
		size.Cols = 120
	}
	if size.Rows == 0 {
		size.Rows = 40
	}

	f, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return fmt.Errorf("pty spawn: %w", err)
	}
	disableEcho(f)

	s.ptyFile = f
	s.cmd = cmd
	s.cols, s.rows = size.Cols, size.Rows

	s.readerWg.Add(1)
	go s.readerLoop()

	return nil
}

// readerLoop drains the PTY master in 4KiB reads on a dedicated
// goroutine that never blocks on subscribers (it publishes through a
// lock-free, lag-signaling broadcast hub). It is the one part of the
// runtime explicitly kept off the cooperative scheduler, matching the
// teacher's pty.Session.readerLoop.
func (s *Session) readerLoop() {
	defer s.readerWg.Done()

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.ptyFile.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.history.Push(chunk)
			s.outputHub.Publish(chunk)
		}
		if err != nil {
			s.finish()
			return
		}
	}
}

func (s *Session) finish() {
	s.exitOnce.Do(func() {
		s.stopped.Store(true)
		close(s.done)

		var code *int
		if s.cmd != nil {
			err := s.cmd.Wait()
			if s.cmd.ProcessState != nil {
				c := s.cmd.ProcessState.ExitCode()
				code = &c
			}
			if err != nil {
				s.logger.Debug("ptysession: child wait error", "session_id", s.ID, "error", err)
			}
		}
		s.exitHub.Publish(ExitEvent{ExitCode: code})
	})
}

// Write serializes writes per session and returns once the OS buffer
// has accepted the bytes.
func (s *Session) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptyFile == nil {
		return 0, fmt.Errorf("ptysession: not spawned")
	}
	return s.ptyFile.Write(b)
}

// Resize adjusts the PTY master window size. No-op if not spawned.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptyFile == nil {
		return nil
	}
	if err := pty.Setsize(s.ptyFile, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("ptysession: resize: %w", err)
	}
	s.cols, s.rows = cols, rows
	return nil
}

// Size returns the last known PTY window size.
func (s *Session) Size() (cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Kill is idempotent: if already stopped it returns immediately,
// otherwise it force-kills the child and publishes a best-effort exit
// event with no exit code.
func (s *Session) Kill() error {
	if s.stopped.Load() {
		return nil
	}
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		s.logger.Debug("ptysession: kill error", "session_id", s.ID, "error", err)
	}
	// The exit event is published exactly once: here, unless readerLoop's
	// finish() already did. The killed child is reaped in the background.
	s.exitOnce.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		go func() { _ = cmd.Wait() }()
		s.exitHub.Publish(ExitEvent{})
	})
	return nil
}

// IsStopped reports whether the PTY session has exited or been killed.
func (s *Session) IsStopped() bool { return s.stopped.Load() }

// SubscribeOutput returns a subscription to live output chunks.
func (s *Session) SubscribeOutput() *broadcast.Subscription[[]byte] {
	return s.outputHub.Subscribe()
}

// SubscribeExit returns a subscription to the (single) exit event.
func (s *Session) SubscribeExit() *broadcast.Subscription[ExitEvent] {
	return s.exitHub.Subscribe()
}

// Snapshot returns the full retained output history.
func (s *Session) Snapshot() []byte { return s.history.Snapshot() }

// SnapshotChunked returns the retained history split into chunks.
func (s *Session) SnapshotChunked(chunkSize int) [][]byte {
	return s.history.SnapshotChunked(chunkSize)
}

// SliceBefore reads a bounded window of history ending at or before
// end (nil means "current end").
func (s *Session) SliceBefore(end *uint64, maxBytes int) history.Slice {
	return s.history.SliceBefore(end, maxBytes)
}

// Wait blocks until the session's reader loop has observed the child
// exit, or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the broadcast hubs after the session has stopped.
// Safe to call once the reader goroutine has exited.
func (s *Session) Close() {
	s.readerWg.Wait()
	s.outputHub.Close()
	s.exitHub.Close()
	if s.ptyFile != nil {
		_ = s.ptyFile.Close()
	}
}
