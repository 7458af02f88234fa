package ptysession

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSpawnWriteAndOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	s := New(uuid.New(), nil)
	err := s.Spawn(SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "read line; echo got:$line"},
		Cols:    80, Rows: 24,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Close()

	sub := s.SubscribeOutput()
	defer sub.Unsubscribe()

	if _, err := s.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.After(5 * time.Second)
	var collected strings.Builder
	for {
		select {
		case chunk, ok := <-sub.C():
			if !ok {
				goto done
			}
			collected.Write(chunk)
			if strings.Contains(collected.String(), "got:hello") {
				goto done
			}
		case <-deadline:
			t.Fatalf("timed out waiting for echo, got so far: %q", collected.String())
		}
	}
done:
	if !strings.Contains(collected.String(), "got:hello") {
		t.Fatalf("output = %q, want substring got:hello", collected.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !s.IsStopped() {
		t.Fatalf("session should be stopped after child exit")
	}
}

func TestKillIsIdempotent(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	s := New(uuid.New(), nil)
	if err := s.Spawn(SpawnConfig{Program: "/bin/sh", Args: []string{"-c", "sleep 30"}, Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Close()

	if err := s.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if err := s.Kill(); err != nil {
		t.Fatalf("second Kill should be a no-op, got: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait after kill: %v", err)
	}
}

func TestResizeUpdatesSize(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	s := New(uuid.New(), nil)
	if err := s.Spawn(SpawnConfig{Program: "/bin/sh", Args: []string{"-c", "sleep 5"}, Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer func() { _ = s.Kill(); s.Close() }()

	if err := s.Resize(100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	cols, rows := s.Size()
	if cols != 100 || rows != 30 {
		t.Fatalf("Size() = %d,%d, want 100,30", cols, rows)
	}
}
