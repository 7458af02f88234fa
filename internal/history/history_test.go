package history

import (
	"bytes"
	"testing"
)

func TestPushCapsTotalBytes(t *testing.T) {
	h := New(16)
	for i := 0; i < 10; i++ {
		h.Push([]byte("abcd"))
	}
	if got := h.TotalBytes(); got > 16 {
		t.Fatalf("total_bytes = %d, want <= 16", got)
	}
}

func TestEndOffsetMonotonic(t *testing.T) {
	h := New(16)
	var last uint64
	for i := 0; i < 20; i++ {
		h.Push([]byte("x"))
		end := h.EndOffset()
		if end < last {
			t.Fatalf("end_offset went backwards: %d -> %d", last, end)
		}
		last = end
	}
}

func TestSnapshotChunkedRoundTrips(t *testing.T) {
	h := New(1024)
	want := []byte("the quick brown fox jumps over the lazy dog")
	h.Push(want)

	for n := 1; n <= len(want)+3; n++ {
		var got []byte
		for _, c := range h.SnapshotChunked(n) {
			got = append(got, c...)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("n=%d: chunked round-trip mismatch: got %q want %q", n, got, want)
		}
	}
}

func TestSliceBeforeNilReturnsCurrentEnd(t *testing.T) {
	h := New(1024)
	h.Push([]byte("hello"))
	h.Push([]byte(" world"))

	s := h.SliceBefore(nil, 1<<20)
	if s.EndOffset != h.EndOffset() {
		t.Fatalf("EndOffset = %d, want %d", s.EndOffset, h.EndOffset())
	}
	if s.HasMore != (s.StartOffset > h.StartOffset()) {
		t.Fatalf("HasMore = %v, want %v", s.HasMore, s.StartOffset > h.StartOffset())
	}
	if !bytes.Equal(s.Data, []byte("hello world")) {
		t.Fatalf("Data = %q", s.Data)
	}
}

func TestSliceBeforeRespectsMaxBytesAndHasMore(t *testing.T) {
	h := New(1 << 20)
	for i := 0; i < 5; i++ {
		h.Push([]byte("12345"))
	}
	s := h.SliceBefore(nil, 5)
	if len(s.Data) != 5 {
		t.Fatalf("len(Data) = %d, want 5", len(s.Data))
	}
	if !s.HasMore {
		t.Fatalf("HasMore = false, want true (more data precedes the window)")
	}
}

func TestSliceBeforeOldestDataEvicted(t *testing.T) {
	h := New(10)
	h.Push([]byte("0123456789")) // exactly fills
	h.Push([]byte("abcde"))      // evicts the first chunk entirely

	s := h.SliceBefore(nil, 1<<20)
	if !bytes.Equal(s.Data, []byte("abcde")) {
		t.Fatalf("Data = %q, want %q", s.Data, "abcde")
	}
	if s.HasMore {
		t.Fatalf("HasMore = true, want false: nothing older than history.start_offset remains")
	}
}

func TestPushOversizeChunkEvictedInFull(t *testing.T) {
	h := New(4)
	h.Push([]byte("this is much longer than four bytes"))
	h.Push([]byte("ok"))
	if got := h.TotalBytes(); got > 4 {
		t.Fatalf("total_bytes = %d, want <= 4", got)
	}
	if !bytes.Equal(h.Snapshot(), []byte("ok")) {
		t.Fatalf("Snapshot = %q, want %q", h.Snapshot(), "ok")
	}
}
