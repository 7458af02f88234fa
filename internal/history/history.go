// Package history implements the bounded, append-only output log each
// PTY session keeps for replay: a chunked byte ring with stable
// absolute offsets so clients can page backwards idempotently.
//
// The chunked-slice-with-eviction shape is the same one the teacher's
// agent.RingBuffer (internal/agent/agent.go) uses for drained byte
// queues; this generalizes it into an offset-addressable history by
// tracking start_offset/end_offset instead of only draining.
package history

import "sync"

// DefaultMaxBytes is the hard cap on retained history per session.
const DefaultMaxBytes = 8 * 1024 * 1024

type chunk struct {
	data []byte
	// offset is the absolute start offset of data[0].
	offset uint64
}

// History is a bounded append-only log of output bytes.
type History struct {
	mu sync.Mutex

	maxBytes   int
	chunks     []chunk
	totalBytes int
	startOff   uint64
	endOff     uint64
}

// New creates a History with the given byte cap. A non-positive
// maxBytes is replaced with DefaultMaxBytes.
func New(maxBytes int) *History {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &History{maxBytes: maxBytes}
}

// Push appends b to the history, then evicts whole chunks from the
// front until total_bytes <= max_bytes. A single pushed chunk larger
// than max_bytes is retained in transit and then evicted in full.
func (h *History) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := make([]byte, len(b))
	copy(cp, b)
	h.chunks = append(h.chunks, chunk{data: cp, offset: h.endOff})
	h.endOff += uint64(len(cp))
	h.totalBytes += len(cp)

	for h.totalBytes > h.maxBytes && len(h.chunks) > 0 {
		evicted := h.chunks[0]
		h.chunks = h.chunks[1:]
		h.totalBytes -= len(evicted.data)
		h.startOff = evicted.offset + uint64(len(evicted.data))
	}
}

// Snapshot returns every retained byte, oldest first.
func (h *History) Snapshot() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, 0, h.totalBytes)
	for _, c := range h.chunks {
		out = append(out, c.data...)
	}
	return out
}

// SnapshotChunked returns the retained bytes split into chunks of at
// most n bytes each (n >= 1). Concatenating the result equals Snapshot.
func (h *History) SnapshotChunked(n int) [][]byte {
	if n < 1 {
		n = 1
	}
	full := h.Snapshot()
	if len(full) == 0 {
		return nil
	}
	var out [][]byte
	for len(full) > 0 {
		end := n
		if end > len(full) {
			end = len(full)
		}
		piece := make([]byte, end)
		copy(piece, full[:end])
		out = append(out, piece)
		full = full[end:]
	}
	return out
}

// Slice is the result of a Slice query: a bounded window of history
// ending at or before a requested offset.
type Slice struct {
	Data        []byte
	StartOffset uint64
	EndOffset   uint64
	HasMore     bool
}

// SliceBefore returns a window of history whose upper bound is
// min(beforeEnd, end_offset) and whose size is at most maxBytes. If
// beforeEnd is nil, the window ends at the current end_offset.
// HasMore is true iff the returned start offset is greater than the
// history's own (evicted) start offset.
func (h *History) SliceBefore(beforeEnd *uint64, maxBytes int) Slice {
	h.mu.Lock()
	defer h.mu.Unlock()

	end := h.endOff
	if beforeEnd != nil && *beforeEnd < end {
		end = *beforeEnd
	}
	if maxBytes <= 0 {
		maxBytes = h.maxBytes
	}

	// Collect bytes belonging to offsets in [start.. end) from the
	// retained chunks, then trim to the last maxBytes of that range.
	var collected []byte
	var collectedStart uint64
	haveStart := false
	for _, c := range h.chunks {
		chunkEnd := c.offset + uint64(len(c.data))
		if c.offset >= end {
			break
		}
		lo := 0
		if c.offset < h.startOff {
			lo = int(h.startOff - c.offset)
		}
		hi := len(c.data)
		if chunkEnd > end {
			hi = int(end - c.offset)
		}
		if lo >= hi {
			continue
		}
		if !haveStart {
			collectedStart = c.offset + uint64(lo)
			haveStart = true
		}
		collected = append(collected, c.data[lo:hi]...)
	}

	if len(collected) > maxBytes {
		trim := len(collected) - maxBytes
		collected = collected[trim:]
		collectedStart += uint64(trim)
	}
	if !haveStart {
		collectedStart = end
	}

	return Slice{
		Data:        collected,
		StartOffset: collectedStart,
		EndOffset:   end,
		HasMore:     collectedStart > h.startOff,
	}
}

// TotalBytes returns the number of bytes currently retained.
func (h *History) TotalBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalBytes
}

// EndOffset returns the current absolute end offset.
func (h *History) EndOffset() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endOff
}

// StartOffset returns the current absolute start offset (the oldest
// byte still retained).
func (h *History) StartOffset() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startOff
}
