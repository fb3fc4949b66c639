package graph

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Accumulator is the reassembly guard used by stream parsers. Bytes that do
// not yet form a whole unit are retained and stitched onto the next input.
type Accumulator struct {
	pending *buffer.Buffer
	max     int
}

// NewAccumulator creates a guard that refuses units larger than max bytes.
func NewAccumulator(limit int) *Accumulator {
	return &Accumulator{max: limit}
}

// Take returns in joined behind any retained bytes. Ownership of in passes
// to the accumulator; the caller owns the result.
func (a *Accumulator) Take(in *buffer.Buffer) *buffer.Buffer {
	if a.pending == nil {
		return in
	}
	out := buffer.Join(a.pending, in.Unread())
	a.pending.Release()
	a.pending = nil
	in.Release()
	return out
}

// Pending returns the number of retained bytes.
func (a *Accumulator) Pending() int {
	if a.pending == nil {
		return 0
	}
	return a.pending.Remaining()
}

// EnsureAvailable reports whether b has at least need unread bytes. When it
// does not and wait is set, the unread tail is retained for the next Take
// and (false, nil) is returned; without wait a Truncated error is returned.
// A need above the configured maximum is a fatal error either way.
func (a *Accumulator) EnsureAvailable(b *buffer.Buffer, need int, wait bool) (bool, error) {
	if a.max > 0 && need > a.max {
		return false, rdperr.New(rdperr.UnexpectedPDUType, "reassemble", "unit of %d bytes exceeds limit %d", need, a.max)
	}
	if b.Remaining() >= need {
		return true, nil
	}
	if !wait {
		return false, rdperr.New(rdperr.Truncated, "reassemble", "need %d bytes, have %d", need, b.Remaining())
	}
	a.pending = b.Rest()
	return false, nil
}

// Reset drops retained bytes.
func (a *Accumulator) Reset() {
	a.pending.Release()
	a.pending = nil
}
