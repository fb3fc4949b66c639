// Package buffer implements the byte cursor buffer every parser and encoder
// in the client works on: a view over shared, reference-counted storage with
// a read cursor, little/big-endian accessors, and append-style writers.
//
// Ownership follows a single rule: whoever holds a *Buffer owns one
// reference and must either hand it to exactly one consumer or Release it.
// Fan-out takes an extra reference with Ref.
package buffer

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/bamsammich/rdpc/internal/rdperr"
)

const pooledCap = 16 * 1024

var storePool = sync.Pool{
	New: func() any { return &store{data: make([]byte, 0, pooledCap)} },
}

type store struct {
	data   []byte
	refs   atomic.Int32
	pooled bool
}

func (s *store) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	if s.pooled && cap(s.data) <= 4*pooledCap {
		s.data = s.data[:0]
		storePool.Put(s)
	}
}

// Buffer is a window [off, end) over a shared store with a read cursor.
// Invariant: off <= cur <= end <= len(store.data).
type Buffer struct {
	s        *store
	meta     map[string]any
	off      int
	cur      int
	end      int
	released bool
}

// New returns an empty buffer for writing with at least capacity bytes.
func New(capacity int) *Buffer {
	var s *store
	if capacity <= pooledCap {
		s = storePool.Get().(*store) //nolint:forcetypeassert // pool only holds *store
		s.pooled = true
	} else {
		s = &store{data: make([]byte, 0, capacity)}
	}
	s.refs.Store(1)
	return &Buffer{s: s}
}

// From wraps p without copying. The caller must not modify p afterwards.
func From(p []byte) *Buffer {
	s := &store{data: p[:len(p):len(p)]}
	s.refs.Store(1)
	return &Buffer{s: s, end: len(p)}
}

// Copy returns a buffer holding a private copy of p.
func Copy(p []byte) *Buffer {
	b := New(len(p))
	b.WriteBytes(p)
	return b
}

// Len returns the total number of bytes in the view.
func (b *Buffer) Len() int { return b.end - b.off }

// Pos returns the cursor position relative to the start of the view.
func (b *Buffer) Pos() int { return b.cur - b.off }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return b.end - b.cur }

// Bytes returns the whole view. It aliases the store and is only valid
// until the buffer is released.
func (b *Buffer) Bytes() []byte { return b.s.data[b.off:b.end] }

// Unread returns the bytes after the cursor without advancing it.
func (b *Buffer) Unread() []byte { return b.s.data[b.cur:b.end] }

// Rewind moves the cursor back to the start of the view.
func (b *Buffer) Rewind() { b.cur = b.off }

// Set attaches a metadata value.
func (b *Buffer) Set(key string, v any) {
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = v
}

// Get returns a metadata value.
func (b *Buffer) Get(key string) (any, bool) {
	v, ok := b.meta[key]
	return v, ok
}

func (b *Buffer) need(n int, op string) error {
	if n < 0 || b.end-b.cur < n {
		return rdperr.New(rdperr.Truncated, op, "need %d bytes, have %d", n, b.end-b.cur)
	}
	return nil
}

// Next returns the next n bytes and advances the cursor. The slice aliases
// the store and takes no reference.
func (b *Buffer) Next(n int) ([]byte, error) {
	if err := b.need(n, "read"); err != nil {
		return nil, err
	}
	p := b.s.data[b.cur : b.cur+n]
	b.cur += n
	return p, nil
}

// Skip advances the cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if err := b.need(n, "skip"); err != nil {
		return err
	}
	b.cur += n
	return nil
}

func (b *Buffer) ReadU8() (uint8, error) {
	if err := b.need(1, "read u8"); err != nil {
		return 0, err
	}
	v := b.s.data[b.cur]
	b.cur++
	return v, nil
}

// PeekU8 returns the next byte without advancing.
func (b *Buffer) PeekU8() (uint8, error) {
	if err := b.need(1, "peek u8"); err != nil {
		return 0, err
	}
	return b.s.data[b.cur], nil
}

func (b *Buffer) ReadU16LE() (uint16, error) {
	p, err := b.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (b *Buffer) ReadU16BE() (uint16, error) {
	p, err := b.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *Buffer) ReadU32LE() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (b *Buffer) ReadU32BE() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// ReadBytes returns the next n bytes as a new view sharing this buffer's
// store and advances the cursor. The returned buffer holds its own
// reference and must be released by its consumer.
func (b *Buffer) ReadBytes(n int) (*Buffer, error) {
	if err := b.need(n, "read bytes"); err != nil {
		return nil, err
	}
	v := b.view(b.cur, b.cur+n)
	b.cur += n
	return v, nil
}

// Slice returns a view of [offset, offset+n) relative to the start of this
// view, independent of the cursor.
func (b *Buffer) Slice(offset, n int) (*Buffer, error) {
	if offset < 0 || n < 0 || offset+n > b.Len() {
		return nil, rdperr.New(rdperr.Truncated, "slice", "range %d+%d exceeds length %d", offset, n, b.Len())
	}
	return b.view(b.off+offset, b.off+offset+n), nil
}

// Rest returns a view of the unread bytes and moves the cursor to the end.
func (b *Buffer) Rest() *Buffer {
	v := b.view(b.cur, b.end)
	b.cur = b.end
	return v
}

// Ref returns a second handle on the same bytes and cursor, used when one
// producer fans a buffer out to several consumers.
func (b *Buffer) Ref() *Buffer {
	v := b.view(b.off, b.end)
	v.cur = b.cur
	for k, val := range b.meta {
		v.Set(k, val)
	}
	return v
}

func (b *Buffer) view(from, to int) *Buffer {
	b.s.refs.Add(1)
	return &Buffer{s: b.s, off: from, cur: from, end: to}
}

// Refs reports the number of live references on the underlying store.
func (b *Buffer) Refs() int {
	if b.released {
		return 0
	}
	return int(b.s.refs.Load())
}

// Release drops this handle's reference. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	s := b.s
	b.s = &store{}
	b.released = true
	b.off, b.cur, b.end = 0, 0, 0
	b.meta = nil
	s.release()
}

// AssertFullyRead fails with TrailingData when unread bytes remain.
func (b *Buffer) AssertFullyRead(op string) error {
	if r := b.Remaining(); r != 0 {
		return rdperr.New(rdperr.TrailingData, op, "%d unread bytes", r)
	}
	return nil
}

// grow makes room for n more bytes at the end of the view, copying into a
// private store when the current one is shared or the view is not at its tail.
func (b *Buffer) grow(n int) {
	exclusive := b.s.refs.Load() == 1 && b.end == len(b.s.data)
	if exclusive && cap(b.s.data)-len(b.s.data) >= n {
		return
	}
	size := b.Len() + n
	nb := New(max(size, 2*b.Len()))
	nb.s.data = append(nb.s.data, b.s.data[b.off:b.end]...)
	old := b.s
	cur := b.cur - b.off
	b.s = nb.s
	b.off, b.cur, b.end = 0, cur, len(nb.s.data)
	old.release()
}

func (b *Buffer) WriteBytes(p []byte) {
	b.grow(len(p))
	b.s.data = append(b.s.data, p...)
	b.end = len(b.s.data)
}

// WriteZeros appends n zero bytes.
func (b *Buffer) WriteZeros(n int) {
	b.grow(n)
	b.s.data = append(b.s.data, make([]byte, n)...)
	b.end = len(b.s.data)
}

func (b *Buffer) WriteU8(v uint8) {
	b.grow(1)
	b.s.data = append(b.s.data, v)
	b.end = len(b.s.data)
}

func (b *Buffer) WriteU16LE(v uint16) {
	b.grow(2)
	b.s.data = binary.LittleEndian.AppendUint16(b.s.data, v)
	b.end = len(b.s.data)
}

func (b *Buffer) WriteU16BE(v uint16) {
	b.grow(2)
	b.s.data = binary.BigEndian.AppendUint16(b.s.data, v)
	b.end = len(b.s.data)
}

func (b *Buffer) WriteU32LE(v uint32) {
	b.grow(4)
	b.s.data = binary.LittleEndian.AppendUint32(b.s.data, v)
	b.end = len(b.s.data)
}

func (b *Buffer) WriteU32BE(v uint32) {
	b.grow(4)
	b.s.data = binary.BigEndian.AppendUint32(b.s.data, v)
	b.end = len(b.s.data)
}

// Prepend places p in front of the view, as when a header is attached after
// a variable-length body has been written. The cursor returns to the start.
func (b *Buffer) Prepend(p []byte) {
	nb := New(len(p) + b.Len())
	nb.s.data = append(nb.s.data, p...)
	nb.s.data = append(nb.s.data, b.s.data[b.off:b.end]...)
	old := b.s
	b.s = nb.s
	b.off, b.cur, b.end = 0, 0, len(nb.s.data)
	old.release()
}

// Join returns a new buffer holding the unread bytes of a followed by p.
// It is how partial PDUs are stitched back together across reads.
func Join(a *Buffer, p []byte) *Buffer {
	nb := New(a.Remaining() + len(p))
	nb.s.data = append(nb.s.data, a.Unread()...)
	nb.s.data = append(nb.s.data, p...)
	nb.end = len(nb.s.data)
	return nb
}
