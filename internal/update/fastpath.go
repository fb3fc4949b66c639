// Package update decodes server screen updates: the fast-path update
// envelope, slow-path update routing, bitmap rectangles and palettes.
package update

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Fast-path update codes.
const (
	CodeOrders          = 0x0
	CodeBitmap          = 0x1
	CodePalette         = 0x2
	CodeSynchronize     = 0x3
	CodeSurfaceCommands = 0x4
	CodePointerHidden   = 0x5
	CodePointerDefault  = 0x6
	CodePointerPosition = 0x8
	CodePointerColor    = 0x9
	CodePointerCached   = 0xA
	CodePointerNew      = 0xB
	CodePointerLarge    = 0xC
)

// Fragmentation values.
const (
	FragSingle = 0x0
	FragLast   = 0x1
	FragFirst  = 0x2
	FragNext   = 0x3
)

const (
	compressionUsed  = 0x2
	packetCompressed = 0x20
)

// MaxFragmentedUpdateSize bounds a reassembled fragmented update.
const MaxFragmentedUpdateSize = 4 << 20

// Counters receives decode statistics. *stats.Collector satisfies it.
type Counters interface {
	AddFastPathUpdates(n int64)
	AddRectangles(n int64)
	AddPaletteUpdates(n int64)
}

type nopCounters struct{}

func (nopCounters) AddFastPathUpdates(int64) {}
func (nopCounters) AddRectangles(int64)      {}
func (nopCounters) AddPaletteUpdates(int64)  {}

func orNop(c Counters) Counters {
	if c == nil {
		return nopCounters{}
	}
	return c
}

// FastPathDemux splits a fast-path output payload into its updates and
// pushes each complete update on the pad for its code. Fragmented updates
// are reassembled first.
type FastPathDemux struct {
	Orders   *graph.Pad
	Bitmap   *graph.Pad
	Palette  *graph.Pad
	Sync     *graph.Pad
	Surface  *graph.Pad
	Pointer  *graph.Pad
	counters Counters
	frag     *buffer.Buffer
	graph.Base
	fragCode uint8
}

// NewFastPathDemux creates the demultiplexer. counters may be nil.
func NewFastPathDemux(id string, counters Counters) *FastPathDemux {
	return &FastPathDemux{
		Base:     graph.NewBase(id),
		Orders:   graph.NewPad(id, "orders"),
		Bitmap:   graph.NewPad(id, "bitmap"),
		Palette:  graph.NewPad(id, "palette"),
		Sync:     graph.NewPad(id, "sync"),
		Surface:  graph.NewPad(id, "surface"),
		Pointer:  graph.NewPad(id, "pointer"),
		counters: orNop(counters),
	}
}

func (d *FastPathDemux) Pads() []*graph.Pad {
	return []*graph.Pad{d.Orders, d.Bitmap, d.Palette, d.Sync, d.Surface, d.Pointer}
}

func (d *FastPathDemux) pad(code uint8) *graph.Pad {
	switch code {
	case CodeOrders:
		return d.Orders
	case CodeBitmap:
		return d.Bitmap
	case CodePalette:
		return d.Palette
	case CodeSynchronize:
		return d.Sync
	case CodeSurfaceCommands:
		return d.Surface
	case CodePointerHidden, CodePointerDefault, CodePointerPosition,
		CodePointerColor, CodePointerCached, CodePointerNew, CodePointerLarge:
		return d.Pointer
	default:
		return nil
	}
}

func (d *FastPathDemux) HandleInput(b *buffer.Buffer) error {
	defer b.Release()
	for b.Remaining() > 0 {
		if err := d.next(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *FastPathDemux) next(b *buffer.Buffer) error {
	header, err := b.ReadU8()
	if err != nil {
		return err
	}
	code := header & 0x0F
	frag := (header >> 4) & 0x03
	if (header>>6)&compressionUsed != 0 {
		flags, err := b.ReadU8()
		if err != nil {
			return err
		}
		if flags&packetCompressed != 0 {
			return rdperr.New(rdperr.Unsupported, "fastpath update", "bulk compressed update 0x%x", code)
		}
	}
	size, err := b.ReadU16LE()
	if err != nil {
		return err
	}

	pad := d.pad(code)
	if pad == nil {
		return rdperr.New(rdperr.UnexpectedUpdateCode, "fastpath update", "update code 0x%x", code)
	}
	payload, err := b.ReadBytes(int(size))
	if err != nil {
		return err
	}

	switch frag {
	case FragSingle:
		if d.frag != nil {
			payload.Release()
			return rdperr.New(rdperr.UnexpectedPDUType, "fastpath update", "unfragmented update inside fragment sequence")
		}
		d.counters.AddFastPathUpdates(1)
		return pad.Push(payload)
	case FragFirst:
		if d.frag != nil {
			payload.Release()
			return rdperr.New(rdperr.UnexpectedPDUType, "fastpath update", "new fragment sequence before last fragment")
		}
		d.frag = buffer.New(int(size) * 4)
		d.fragCode = code
	default:
		if d.frag == nil || d.fragCode != code {
			payload.Release()
			return rdperr.New(rdperr.UnexpectedPDUType, "fastpath update", "fragment of 0x%x outside its sequence", code)
		}
	}
	if d.frag.Len()+payload.Remaining() > MaxFragmentedUpdateSize {
		payload.Release()
		d.frag.Release()
		d.frag = nil
		return rdperr.New(rdperr.UnexpectedPDUType, "fastpath update",
			"fragmented update 0x%x exceeds %d bytes", code, MaxFragmentedUpdateSize)
	}
	d.frag.WriteBytes(payload.Unread())
	payload.Release()

	if frag != FragLast {
		return nil
	}
	whole := d.frag
	d.frag = nil
	d.counters.AddFastPathUpdates(1)
	return pad.Push(whole)
}

// Pending reports whether a fragment sequence is incomplete.
func (d *FastPathDemux) Pending() bool { return d.frag != nil }
