package update

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Slow-path update types. Bitmap and palette payloads carry the same
// leading updateType on both paths.
const (
	TypeOrders      = 0x0000
	TypeBitmap      = 0x0001
	TypePalette     = 0x0002
	TypeSynchronize = 0x0003
)

// SlowPathDemux routes the body of a share-data update PDU by its
// updateType without consuming it.
type SlowPathDemux struct {
	Orders  *graph.Pad
	Bitmap  *graph.Pad
	Palette *graph.Pad
	Sync    *graph.Pad
	graph.Base
}

func NewSlowPathDemux(id string) *SlowPathDemux {
	return &SlowPathDemux{
		Base:    graph.NewBase(id),
		Orders:  graph.NewPad(id, "orders"),
		Bitmap:  graph.NewPad(id, "bitmap"),
		Palette: graph.NewPad(id, "palette"),
		Sync:    graph.NewPad(id, "sync"),
	}
}

func (d *SlowPathDemux) Pads() []*graph.Pad {
	return []*graph.Pad{d.Orders, d.Bitmap, d.Palette, d.Sync}
}

func (d *SlowPathDemux) HandleInput(b *buffer.Buffer) error {
	head := b.Unread()
	if len(head) < 2 {
		b.Release()
		return rdperr.New(rdperr.Truncated, "slowpath update", "need 2 bytes, have %d", len(head))
	}
	switch t := uint16(head[0]) | uint16(head[1])<<8; t {
	case TypeOrders:
		return d.Orders.Push(b)
	case TypeBitmap:
		return d.Bitmap.Push(b)
	case TypePalette:
		return d.Palette.Push(b)
	case TypeSynchronize:
		return d.Sync.Push(b)
	default:
		b.Release()
		return rdperr.New(rdperr.UnexpectedUpdateCode, "slowpath update", "update type %d", t)
	}
}
