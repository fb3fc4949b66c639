package update

import (
	"encoding/binary"
	"image/color"
	"log/slog"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/rle"
	"github.com/bamsammich/rdpc/internal/session"
)

// Bitmap data flags.
const (
	BitmapCompression   = 0x0001
	NoCompressionHeader = 0x0400
)

const compressionHeaderSize = 8

// BitmapDecoder decodes bitmap updates and hands each rectangle to the
// session renderer.
type BitmapDecoder struct {
	ctx      *session.Context
	counters Counters
	graph.Base
}

// NewBitmapDecoder creates the decoder. counters may be nil.
func NewBitmapDecoder(id string, ctx *session.Context, counters Counters) *BitmapDecoder {
	return &BitmapDecoder{Base: graph.NewBase(id), ctx: ctx, counters: orNop(counters)}
}

func (d *BitmapDecoder) HandleInput(b *buffer.Buffer) error {
	defer b.Release()

	t, err := b.ReadU16LE()
	if err != nil {
		return err
	}
	if t != TypeBitmap {
		return rdperr.New(rdperr.UnexpectedUpdateCode, "bitmap update", "update type %d", t)
	}
	n, err := b.ReadU16LE()
	if err != nil {
		return err
	}
	for range n {
		r, err := ReadRectangle(b)
		if err != nil {
			return err
		}
		d.ctx.Renderer.DrawBitmap(r)
	}
	if err := b.AssertFullyRead("bitmap update"); err != nil {
		return err
	}
	d.counters.AddRectangles(int64(n))
	return nil
}

// ReadRectangle decodes one TS_BITMAP_DATA record, decompressing it when
// needed. Width and height come from inclusive bounds.
func ReadRectangle(b *buffer.Buffer) (session.BitmapRectangle, error) {
	var f [9]uint16
	for i := range f {
		v, err := b.ReadU16LE()
		if err != nil {
			return session.BitmapRectangle{}, err
		}
		f[i] = v
	}
	left, top, right, bottom := f[0], f[1], f[2], f[3]
	bufW, bufH, bpp, flags, length := f[4], f[5], f[6], f[7], f[8]
	if right < left || bottom < top {
		return session.BitmapRectangle{}, rdperr.New(rdperr.UnexpectedPDUType, "bitmap rectangle",
			"inverted bounds (%d,%d)-(%d,%d)", left, top, right, bottom)
	}

	data, err := b.Next(int(length))
	if err != nil {
		return session.BitmapRectangle{}, err
	}

	r := session.BitmapRectangle{
		X:            left,
		Y:            top,
		Width:        right - left + 1,
		Height:       bottom - top + 1,
		BufferWidth:  bufW,
		BufferHeight: bufH,
		Depth:        bpp,
		Data:         data,
	}
	if flags&BitmapCompression == 0 {
		return r, nil
	}

	if flags&NoCompressionHeader == 0 && hasCompressionHeader(data, r) {
		data = data[compressionHeaderSize:]
	}
	r.Data, err = rle.Decompress(data, int(bufW), int(bufH), int(bpp))
	if err != nil {
		return session.BitmapRectangle{}, err
	}
	return r, nil
}

// hasCompressionHeader checks whether data opens with a TS_CD_HEADER that
// agrees with the rectangle. The client advertises that it does not want
// the header, so it is only stripped when every field checks out.
func hasCompressionHeader(data []byte, r session.BitmapRectangle) bool {
	if len(data) < compressionHeaderSize {
		return false
	}
	bpp, err := rle.BytesPerPixel(int(r.Depth))
	if err != nil {
		return false
	}
	firstRow := binary.LittleEndian.Uint16(data[0:])
	mainBody := binary.LittleEndian.Uint16(data[2:])
	scanWidth := binary.LittleEndian.Uint16(data[4:])
	uncompressed := binary.LittleEndian.Uint16(data[6:])
	ok := firstRow == 0 &&
		int(mainBody) == len(data)-compressionHeaderSize &&
		int(scanWidth) == int(r.BufferWidth)*bpp &&
		int(uncompressed) == int(scanWidth)*int(r.BufferHeight)
	if ok {
		slog.Debug("stripping bitmap compression header", "x", r.X, "y", r.Y)
	}
	return ok
}

// PaletteDecoder decodes palette updates into the session screen.
type PaletteDecoder struct {
	ctx      *session.Context
	counters Counters
	graph.Base
}

// PaletteSize is the only palette length servers send.
const PaletteSize = 256

// NewPaletteDecoder creates the decoder. counters may be nil.
func NewPaletteDecoder(id string, ctx *session.Context, counters Counters) *PaletteDecoder {
	return &PaletteDecoder{Base: graph.NewBase(id), ctx: ctx, counters: orNop(counters)}
}

func (d *PaletteDecoder) HandleInput(b *buffer.Buffer) error {
	defer b.Release()

	p, err := ReadPalette(b)
	if err != nil {
		return err
	}
	d.ctx.Screen.SetPalette(p)
	d.ctx.Renderer.PaletteChanged(p)
	d.counters.AddPaletteUpdates(1)
	return nil
}

// ReadPalette decodes a TS_UPDATE_PALETTE_DATA body. It consumes all of b.
func ReadPalette(b *buffer.Buffer) (*session.Palette, error) {
	t, err := b.ReadU16LE()
	if err != nil {
		return nil, err
	}
	if t != TypePalette {
		return nil, rdperr.New(rdperr.UnexpectedUpdateCode, "palette update", "update type %d", t)
	}
	if err := b.Skip(2); err != nil {
		return nil, err
	}
	n, err := b.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if n != PaletteSize {
		return nil, rdperr.New(rdperr.Unsupported, "palette update", "%d colors", n)
	}
	rgb, err := b.Next(PaletteSize * 3)
	if err != nil {
		return nil, err
	}
	if err := b.AssertFullyRead("palette update"); err != nil {
		return nil, err
	}

	p := new(session.Palette)
	for i := range p {
		p[i] = color.RGBA{R: rgb[i*3], G: rgb[i*3+1], B: rgb[i*3+2], A: 0xFF}
	}
	return p, nil
}
