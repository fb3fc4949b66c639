// Package screen is a framebuffer renderer for decoded bitmap output. It
// keeps an RGBA image of the remote desktop that can be encoded as PNG or
// digested for comparisons.
package screen

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/rdpc/internal/session"
)

// Framebuffer implements session.Renderer. It is safe for concurrent use:
// the parsing goroutine draws while others read snapshots.
type Framebuffer struct {
	img      *image.RGBA
	palette  *session.Palette
	lastDraw atomic.Int64 // unix nanos
	draws    atomic.Int64
	mu       sync.RWMutex
}

var _ session.Renderer = (*Framebuffer)(nil)

// New creates a black framebuffer of the given size.
func New(width, height int) *Framebuffer {
	return &Framebuffer{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Size returns the current framebuffer dimensions.
func (f *Framebuffer) Size() (int, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b := f.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize replaces the image, keeping the overlapping region.
func (f *Framebuffer) Resize(width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range min(height, f.img.Bounds().Dy()) {
		n := min(width, f.img.Bounds().Dx()) * 4
		copy(img.Pix[y*img.Stride:y*img.Stride+n], f.img.Pix[y*f.img.Stride:])
	}
	f.img = img
}

func (f *Framebuffer) PaletteChanged(p *session.Palette) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.palette = p
}

// DrawBitmap copies a bottom-up rectangle into the image. Pixels outside
// the framebuffer and rows missing from short data are skipped.
func (f *Framebuffer) DrawBitmap(r session.BitmapRectangle) {
	bpp := bytesPerPixel(r.Depth)
	if bpp == 0 {
		return
	}
	stride := int(r.BufferWidth) * bpp

	f.mu.Lock()
	defer f.mu.Unlock()

	bounds := f.img.Bounds()
	for row := range int(r.Height) {
		y := int(r.Y) + row
		srcRow := int(r.BufferHeight) - 1 - row
		if y >= bounds.Max.Y || srcRow < 0 {
			break
		}
		off := srcRow * stride
		if off+stride > len(r.Data) {
			continue
		}
		line := r.Data[off : off+stride]
		for col := range min(int(r.Width), int(r.BufferWidth)) {
			x := int(r.X) + col
			if x >= bounds.Max.X {
				break
			}
			f.img.SetRGBA(x, y, f.pixel(line[col*bpp:], r.Depth))
		}
	}

	f.draws.Add(1)
	f.lastDraw.Store(time.Now().UnixNano())
}

func bytesPerPixel(depth uint16) int {
	switch depth {
	case 8:
		return 1
	case 15, 16:
		return 2
	case 24:
		return 3
	case 32:
		return 4
	}
	return 0
}

// pixel converts one little-endian source pixel. Caller holds mu.
func (f *Framebuffer) pixel(p []byte, depth uint16) color.RGBA {
	switch depth {
	case 8:
		if f.palette == nil {
			return color.RGBA{R: p[0], G: p[0], B: p[0], A: 0xFF}
		}
		return f.palette[p[0]]
	case 15:
		v := binary.LittleEndian.Uint16(p)
		return color.RGBA{
			R: expand5(uint8(v >> 10 & 0x1F)),
			G: expand5(uint8(v >> 5 & 0x1F)),
			B: expand5(uint8(v & 0x1F)),
			A: 0xFF,
		}
	case 16:
		v := binary.LittleEndian.Uint16(p)
		g := uint8(v >> 5 & 0x3F)
		return color.RGBA{
			R: expand5(uint8(v >> 11 & 0x1F)),
			G: g<<2 | g>>4,
			B: expand5(uint8(v & 0x1F)),
			A: 0xFF,
		}
	default: // 24 and 32 are BGR(X)
		return color.RGBA{R: p[2], G: p[1], B: p[0], A: 0xFF}
	}
}

func expand5(v uint8) uint8 { return v<<3 | v>>2 }

// Image returns a copy of the framebuffer.
func (f *Framebuffer) Image() *image.RGBA {
	f.mu.RLock()
	defer f.mu.RUnlock()
	img := image.NewRGBA(f.img.Bounds())
	copy(img.Pix, f.img.Pix)
	return img
}

// EncodePNG writes the framebuffer as PNG.
func (f *Framebuffer) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, f.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Digest returns the hex BLAKE3 digest of the dimensions and pixels.
func (f *Framebuffer) Digest() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h := blake3.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:], uint32(f.img.Bounds().Dx())) //nolint:gosec // G115: bounded by u16 geometry
	binary.LittleEndian.PutUint32(dims[4:], uint32(f.img.Bounds().Dy())) //nolint:gosec // G115: bounded by u16 geometry
	_, _ = h.Write(dims[:])
	_, _ = h.Write(f.img.Pix)
	return hex.EncodeToString(h.Sum(nil))
}

// Draws returns the number of rectangles drawn so far.
func (f *Framebuffer) Draws() int64 { return f.draws.Load() }

// WaitIdle blocks until at least one rectangle has been drawn and no
// further drawing happened for quiet.
func (f *Framebuffer) WaitIdle(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(max(quiet/4, time.Millisecond))
	defer ticker.Stop()
	for {
		if f.draws.Load() > 0 && time.Since(time.Unix(0, f.lastDraw.Load())) >= quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
