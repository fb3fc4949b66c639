// Package rle decompresses interleaved run-length encoded bitmaps, the
// compressed form of bitmap update rectangles at 8, 15, 16 and 24 bits per
// pixel.
//
// Output rows are in stream order, which is bottom-up on screen: row 0 of
// the result is the bottom scanline of the rectangle. Each row is the full
// buffer width supplied by the server.
package rle

import (
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Opcodes after normalization.
const (
	opFill        = 0x0
	opMix         = 0x1
	opFillOrMix   = 0x2
	opColor       = 0x3
	opCopy        = 0x4
	opSetMixMix   = 0x6
	opSetMixFoM   = 0x7
	opBicolor     = 0x8
	opSpecialFoM1 = 0x9
	opSpecialFoM2 = 0xA
	opWhite       = 0xD
	opBlack       = 0xE
)

// BytesPerPixel returns the pixel size for a supported depth.
func BytesPerPixel(bpp int) (int, error) {
	switch bpp {
	case 8:
		return 1, nil
	case 15, 16:
		return 2, nil
	case 24:
		return 3, nil
	default:
		return 0, rdperr.New(rdperr.Unsupported, "rle", "%d bits per pixel", bpp)
	}
}

type decoder struct {
	in   []byte
	out  []byte
	pos  int
	bpp  int
	ones uint32
}

func (d *decoder) u8() (uint8, error) {
	if d.pos >= len(d.in) {
		return 0, rdperr.New(rdperr.CodecOverrun, "rle", "input exhausted at byte %d", d.pos)
	}
	v := d.in[d.pos]
	d.pos++
	return v, nil
}

// pixel reads one little-endian pixel value from the input.
func (d *decoder) pixel() (uint32, error) {
	var v uint32
	for i := range d.bpp {
		c, err := d.u8()
		if err != nil {
			return 0, err
		}
		v |= uint32(c) << (8 * i)
	}
	return v, nil
}

func (d *decoder) get(off int) uint32 {
	var v uint32
	for i := range d.bpp {
		v |= uint32(d.out[off+i]) << (8 * i)
	}
	return v
}

//nolint:gosec // G115: explicit byte extraction
func (d *decoder) put(off int, v uint32) {
	for i := range d.bpp {
		d.out[off+i] = byte(v >> (8 * i))
	}
}

// Decompress expands src into width*height pixels of the given depth.
// A stream that would write past the last row or read past the end of src
// fails with CodecOverrun; nothing outside the result is ever written.
//
//nolint:gocyclo,revive // one switch per opcode family mirrors the wire format
func Decompress(src []byte, width, height, bpp int) ([]byte, error) {
	bytesPP, err := BytesPerPixel(bpp)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, rdperr.New(rdperr.CodecOverrun, "rle", "empty target %dx%d", width, height)
	}

	d := &decoder{
		in:   src,
		out:  make([]byte, width*height*bytesPP),
		bpp:  bytesPP,
		ones: uint32(1)<<(8*bytesPP) - 1,
	}
	stride := width * bytesPP

	var (
		x, row             = width, -1
		line, prev         = -1, -1 // byte offsets of current and previous rows
		lastOpcode         = -1
		insertMix, bicolor bool
		wasFirstLine       bool
		color1, color2     uint32
		mix                = d.ones
		mask, mixMask      uint8
	)

	for d.pos < len(d.in) {
		code, _ := d.u8() //nolint:errcheck // loop condition guarantees a byte
		var opcode, count, offset int
		fomMask := uint8(0)

		switch code >> 4 {
		case 0xC, 0xD, 0xE:
			opcode = int(code>>4) - 6
			count = int(code & 0x0F)
			offset = 16
		case 0xF:
			opcode = int(code & 0x0F)
			switch {
			case opcode < 9:
				lo, err := d.u8()
				if err != nil {
					return nil, err
				}
				hi, err := d.u8()
				if err != nil {
					return nil, err
				}
				count = int(lo) | int(hi)<<8
			case opcode < 0xB:
				count = 8
			default:
				count = 1
			}
		default:
			opcode = int(code >> 5)
			count = int(code & 0x1F)
			offset = 32
		}

		if offset != 0 {
			fillOrMix := opcode == opFillOrMix || opcode == opSetMixFoM
			switch {
			case count == 0:
				extra, err := d.u8()
				if err != nil {
					return nil, err
				}
				if fillOrMix {
					count = int(extra) + 1
				} else {
					count = int(extra) + offset
				}
			case fillOrMix:
				count <<= 3
			}
		}

		// An order that starts on the first scanline keeps first-line
		// semantics for its whole run, even after wrapping.
		firstLine := row < 0 || (row == 0 && x < width)

		switch opcode {
		case opFill:
			if lastOpcode == opFill && (firstLine || !wasFirstLine) {
				insertMix = true
			}
		case opBicolor:
			if color1, err = d.pixel(); err != nil {
				return nil, err
			}
			if color2, err = d.pixel(); err != nil {
				return nil, err
			}
		case opColor:
			if color2, err = d.pixel(); err != nil {
				return nil, err
			}
		case opSetMixMix, opSetMixFoM:
			if mix, err = d.pixel(); err != nil {
				return nil, err
			}
			opcode -= 5
		case opSpecialFoM1:
			mask, fomMask = 0x03, 0x03
			opcode = opFillOrMix
		case opSpecialFoM2:
			mask, fomMask = 0x05, 0x05
			opcode = opFillOrMix
		}
		lastOpcode = opcode
		wasFirstLine = firstLine
		mixMask = 0

		for count > 0 {
			if x >= width {
				if row+1 >= height {
					return nil, rdperr.New(rdperr.CodecOverrun, "rle", "output overrun past %d rows", height)
				}
				row++
				x = 0
				prev = line
				line = row * stride
			}

			above := func() uint32 {
				if firstLine {
					return 0
				}
				return d.get(prev + x*bytesPP)
			}
			at := line + x*bytesPP

			switch opcode {
			case opFill:
				if insertMix {
					d.put(at, above()^mix)
					insertMix = false
				} else {
					d.put(at, above())
				}
			case opMix:
				d.put(at, above()^mix)
			case opFillOrMix:
				mixMask <<= 1
				if mixMask == 0 {
					if fomMask != 0 {
						mask = fomMask
					} else if mask, err = d.u8(); err != nil {
						return nil, err
					}
					mixMask = 1
				}
				if mask&mixMask != 0 {
					d.put(at, above()^mix)
				} else {
					d.put(at, above())
				}
			case opColor:
				d.put(at, color2)
			case opCopy:
				v, err := d.pixel()
				if err != nil {
					return nil, err
				}
				d.put(at, v)
			case opBicolor:
				if bicolor {
					d.put(at, color2)
					bicolor = false
				} else {
					d.put(at, color1)
					bicolor = true
					count++
				}
			case opWhite:
				d.put(at, d.ones)
			case opBlack:
				d.put(at, 0)
			default:
				return nil, rdperr.New(rdperr.CodecOverrun, "rle", "invalid opcode 0x%x", opcode)
			}
			count--
			x++
		}
	}
	return d.out, nil
}
