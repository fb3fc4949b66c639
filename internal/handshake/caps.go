package handshake

import (
	"github.com/bamsammich/rdpc/internal/buffer"
)

// Capability set types.
const (
	CapGeneral        = 0x0001
	CapBitmap         = 0x0002
	CapOrder          = 0x0003
	CapBitmapCache    = 0x0004
	CapControl        = 0x0005
	CapActivation     = 0x0007
	CapPointer        = 0x0008
	CapShare          = 0x0009
	CapColorCache     = 0x000A
	CapSound          = 0x000C
	CapInput          = 0x000D
	CapFont           = 0x000E
	CapBrush          = 0x000F
	CapGlyphCache     = 0x0010
	CapOffscreenCache = 0x0011
)

const (
	extraFlags = 0x0001 | // FASTPATH_OUTPUT_SUPPORTED
		0x0004 | // LONG_CREDENTIALS_SUPPORTED
		0x0008 | // AUTORECONNECT_SUPPORTED
		0x0400 // NO_BITMAP_COMPRESSION_HDR
	orderFlags = 0x0002 | // NEGOTIATEORDERSUPPORT
		0x0008 | // ZEROBOUNDSDELTASSUPPORT
		0x0020 // COLORINDEXSUPPORT
	inputFlags = 0x0001 | // INPUT_FLAG_SCANCODES
		0x0008 | // INPUT_FLAG_FASTPATH_INPUT
		0x0020 // INPUT_FLAG_FASTPATH_INPUT2

	keyboardTypeIBMEnhanced = 4
	functionKeys            = 12
	desktopSaveSize         = 480 * 480
	fontSupportList         = 0x0001
	controlPriorityNever    = 0x0002

	sourceDescriptor = "MSTSC\x00"
	// ServerChannelID is the MCS channel of the server itself.
	ServerChannelID = 0x03EA
)

var glyphCache = [10][2]uint16{
	{254, 4}, {254, 4}, {254, 8}, {254, 8}, {254, 16},
	{254, 32}, {254, 64}, {254, 128}, {254, 256}, {64, 2048},
}

// capability is one {type, length, fields} record.
type capability struct {
	write func(b *buffer.Buffer)
	typ   uint16
}

// ScreenCaps are the client values that vary per session.
type ScreenCaps struct {
	Width          uint16
	Height         uint16
	Depth          uint16
	KeyboardLayout uint32
}

// capabilities returns the confirm-active catalogue in wire order.
func capabilities(s ScreenCaps) []capability {
	return []capability{
		{typ: CapGeneral, write: func(b *buffer.Buffer) {
			b.WriteU16LE(1)      // OSMAJORTYPE_WINDOWS
			b.WriteU16LE(3)      // OSMINORTYPE_WINDOWS_NT
			b.WriteU16LE(0x0200) // protocol version
			b.WriteU16LE(0)      // pad
			b.WriteU16LE(0)      // compression types
			b.WriteU16LE(extraFlags)
			b.WriteU16LE(0) // update capability
			b.WriteU16LE(0) // remote unshare
			b.WriteU16LE(0) // compression level
			b.WriteU8(0)    // refresh rect
			b.WriteU8(0)    // suppress output
		}},
		{typ: CapBitmap, write: func(b *buffer.Buffer) {
			b.WriteU16LE(s.Depth)
			b.WriteU16LE(1) // receive 1bpp
			b.WriteU16LE(1) // receive 4bpp
			b.WriteU16LE(1) // receive 8bpp
			b.WriteU16LE(s.Width)
			b.WriteU16LE(s.Height)
			b.WriteU16LE(0) // pad
			b.WriteU16LE(0) // desktop resize
			b.WriteU16LE(1) // bitmap compression
			b.WriteU8(0)    // high color flags
			b.WriteU8(0)    // drawing flags
			b.WriteU16LE(1) // multiple rectangles
			b.WriteU16LE(0) // pad
		}},
		{typ: CapOrder, write: func(b *buffer.Buffer) {
			b.WriteZeros(16) // terminal descriptor
			b.WriteU32LE(0)
			b.WriteU16LE(1)  // desktop save x granularity
			b.WriteU16LE(20) // desktop save y granularity
			b.WriteU16LE(0)
			b.WriteU16LE(1) // ORD_LEVEL_1_ORDERS
			b.WriteU16LE(0) // number of fonts
			b.WriteU16LE(orderFlags)
			b.WriteZeros(32) // no drawing orders supported
			b.WriteU16LE(0)  // text flags
			b.WriteU16LE(0)  // order support ex
			b.WriteU32LE(0)
			b.WriteU32LE(desktopSaveSize)
			b.WriteU16LE(0)
			b.WriteU16LE(0)
			b.WriteU16LE(0) // ANSI code page
			b.WriteU16LE(0)
		}},
		{typ: CapBitmapCache, write: func(b *buffer.Buffer) {
			b.WriteZeros(24)
			b.WriteU16LE(120)
			b.WriteU16LE(768)
			b.WriteU16LE(120)
			b.WriteU16LE(3072)
			b.WriteU16LE(336)
			b.WriteU16LE(12288)
		}},
		{typ: CapColorCache, write: func(b *buffer.Buffer) {
			b.WriteU16LE(6) // color table cache size
			b.WriteU16LE(0)
		}},
		{typ: CapActivation, write: func(b *buffer.Buffer) {
			b.WriteZeros(8) // help key, help index key, help extended key, window manager key
		}},
		{typ: CapControl, write: func(b *buffer.Buffer) {
			b.WriteU16LE(0) // control flags
			b.WriteU16LE(0) // remote detach
			b.WriteU16LE(controlPriorityNever)
			b.WriteU16LE(controlPriorityNever)
		}},
		{typ: CapPointer, write: func(b *buffer.Buffer) {
			b.WriteU16LE(1)  // color pointers
			b.WriteU16LE(20) // color pointer cache
			b.WriteU16LE(21) // pointer cache
		}},
		{typ: CapShare, write: func(b *buffer.Buffer) {
			b.WriteU16LE(0) // node id
			b.WriteU16LE(0)
		}},
		{typ: CapInput, write: func(b *buffer.Buffer) {
			b.WriteU16LE(inputFlags)
			b.WriteU16LE(0)
			b.WriteU32LE(s.KeyboardLayout)
			b.WriteU32LE(keyboardTypeIBMEnhanced)
			b.WriteU32LE(0) // subtype
			b.WriteU32LE(functionKeys)
			b.WriteZeros(64) // IME file name
		}},
		{typ: CapBrush, write: func(b *buffer.Buffer) {
			b.WriteU32LE(0) // BRUSH_DEFAULT
		}},
		{typ: CapSound, write: func(b *buffer.Buffer) {
			b.WriteU16LE(0) // no beeps
			b.WriteU16LE(0)
		}},
		{typ: CapFont, write: func(b *buffer.Buffer) {
			b.WriteU16LE(fontSupportList)
			b.WriteU16LE(0)
		}},
		{typ: CapOffscreenCache, write: func(b *buffer.Buffer) {
			b.WriteU32LE(0) // support level
			b.WriteU16LE(0) // cache size
			b.WriteU16LE(0) // cache entries
		}},
		{typ: CapGlyphCache, write: func(b *buffer.Buffer) {
			for _, g := range glyphCache {
				b.WriteU16LE(g[0])
				b.WriteU16LE(g[1])
			}
			b.WriteU32LE(0x01000100) // fragment cache: 256 entries of 256 bytes
			b.WriteU16LE(0)          // GLYPH_SUPPORT_NONE
			b.WriteU16LE(0)
		}},
	}
}

// encodeCapabilities writes every capability set with its header.
//
//nolint:gosec // G115: capability sets are far below 64 KiB
func encodeCapabilities(s ScreenCaps) ([]byte, int) {
	caps := capabilities(s)
	b := buffer.New(512)
	defer b.Release()
	for _, c := range caps {
		body := buffer.New(128)
		c.write(body)
		b.WriteU16LE(c.typ)
		b.WriteU16LE(uint16(body.Len() + 4))
		b.WriteBytes(body.Bytes())
		body.Release()
	}
	return append([]byte(nil), b.Bytes()...), len(caps)
}

// EncodeConfirmActive returns the share-control confirm-active PDU.
//
//nolint:gosec // G115: PDU is far below 64 KiB
func EncodeConfirmActive(shareID uint32, userChannel uint16, s ScreenCaps) []byte {
	caps, n := encodeCapabilities(s)

	b := buffer.New(512)
	defer b.Release()
	b.WriteU32LE(shareID)
	b.WriteU16LE(ServerChannelID) // originator
	b.WriteU16LE(uint16(len(sourceDescriptor)))
	b.WriteU16LE(uint16(len(caps) + 4))
	b.WriteBytes([]byte(sourceDescriptor))
	b.WriteU16LE(uint16(n))
	b.WriteU16LE(0)
	b.WriteBytes(caps)
	return shareControl(pduConfirmActive, userChannel, b.Bytes())
}
