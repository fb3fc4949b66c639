package mcs

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

const (
	berTagBoolean     = 0x01
	berTagInteger     = 0x02
	berTagOctetString = 0x04
	berTagEnumerated  = 0x0A
	berTagSequence    = 0x30
)

// berLength encodes a definite BER length.
//
//nolint:gosec // G115: n bounded by the TPKT size limit
func berLength(n int) []byte {
	if n > 0x7F {
		return []byte{0x82, byte(n >> 8), byte(n)}
	}
	return []byte{byte(n)}
}

func berTLV(tag []byte, value []byte) []byte {
	out := make([]byte, 0, len(tag)+3+len(value))
	out = append(out, tag...)
	out = append(out, berLength(len(value))...)
	return append(out, value...)
}

// berInteger uses the shortest of one to four bytes, without sign padding
// beyond what keeps the value positive.
//
//nolint:gosec // G115: explicit byte extraction
func berInteger(v uint32) []byte {
	switch {
	case v < 0x80:
		return []byte{berTagInteger, 1, byte(v)}
	case v < 0x8000:
		return []byte{berTagInteger, 2, byte(v >> 8), byte(v)}
	case v < 0x800000:
		return []byte{berTagInteger, 3, byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{berTagInteger, 4, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// readBERLength consumes a BER length.
func readBERLength(b *buffer.Buffer) (int, error) {
	first, err := b.ReadU8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return int(first), nil
	}
	n := int(first & 0x7F)
	if n == 0 || n > 2 {
		return 0, rdperr.New(rdperr.UnexpectedPDUType, "ber", "length of %d bytes", n)
	}
	p, err := b.Next(n)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return int(p[0]), nil
	}
	return int(binary.BigEndian.Uint16(p)), nil
}

// perLength is the two-byte PER length form with the top bit set.
//
//nolint:gosec // G115: n bounded by the TPKT size limit
func perLength(n int) []byte {
	return []byte{0x80 | byte(n>>8), byte(n)}
}

// readPERLength consumes a one- or two-byte PER length.
func readPERLength(b *buffer.Buffer) (int, error) {
	first, err := b.ReadU8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return int(first), nil
	}
	second, err := b.ReadU8()
	if err != nil {
		return 0, err
	}
	return int(first&0x7F)<<8 | int(second), nil
}

// UTF16LE encodes s as little-endian UTF-16 without a terminator.
func UTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}
