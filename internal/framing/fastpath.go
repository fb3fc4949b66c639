package framing

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

const (
	fastPathActionMask = 0x03
	// FastPathActionFastPath identifies a fast-path PDU in the low two bits
	// of the first byte; TPKT PDUs start with TPKTVersion instead.
	FastPathActionFastPath = 0x00

	fastPathOutputSecureChecksum = 0x1
	fastPathOutputEncrypted      = 0x2

	// MaxFastPathSize is the largest length the 15-bit size field allows.
	MaxFastPathSize = 0x7FFF
	maxInputEvents  = 0xFF
)

// IsFastPath reports whether the first byte of a PDU starts a fast-path PDU.
func IsFastPath(first byte) bool {
	return first != TPKTVersion && first&fastPathActionMask == FastPathActionFastPath
}

// FastPathOutputHeader is the decoded first bytes of a server fast-path PDU.
type FastPathOutputHeader struct {
	Length int // including the header itself
	Flags  uint8
}

// PeekFastPathLength returns the total PDU length declared at the start of
// p and how many header bytes carry it, or ok=false if p is too short.
func PeekFastPathLength(p []byte) (total, headerLen int, ok bool) {
	if len(p) < 2 {
		return 0, 0, false
	}
	if p[1]&0x80 == 0 {
		return int(p[1]), 2, true
	}
	if len(p) < 3 {
		return 0, 0, false
	}
	return int(p[1]&0x7F)<<8 | int(p[2]), 3, true
}

// ReadFastPathOutputHeader consumes the fast-path output header.
// Encrypted PDUs are refused: the client only negotiates TLS.
func ReadFastPathOutputHeader(b *buffer.Buffer) (FastPathOutputHeader, error) {
	first, err := b.ReadU8()
	if err != nil {
		return FastPathOutputHeader{}, err
	}
	if first&fastPathActionMask != FastPathActionFastPath {
		return FastPathOutputHeader{}, rdperr.New(rdperr.UnexpectedPDUType, "fastpath", "action %d", first&fastPathActionMask)
	}
	flags := first >> 6
	if flags&fastPathOutputEncrypted != 0 {
		return FastPathOutputHeader{}, rdperr.New(rdperr.Unsupported, "fastpath", "encrypted fast-path output")
	}

	l1, err := b.ReadU8()
	if err != nil {
		return FastPathOutputHeader{}, err
	}
	length := int(l1)
	if l1&0x80 != 0 {
		l2, err := b.ReadU8()
		if err != nil {
			return FastPathOutputHeader{}, err
		}
		length = int(l1&0x7F)<<8 | int(l2)
	}
	if flags&fastPathOutputSecureChecksum != 0 {
		if err := b.Skip(8); err != nil { // data signature
			return FastPathOutputHeader{}, err
		}
	}
	return FastPathOutputHeader{Length: length, Flags: flags}, nil
}

// EncodeFastPathInput wraps encoded input events in a fast-path input PDU.
// Up to 15 events are counted in the header byte; more use the optional
// numEvents byte.
//
//nolint:gosec // G115: sizes bounded by MaxFastPathSize and maxInputEvents
func EncodeFastPathInput(events ...[]byte) ([]byte, error) {
	if len(events) == 0 || len(events) > maxInputEvents {
		return nil, rdperr.New(rdperr.Unsupported, "fastpath input", "%d events", len(events))
	}
	body := 0
	for _, ev := range events {
		body += len(ev)
	}

	header := uint8(FastPathActionFastPath)
	extra := 0
	if len(events) <= 15 {
		header |= uint8(len(events)) << 2
	} else {
		extra = 1
	}

	total := 2 + extra + body
	if total > 0x7F {
		total++
	}
	if total > MaxFastPathSize {
		return nil, rdperr.New(rdperr.Unsupported, "fastpath input", "pdu of %d bytes", total)
	}

	out := make([]byte, 0, total)
	out = append(out, header)
	if total > 0x7F {
		out = append(out, 0x80|uint8(total>>8), uint8(total))
	} else {
		out = append(out, uint8(total))
	}
	if extra == 1 {
		out = append(out, uint8(len(events)))
	}
	for _, ev := range events {
		out = append(out, ev...)
	}
	return out, nil
}
