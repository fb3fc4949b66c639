// Package framing encodes and decodes the transport envelopes of an RDP
// connection: the TPKT stream header, X.224 data units, and the compact
// fast-path headers, plus the reassembler that turns an arbitrary stream of
// reads into whole PDUs.
package framing

import (
	"encoding/binary"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

const (
	// TPKTVersion is the first byte of every slow-path PDU.
	TPKTVersion = 3
	// TPKTHeaderSize is the fixed TPKT header length.
	TPKTHeaderSize = 4
	// MaxTPKTSize is the largest length a TPKT header can carry.
	MaxTPKTSize = 0xFFFF
)

// EncodeTPKT prefixes payload with a TPKT header.
//
//nolint:gosec // G115: length checked against MaxTPKTSize
func EncodeTPKT(payload []byte) ([]byte, error) {
	total := TPKTHeaderSize + len(payload)
	if total > MaxTPKTSize {
		return nil, rdperr.New(rdperr.Unsupported, "tpkt", "pdu of %d bytes exceeds %d", total, MaxTPKTSize)
	}
	out := make([]byte, total)
	out[0] = TPKTVersion
	out[1] = 0
	binary.BigEndian.PutUint16(out[2:4], uint16(total))
	copy(out[TPKTHeaderSize:], payload)
	return out, nil
}

// ReadTPKTHeader consumes a TPKT header and returns the payload length.
func ReadTPKTHeader(b *buffer.Buffer) (int, error) {
	version, err := b.ReadU8()
	if err != nil {
		return 0, err
	}
	if version != TPKTVersion {
		return 0, rdperr.New(rdperr.UnexpectedPDUType, "tpkt", "version 0x%02x", version)
	}
	if err := b.Skip(1); err != nil {
		return 0, err
	}
	total, err := b.ReadU16BE()
	if err != nil {
		return 0, err
	}
	if total < TPKTHeaderSize {
		return 0, rdperr.New(rdperr.UnexpectedPDUType, "tpkt", "length %d shorter than header", total)
	}
	return int(total) - TPKTHeaderSize, nil
}
