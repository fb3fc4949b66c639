package mcs

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
)

// Domain PDU types, the top six bits of the first byte.
const (
	typeErectDomainRequest     = 1
	typeDisconnectUltimatum    = 8
	typeAttachUserRequest      = 10
	typeAttachUserConfirm      = 11
	typeChannelJoinRequest     = 14
	typeChannelJoinConfirm     = 15
	typeSendDataRequest        = 25
	typeSendDataIndication     = 26
	dataPriorityAndSegmentHigh = 0x70
)

// EncodeErectDomainRequest returns the erect-domain request with zero
// subHeight and subInterval.
func EncodeErectDomainRequest() []byte {
	return []byte{typeErectDomainRequest << 2, 0x01, 0x00, 0x01, 0x00}
}

// EncodeAttachUserRequest returns the attach-user request.
func EncodeAttachUserRequest() []byte {
	return []byte{typeAttachUserRequest << 2}
}

// EncodeChannelJoinRequest asks to join channel as user.
//
//nolint:gosec // G115: explicit byte extraction
func EncodeChannelJoinRequest(user, channel uint16) []byte {
	initiator := user - session.UserChannelBase
	return []byte{
		typeChannelJoinRequest << 2,
		byte(initiator >> 8), byte(initiator),
		byte(channel >> 8), byte(channel),
	}
}

// EncodeSendDataRequest wraps data for channel.
//
//nolint:gosec // G115: explicit byte extraction
func EncodeSendDataRequest(user, channel uint16, data []byte) []byte {
	initiator := user - session.UserChannelBase
	out := make([]byte, 0, 8+len(data))
	out = append(out,
		typeSendDataRequest<<2,
		byte(initiator>>8), byte(initiator),
		byte(channel>>8), byte(channel),
		dataPriorityAndSegmentHigh,
	)
	out = append(out, perLength(len(data))...)
	return append(out, data...)
}

// AttachUserConfirm is the decoded attach-user confirm.
type AttachUserConfirm struct {
	UserID uint16
	Result uint8
}

// ParseAttachUserConfirm reads a confirm positioned at its first byte.
// The result field is returned but not judged.
func ParseAttachUserConfirm(b *buffer.Buffer) (AttachUserConfirm, error) {
	opcode, err := b.ReadU8()
	if err != nil {
		return AttachUserConfirm{}, err
	}
	if opcode>>2 != typeAttachUserConfirm {
		return AttachUserConfirm{}, rdperr.New(rdperr.UnexpectedPDUType, "attach user confirm", "domain pdu %d", opcode>>2)
	}
	result, err := b.ReadU8()
	if err != nil {
		return AttachUserConfirm{}, err
	}
	c := AttachUserConfirm{Result: result}
	if opcode&0x02 != 0 {
		initiator, err := b.ReadU16BE()
		if err != nil {
			return AttachUserConfirm{}, err
		}
		c.UserID = initiator + session.UserChannelBase
	}
	return c, b.AssertFullyRead("attach user confirm")
}

// ChannelJoinConfirm is the decoded channel-join confirm.
type ChannelJoinConfirm struct {
	Initiator uint16
	Requested uint16
	ChannelID uint16
	Result    uint8
}

// ParseChannelJoinConfirm reads a confirm positioned at its first byte.
func ParseChannelJoinConfirm(b *buffer.Buffer) (ChannelJoinConfirm, error) {
	opcode, err := b.ReadU8()
	if err != nil {
		return ChannelJoinConfirm{}, err
	}
	if opcode>>2 != typeChannelJoinConfirm {
		return ChannelJoinConfirm{}, rdperr.New(rdperr.UnexpectedPDUType, "channel join confirm", "domain pdu %d", opcode>>2)
	}
	var c ChannelJoinConfirm
	if c.Result, err = b.ReadU8(); err != nil {
		return c, err
	}
	if c.Initiator, err = b.ReadU16BE(); err != nil {
		return c, err
	}
	if c.Requested, err = b.ReadU16BE(); err != nil {
		return c, err
	}
	c.ChannelID = c.Requested
	if opcode&0x02 != 0 {
		if c.ChannelID, err = b.ReadU16BE(); err != nil {
			return c, err
		}
	}
	return c, b.AssertFullyRead("channel join confirm")
}

// DataHeader is the header of a send-data indication.
type DataHeader struct {
	Initiator uint16
	ChannelID uint16
	Length    int
}

func readDataHeader(b *buffer.Buffer) (DataHeader, error) {
	var h DataHeader
	var err error
	if h.Initiator, err = b.ReadU16BE(); err != nil {
		return h, err
	}
	if h.ChannelID, err = b.ReadU16BE(); err != nil {
		return h, err
	}
	if err = b.Skip(1); err != nil { // dataPriority + segmentation
		return h, err
	}
	if h.Length, err = readPERLength(b); err != nil {
		return h, err
	}
	if h.Length != b.Remaining() {
		return h, rdperr.New(rdperr.TrailingData, "send data indication", "declared %d bytes, have %d", h.Length, b.Remaining())
	}
	return h, nil
}
