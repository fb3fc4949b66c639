package framing

import (
	"fmt"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// X.224 TPDU codes.
const (
	x224ConnectionRequest = 0xE0
	x224ConnectionConfirm = 0xD0
	x224Disconnect        = 0x80
	x224Data              = 0xF0
	x224EOT               = 0x80
)

// Security protocols requested in the negotiation request.
const (
	ProtocolRDP    uint32 = 0x00
	ProtocolSSL    uint32 = 0x01
	ProtocolHybrid uint32 = 0x02
)

const (
	negTypeRequest  = 0x01
	negTypeResponse = 0x02
	negTypeFailure  = 0x03
)

// DataHeader is the fixed X.224 data TPDU header sent by the client.
var DataHeader = []byte{0x02, x224Data, x224EOT}

// EncodeData wraps an MCS PDU in X.224 data and TPKT headers.
func EncodeData(payload []byte) ([]byte, error) {
	body := make([]byte, 0, len(DataHeader)+len(payload))
	body = append(body, DataHeader...)
	body = append(body, payload...)
	return EncodeTPKT(body)
}

// EncodeConnectionRequest builds the TPKT-framed X.224 connection request
// carrying the routing cookie and a negotiation request for protocols.
//
//nolint:gosec // G115: cookie length bounded by caller-supplied user name
func EncodeConnectionRequest(user string, protocols uint32) ([]byte, error) {
	cookie := "Cookie: mstshash=" + user + "\r\n"
	b := buffer.New(64)
	defer b.Release()

	b.WriteU8(uint8(6 + len(cookie) + 8))
	b.WriteU8(x224ConnectionRequest)
	b.WriteU16BE(0) // dst-ref
	b.WriteU16BE(0) // src-ref
	b.WriteU8(0)    // class 0
	b.WriteBytes([]byte(cookie))
	b.WriteU8(negTypeRequest)
	b.WriteU8(0)
	b.WriteU16LE(8)
	b.WriteU32LE(protocols)
	return EncodeTPKT(b.Bytes())
}

// NegotiationFailure is a server refusal code.
type NegotiationFailure uint32

const (
	SSLRequiredByServer NegotiationFailure = iota + 1
	SSLNotAllowedByServer
	SSLCertNotOnServer
	InconsistentFlags
	HybridRequiredByServer
	SSLWithUserAuthRequiredByServer
)

var failureReasons = [...]string{
	SSLRequiredByServer:             "server requires TLS security",
	SSLNotAllowedByServer:           "server does not allow TLS security",
	SSLCertNotOnServer:              "server has no TLS certificate configured",
	InconsistentFlags:               "server reports inconsistent negotiation flags",
	HybridRequiredByServer:          "server requires network level authentication (CredSSP)",
	SSLWithUserAuthRequiredByServer: "server requires TLS with user authentication",
}

func (f NegotiationFailure) String() string {
	if f > 0 && int(f) < len(failureReasons) {
		return failureReasons[f]
	}
	return fmt.Sprintf("unknown negotiation failure code %d", uint32(f))
}

// Negotiation is the decoded connection confirm.
type Negotiation struct {
	Protocol uint32
	Flags    uint8
}

// ParseConnectionConfirm decodes an X.224 connection confirm positioned at
// the TPDU code. A failure response is returned as a NegotiationFailed error
// carrying the decoded reason.
func ParseConnectionConfirm(b *buffer.Buffer) (Negotiation, error) {
	code, err := b.ReadU8()
	if err != nil {
		return Negotiation{}, err
	}
	if code&0xF0 != x224ConnectionConfirm {
		return Negotiation{}, rdperr.New(rdperr.UnexpectedPDUType, "x224 confirm", "tpdu code 0x%02x", code)
	}
	if err := b.Skip(5); err != nil { // dst-ref, src-ref, class
		return Negotiation{}, err
	}
	if b.Remaining() == 0 {
		return Negotiation{Protocol: ProtocolRDP}, nil
	}

	typ, err := b.ReadU8()
	if err != nil {
		return Negotiation{}, err
	}
	flags, err := b.ReadU8()
	if err != nil {
		return Negotiation{}, err
	}
	if err := b.Skip(2); err != nil { // length, always 8
		return Negotiation{}, err
	}
	value, err := b.ReadU32LE()
	if err != nil {
		return Negotiation{}, err
	}
	if err := b.AssertFullyRead("x224 confirm"); err != nil {
		return Negotiation{}, err
	}

	switch typ {
	case negTypeResponse:
		return Negotiation{Protocol: value, Flags: flags}, nil
	case negTypeFailure:
		return Negotiation{}, &rdperr.Error{
			Code:   rdperr.NegotiationFailed,
			Op:     "x224 confirm",
			Reason: NegotiationFailure(value).String(),
		}
	default:
		return Negotiation{}, rdperr.New(rdperr.UnexpectedPDUType, "x224 confirm", "negotiation type 0x%02x", typ)
	}
}

// X224Decoder strips the X.224 header of a TPKT payload. Connection confirms
// leave on Confirm positioned at the TPDU code; data units leave on Data
// positioned at the MCS PDU.
type X224Decoder struct {
	Confirm *graph.Pad
	Data    *graph.Pad
	graph.Base
}

// NewX224Decoder creates the decoder element.
func NewX224Decoder(id string) *X224Decoder {
	return &X224Decoder{
		Base:    graph.NewBase(id),
		Confirm: graph.NewPad(id, "confirm"),
		Data:    graph.NewPad(id, "data"),
	}
}

func (d *X224Decoder) Pads() []*graph.Pad { return []*graph.Pad{d.Confirm, d.Data} }

func (d *X224Decoder) HandleInput(b *buffer.Buffer) error {
	li, err := b.ReadU8()
	if err != nil {
		b.Release()
		return err
	}
	code, err := b.PeekU8()
	if err != nil {
		b.Release()
		return err
	}

	switch code & 0xF0 {
	case x224ConnectionConfirm:
		return d.Confirm.Push(b)
	case x224Data:
		if err := b.Skip(int(li)); err != nil {
			b.Release()
			return err
		}
		return d.Data.Push(b)
	case x224Disconnect:
		b.Release()
		return rdperr.New(rdperr.Disconnected, "x224", "disconnect request")
	default:
		b.Release()
		return rdperr.New(rdperr.UnexpectedPDUType, "x224", "tpdu code 0x%02x", code)
	}
}
