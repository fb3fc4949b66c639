// Package mcs implements the T.125 multipoint communication layer used by
// RDP: the BER-encoded connect exchange with its GCC conference payload, the
// PER-encoded domain PDUs, and an element that demultiplexes incoming
// domain PDUs by type and channel.
package mcs

import (
	"bytes"
	"encoding/binary"
	"log/slog"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Client data block types.
const (
	csCore     = 0xC001
	csSecurity = 0xC002
	csNet      = 0xC003

	scCore     = 0x0C01
	scSecurity = 0x0C02
	scNet      = 0x0C03
)

const (
	coreDataLength = 216
	rdpVersion5    = 0x00080004
	clientBuild    = 2600
	// RedirectChannelName is the static virtual channel requested for device
	// redirection.
	RedirectChannelName = "rdpdr"
	redirectOptions     = 0x80800000 // INITIALIZED | COMPRESS_RDP
)

// ConnectParams are the client-side values in the connect-initial PDU.
type ConnectParams struct {
	ClientName       string
	KeyboardLayout   uint32
	SelectedProtocol uint32
	Width            uint16
	Height           uint16
	Depth            uint16
}

type domainParams [8]uint32

var (
	targetParams = domainParams{34, 2, 0, 1, 0, 1, 0xFFFF, 2}
	minParams    = domainParams{1, 1, 1, 1, 0, 1, 0x420, 2}
	maxParams    = domainParams{0xFFFF, 0xFC17, 0xFFFF, 1, 0, 1, 0xFFFF, 2}
)

func (p domainParams) encode() []byte {
	var body []byte
	for _, v := range p {
		body = append(body, berInteger(v)...)
	}
	return berTLV([]byte{berTagSequence}, body)
}

// highColorDepth maps a session depth to the core data highColorDepth field.
func highColorDepth(depth uint16) uint16 {
	switch depth {
	case 8:
		return 0x0008
	case 15:
		return 0x000F
	case 24:
		return 0x0018
	default:
		return 0x0010
	}
}

// ClientCoreData encodes the CS_CORE block.
func ClientCoreData(p ConnectParams) []byte {
	b := buffer.New(coreDataLength)
	defer b.Release()

	b.WriteU16LE(csCore)
	b.WriteU16LE(coreDataLength)
	b.WriteU32LE(rdpVersion5)
	b.WriteU16LE(p.Width)
	b.WriteU16LE(p.Height)
	b.WriteU16LE(0xCA01) // colorDepth: RNS_UD_COLOR_8BPP, superseded below
	b.WriteU16LE(0xAA03) // SASSequence
	b.WriteU32LE(p.KeyboardLayout)
	b.WriteU32LE(clientBuild)

	name := UTF16LE(p.ClientName)
	if len(name) > 30 {
		name = name[:30]
	}
	b.WriteBytes(name)
	b.WriteZeros(32 - len(name))

	b.WriteU32LE(4)  // keyboardType: IBM enhanced
	b.WriteU32LE(0)  // keyboardSubType
	b.WriteU32LE(12) // keyboardFunctionKey
	b.WriteZeros(64) // imeFileName
	b.WriteU16LE(0xCA01)
	b.WriteU16LE(1) // clientProductId
	b.WriteU32LE(0) // serialNumber
	b.WriteU16LE(highColorDepth(p.Depth))
	b.WriteU16LE(0x0007) // supportedColorDepths: 24, 16, 15
	b.WriteU16LE(0x0001) // earlyCapabilityFlags: RNS_UD_CS_SUPPORT_ERRINFO_PDU
	b.WriteZeros(64)     // clientDigProductId
	b.WriteU8(0)         // connectionType
	b.WriteU8(0)         // pad1octet
	b.WriteU32LE(p.SelectedProtocol)

	return bytes.Clone(b.Bytes())
}

// ClientSecurityData encodes CS_SECURITY. TLS carries confidentiality, so no
// RDP encryption methods are offered.
func ClientSecurityData() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b[0:], csSecurity)
	binary.LittleEndian.PutUint16(b[2:], 12)
	return b
}

// ClientNetworkData encodes CS_NET requesting the given static channels.
//
//nolint:gosec // G115: channel count is a small constant
func ClientNetworkData(channels ...string) []byte {
	b := make([]byte, 8+12*len(channels))
	binary.LittleEndian.PutUint16(b[0:], csNet)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(b)))
	binary.LittleEndian.PutUint32(b[4:], uint32(len(channels)))
	for i, name := range channels {
		off := 8 + 12*i
		copy(b[off:off+8], name)
		binary.LittleEndian.PutUint32(b[off+8:], redirectOptions)
	}
	return b
}

// gccConferenceCreateRequest wraps client data blocks in the PER-encoded
// T.124 conference create request.
func gccConferenceCreateRequest(userData []byte) []byte {
	var out []byte
	out = append(out, 0x00, 0x05, 0x00, 0x14, 0x7C, 0x00, 0x01) // T.124 object identifier
	out = append(out, perLength(len(userData)+14)...)
	out = append(out, 0x00, 0x08, 0x00, 0x10, 0x00, 0x01, 0xC0, 0x00, 'D', 'u', 'c', 'a')
	out = append(out, perLength(len(userData))...)
	return append(out, userData...)
}

// EncodeConnectInitial builds the MCS connect-initial PDU.
func EncodeConnectInitial(p ConnectParams) []byte {
	var userData []byte
	userData = append(userData, ClientCoreData(p)...)
	userData = append(userData, ClientSecurityData()...)
	userData = append(userData, ClientNetworkData(RedirectChannelName)...)
	gcc := gccConferenceCreateRequest(userData)

	var body []byte
	body = append(body, berOctetString([]byte{0x01})...) // callingDomainSelector
	body = append(body, berOctetString([]byte{0x01})...) // calledDomainSelector
	body = append(body, berTagBoolean, 0x01, 0xFF)       // upwardFlag
	body = append(body, targetParams.encode()...)
	body = append(body, minParams.encode()...)
	body = append(body, maxParams.encode()...)
	body = append(body, berOctetString(gcc)...)

	return berTLV([]byte{0x7F, 0x65}, body)
}

func berOctetString(v []byte) []byte {
	return berTLV([]byte{berTagOctetString}, v)
}

// ConnectResponse is what the client takes from the server's connect
// response: the I/O channel and any static channel ids.
type ConnectResponse struct {
	Channels  []uint16
	IOChannel uint16
	Result    uint8
}

// ParseConnectResponse reads the BER connect-response positioned at its
// application tag. The server data blocks are scanned on a best-effort
// basis; when they cannot be parsed the zero ConnectResponse is returned and
// callers keep their default channel ids.
func ParseConnectResponse(b *buffer.Buffer) (ConnectResponse, error) {
	tag, err := b.Next(2)
	if err != nil {
		return ConnectResponse{}, err
	}
	if tag[0] != 0x7F || tag[1] != 0x66 {
		return ConnectResponse{}, rdperr.New(rdperr.UnexpectedPDUType, "mcs connect response", "tag 0x%02x%02x", tag[0], tag[1])
	}
	if _, err := readBERLength(b); err != nil {
		return ConnectResponse{}, err
	}

	var resp ConnectResponse
	if p, err := b.Next(3); err == nil && p[0] == berTagEnumerated {
		resp.Result = p[2]
	}

	rest := b.Unread()
	idx := bytes.Index(rest, []byte("McDn"))
	if idx < 0 {
		slog.Debug("connect response without server data blocks")
		return resp, b.Skip(b.Remaining())
	}
	if err := b.Skip(idx + 4); err != nil {
		return resp, err
	}
	if _, err := readPERLength(b); err != nil {
		return resp, err
	}

	for b.Remaining() >= 4 {
		typ, _ := b.ReadU16LE()    //nolint:errcheck // length checked by loop condition
		length, _ := b.ReadU16LE() //nolint:errcheck // length checked by loop condition
		if length < 4 || int(length)-4 > b.Remaining() {
			slog.Debug("malformed server data block", "type", typ, "length", length)
			break
		}
		block, err := b.ReadBytes(int(length) - 4)
		if err != nil {
			return resp, err
		}
		if typ == scNet {
			parseServerNetwork(block, &resp)
		}
		block.Release()
	}
	return resp, b.Skip(b.Remaining())
}

func parseServerNetwork(b *buffer.Buffer, resp *ConnectResponse) {
	io, err := b.ReadU16LE()
	if err != nil {
		return
	}
	count, err := b.ReadU16LE()
	if err != nil {
		return
	}
	resp.IOChannel = io
	for range count {
		id, err := b.ReadU16LE()
		if err != nil {
			return
		}
		resp.Channels = append(resp.Channels, id)
	}
}
