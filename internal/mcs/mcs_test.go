package mcs_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/mcs"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
)

var params = mcs.ConnectParams{
	ClientName:       "rdpc",
	KeyboardLayout:   0x409,
	SelectedProtocol: 1,
	Width:            1024,
	Height:           768,
	Depth:            16,
}

func TestClientCoreData(t *testing.T) {
	t.Parallel()

	core := mcs.ClientCoreData(params)
	require.Len(t, core, 216)

	le16 := func(off int) uint16 { return binary.LittleEndian.Uint16(core[off:]) }
	le32 := func(off int) uint32 { return binary.LittleEndian.Uint32(core[off:]) }

	assert.Equal(t, uint16(0xC001), le16(0))
	assert.Equal(t, uint16(216), le16(2))
	assert.Equal(t, uint32(0x00080004), le32(4))
	assert.Equal(t, uint16(1024), le16(8))
	assert.Equal(t, uint16(768), le16(10))
	assert.Equal(t, uint32(0x409), le32(16))
	assert.Equal(t, []byte{'r', 0, 'd', 0, 'p', 0, 'c', 0, 0, 0}, core[24:34])
	assert.Equal(t, uint16(0x0010), le16(140), "highColorDepth")
	assert.Equal(t, uint16(0x0007), le16(142), "supportedColorDepths")
	assert.Equal(t, uint32(1), le32(212), "serverSelectedProtocol")
}

func TestClientNameIsTruncated(t *testing.T) {
	t.Parallel()

	p := params
	p.ClientName = "a-very-long-workstation-name"
	core := mcs.ClientCoreData(p)
	require.Len(t, core, 216)
	assert.Equal(t, []byte{0, 0}, core[54:56], "name keeps a terminator")
}

func TestClientNetworkData(t *testing.T) {
	t.Parallel()

	net := mcs.ClientNetworkData("rdpdr")
	want := []byte{
		0x03, 0xc0, 0x14, 0x00, 0x01, 0x00, 0x00, 0x00,
		'r', 'd', 'p', 'd', 'r', 0, 0, 0, 0x00, 0x00, 0x80, 0x80,
	}
	assert.Equal(t, want, net)
	assert.Equal(t, []byte{0x02, 0xc0, 0x0c, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}, mcs.ClientSecurityData())
}

func TestEncodeConnectInitial(t *testing.T) {
	t.Parallel()

	pdu := mcs.EncodeConnectInitial(params)

	assert.Equal(t, []byte{0x7f, 0x65, 0x82}, pdu[:3])
	assert.Equal(t, len(pdu)-5, int(binary.BigEndian.Uint16(pdu[3:5])))
	assert.Equal(t, []byte{0x04, 0x01, 0x01, 0x04, 0x01, 0x01, 0x01, 0x01, 0xff}, pdu[5:14])

	target := []byte{0x30, 0x1a, 0x02, 0x01, 0x22, 0x02, 0x01, 0x02, 0x02, 0x01, 0x00, 0x02, 0x01, 0x01,
		0x02, 0x01, 0x00, 0x02, 0x01, 0x01, 0x02, 0x03, 0x00, 0xff, 0xff, 0x02, 0x01, 0x02}
	assert.Equal(t, target, pdu[14:14+len(target)])

	assert.True(t, bytes.Contains(pdu, []byte("Duca")))
	assert.True(t, bytes.Contains(pdu, mcs.ClientCoreData(params)))
	assert.True(t, bytes.HasSuffix(pdu, mcs.ClientNetworkData("rdpdr")))

	ud := 216 + 12 + 20
	idx := bytes.Index(pdu, []byte("Duca"))
	assert.Equal(t, []byte{0x80 | byte(ud>>8), byte(ud)}, pdu[idx+4:idx+6])
}

func connectResponse(blocks []byte) []byte {
	body := []byte{0x0a, 0x01, 0x00, 0x02, 0x01, 0x00, 0x30, 0x00}
	body = append(body, 0x04, 0x00) // placeholder user data framing
	body = append(body, []byte{0x00, 0x05, 0x00, 0x14, 0x7c, 0x00, 0x01, 0x2a, 0x14, 0x76, 0x0a, 0x01, 0x01, 0x00, 0x01, 0xc0, 0x00}...)
	body = append(body, []byte("McDn")...)
	body = append(body, 0x80|byte(len(blocks)>>8), byte(len(blocks)))
	body = append(body, blocks...)
	out := []byte{0x7f, 0x66, 0x82, byte(len(body) >> 8), byte(len(body))}
	return append(out, body...)
}

func TestParseConnectResponseReadsNetworkBlock(t *testing.T) {
	t.Parallel()

	blocks := []byte{
		0x01, 0x0c, 0x08, 0x00, 0x04, 0x00, 0x08, 0x00, // SC_CORE
		0x03, 0x0c, 0x0a, 0x00, 0xeb, 0x03, 0x01, 0x00, 0xed, 0x03, // SC_NET: io 1003, one channel 1005
	}
	b := buffer.From(connectResponse(blocks))
	defer b.Release()

	resp, err := mcs.ParseConnectResponse(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(1003), resp.IOChannel)
	assert.Equal(t, []uint16{1005}, resp.Channels)
	assert.Equal(t, 0, b.Remaining())
}

func TestParseConnectResponseWithoutBlocks(t *testing.T) {
	t.Parallel()

	b := buffer.From([]byte{0x7f, 0x66, 0x03, 0x0a, 0x01, 0x00})
	defer b.Release()

	resp, err := mcs.ParseConnectResponse(b)
	require.NoError(t, err)
	assert.Zero(t, resp.IOChannel)

	bad := buffer.From([]byte{0x7f, 0x65, 0x00})
	defer bad.Release()
	_, err = mcs.ParseConnectResponse(bad)
	require.ErrorIs(t, err, rdperr.ErrUnexpectedPDUType)
}

func TestDomainRequests(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x04, 0x01, 0x00, 0x01, 0x00}, mcs.EncodeErectDomainRequest())
	assert.Equal(t, []byte{0x28}, mcs.EncodeAttachUserRequest())
	assert.Equal(t, []byte{0x38, 0x00, 0x03, 0x03, 0xeb}, mcs.EncodeChannelJoinRequest(1004, 1003))
	assert.Equal(t,
		[]byte{0x64, 0x00, 0x03, 0x03, 0xeb, 0x70, 0x80, 0x02, 0xaa, 0xbb},
		mcs.EncodeSendDataRequest(1004, 1003, []byte{0xaa, 0xbb}))
}

func TestParseAttachUserConfirm(t *testing.T) {
	t.Parallel()

	b := buffer.From([]byte{0x2e, 0x00, 0x00, 0x03})
	defer b.Release()
	c, err := mcs.ParseAttachUserConfirm(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(1004), c.UserID)

	// The result byte is surfaced but a non-zero value is not rejected.
	rejected := buffer.From([]byte{0x2e, 0x01, 0x00, 0x03})
	defer rejected.Release()
	c, err = mcs.ParseAttachUserConfirm(rejected)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), c.Result)
}

func TestParseChannelJoinConfirm(t *testing.T) {
	t.Parallel()

	b := buffer.From([]byte{0x3e, 0x00, 0x00, 0x03, 0x03, 0xeb, 0x03, 0xeb})
	defer b.Release()
	c, err := mcs.ParseChannelJoinConfirm(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(1003), c.ChannelID)
	assert.Equal(t, uint16(3), c.Initiator)

	short := buffer.From([]byte{0x3e, 0x00, 0x00})
	defer short.Release()
	_, err = mcs.ParseChannelJoinConfirm(short)
	require.ErrorIs(t, err, rdperr.ErrTruncated)
}

type sink struct {
	graph.Base
	got []uint16
}

func (s *sink) HandleInput(b *buffer.Buffer) error {
	ch, _ := b.Get(mcs.MetaChannel)
	id, _ := ch.(uint16)
	s.got = append(s.got, id)
	b.Release()
	return nil
}

func TestDecoderRoutesByChannel(t *testing.T) {
	t.Parallel()

	state := session.NewState()
	d := mcs.NewDecoder("mcs", state)
	io := &sink{Base: graph.NewBase("io")}
	rd := &sink{Base: graph.NewBase("redirect")}
	other := &sink{Base: graph.NewBase("other")}
	attach := &sink{Base: graph.NewBase("attach")}
	_, err := graph.NewBuilder().Add(d, io, rd, other, attach).
		Link(d.IO, io).Link(d.Redirect, rd).Link(d.Other, other).Link(d.Attach, attach).
		Build(d)
	require.NoError(t, err)

	indication := func(channel uint16, payload ...byte) *buffer.Buffer {
		p := []byte{0x68, 0x00, 0x01, byte(channel >> 8), byte(channel), 0x70, byte(len(payload))}
		return buffer.From(append(p, payload...))
	}

	require.NoError(t, d.HandleInput(indication(1003, 1, 2)))
	require.NoError(t, d.HandleInput(indication(1004, 3)))
	require.NoError(t, d.HandleInput(indication(1010)))
	require.NoError(t, d.HandleInput(buffer.From([]byte{0x2e, 0x00, 0x00, 0x03})))

	assert.Equal(t, []uint16{1003}, io.got)
	assert.Equal(t, []uint16{1004}, rd.got)
	assert.Equal(t, []uint16{1010}, other.got)
	assert.Len(t, attach.got, 1)

	require.ErrorIs(t, d.HandleInput(buffer.From([]byte{0x21, 0x80})), rdperr.ErrDisconnected)
	require.ErrorIs(t, d.HandleInput(buffer.From([]byte{0x68, 0x00})), rdperr.ErrTruncated)
}
