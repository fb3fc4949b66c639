package framing_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/framing"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

func TestEncodeTPKT(t *testing.T) {
	t.Parallel()

	out, err := framing.EncodeTPKT([]byte{0xaa, 0xbb})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x06, 0xaa, 0xbb}, out)

	_, err = framing.EncodeTPKT(make([]byte, framing.MaxTPKTSize))
	require.ErrorIs(t, err, rdperr.ErrUnsupported)
}

func TestReadTPKTHeader(t *testing.T) {
	t.Parallel()

	b := buffer.From([]byte{0x03, 0x00, 0x00, 0x07, 1, 2, 3})
	defer b.Release()
	n, err := framing.ReadTPKTHeader(b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	bad := buffer.From([]byte{0x04, 0x00, 0x00, 0x04})
	defer bad.Release()
	_, err = framing.ReadTPKTHeader(bad)
	require.ErrorIs(t, err, rdperr.ErrUnexpectedPDUType)
}

func TestEncodeData(t *testing.T) {
	t.Parallel()

	out, err := framing.EncodeData([]byte{0x04, 0x01, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x0c, 0x02, 0xf0, 0x80, 0x04, 0x01, 0x00, 0x01, 0x00}, out)
}

func TestEncodeConnectionRequest(t *testing.T) {
	t.Parallel()

	out, err := framing.EncodeConnectionRequest("bob", framing.ProtocolSSL)
	require.NoError(t, err)

	want := []byte{0x03, 0x00, 0x00, 0x29, 0x24, 0xe0, 0x00, 0x00, 0x00, 0x00, 0x00}
	want = append(want, []byte("Cookie: mstshash=bob\r\n")...)
	want = append(want, 0x01, 0x00, 0x08, 0x00, 0x01, 0x00, 0x00, 0x00)
	assert.Equal(t, want, out)
}

func confirm(neg ...byte) *buffer.Buffer {
	p := []byte{0xd0, 0x00, 0x00, 0x12, 0x34, 0x00}
	return buffer.From(append(p, neg...))
}

func TestParseConnectionConfirm(t *testing.T) {
	t.Parallel()

	b := confirm(0x02, 0x1f, 0x08, 0x00, 0x01, 0x00, 0x00, 0x00)
	defer b.Release()
	neg, err := framing.ParseConnectionConfirm(b)
	require.NoError(t, err)
	assert.Equal(t, framing.ProtocolSSL, neg.Protocol)
	assert.Equal(t, uint8(0x1f), neg.Flags)

	legacy := confirm()
	defer legacy.Release()
	neg, err = framing.ParseConnectionConfirm(legacy)
	require.NoError(t, err)
	assert.Equal(t, framing.ProtocolRDP, neg.Protocol)
}

func TestNegotiationFailureReasonsAreDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for code := byte(1); code <= 6; code++ {
		b := confirm(0x03, 0x00, 0x08, 0x00, code, 0x00, 0x00, 0x00)
		_, err := framing.ParseConnectionConfirm(b)
		b.Release()

		require.ErrorIs(t, err, rdperr.ErrNegotiationFailed, "code %d", code)
		reason := rdperr.Reason(err)
		assert.NotContains(t, reason, "unknown", "code %d", code)
		assert.False(t, seen[reason], "duplicate reason %q", reason)
		seen[reason] = true
	}
	assert.Len(t, seen, 6)
	assert.Contains(t, framing.NegotiationFailure(99).String(), "unknown")
}

func TestParseConnectionConfirmRejectsOtherTPDU(t *testing.T) {
	t.Parallel()

	b := buffer.From([]byte{0xe0, 0, 0, 0, 0, 0})
	defer b.Release()
	_, err := framing.ParseConnectionConfirm(b)
	require.ErrorIs(t, err, rdperr.ErrUnexpectedPDUType)
}

func TestEncodeFastPathInput(t *testing.T) {
	t.Parallel()

	key := []byte{0x00, 0x1e}

	out, err := framing.EncodeFastPathInput(key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x04, 0x00, 0x1e}, out)

	out, err = framing.EncodeFastPathInput(key, key, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0c, 0x08, 0x00, 0x1e, 0x00, 0x1e, 0x00, 0x1e}, out)

	many := make([][]byte, 16)
	for i := range many {
		many[i] = key
	}
	out, err = framing.EncodeFastPathInput(many...)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), out[0], "numEvents moves out of the header past 15")
	assert.Equal(t, byte(3+32), out[1])
	assert.Equal(t, byte(16), out[2])
	assert.Len(t, out, 35)

	mouse := make([]byte, 7)
	long := make([][]byte, 20)
	for i := range long {
		long[i] = mouse
	}
	out, err = framing.EncodeFastPathInput(long...)
	require.NoError(t, err)
	total := 1 + 2 + 1 + 140
	assert.Equal(t, []byte{0x80 | byte(total>>8), byte(total)}, out[1:3])
	assert.Len(t, out, total)

	_, err = framing.EncodeFastPathInput()
	require.Error(t, err)
}

func TestFastPathOutputHeader(t *testing.T) {
	t.Parallel()

	short := buffer.From([]byte{0x00, 0x05, 1, 2, 3})
	defer short.Release()
	hdr, err := framing.ReadFastPathOutputHeader(short)
	require.NoError(t, err)
	assert.Equal(t, 5, hdr.Length)
	assert.Equal(t, 3, short.Remaining())

	long := buffer.From([]byte{0x00, 0x81, 0x02})
	defer long.Release()
	hdr, err = framing.ReadFastPathOutputHeader(long)
	require.NoError(t, err)
	assert.Equal(t, 0x102, hdr.Length)

	enc := buffer.From([]byte{0x80, 0x05, 0, 0, 0})
	defer enc.Release()
	_, err = framing.ReadFastPathOutputHeader(enc)
	require.ErrorIs(t, err, rdperr.ErrUnsupported)

	assert.True(t, framing.IsFastPath(0x00))
	assert.False(t, framing.IsFastPath(0x03))
}

func stream() []byte {
	var s bytes.Buffer
	s.Write([]byte{0x03, 0x00, 0x00, 0x0a, 0x02, 0xf0, 0x80, 'a', 'b', 'c'})
	s.Write([]byte{0x00, 0x05, 'x', 'y', 'z'})
	long := bytes.Repeat([]byte{'L'}, 200)
	s.Write([]byte{0x00, 0x80, byte(3 + len(long))})
	s.Write(long)
	s.Write([]byte{0x03, 0x00, 0x00, 0x05, 'q'})
	return s.Bytes()
}

type seqSink struct {
	graph.Base
	log *[]string
}

func (s *seqSink) HandleInput(b *buffer.Buffer) error {
	*s.log = append(*s.log, s.ID()+":"+string(b.Unread()))
	b.Release()
	return nil
}

func feed(t *testing.T, chunks [][]byte) []string {
	t.Helper()
	var log []string
	r := framing.NewReassembler("reassemble")
	tp := &seqSink{Base: graph.NewBase("tpkt"), log: &log}
	fp := &seqSink{Base: graph.NewBase("fastpath"), log: &log}
	_, err := graph.NewBuilder().Add(r, tp, fp).Link(r.TPKT, tp).Link(r.FastPath, fp).Build(r)
	require.NoError(t, err)

	for _, c := range chunks {
		require.NoError(t, r.HandleInput(buffer.Copy(c)))
	}
	assert.Equal(t, 0, r.Pending())
	return log
}

func TestReassemblyIsIndependentOfReadBoundaries(t *testing.T) {
	t.Parallel()

	s := stream()
	whole := feed(t, [][]byte{s})
	require.Len(t, whole, 4)
	assert.Equal(t, "tpkt:\x02\xf0\x80abc", whole[0])
	assert.Equal(t, "fastpath:xyz", whole[1])
	assert.Equal(t, "tpkt:q", whole[3])

	var bytewise [][]byte
	for i := range s {
		bytewise = append(bytewise, s[i:i+1])
	}
	assert.Equal(t, whole, feed(t, bytewise))

	for split := 1; split < len(s); split += 7 {
		assert.Equal(t, whole, feed(t, [][]byte{s[:split], s[split:]}), "split at %d", split)
	}
}

func TestReassemblerRejectsEncryptedFastPath(t *testing.T) {
	t.Parallel()

	r := framing.NewReassembler("reassemble")
	_, err := graph.NewBuilder().Add(r).Build(r)
	require.NoError(t, err)
	require.ErrorIs(t, r.HandleInput(buffer.From([]byte{0x80, 0x03, 0x00})), rdperr.ErrUnsupported)
}

func TestX224DecoderRoutes(t *testing.T) {
	t.Parallel()

	var log []string
	d := framing.NewX224Decoder("x224")
	c := &seqSink{Base: graph.NewBase("confirm"), log: &log}
	data := &seqSink{Base: graph.NewBase("data"), log: &log}
	_, err := graph.NewBuilder().Add(d, c, data).Link(d.Confirm, c).Link(d.Data, data).Build(d)
	require.NoError(t, err)

	require.NoError(t, d.HandleInput(buffer.From([]byte{0x02, 0xf0, 0x80, 'm', 'c', 's'})))
	require.NoError(t, d.HandleInput(buffer.From([]byte{0x06, 0xd0, 0, 0, 0, 0, 0})))
	assert.Equal(t, []string{"data:mcs", "confirm:\xd0\x00\x00\x00\x00\x00"}, log)

	require.ErrorIs(t, d.HandleInput(buffer.From([]byte{0x06, 0x80, 0, 0, 0, 0, 0})), rdperr.ErrDisconnected)
	require.ErrorIs(t, d.HandleInput(buffer.From([]byte{0x02, 0x70, 0})), rdperr.ErrUnexpectedPDUType)
}
