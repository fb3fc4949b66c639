package pipeline_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/framing"
	"github.com/bamsammich/rdpc/internal/handshake"
	"github.com/bamsammich/rdpc/internal/input"
	"github.com/bamsammich/rdpc/internal/pipeline"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/stats"
)

const ioChannel = session.DefaultIOChannel

type pipeTransport struct {
	net.Conn
	upgrades atomic.Int32
}

func (p *pipeTransport) Upgrade(context.Context) error {
	p.upgrades.Add(1)
	return nil
}

type renderer struct {
	rects chan session.BitmapRectangle
}

func (r *renderer) DrawBitmap(rect session.BitmapRectangle) { r.rects <- rect }
func (r *renderer) PaletteChanged(*session.Palette)         {}
func (r *renderer) Resize(int, int)                         {}

// server plays the peer side of a session over the pipe.
type server struct {
	t    *testing.T
	conn net.Conn
}

// read returns one client PDU, TPKT or fast-path.
func (s *server) read() []byte {
	s.t.Helper()
	head := make([]byte, 2)
	_, err := io.ReadFull(s.conn, head)
	require.NoError(s.t, err)

	var total int
	switch {
	case head[0] == framing.TPKTVersion:
		more := make([]byte, 2)
		_, err = io.ReadFull(s.conn, more)
		require.NoError(s.t, err)
		head = append(head, more...)
		total = int(binary.BigEndian.Uint16(head[2:]))
	case head[1]&0x80 != 0:
		more := make([]byte, 1)
		_, err = io.ReadFull(s.conn, more)
		require.NoError(s.t, err)
		head = append(head, more...)
		total = int(head[1]&0x7F)<<8 | int(head[2])
	default:
		total = int(head[1])
	}
	rest := make([]byte, total-len(head))
	_, err = io.ReadFull(s.conn, rest)
	require.NoError(s.t, err)
	return append(head, rest...)
}

func (s *server) write(p []byte) {
	s.t.Helper()
	_, err := s.conn.Write(p)
	require.NoError(s.t, err)
}

func (s *server) tpkt(payload []byte) {
	s.t.Helper()
	pdu, err := framing.EncodeTPKT(payload)
	require.NoError(s.t, err)
	s.write(pdu)
}

func (s *server) mcs(payload []byte) {
	s.t.Helper()
	pdu, err := framing.EncodeData(payload)
	require.NoError(s.t, err)
	s.write(pdu)
}

// indication sends data on channel as a send-data indication.
func (s *server) indication(channel uint16, data []byte) {
	s.t.Helper()
	out := []byte{26 << 2, 0x00, 0x06, byte(channel >> 8), byte(channel), 0x70}
	if len(data) > 0x7F {
		out = append(out, 0x80|byte(len(data)>>8), byte(len(data)))
	} else {
		out = append(out, byte(len(data)))
	}
	s.mcs(append(out, data...))
}

func le(vals ...any) []byte {
	var out []byte
	for _, v := range vals {
		switch v := v.(type) {
		case uint16:
			out = binary.LittleEndian.AppendUint16(out, v)
		case uint32:
			out = binary.LittleEndian.AppendUint32(out, v)
		case []byte:
			out = append(out, v...)
		case string:
			out = append(out, v...)
		}
	}
	return out
}

func shareControl(pduType uint16, body []byte) []byte {
	return le(uint16(6+len(body)), pduType|0x10, uint16(0x3EA), body)
}

func shareData(pduType2 byte, body []byte) []byte {
	hdr := le(uint32(0x000103ea), []byte{0, 1}, uint16(len(body)+4), []byte{pduType2, 0}, uint16(0))
	return shareControl(0x7, append(hdr, body...))
}

func demandActive() []byte {
	bitmap := le(uint16(2), uint16(28), uint16(16), uint16(1), uint16(1), uint16(1), uint16(640), uint16(480), make([]byte, 12))
	caps := le(uint16(1), uint16(0), bitmap)
	return shareControl(0x1, le(uint32(0x000103ea), uint16(4), uint16(len(caps)), "RDP\x00", caps, uint32(0)))
}

// bitmapUpdate is a fast-path PDU with one uncompressed 2x1 8bpp rectangle.
func bitmapUpdate() []byte {
	body := le(uint16(1), uint16(1), uint16(3), uint16(4), uint16(4), uint16(4), uint16(2), uint16(1), uint16(8), uint16(0), uint16(2), []byte{7, 9})
	upd := append([]byte{0x01}, le(uint16(len(body)), body)...)
	return append([]byte{0x00, byte(2 + len(upd))}, upd...)
}

// handshake drives the server side up to an active session.
func (s *server) handshake() {
	s.t.Helper()
	require.Contains(s.t, string(s.read()), "mstshash=tester")
	s.tpkt([]byte{0x0E, 0xD0, 0, 0, 0x12, 0x34, 0, 0x02, 0x00, 0x08, 0x00, 0x01, 0, 0, 0})

	ci := s.read()
	require.Equal(s.t, []byte{0x7F, 0x65}, ci[7:9], "connect initial")
	s.mcs([]byte{0x7F, 0x66, 0x03, 0x0A, 0x01, 0x00})

	require.Equal(s.t, byte(0x04), s.read()[7], "erect domain")
	require.Equal(s.t, byte(0x28), s.read()[7], "attach user")
	s.mcs([]byte{0x2E, 0x00, 0x00, 0x06})

	for range 3 {
		join := s.read()
		require.Equal(s.t, byte(0x38), join[7], "channel join")
		s.mcs([]byte{0x3E, 0x00, 0x00, 0x06, join[10], join[11], join[10], join[11]})
	}
	require.Equal(s.t, byte(0x64), s.read()[7], "client info")

	s.indication(ioChannel, []byte{0x80, 0x00, 0x10, 0x00, 0xFF, 0x03, 0x10, 0x00, 0x07, 0, 0, 0, 0x02, 0, 0, 0})
	s.indication(ioChannel, demandActive())
	for range 5 {
		require.Equal(s.t, byte(0x64), s.read()[7], "confirm active and finalization")
	}
	s.indication(ioChannel, shareData(handshake.Data2FontMap, le(uint16(0), uint16(0), uint16(3), uint16(4))))
}

func start(t *testing.T, opts pipeline.Options) (*pipeline.Pipeline, *server, *pipeTransport) {
	t.Helper()
	client, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	tr := &pipeTransport{Conn: client}
	opts.Session = session.Config{User: "tester", Width: 1024, Height: 768, Depth: 8}
	p, err := pipeline.New(tr, opts)
	require.NoError(t, err)
	return p, &server{t: t, conn: peer}, tr
}

func TestPipelineSession(t *testing.T) {
	t.Parallel()

	r := &renderer{rects: make(chan session.BitmapRectangle, 1)}
	events := make(event.Chan, 64)
	st := stats.NewCollector()
	p, srv, tr := start(t, pipeline.Options{Renderer: r, Events: events, Stats: st})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	srv.handshake()
	select {
	case <-p.Active():
	case <-time.After(5 * time.Second):
		t.Fatal("session never activated")
	}
	assert.Equal(t, handshake.Complete, p.Handshake())
	assert.Equal(t, pipeline.ModeQueued, p.Mode())
	assert.Equal(t, int32(1), tr.upgrades.Load())

	w, h := p.Session().Screen.Size()
	assert.Equal(t, uint16(640), w)
	assert.Equal(t, uint16(480), h)
	assert.Equal(t, uint16(1007), p.Session().State.UserID())

	srv.write(bitmapUpdate())
	select {
	case rect := <-r.rects:
		assert.Equal(t, uint16(3), rect.X)
		assert.Equal(t, uint16(2), rect.Width)
		assert.Equal(t, []byte{7, 9}, rect.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("no rectangle rendered")
	}

	require.NoError(t, p.Key(input.KeyA, input.LocationStandard, false))
	assert.Equal(t, []byte{0x04, 0x04, 0x00, 0x1E}, srv.read())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	snap := st.Snapshot()
	assert.Positive(t, snap.BytesIn)
	assert.Positive(t, snap.BytesOut)
	assert.Equal(t, int64(1), snap.Rectangles)
	assert.Equal(t, int64(1), snap.InputEvents)

	var types []event.Type
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, event.Connected, types[0])
	assert.Equal(t, event.Disconnected, types[len(types)-1])
	assert.Contains(t, types, event.Activated)
	assert.Contains(t, types, event.Resized)
}

func TestPipelineNegotiationFailure(t *testing.T) {
	t.Parallel()

	p, srv, _ := start(t, pipeline.Options{})
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	srv.read()
	srv.tpkt([]byte{0x0E, 0xD0, 0, 0, 0x12, 0x34, 0, 0x03, 0x00, 0x08, 0x00, 0x05, 0, 0, 0})

	err := <-done
	require.ErrorIs(t, err, rdperr.ErrNegotiationFailed)
	assert.Equal(t, handshake.Negotiating, p.Handshake())
}

func TestPipelineServerClose(t *testing.T) {
	t.Parallel()

	p, srv, _ := start(t, pipeline.Options{})
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	srv.read()
	require.NoError(t, srv.conn.Close())

	err := <-done
	require.ErrorIs(t, err, rdperr.ErrDisconnected)
	assert.Equal(t, "connection closed by server", rdperr.Reason(err))
}

func TestInputBeforeActivationIsDropped(t *testing.T) {
	t.Parallel()

	st := stats.NewCollector()
	p, _, _ := start(t, pipeline.Options{Stats: st})

	err := p.TypeText("hi")
	require.ErrorIs(t, err, pipeline.ErrNotActive)
	assert.Equal(t, int64(4), st.Snapshot().DroppedEvents)
}

type lockedBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte{}, b.buf.Bytes()...)
}

func TestWriterModes(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	st := stats.NewCollector()
	w := pipeline.NewWriter(out, 8, st)
	assert.Equal(t, pipeline.ModeHandshake, w.Mode())

	require.NoError(t, w.Send([]byte{1, 2}))
	assert.Equal(t, []byte{1, 2}, out.Bytes(), "handshake writes are synchronous")

	w.SetMode(pipeline.ModeQueued)
	assert.Equal(t, "queued", w.Mode().String())
	for i := range byte(5) {
		require.NoError(t, w.Send([]byte{10 + i}))
	}
	assert.Equal(t, []byte{1, 2}, out.Bytes(), "queued writes wait for the writer")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Queued().Run(ctx) }()

	require.Eventually(t, func() bool {
		return bytes.Equal([]byte{1, 2, 10, 11, 12, 13, 14}, out.Bytes())
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(7), st.Snapshot().BytesOut)
}

func TestWriterCloseDrains(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	w := pipeline.NewWriter(out, 8, nil)
	w.SetMode(pipeline.ModeQueued)
	require.NoError(t, w.Send([]byte{1}))
	require.NoError(t, w.Send([]byte{2}))
	w.Close()

	require.NoError(t, w.Queued().Run(context.Background()))
	assert.Equal(t, []byte{1, 2}, out.Bytes())
	assert.Error(t, w.Send([]byte{3}))
}
