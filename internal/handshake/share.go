package handshake

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
)

// Share control PDU types.
const (
	pduDemandActive  = 0x1
	pduConfirmActive = 0x3
	pduDeactivateAll = 0x6
	pduData          = 0x7
	pduRedirect      = 0xA

	protocolVersion  = 0x10
	flowMarker       = 0x8000
	shareHeaderSize  = 6
	dataHeaderSize   = 12
	streamLow        = 0x01
	packetCompressed = 0x20
)

// Share data PDU types (pduType2).
const (
	Data2Update          = 0x02
	Data2Control         = 0x14
	Data2Pointer         = 0x1B
	Data2Synchronize     = 0x1F
	Data2ShutdownDenied  = 0x25
	Data2SaveSessionInfo = 0x26
	Data2FontList        = 0x27
	Data2FontMap         = 0x28
	Data2SetErrorInfo    = 0x2F
)

const (
	ctrlActionRequestControl = 0x0001
	ctrlActionGrantedControl = 0x0002
	ctrlActionCooperate      = 0x0004
	syncMessageType          = 0x0001
	fontListFlags            = 0x0003 // FONTLIST_FIRST | FONTLIST_LAST
	fontListEntrySize        = 50
)

// shareControl prepends a share control header.
//
//nolint:gosec // G115: slow-path PDUs are bounded by the TPKT size
func shareControl(pduType, source uint16, body []byte) []byte {
	out := make([]byte, 0, shareHeaderSize+len(body))
	out = binary.LittleEndian.AppendUint16(out, uint16(shareHeaderSize+len(body)))
	out = binary.LittleEndian.AppendUint16(out, pduType|protocolVersion)
	out = binary.LittleEndian.AppendUint16(out, source)
	return append(out, body...)
}

// shareData wraps body in share control and share data headers.
//
//nolint:gosec // G115: slow-path PDUs are bounded by the TPKT size
func shareData(shareID uint32, source uint16, pduType2 uint8, body []byte) []byte {
	out := make([]byte, 0, dataHeaderSize+len(body))
	out = binary.LittleEndian.AppendUint32(out, shareID)
	out = append(out, 0, streamLow)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(body)+4))
	out = append(out, pduType2, 0)
	out = binary.LittleEndian.AppendUint16(out, 0) // compressed length
	out = append(out, body...)
	return shareControl(pduData, source, out)
}

// EncodeFinalization returns the PDUs the client sends right after
// confirm-active: synchronize, cooperate, request control and font list.
func EncodeFinalization(shareID uint32, userChannel uint16) [][]byte {
	sync := binary.LittleEndian.AppendUint16(nil, syncMessageType)
	sync = binary.LittleEndian.AppendUint16(sync, ServerChannelID)

	control := func(action uint16) []byte {
		p := binary.LittleEndian.AppendUint16(nil, action)
		p = binary.LittleEndian.AppendUint16(p, 0) // grant id
		return binary.LittleEndian.AppendUint32(p, 0)
	}

	fonts := binary.LittleEndian.AppendUint16(nil, 0) // number of entries
	fonts = binary.LittleEndian.AppendUint16(fonts, 0)
	fonts = binary.LittleEndian.AppendUint16(fonts, fontListFlags)
	fonts = binary.LittleEndian.AppendUint16(fonts, fontListEntrySize)

	return [][]byte{
		shareData(shareID, userChannel, Data2Synchronize, sync),
		shareData(shareID, userChannel, Data2Control, control(ctrlActionCooperate)),
		shareData(shareID, userChannel, Data2Control, control(ctrlActionRequestControl)),
		shareData(shareID, userChannel, Data2FontList, fonts),
	}
}

// Counters receives share-layer statistics. *stats.Collector satisfies it.
type Counters interface {
	AddSlowPathPDUs(n int64)
}

type nopCounters struct{}

func (nopCounters) AddSlowPathPDUs(int64) {}

// ShareDecoder handles share control PDUs on the I/O channel once the
// handshake is complete: capability exchange (repeated after every
// deactivate-all), session finalization and share data PDUs.
type ShareDecoder struct {
	Update   *graph.Pad
	Pointer  *graph.Pad
	ctx      *session.Context
	send     func(payload []byte) error
	events   event.Sink
	counters Counters
	onActive []func()
	graph.Base
	active bool
}

// NewShareDecoder creates the decoder. send wraps a share PDU for the I/O
// channel and writes it.
func NewShareDecoder(id string, ctx *session.Context, send func([]byte) error, events event.Sink, counters Counters) *ShareDecoder {
	if events == nil {
		events = event.Discard
	}
	if counters == nil {
		counters = nopCounters{}
	}
	return &ShareDecoder{
		Base:     graph.NewBase(id),
		Update:   graph.NewPad(id, "update"),
		Pointer:  graph.NewPad(id, "pointer"),
		ctx:      ctx,
		send:     send,
		events:   events,
		counters: counters,
	}
}

func (d *ShareDecoder) Pads() []*graph.Pad { return []*graph.Pad{d.Update, d.Pointer} }

// OnActive registers a callback run each time the server finishes
// activating the session.
func (d *ShareDecoder) OnActive(fn func()) { d.onActive = append(d.onActive, fn) }

// Active reports whether the session is activated.
func (d *ShareDecoder) Active() bool { return d.active }

func (d *ShareDecoder) HandleInput(b *buffer.Buffer) error {
	defer b.Release()
	for b.Remaining() > 0 {
		if err := d.next(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *ShareDecoder) next(b *buffer.Buffer) error {
	total, err := b.ReadU16LE()
	if err != nil {
		return err
	}
	if total == flowMarker {
		slog.Debug("ignoring flow control pdu")
		return b.Skip(b.Remaining())
	}
	if total < shareHeaderSize {
		return rdperr.New(rdperr.UnexpectedPDUType, "share control", "length %d shorter than header", total)
	}
	pduType, err := b.ReadU16LE()
	if err != nil {
		return err
	}
	if _, err := b.ReadU16LE(); err != nil { // source
		return err
	}
	body, err := b.ReadBytes(int(total) - shareHeaderSize)
	if err != nil {
		return err
	}
	d.counters.AddSlowPathPDUs(1)

	switch pduType & 0x0F {
	case pduDemandActive:
		defer body.Release()
		return d.demandActive(body)
	case pduDeactivateAll:
		body.Release()
		slog.Info("server deactivated session")
		d.active = false
		return nil
	case pduData:
		return d.data(body)
	case pduRedirect:
		body.Release()
		return rdperr.New(rdperr.Unsupported, "share control", "server redirection")
	default:
		body.Release()
		return rdperr.New(rdperr.UnexpectedPDUType, "share control", "pdu type 0x%x", pduType&0x0F)
	}
}

// DemandActive is what the client takes from a demand-active PDU.
type DemandActive struct {
	ShareID uint32
	Width   uint16
	Height  uint16
	Depth   uint16
	Caps    int
}

// ParseDemandActive reads a demand-active body (after the share control
// header). The server bitmap capability supplies the desktop size.
func ParseDemandActive(b *buffer.Buffer) (DemandActive, error) {
	var da DemandActive
	var err error
	if da.ShareID, err = b.ReadU32LE(); err != nil {
		return da, err
	}
	srcLen, err := b.ReadU16LE()
	if err != nil {
		return da, err
	}
	capsLen, err := b.ReadU16LE()
	if err != nil {
		return da, err
	}
	if err := b.Skip(int(srcLen)); err != nil {
		return da, err
	}
	caps, err := b.ReadBytes(int(capsLen))
	if err != nil {
		return da, err
	}
	defer caps.Release()

	n, err := caps.ReadU16LE()
	if err != nil {
		return da, err
	}
	if err := caps.Skip(2); err != nil {
		return da, err
	}
	for range n {
		typ, err := caps.ReadU16LE()
		if err != nil {
			return da, err
		}
		length, err := caps.ReadU16LE()
		if err != nil {
			return da, err
		}
		if length < 4 {
			return da, rdperr.New(rdperr.UnexpectedPDUType, "demand active", "capability 0x%x length %d", typ, length)
		}
		set, err := caps.ReadBytes(int(length) - 4)
		if err != nil {
			return da, err
		}
		if typ == CapBitmap {
			da.Depth, _ = set.ReadU16LE() //nolint:errcheck // optional fields
			_ = set.Skip(6)
			da.Width, _ = set.ReadU16LE()  //nolint:errcheck // optional fields
			da.Height, _ = set.ReadU16LE() //nolint:errcheck // optional fields
		}
		set.Release()
		da.Caps++
	}
	if err := caps.AssertFullyRead("demand active capabilities"); err != nil {
		return da, err
	}
	// sessionId is present on current servers and absent on old ones
	if b.Remaining() == 4 {
		_ = b.Skip(4)
	}
	return da, b.AssertFullyRead("demand active")
}

func (d *ShareDecoder) demandActive(body *buffer.Buffer) error {
	da, err := ParseDemandActive(body)
	if err != nil {
		return err
	}
	d.ctx.State.SetShareID(da.ShareID)
	if da.Width != 0 && da.Height != 0 && d.ctx.Screen.Resize(da.Width, da.Height) {
		slog.Info("server resized desktop", "width", da.Width, "height", da.Height)
		d.ctx.Renderer.Resize(int(da.Width), int(da.Height))
		d.events.Emit(event.Event{Type: event.Resized, Timestamp: time.Now(), Width: int(da.Width), Height: int(da.Height)})
	}
	slog.Debug("demand active", "share_id", fmt.Sprintf("0x%08x", da.ShareID), "capabilities", da.Caps)

	width, height := d.ctx.Screen.Size()
	user := d.ctx.State.UserID()
	confirm := EncodeConfirmActive(da.ShareID, user, ScreenCaps{
		Width:          width,
		Height:         height,
		Depth:          d.ctx.Screen.Depth(),
		KeyboardLayout: d.ctx.Config.KeyboardLayout,
	})
	if err := d.send(confirm); err != nil {
		return fmt.Errorf("sending confirm active: %w", err)
	}
	for _, pdu := range EncodeFinalization(da.ShareID, user) {
		if err := d.send(pdu); err != nil {
			return fmt.Errorf("sending finalization: %w", err)
		}
	}
	return nil
}

func (d *ShareDecoder) data(body *buffer.Buffer) error {
	if err := body.Skip(4 + 1 + 1 + 2); err != nil { // share id, pad, stream, uncompressed length
		body.Release()
		return err
	}
	pduType2, err := body.ReadU8()
	if err != nil {
		body.Release()
		return err
	}
	compressed, err := body.ReadU8()
	if err != nil {
		body.Release()
		return err
	}
	if err := body.Skip(2); err != nil {
		body.Release()
		return err
	}
	if compressed&packetCompressed != 0 {
		body.Release()
		return rdperr.New(rdperr.Unsupported, "share data", "bulk compressed pdu type 0x%x", pduType2)
	}

	switch pduType2 {
	case Data2Update:
		return d.Update.Push(body)
	case Data2Pointer:
		return d.Pointer.Push(body)
	case Data2SetErrorInfo:
		defer body.Release()
		code, err := body.ReadU32LE()
		if err != nil {
			return err
		}
		d.ctx.State.SetErrorInfo(code)
		if code != 0 {
			slog.Warn("server reported error info", "code", fmt.Sprintf("0x%08x", code), "reason", ErrorInfoText(code))
			d.events.Emit(event.Event{Type: event.ErrorInfo, Timestamp: time.Now(), Code: code, Detail: ErrorInfoText(code)})
		}
		return body.AssertFullyRead("set error info")
	case Data2FontMap:
		body.Release()
		d.active = true
		slog.Info("session active")
		d.events.Emit(event.Event{Type: event.Activated, Timestamp: time.Now()})
		for _, fn := range d.onActive {
			fn()
		}
		return nil
	case Data2Control:
		defer body.Release()
		action, err := body.ReadU16LE()
		if err == nil && action == ctrlActionGrantedControl {
			slog.Debug("control granted")
		}
		return nil
	default:
		slog.Debug("ignoring share data pdu", "type", fmt.Sprintf("0x%02x", pduType2), "bytes", body.Remaining())
		body.Release()
		return nil
	}
}

var errorInfoText = map[uint32]string{
	0x00000001: "session disconnected by an administrative tool",
	0x00000002: "session logged off by an administrative tool",
	0x00000003: "idle session time limit reached",
	0x00000004: "active session time limit reached",
	0x00000005: "another user connected to the session",
	0x00000006: "server ran out of memory",
	0x00000007: "server denied the connection",
	0x00000009: "user lacks privileges to log on remotely",
	0x0000000A: "server requires fresh credentials",
	0x0000000B: "session disconnected by the user",
	0x0000000C: "session logged off by the user",
	0x00000100: "internal licensing error",
	0x00000101: "no license server available",
	0x00000102: "no client access license available",
}

// ErrorInfoText describes a set-error-info code.
func ErrorInfoText(code uint32) string {
	if s, ok := errorInfoText[code]; ok {
		return s
	}
	return fmt.Sprintf("error info 0x%08x", code)
}
