// Package handshake drives the RDP connection sequence from the X.224
// negotiation through licensing, and handles the share layer once the
// session is up.
//
// Each step is a graph.OneTime element. The Machine advances a single
// State value as steps fire; a response arriving in any other state is a
// protocol error.
package handshake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/framing"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/mcs"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
)

const tracerName = "github.com/bamsammich/rdpc/internal/handshake"

// State is the position of the connection sequence.
type State int32

const (
	Negotiating State = iota
	Upgrading
	Connecting
	Attaching
	Joining
	Licensing
	Complete
)

var stateNames = [...]string{
	Negotiating: "negotiating",
	Upgrading:   "upgrading",
	Connecting:  "connecting",
	Attaching:   "attaching",
	Joining:     "joining",
	Licensing:   "licensing",
	Complete:    "complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Upgrader switches the transport to TLS after negotiation. Reads and
// writes resume over the upgraded stream.
type Upgrader interface {
	Upgrade(ctx context.Context) error
}

// StepObserver records how long each handshake step took.
// *stats.Metrics satisfies it.
type StepObserver interface {
	ObserveStep(step string, d time.Duration)
}

// Options configure a Machine. Zero values are usable.
type Options struct {
	Upgrader      Upgrader
	Events        event.Sink
	Steps         StepObserver
	Tracer        trace.Tracer
	ClientAddress string
}

// Machine owns the one-time elements of the connection sequence.
type Machine struct {
	Negotiation *graph.OneTime
	Connect     *graph.OneTime
	Attach      *graph.OneTime
	Join        *graph.OneTime
	License     *graph.OneTime

	sess     *session.Context
	opts     Options
	runCtx   context.Context //nolint:containedctx // upgrade runs from inside the read loop
	span     trace.Span
	started  time.Time
	joins    []uint16
	complete []func()
	mu       sync.Mutex
	state    atomic.Int32
}

// New creates a Machine for the session.
func New(sess *session.Context, opts Options) *Machine {
	if opts.Events == nil {
		opts.Events = event.Discard
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.ClientAddress == "" {
		opts.ClientAddress = "0.0.0.0"
	}
	m := &Machine{sess: sess, opts: opts, runCtx: context.Background()}
	m.Negotiation = graph.NewOneTime("negotiation", m.onConfirm)
	m.Connect = graph.NewOneTime("connect", m.onConnectResponse)
	m.Attach = graph.NewOneTime("attach", m.onAttachConfirm)
	m.Join = graph.NewOneTime("join", m.onJoinConfirm)
	m.License = graph.NewOneTime("license", m.onLicense)
	m.License.OnFire(m.finish)
	return m
}

// Steps returns the one-time elements in sequence order.
func (m *Machine) Steps() []*graph.OneTime {
	return []*graph.OneTime{m.Negotiation, m.Connect, m.Attach, m.Join, m.License}
}

// State returns the current position in the sequence.
func (m *Machine) State() State { return State(m.state.Load()) }

// OnComplete registers a callback run when licensing completes. Callbacks
// run on the read loop before any later PDU is processed.
func (m *Machine) OnComplete(fn func()) { m.complete = append(m.complete, fn) }

// Start sends the X.224 connection request. ctx bounds the TLS upgrade.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	pdu, err := framing.EncodeConnectionRequest(m.sess.Config.User, framing.ProtocolSSL)
	if err != nil {
		return err
	}
	m.beginStep("negotiation")
	return m.sess.Sender.Send(pdu)
}

func (m *Machine) expect(op string, want State) error {
	if got := m.State(); got != want {
		return rdperr.New(rdperr.UnexpectedResponse, op, "received while %s", got)
	}
	return nil
}

func (m *Machine) advance(s State) {
	slog.Debug("handshake state", "from", m.State(), "to", s)
	m.state.Store(int32(s))
}

func (m *Machine) beginStep(name string) {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	_, m.span = m.opts.Tracer.Start(ctx, "rdp."+name, trace.WithAttributes(
		attribute.String("rdp.step", name),
	))
	m.started = time.Now()
}

func (m *Machine) endStep(name string, err error) {
	if m.span == nil {
		return
	}
	d := time.Since(m.started)
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()
	m.span = nil
	if err != nil {
		return
	}
	if m.opts.Steps != nil {
		m.opts.Steps.ObserveStep(name, d)
	}
	slog.Debug("handshake step completed", "step", name, "duration", d)
	m.opts.Events.Emit(event.Event{Type: event.StepCompleted, Timestamp: time.Now(), Step: name})
}

func (m *Machine) sendMCS(payload []byte) error {
	pdu, err := framing.EncodeData(payload)
	if err != nil {
		return err
	}
	return m.sess.Sender.Send(pdu)
}

// SendIO wraps a share-layer PDU for the I/O channel and sends it.
func (m *Machine) SendIO(payload []byte) error {
	return SendIO(m.sess, payload)
}

// SendIO wraps a share-layer PDU in an MCS send-data request for the I/O
// channel and hands it to the session sender.
func SendIO(sess *session.Context, payload []byte) error {
	pdu, err := framing.EncodeData(mcs.EncodeSendDataRequest(sess.State.UserID(), sess.State.IOChannel(), payload))
	if err != nil {
		return err
	}
	return sess.Sender.Send(pdu)
}

func (m *Machine) onConfirm(b *buffer.Buffer) (bool, error) {
	defer b.Release()
	if err := m.expect("x224 confirm", Negotiating); err != nil {
		return false, err
	}
	neg, err := framing.ParseConnectionConfirm(b)
	if err != nil {
		m.endStep("negotiation", err)
		return false, err
	}
	if neg.Protocol != framing.ProtocolSSL {
		err := rdperr.New(rdperr.Unsupported, "x224 confirm", "server selected protocol 0x%x", neg.Protocol)
		m.endStep("negotiation", err)
		return false, err
	}
	m.endStep("negotiation", nil)
	slog.Info("negotiated security protocol", "protocol", "tls")
	m.opts.Events.Emit(event.Event{Type: event.Negotiated, Timestamp: time.Now(), Code: neg.Protocol})

	m.advance(Upgrading)
	if m.opts.Upgrader != nil {
		m.beginStep("upgrade")
		m.mu.Lock()
		ctx := m.runCtx
		m.mu.Unlock()
		if err := m.opts.Upgrader.Upgrade(ctx); err != nil {
			err = fmt.Errorf("upgrading transport: %w", err)
			m.endStep("upgrade", err)
			return false, err
		}
		m.endStep("upgrade", nil)
		m.opts.Events.Emit(event.Event{Type: event.Upgraded, Timestamp: time.Now()})
	}

	m.advance(Connecting)
	m.beginStep("connect")
	width, height := m.sess.Screen.Size()
	return true, m.sendMCS(mcs.EncodeConnectInitial(mcs.ConnectParams{
		ClientName:       m.sess.Config.ClientName,
		KeyboardLayout:   m.sess.Config.KeyboardLayout,
		SelectedProtocol: neg.Protocol,
		Width:            width,
		Height:           height,
		Depth:            m.sess.Screen.Depth(),
	}))
}

func (m *Machine) onConnectResponse(b *buffer.Buffer) (bool, error) {
	defer b.Release()
	if err := m.expect("mcs connect response", Connecting); err != nil {
		return false, err
	}
	resp, err := mcs.ParseConnectResponse(b)
	if err != nil {
		m.endStep("connect", err)
		return false, err
	}
	if resp.Result != 0 {
		slog.Warn("connect response reports failure, continuing", "result", resp.Result)
	}
	var redirect uint16
	if len(resp.Channels) > 0 {
		redirect = resp.Channels[0]
	}
	m.sess.State.SetChannels(resp.IOChannel, redirect)
	m.endStep("connect", nil)

	m.advance(Attaching)
	m.beginStep("attach")
	if err := m.sendMCS(mcs.EncodeErectDomainRequest()); err != nil {
		return false, err
	}
	return true, m.sendMCS(mcs.EncodeAttachUserRequest())
}

func (m *Machine) onAttachConfirm(b *buffer.Buffer) (bool, error) {
	defer b.Release()
	if err := m.expect("attach user confirm", Attaching); err != nil {
		return false, err
	}
	c, err := mcs.ParseAttachUserConfirm(b)
	if err != nil {
		m.endStep("attach", err)
		return false, err
	}
	// result is not judged; see DESIGN.md
	if c.Result != 0 {
		slog.Warn("attach user confirm reports failure, continuing", "result", c.Result)
	}
	user := c.UserID
	if user == 0 {
		user = session.UserChannelBase
	}
	m.sess.State.SetUserID(user)
	m.endStep("attach", nil)

	m.advance(Joining)
	m.beginStep("join")
	m.joins = []uint16{user, m.sess.State.IOChannel(), m.sess.State.RedirectChannel()}
	return true, m.sendMCS(mcs.EncodeChannelJoinRequest(user, m.joins[0]))
}

func (m *Machine) onJoinConfirm(b *buffer.Buffer) (bool, error) {
	defer b.Release()
	if err := m.expect("channel join confirm", Joining); err != nil {
		return false, err
	}
	c, err := mcs.ParseChannelJoinConfirm(b)
	if err != nil {
		m.endStep("join", err)
		return false, err
	}
	if len(m.joins) == 0 {
		return false, rdperr.New(rdperr.UnexpectedResponse, "channel join confirm", "no join outstanding")
	}
	if c.Result != 0 {
		slog.Warn("channel join confirm reports failure, continuing", "channel", m.joins[0], "result", c.Result)
	}
	slog.Debug("joined channel", "channel", m.joins[0])
	m.joins = m.joins[1:]
	if len(m.joins) > 0 {
		return false, m.sendMCS(mcs.EncodeChannelJoinRequest(m.sess.State.UserID(), m.joins[0]))
	}
	m.endStep("join", nil)

	m.advance(Licensing)
	m.beginStep("license")
	return true, m.SendIO(EncodeClientInfo(m.sess.Config, m.opts.ClientAddress))
}

// onLicense discards the licensing PDU. Servers that skip licensing send
// an error-alert carrying STATUS_VALID_CLIENT; nothing else is expected.
func (m *Machine) onLicense(b *buffer.Buffer) (bool, error) {
	defer b.Release()
	if err := m.expect("license", Licensing); err != nil {
		return false, err
	}
	slog.Debug("license pdu discarded", "bytes", b.Remaining())
	m.endStep("license", nil)
	return true, nil
}

func (m *Machine) finish() {
	m.advance(Complete)
	for _, step := range m.Steps() {
		step.Deactivate()
	}
	slog.Info("handshake complete", "user_channel", m.sess.State.UserID(), "io_channel", m.sess.State.IOChannel())
	for _, fn := range m.complete {
		fn()
	}
}
