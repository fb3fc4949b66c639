// Package pipeline assembles the element graph for one RDP session and runs
// it: a single goroutine reads the transport and drives the graph to
// quiescence, and a single writer goroutine drains outbound PDUs once the
// handshake completes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/framing"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/handshake"
	"github.com/bamsammich/rdpc/internal/input"
	"github.com/bamsammich/rdpc/internal/mcs"
	"github.com/bamsammich/rdpc/internal/queue"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/stats"
	"github.com/bamsammich/rdpc/internal/update"
)

const (
	defaultReadSize = 64 * 1024
	maxInputBatch   = 0xFF
)

// ErrNotActive is returned for input sent before the server activated the
// session. The event is dropped.
var ErrNotActive = errors.New("session not active")

// Transport is the byte stream a session runs over. Upgrade switches it to
// TLS in place; reads and writes after Upgrade returns use the secure
// stream.
type Transport interface {
	io.ReadWriteCloser
	Upgrade(ctx context.Context) error
}

// Options configure a Pipeline.
type Options struct {
	Renderer      session.Renderer
	Events        event.Sink
	Stats         *stats.Collector
	Steps         handshake.StepObserver
	Tracer        trace.Tracer
	ClientAddress string
	Session       session.Config
	QueueCapacity int
	ReadSize      int
}

// Pipeline is one client session.
type Pipeline struct {
	transport Transport
	sess      *session.Context
	machine   *handshake.Machine
	share     *handshake.ShareDecoder
	graph     *graph.Graph
	switcher  *graph.Switch
	writer    *Writer
	stats     *stats.Collector
	events    event.Sink
	active    chan struct{}
	mouse     input.Mouse
	readSize  int
	once      sync.Once
}

// New builds the element graph for a session over t.
func New(t Transport, opts Options) (*Pipeline, error) {
	if opts.Events == nil {
		opts.Events = event.Discard
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewCollector()
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = queue.DefaultCapacity
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}

	p := &Pipeline{
		transport: t,
		stats:     opts.Stats,
		events:    opts.Events,
		active:    make(chan struct{}),
		readSize:  opts.ReadSize,
	}
	p.writer = NewWriter(t, opts.QueueCapacity, opts.Stats)
	p.sess = session.NewContext(opts.Session, opts.Renderer, p.writer)

	p.machine = handshake.New(p.sess, handshake.Options{
		Upgrader:      t,
		Events:        opts.Events,
		Steps:         opts.Steps,
		Tracer:        opts.Tracer,
		ClientAddress: opts.ClientAddress,
	})
	p.share = handshake.NewShareDecoder("share", p.sess, p.machine.SendIO, opts.Events, opts.Stats)

	g, sw, err := buildGraph(p.sess, p.machine, p.share, opts.Stats)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}
	p.graph, p.switcher = g, sw

	p.machine.OnComplete(func() {
		p.switcher.Flip()
		p.writer.SetMode(ModeQueued)
	})
	p.share.OnActive(func() {
		p.once.Do(func() { close(p.active) })
	})
	return p, nil
}

// buildGraph wires every element. Handshake responses reach the one-time
// steps; after licensing the switch routes I/O channel data to the share
// decoder, whose updates join the fast-path updates at the same decoders.
func buildGraph(sess *session.Context, m *handshake.Machine, share *handshake.ShareDecoder, st *stats.Collector) (*graph.Graph, *graph.Switch, error) {
	reasm := framing.NewReassembler("reassembler")
	x224 := framing.NewX224Decoder("x224")
	domain := mcs.NewDecoder("mcs", sess.State)
	sw := graph.NewSwitch("licensed")
	slow := update.NewSlowPathDemux("slowpath")
	fast := update.NewFastPathDemux("fastpath", st)
	bitmap := update.NewBitmapDecoder("bitmap", sess, st)
	palette := update.NewPaletteDecoder("palette", sess, st)
	discard := graph.NewDiscard("discard")

	b := graph.NewBuilder().
		Add(reasm, x224, domain, sw, share, slow, fast, bitmap, palette, discard).
		Add(m.Negotiation, m.Connect, m.Attach, m.Join, m.License).
		Link(reasm.TPKT, x224).
		Link(reasm.FastPath, fast).
		Link(x224.Confirm, m.Negotiation).
		Link(x224.Data, domain).
		Link(domain.Connect, m.Connect).
		Link(domain.Attach, m.Attach).
		Link(domain.Join, m.Join).
		Link(domain.IO, sw).
		Link(domain.Redirect, discard).
		Link(domain.Other, discard).
		Link(sw.Before, m.License).
		Link(sw.After, share).
		Link(share.Update, slow).
		Link(share.Pointer, discard).
		Link(slow.Bitmap, bitmap).
		Link(slow.Palette, palette).
		Link(slow.Orders, discard).
		Link(slow.Sync, discard).
		Link(fast.Bitmap, bitmap).
		Link(fast.Palette, palette).
		Link(fast.Orders, discard).
		Link(fast.Sync, discard).
		Link(fast.Surface, discard).
		Link(fast.Pointer, discard)

	g, err := b.Build(reasm)
	if err != nil {
		return nil, nil, err
	}
	return g, sw, nil
}

// Session returns the session context.
func (p *Pipeline) Session() *session.Context { return p.sess }

// Graph returns the element graph.
func (p *Pipeline) Graph() *graph.Graph { return p.graph }

// Handshake returns the connection sequence state.
func (p *Pipeline) Handshake() handshake.State { return p.machine.State() }

// Mode returns the current writer stage.
func (p *Pipeline) Mode() Mode { return p.writer.Mode() }

// Active is closed once the server first activates the session.
func (p *Pipeline) Active() <-chan struct{} { return p.active }

// Run performs the handshake and processes server output until ctx is
// done, the server disconnects, or a protocol error occurs. A cancelled ctx
// returns nil.
func (p *Pipeline) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		p.transport.Close() //nolint:errcheck,gosec // unblocks the read loop
	})
	defer stop()

	p.events.Emit(event.Event{Type: event.Connected, Timestamp: time.Now()})
	if err := p.machine.Start(ctx); err != nil {
		return p.finish(parent, fmt.Errorf("starting handshake: %w", err))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Go(func() {
		errCh <- p.writer.Queued().Run(ctx)
	})
	wg.Go(func() {
		errCh <- p.readLoop()
	})

	err := <-errCh
	cancel()
	p.writer.Close()
	p.transport.Close() //nolint:errcheck,gosec // may already be closed
	wg.Wait()

	return p.finish(parent, err)
}

func (p *Pipeline) readLoop() error {
	raw := make([]byte, p.readSize)
	for {
		n, err := p.transport.Read(raw)
		if n > 0 {
			p.stats.AddBytesIn(int64(n))
			if perr := p.graph.Push(buffer.Copy(raw[:n])); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
	}
}

// finish maps the terminating error to what the caller sees and emits the
// Disconnected event. Errors caused by the caller cancelling parent are
// dropped.
func (p *Pipeline) finish(parent context.Context, err error) error {
	var protoErr *rdperr.Error
	if parent.Err() != nil && !errors.As(err, &protoErr) {
		err = nil
	}
	if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)) {
		reason := "connection closed by server"
		if code := p.sess.State.ErrorInfo(); code != 0 {
			reason = handshake.ErrorInfoText(code)
		}
		err = &rdperr.Error{Code: rdperr.Disconnected, Op: "session", Reason: reason, Err: err}
	}

	ev := event.Event{Type: event.Disconnected, Timestamp: time.Now(), Error: err}
	if err != nil {
		ev.Detail = rdperr.Reason(err)
		slog.Warn("session ended", "error", err, "handshake", p.machine.State())
	} else {
		slog.Info("session closed")
	}
	p.events.Emit(ev)
	return err
}

// SendInput wraps encoded input events in fast-path input PDUs and queues
// them. Input is only accepted after activation.
func (p *Pipeline) SendInput(events ...[]byte) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case <-p.active:
	default:
		p.stats.AddDroppedEvents(int64(len(events)))
		return ErrNotActive
	}
	for len(events) > 0 {
		n := min(len(events), maxInputBatch)
		pdu, err := framing.EncodeFastPathInput(events[:n]...)
		if err != nil {
			return err
		}
		if err := p.writer.Send(pdu); err != nil {
			return err
		}
		p.stats.AddInputEvents(int64(n))
		events = events[n:]
	}
	return nil
}

// Key sends a key press or release.
func (p *Pipeline) Key(k input.Key, loc input.Location, release bool) error {
	return p.SendInput(input.EncodeKey(k, loc, release))
}

// Pointer reports the pointer position and held buttons.
func (p *Pipeline) Pointer(x, y uint16, buttons input.Buttons) error {
	return p.SendInput(p.mouse.Update(x, y, buttons)...)
}

// Wheel scrolls by delta (positive scrolls up, 120 per notch).
func (p *Pipeline) Wheel(x, y uint16, delta int) error {
	return p.SendInput(input.Wheel(x, y, delta))
}

// TypeText sends text as key presses.
func (p *Pipeline) TypeText(text string) error {
	events, err := input.TypeText(text)
	if err != nil {
		return err
	}
	return p.SendInput(events...)
}
