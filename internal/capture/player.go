package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
	"golang.org/x/time/rate"
)

// PlayerOptions controls replay pacing.
type PlayerOptions struct {
	// Limiter caps inbound bytes per second. Nil means unlimited.
	Limiter *rate.Limiter
	// Speed replays with the recorded timing scaled by Speed (2 = twice as
	// fast). Zero replays as fast as possible.
	Speed float64
}

// Player is a Transport that serves the inbound chunks of a capture with
// their original boundaries. Writes are counted and discarded and Upgrade
// is a no-op, so a full session can be decoded without a server.
type Player struct {
	hdr     Header
	src     io.Reader
	dec     *zstd.Decoder
	r       *msgp.Reader
	opts    PlayerOptions
	ctx     context.Context
	cancel  context.CancelFunc
	start   time.Time
	pending []byte
	rec     Record
	written atomic.Int64
	closed  bool
	mu      sync.Mutex
}

var _ Transport = (*Player)(nil)

// NewPlayer reads the capture header from src.
func NewPlayer(src io.Reader, opts PlayerOptions) (*Player, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	r := msgp.NewReader(dec)
	var hdr Header
	if err := hdr.DecodeMsg(r); err != nil {
		dec.Close()
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if hdr.Version != FormatVersion {
		dec.Close()
		return nil, fmt.Errorf("unsupported capture version %d", hdr.Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		hdr:    hdr,
		src:    src,
		dec:    dec,
		r:      r,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Header returns the capture header.
func (p *Player) Header() Header { return p.hdr }

// Read returns the next inbound chunk, or as much of it as fits in b.
func (p *Player) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) == 0 {
		if err := p.ctx.Err(); err != nil {
			return 0, net.ErrClosed
		}
		if err := p.rec.DecodeMsg(p.r); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("read capture record: %w", err)
		}
		if p.rec.Dir != Inbound {
			continue
		}
		if err := p.pace(p.rec.Offset, len(p.rec.Data)); err != nil {
			return 0, net.ErrClosed
		}
		p.pending = p.rec.Data
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Player) pace(offset int64, n int) error {
	if p.opts.Speed > 0 {
		if p.start.IsZero() {
			p.start = time.Now()
		}
		due := p.start.Add(time.Duration(float64(offset) / p.opts.Speed))
		if d := time.Until(due); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-p.ctx.Done():
				return p.ctx.Err()
			case <-t.C:
			}
		}
	}
	if p.opts.Limiter != nil && n > 0 {
		return p.opts.Limiter.WaitN(p.ctx, min(n, p.opts.Limiter.Burst()))
	}
	return nil
}

// Write discards b.
func (p *Player) Write(b []byte) (int, error) {
	if p.ctx.Err() != nil {
		return 0, net.ErrClosed
	}
	p.written.Add(int64(len(b)))
	return len(b), nil
}

func (p *Player) Upgrade(context.Context) error { return nil }

// Written returns the number of bytes the client wrote.
func (p *Player) Written() int64 { return p.written.Load() }

// Close stops playback and closes src when it is a Closer. A pending Read
// returns net.ErrClosed.
func (p *Player) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.dec.Close()
	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open plays back the capture file at path.
func Open(path string, opts PlayerOptions) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	p, err := NewPlayer(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}
