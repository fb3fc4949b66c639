package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
)

// Transport is the stream a session runs over.
type Transport interface {
	io.ReadWriteCloser
	Upgrade(ctx context.Context) error
}

// Recorder is a Transport that copies every chunk read from or written to
// the wrapped transport into a capture stream.
type Recorder struct {
	t     Transport
	dst   io.WriteCloser
	enc   *zstd.Encoder
	w     *msgp.Writer
	start time.Time
	err   error
	mu    sync.Mutex
}

var _ Transport = (*Recorder)(nil)

// NewRecorder writes hdr to dst and returns a recording wrapper around t.
// Closing the Recorder closes t and dst.
func NewRecorder(t Transport, dst io.WriteCloser, hdr Header) (*Recorder, error) {
	enc, err := zstd.NewWriter(dst,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}

	start := time.Now()
	hdr.Version = FormatVersion
	if hdr.Started == 0 {
		hdr.Started = start.UnixNano()
	}

	w := msgp.NewWriter(enc)
	if err := hdr.EncodeMsg(w); err != nil {
		enc.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Recorder{t: t, dst: dst, enc: enc, w: w, start: start}, nil
}

func (r *Recorder) record(dir Direction, p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	rec := Record{Dir: dir, Offset: int64(time.Since(r.start)), Data: p}
	r.err = rec.EncodeMsg(r.w)
}

func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.t.Read(p)
	if n > 0 {
		r.record(Inbound, p[:n])
	}
	return n, err
}

func (r *Recorder) Write(p []byte) (int, error) {
	n, err := r.t.Write(p)
	if n > 0 {
		r.record(Outbound, p[:n])
	}
	return n, err
}

// Upgrade upgrades the wrapped transport and marks the switch.
func (r *Recorder) Upgrade(ctx context.Context) error {
	if err := r.t.Upgrade(ctx); err != nil {
		return err
	}
	r.record(Upgrade, nil)
	return nil
}

// Err returns the first error hit while writing the capture.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the transport and finishes the capture stream. It is safe
// to call more than once.
func (r *Recorder) Close() error {
	err := r.t.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return err
	}
	err = errors.Join(err, r.err, r.w.Flush(), r.enc.Close(), r.dst.Close())
	r.enc = nil
	if r.err == nil {
		r.err = errors.New("recorder closed")
	}
	return err
}

// Create records t into a new capture file at path.
func Create(path string, t Transport, hdr Header) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	r, err := NewRecorder(t, f, hdr)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}
