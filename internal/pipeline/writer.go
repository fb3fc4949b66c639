package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bamsammich/rdpc/internal/queue"
)

// Mode selects which writer outbound PDUs go through.
type Mode int32

const (
	// ModeHandshake writes each PDU synchronously from the caller.
	ModeHandshake Mode = iota
	// ModeQueued hands PDUs to the single writer goroutine.
	ModeQueued
)

func (m Mode) String() string {
	if m == ModeQueued {
		return "queued"
	}
	return "handshake"
}

// ByteCounter receives the number of bytes written. *stats.Collector
// satisfies it.
type ByteCounter interface {
	AddBytesOut(n int64)
}

// HandshakeWriter writes PDUs in lock-step with the read loop.
type HandshakeWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (h *HandshakeWriter) Send(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(p); err != nil {
		return fmt.Errorf("write pdu: %w", err)
	}
	return nil
}

// QueuedWriter serializes PDUs from any goroutine onto the transport. Send
// enqueues; Run drains in arrival order and flushes whenever the queue is
// empty so bursts coalesce into fewer segments.
type QueuedWriter struct {
	q  *queue.Queue
	bw *bufio.Writer
	mu *sync.Mutex
}

func (qw *QueuedWriter) Send(p []byte) error {
	return qw.q.Push(context.Background(), p)
}

// Len returns the number of PDUs waiting to be written.
func (qw *QueuedWriter) Len() int { return qw.q.Len() }

// Run drains the queue until ctx is done or the queue is closed.
func (qw *QueuedWriter) Run(ctx context.Context) error {
	for {
		p, err := qw.q.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				return qw.flush()
			}
			return err
		}
		if err := qw.write(p); err != nil {
			return err
		}
	}
}

func (qw *QueuedWriter) write(p []byte) error {
	qw.mu.Lock()
	defer qw.mu.Unlock()
	if _, err := qw.bw.Write(p); err != nil {
		return fmt.Errorf("write pdu: %w", err)
	}
	if qw.q.Len() == 0 {
		if err := qw.bw.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}

func (qw *QueuedWriter) flush() error {
	qw.mu.Lock()
	defer qw.mu.Unlock()
	return qw.bw.Flush()
}

// Writer implements session.Sender over both stages. The mode is read on
// every Send, so switching takes effect for the next PDU.
type Writer struct {
	handshake *HandshakeWriter
	queued    *QueuedWriter
	counter   ByteCounter
	mode      atomic.Int32
}

// NewWriter creates a writer in ModeHandshake. counter may be nil.
func NewWriter(w io.Writer, capacity int, counter ByteCounter) *Writer {
	mu := &sync.Mutex{}
	return &Writer{
		handshake: &HandshakeWriter{w: w, mu: mu},
		queued:    &QueuedWriter{q: queue.New(capacity), bw: bufio.NewWriterSize(w, 64*1024), mu: mu},
		counter:   counter,
	}
}

// Send writes or enqueues p depending on the current mode.
func (w *Writer) Send(p []byte) error {
	var err error
	if w.Mode() == ModeQueued {
		err = w.queued.Send(p)
	} else {
		err = w.handshake.Send(p)
	}
	if err == nil && w.counter != nil {
		w.counter.AddBytesOut(int64(len(p)))
	}
	return err
}

// SetMode switches stages.
func (w *Writer) SetMode(m Mode) { w.mode.Store(int32(m)) }

// Mode returns the current stage.
func (w *Writer) Mode() Mode { return Mode(w.mode.Load()) }

// Queued returns the queued stage, whose Run must be driven by the owner.
func (w *Writer) Queued() *QueuedWriter { return w.queued }

// Close stops accepting queued PDUs. Already queued PDUs are still written
// by Run.
func (w *Writer) Close() { w.queued.q.Close() }
