package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/pipeline"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/screen"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/stats"
	"github.com/bamsammich/rdpc/internal/status"
	"github.com/bamsammich/rdpc/internal/ui"
)

const eventBuffer = 256

// eventTee forwards events to the presenter channel and, when --log is
// set, to the structured log. Emit after close only logs.
type eventTee struct {
	ch     chan event.Event
	log    event.Sink
	mu     sync.Mutex
	closed bool
}

func newEventTee(log event.Sink) *eventTee {
	return &eventTee{ch: make(chan event.Event, eventBuffer), log: log}
}

func (t *eventTee) Emit(ev event.Event) {
	if t.log != nil {
		t.log.Emit(ev)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	event.Chan(t.ch).Emit(ev)
}

func (t *eventTee) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
}

// rdpSession bundles one pipeline with the collaborators the CLI attaches
// to it.
type rdpSession struct {
	id          string
	target      string
	opts        *options
	collector   *stats.Collector
	metrics     *stats.Metrics
	fb          *screen.Framebuffer
	events      *eventTee
	pipe        *pipeline.Pipeline
	fingerprint func() string
}

func (o *options) newSession(id, target string, t pipeline.Transport, cfg session.Config) (*rdpSession, error) {
	slog.SetDefault(slog.Default().With("session_id", id))

	var logSink event.Sink
	if o.logFile != "" {
		logSink = ui.EventLogger{Logger: slog.Default()}
	}

	s := &rdpSession{
		id:          id,
		target:      target,
		opts:        o,
		collector:   stats.NewCollector(),
		fb:          screen.New(int(cfg.Width), int(cfg.Height)),
		events:      newEventTee(logSink),
		fingerprint: func() string { return "" },
	}
	s.metrics = stats.NewMetrics(s.collector, id)

	p, err := pipeline.New(t, pipeline.Options{
		Renderer: s.fb,
		Events:   s.events,
		Stats:    s.collector,
		Steps:    s.metrics,
		Session:  cfg,
	})
	if err != nil {
		return nil, err
	}
	s.pipe = p
	return s, nil
}

// run drives the pipeline with a presenter attached and prints the summary.
func (s *rdpSession) run(ctx context.Context) error {
	isTTY := ui.IsTTY(os.Stderr.Fd())
	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stderr,
		ErrWriter: os.Stderr,
		Stats:     s.collector,
		Target:    s.target,
		IsTTY:     isTTY,
		Quiet:     s.opts.quiet,
		Verbose:   s.opts.verbose > 0,
	})

	var (
		presenterErr error
		wg           sync.WaitGroup
	)
	wg.Go(func() {
		presenterErr = presenter.Run(s.events.ch)
	})

	slog.Debug("starting session", "target", s.target)
	err := s.pipe.Run(ctx)
	s.events.close()
	wg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if !s.opts.quiet {
		if isTTY {
			fmt.Fprintln(os.Stderr, ui.RenderSummary(s.info(err), s.collector.Snapshot()))
		} else if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}
	return err
}

func (s *rdpSession) active() bool {
	select {
	case <-s.pipe.Active():
		return true
	default:
		return false
	}
}

func (s *rdpSession) info(err error) ui.SessionInfo {
	scr := s.pipe.Session().Screen
	w, h := scr.Size()
	info := ui.SessionInfo{
		ID:          s.id,
		Target:      s.target,
		Fingerprint: s.fingerprint(),
		Width:       int(w),
		Height:      int(h),
		Depth:       int(scr.Depth()),
	}
	if err != nil {
		info.Reason = rdperr.Reason(err)
	}
	return info
}

// report is the /session status body.
func (s *rdpSession) report() status.Report {
	scr := s.pipe.Session().Screen
	w, h := scr.Size()
	return status.Report{
		ID:          s.id,
		Target:      s.target,
		State:       s.pipe.Handshake().String(),
		Fingerprint: s.fingerprint(),
		Protocol:    s.pipe.Session().State.Snapshot(),
		Stats:       s.collector.Snapshot(),
		Active:      s.active(),
		Width:       int(w),
		Height:      int(h),
		Depth:       int(scr.Depth()),
	}
}
