package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/rdpc/internal/stats"
)

// plainPresenter prints one line per session milestone to stdout and
// periodic traffic to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	target  string
	reason  string
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	if line := DescribeEvent(ev, p.verbose); line != "" {
		fmt.Fprintln(p.w, line)
	}
	if ev.Type == Disconnected {
		p.reason = ev.Detail
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "traffic: in %s out %s  %s  rects %s  input %s\n",
		FormatBytes(snap.BytesIn), FormatBytes(snap.BytesOut),
		FormatRate(p.stats.RollingSpeed(5)),
		FormatCount(snap.Rectangles), FormatCount(snap.InputEvents),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot(), p.reason)
}
