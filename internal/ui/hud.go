package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/rdpc/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

const (
	trafficGraphWidth = 20
	hudMinInterval    = 50 * time.Millisecond // don't redraw faster than this
)

// hudPresenter prints session milestones as a feed above a one-line status
// that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   *stats.Collector
	target  string
	reason  string
	verbose bool

	hudDrawn    bool
	active      bool
	width       int
	height      int
	lastHUDDraw time.Time
}

func (p *hudPresenter) Run(events <-chan Event) error {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	redrawTicker := time.NewTicker(250 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case Activated:
		p.active = true
	case Resized:
		p.width, p.height = ev.Width, ev.Height
	case Disconnected:
		p.active = false
		p.reason = ev.Detail
	}

	line := DescribeEvent(ev, p.verbose)
	if line == "" {
		return
	}
	p.clearHUD()
	if ev.Type == StepCompleted {
		fmt.Fprintf(p.w, "%s%s%s\n", ansiDim, line, ansiReset)
	} else {
		fmt.Fprintln(p.w, line)
	}
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	state := "handshake"
	if p.active {
		state = fmt.Sprintf("active %dx%d", p.width, p.height)
	}
	graph := trafficGraph(p.stats.History(trafficGraphWidth), trafficGraphWidth)
	fmt.Fprintf(p.w, "%s  %s  %s  %s  rects %s  %s\n",
		p.target, state, graph,
		FormatRate(p.stats.RollingSpeed(5)),
		FormatCount(snap.Rectangles),
		FormatDuration(snap.Elapsed))

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up one line and clear to end of screen.
	fmt.Fprint(p.w, "\033[1A\033[J")
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot(), p.reason)
}
