package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/event"
	"github.com/bamsammich/rdpc/internal/stats"
)

func TestHudPresenterFeedAndStatus(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), target: "desktop:3389"}

	events := make(chan Event, 10)
	events <- Event{Type: event.Resized, Width: 800, Height: 600}
	events <- Event{Type: event.Activated}
	close(events)

	require.NoError(t, p.Run(events))

	s := out.String()
	assert.Contains(t, s, "desktop 800x600")
	assert.Contains(t, s, "session active")
	assert.Contains(t, s, "desktop:3389  active 800x600")
	// The status line is cleared when the channel closes.
	assert.True(t, strings.HasSuffix(s, "\033[1A\033[J"))
	assert.False(t, p.hudDrawn)
}

func TestHudPresenterHidesStepsUnlessVerbose(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector()}
	p.handleEvent(Event{Type: event.StepCompleted, Step: "join"})
	assert.NotContains(t, out.String(), "handshake: join")

	p.verbose = true
	p.handleEvent(Event{Type: event.StepCompleted, Step: "join"})
	assert.Contains(t, out.String(), ansiDim+"handshake: join"+ansiReset)
	assert.Contains(t, out.String(), "handshake  ")
}

func TestHudPresenterSummary(t *testing.T) {
	p := &hudPresenter{w: &bytes.Buffer{}, stats: stats.NewCollector()}
	p.handleEvent(Event{Type: event.Activated})
	p.handleEvent(Event{Type: event.Disconnected, Detail: "idle session time limit reached"})

	assert.False(t, p.active)
	assert.Contains(t, p.Summary(), "idle session time limit reached")
}

func TestNewPresenter(t *testing.T) {
	collector := stats.NewCollector()

	_, ok := NewPresenter(Config{Quiet: true, Stats: collector}).(*quietPresenter)
	assert.True(t, ok)
	_, ok = NewPresenter(Config{Stats: collector}).(*plainPresenter)
	assert.True(t, ok)
	_, ok = NewPresenter(Config{IsTTY: true, Stats: collector}).(*hudPresenter)
	assert.True(t, ok)
}
