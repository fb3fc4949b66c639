package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/rdpc/internal/config"
	"github.com/bamsammich/rdpc/internal/stats"
)

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(SessionInfo{
		ID:          "6f9619ff",
		Target:      "desktop:3389",
		Fingerprint: "SHA256:abc",
		Width:       1024,
		Height:      768,
		Depth:       16,
	}, stats.Snapshot{BytesIn: 4096, Rectangles: 12, DroppedEvents: 1})

	for _, want := range []string{"session ended", "desktop:3389", "1024x768@16", "SHA256:abc", "4.0 KiB in", "12 rects", "1 input events dropped"} {
		assert.Contains(t, out, want)
	}

	failed := RenderSummary(SessionInfo{Target: "x", Reason: "connection closed by server"}, stats.Snapshot{})
	assert.Contains(t, failed, "connection closed by server")
	assert.NotContains(t, failed, "desktop")
}

func TestApplyTheme(t *testing.T) {
	orig := ColorGreen
	t.Cleanup(func() {
		ColorGreen = orig
		rebuildStyles()
	})

	green := "#00ff00"
	ApplyTheme(config.ThemeConfig{Green: &green})
	assert.Equal(t, lipgloss.Color("#00ff00"), ColorGreen)
	assert.Equal(t, lipgloss.Color("#00ff00"), styleOK.GetForeground())
}
