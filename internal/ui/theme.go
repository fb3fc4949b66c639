package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/rdpc/internal/config"
	"github.com/bamsammich/rdpc/internal/stats"
)

// Catppuccin Mocha palette, mutable so config can override.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorBright = lipgloss.Color("#cdd6f4")
)

// Pre-built styles, rebuilt by rebuildStyles() after color changes.
var (
	styleHeader lipgloss.Style
	styleLabel  lipgloss.Style
	styleValue  lipgloss.Style
	styleOK     lipgloss.Style
	styleFailed lipgloss.Style
	styleWarn   lipgloss.Style
	styleBox    lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	styleLabel = lipgloss.NewStyle().Foreground(ColorMuted).Width(10)
	styleValue = lipgloss.NewStyle().Foreground(ColorBlue)
	styleOK = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
	styleFailed = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	styleWarn = lipgloss.NewStyle().Foreground(ColorYellow)
	styleBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1)
}

// ApplyTheme overrides colors from a config ThemeConfig and rebuilds all styles.
func ApplyTheme(tc config.ThemeConfig) {
	if tc.Green != nil {
		ColorGreen = lipgloss.Color(*tc.Green)
	}
	if tc.Blue != nil {
		ColorBlue = lipgloss.Color(*tc.Blue)
	}
	if tc.Yellow != nil {
		ColorYellow = lipgloss.Color(*tc.Yellow)
	}
	if tc.Red != nil {
		ColorRed = lipgloss.Color(*tc.Red)
	}
	if tc.Muted != nil {
		ColorMuted = lipgloss.Color(*tc.Muted)
	}
	if tc.Bright != nil {
		ColorBright = lipgloss.Color(*tc.Bright)
	}
	rebuildStyles()
}

// SessionInfo is what the summary card shows besides traffic counters.
type SessionInfo struct {
	ID          string
	Target      string
	Fingerprint string
	Reason      string // empty for a clean shutdown
	Width       int
	Height      int
	Depth       int
}

// RenderSummary renders a styled end-of-session card for a terminal.
func RenderSummary(info SessionInfo, snap stats.Snapshot) string {
	status := styleOK.Render("✓ session ended")
	if info.Reason != "" {
		status = styleFailed.Render("✗ " + info.Reason)
	}

	rows := [][2]string{
		{"target", info.Target},
		{"session", info.ID},
	}
	if info.Width > 0 {
		rows = append(rows, [2]string{"desktop", fmt.Sprintf("%dx%d@%d", info.Width, info.Height, info.Depth)})
	}
	if info.Fingerprint != "" {
		rows = append(rows, [2]string{"cert", info.Fingerprint})
	}
	rows = append(rows,
		[2]string{"traffic", fmt.Sprintf("%s in / %s out", FormatBytes(snap.BytesIn), FormatBytes(snap.BytesOut))},
		[2]string{"updates", fmt.Sprintf("%s rects  %s palettes", FormatCount(snap.Rectangles), FormatCount(snap.PaletteUpdates))},
		[2]string{"input", FormatCount(snap.InputEvents)},
		[2]string{"time", FormatDuration(snap.Elapsed)},
	)

	var b strings.Builder
	b.WriteString(styleHeader.Render("rdpc"))
	b.WriteString("  ")
	b.WriteString(status)
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(styleLabel.Render(r[0]))
		b.WriteString(styleValue.Render(r[1]))
	}
	if snap.DroppedEvents > 0 {
		b.WriteString("\n")
		b.WriteString(styleWarn.Render(fmt.Sprintf("%d input events dropped before activation", snap.DroppedEvents)))
	}
	return styleBox.Render(b.String())
}
