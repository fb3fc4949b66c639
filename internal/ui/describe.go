package ui

import (
	"fmt"

	"github.com/bamsammich/rdpc/internal/stats"
)

// DescribeEvent renders ev as one line, or "" for events only shown when
// verbose.
func DescribeEvent(ev Event, verbose bool) string {
	switch ev.Type {
	case Connected:
		return "connected " + ev.Detail
	case Negotiated:
		if verbose {
			return fmt.Sprintf("negotiated protocol 0x%x", ev.Code)
		}
	case Upgraded:
		if verbose {
			return "tls established " + ev.Detail
		}
	case StepCompleted:
		if verbose {
			return "handshake: " + ev.Step
		}
	case Activated:
		return "session active"
	case Resized:
		return fmt.Sprintf("desktop %dx%d", ev.Width, ev.Height)
	case ErrorInfo:
		return fmt.Sprintf("server error info 0x%08x: %s", ev.Code, ev.Detail)
	case Disconnected:
		if ev.Detail == "" {
			return "disconnected"
		}
		return "disconnected: " + ev.Detail
	case PaletteChanged, InputSent:
	}
	return ""
}

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  in 2.1 MiB  out 14.0 KiB  rects 4,210  input 38  time 3m 17s
func CompletionSummary(snap stats.Snapshot, reason string) string {
	icon := "✓"
	if reason != "" {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  in %s  out %s  rects %s  input %s  time %s",
		icon,
		FormatBytes(snap.BytesIn),
		FormatBytes(snap.BytesOut),
		FormatCount(snap.Rectangles),
		FormatCount(snap.InputEvents),
		FormatDuration(snap.Elapsed),
	)
	if snap.DroppedEvents > 0 {
		base += fmt.Sprintf("  dropped %d", snap.DroppedEvents)
	}
	if reason != "" {
		base += "  " + reason
	}
	return base
}
