package ui

import "github.com/bamsammich/rdpc/internal/event"

// Event is a session event.
type Event = event.Event

// Re-export event types for convenience.
const (
	Connected      = event.Connected
	Negotiated     = event.Negotiated
	Upgraded       = event.Upgraded
	StepCompleted  = event.StepCompleted
	Activated      = event.Activated
	Resized        = event.Resized
	PaletteChanged = event.PaletteChanged
	ErrorInfo      = event.ErrorInfo
	InputSent      = event.InputSent
	Disconnected   = event.Disconnected
)
