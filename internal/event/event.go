package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	Connected Type = iota + 1
	Negotiated
	Upgraded
	StepCompleted
	Activated
	Resized
	PaletteChanged
	ErrorInfo
	InputSent
	Disconnected
)

var typeNames = [...]string{
	Connected:      "Connected",
	Negotiated:     "Negotiated",
	Upgraded:       "Upgraded",
	StepCompleted:  "StepCompleted",
	Activated:      "Activated",
	Resized:        "Resized",
	PaletteChanged: "PaletteChanged",
	ErrorInfo:      "ErrorInfo",
	InputSent:      "InputSent",
	Disconnected:   "Disconnected",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single milestone in a session's life.
type Event struct {
	Timestamp time.Time
	Error     error
	Type      Type
	Step      string // handshake step or protocol name
	Detail    string
	Width     int
	Height    int
	Code      uint32 // negotiated protocol or error-info code
}

// Sink receives events. Implementations must not block the caller for long:
// events are emitted from the parsing goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Chan forwards events to a channel, dropping them when it is full.
type Chan chan Event

func (c Chan) Emit(e Event) {
	select {
	case c <- e:
	default:
	}
}
