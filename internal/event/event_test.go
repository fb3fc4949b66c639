package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "Connected", typ: Connected},
		{want: "Negotiated", typ: Negotiated},
		{want: "Upgraded", typ: Upgraded},
		{want: "StepCompleted", typ: StepCompleted},
		{want: "Activated", typ: Activated},
		{want: "Resized", typ: Resized},
		{want: "PaletteChanged", typ: PaletteChanged},
		{want: "ErrorInfo", typ: ErrorInfo},
		{want: "InputSent", typ: InputSent},
		{want: "Disconnected", typ: Disconnected},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.Step)
	assert.Zero(t, e.Width)
	assert.Zero(t, e.Code)
	require.NoError(t, e.Error)
}

func TestChanDropsWhenFull(t *testing.T) {
	ch := make(Chan, 1)
	ch.Emit(Event{Type: Connected, Timestamp: time.Now()})
	ch.Emit(Event{Type: Activated})

	require.Len(t, ch, 1)
	assert.Equal(t, Connected, (<-ch).Type)
}

func TestSinkFunc(t *testing.T) {
	var got []Type
	s := SinkFunc(func(e Event) { got = append(got, e.Type) })
	s.Emit(Event{Type: Resized, Width: 800, Height: 600})
	s.Emit(Event{Type: Disconnected, Error: errors.New("gone")})
	Discard.Emit(Event{Type: ErrorInfo})

	assert.Equal(t, []Type{Resized, Disconnected}, got)
}
