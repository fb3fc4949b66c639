package input

import (
	"encoding/binary"
	"sync"
)

// Pointer flags.
const (
	PtrWheelNegative = 0x0100
	PtrWheel         = 0x0200
	PtrMove          = 0x0800
	PtrButton1       = 0x1000 // left
	PtrButton2       = 0x2000 // right
	PtrButton3       = 0x4000 // middle
	PtrDown          = 0x8000

	wheelRotationMask = 0x01FF
)

// Buttons is a snapshot of which mouse buttons are held.
type Buttons uint8

const (
	ButtonLeft Buttons = 1 << iota
	ButtonRight
	ButtonMiddle
)

var buttonFlags = [...]struct {
	b    Buttons
	flag uint16
}{
	{ButtonLeft, PtrButton1},
	{ButtonRight, PtrButton2},
	{ButtonMiddle, PtrButton3},
}

// EncodePointer returns the 7-byte fast-path mouse event.
func EncodePointer(flags, x, y uint16) []byte {
	out := make([]byte, 1, 7)
	out[0] = eventMouse << 5
	out = binary.LittleEndian.AppendUint16(out, flags)
	out = binary.LittleEndian.AppendUint16(out, x)
	return binary.LittleEndian.AppendUint16(out, y)
}

// Mouse turns button-state snapshots into edge-triggered pointer events.
// It is safe for concurrent use.
type Mouse struct {
	mu      sync.Mutex
	buttons Buttons
	x, y    uint16
	placed  bool
}

// Update records the pointer at (x, y) with buttons held. Each button whose
// state differs from the previous snapshot yields its own press or release
// event; a position change with no button change yields a move event.
func (m *Mouse) Update(x, y uint16, buttons Buttons) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events [][]byte
	changed := m.buttons ^ buttons
	for _, bf := range buttonFlags {
		if changed&bf.b == 0 {
			continue
		}
		flags := bf.flag
		if buttons&bf.b != 0 {
			flags |= PtrDown
		}
		events = append(events, EncodePointer(flags, x, y))
	}
	moved := !m.placed || x != m.x || y != m.y
	if len(events) == 0 && moved {
		events = append(events, EncodePointer(PtrMove, x, y))
	}
	m.buttons, m.x, m.y, m.placed = buttons, x, y, true
	return events
}

// Buttons returns the last recorded button state.
func (m *Mouse) Buttons() Buttons {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buttons
}

// Wheel encodes a vertical wheel rotation. Positive delta scrolls up; one
// notch is 120. The rotation is clamped to the 9-bit signed range.
func Wheel(x, y uint16, delta int) []byte {
	delta = max(-256, min(255, delta))
	flags := uint16(PtrWheel)
	if delta < 0 {
		flags |= PtrWheelNegative
	}
	flags |= uint16(delta) & wheelRotationMask //nolint:gosec // G115: masked to 9 bits
	return EncodePointer(flags, x, y)
}
