package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/framing"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

func TestLookupTotality(t *testing.T) {
	t.Parallel()

	locations := []Location{LocationStandard, LocationLeft, LocationRight, LocationNumpad}
	for k := range standard {
		for _, loc := range locations {
			s := Lookup(k, loc)
			assert.NotZero(t, s.Code, "key %d at %d", k, loc)
			if k != KeySpace {
				assert.NotEqual(t, SpaceScanCode, s, "mapped key %d at %d fell back to space", k, loc)
			}
		}
	}
	for k := range located {
		assert.Contains(t, standard, k.key, "located key %d has no standard entry", k.key)
	}

	for _, k := range []Key{0, Key('a'), Key(0x7F), Key(0x1000), KeyClear + 1} {
		for _, loc := range locations {
			assert.Equal(t, SpaceScanCode, Lookup(k, loc), "key %d at %d", k, loc)
		}
	}
}

func TestLookupLocations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
		loc  Location
		want ScanCode
	}{
		{"letter", KeyA, LocationStandard, ScanCode{Code: 0x1E}},
		{"left shift", KeyShift, LocationLeft, ScanCode{Code: 0x2A}},
		{"right shift", KeyShift, LocationRight, ScanCode{Code: 0x36}},
		{"left control", KeyControl, LocationLeft, ScanCode{Code: 0x1D}},
		{"right control", KeyControl, LocationRight, ScanCode{Code: 0x1D, Extended: true}},
		{"right alt", KeyAlt, LocationRight, ScanCode{Code: 0x38, Extended: true}},
		{"enter", KeyEnter, LocationStandard, ScanCode{Code: 0x1C}},
		{"numpad enter", KeyEnter, LocationNumpad, ScanCode{Code: 0x1C, Extended: true}},
		{"arrow", KeyUp, LocationStandard, ScanCode{Code: 0x48, Extended: true}},
		{"numpad arrow", KeyUp, LocationNumpad, ScanCode{Code: 0x48}},
		{"numpad digit", Key7, LocationNumpad, ScanCode{Code: 0x47}},
		{"numpad divide", KeySlash, LocationNumpad, ScanCode{Code: 0x35, Extended: true}},
		{"digit on numpad-less location", Key7, LocationLeft, ScanCode{Code: 0x08}},
		{"left meta", KeyMeta, LocationLeft, ScanCode{Code: 0x5B, Extended: true}},
		{"right meta", KeyMeta, LocationRight, ScanCode{Code: 0x5C, Extended: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Lookup(tt.key, tt.loc))
		})
	}
}

func TestEncodeKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x00, 0x1E}, EncodeKey(KeyA, LocationStandard, false))
	assert.Equal(t, []byte{0x01, 0x1E}, EncodeKey(KeyA, LocationStandard, true))
	assert.Equal(t, []byte{0x02, 0x4B}, EncodeKey(KeyLeft, LocationStandard, false))
	assert.Equal(t, []byte{0x03, 0x4B}, EncodeKey(KeyLeft, LocationStandard, true))
	assert.Equal(t, []byte{0x00, 0x39}, EncodeKey(Key(0x999), LocationStandard, false), "unmapped keys send space")
	assert.Equal(t, []byte{0x81, 0xAC, 0x20}, EncodeUnicode(0x20AC, true))
}

func TestFastPathKeyboardPDU(t *testing.T) {
	t.Parallel()

	pdu, err := framing.EncodeFastPathInput(
		EncodeKey(KeyA, LocationStandard, false),
		EncodeKey(KeyA, LocationStandard, true),
	)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x06, 0x00, 0x1E, 0x01, 0x1E}, pdu)
}

func TestTypeText(t *testing.T) {
	t.Parallel()

	events, err := TypeText("a!")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		{0x00, 0x1E}, {0x01, 0x1E}, // a
		{0x00, 0x2A}, {0x00, 0x02}, {0x01, 0x02}, {0x01, 0x2A}, // shift+1
	}, events)

	events, err = TypeText("Hi\n")
	require.NoError(t, err)
	assert.Len(t, events, 4+2+2)

	_, err = TypeText("é")
	assert.Equal(t, rdperr.Unsupported, rdperr.CodeOf(err))
}

func TestMouseUpdate(t *testing.T) {
	t.Parallel()

	var m Mouse
	tests := []struct {
		name    string
		x, y    uint16
		buttons Buttons
		want    [][]byte
	}{
		{
			name: "first sighting moves",
			x:    10, y: 20,
			want: [][]byte{EncodePointer(PtrMove, 10, 20)},
		},
		{
			name: "same position and buttons is silent",
			x:    10, y: 20,
		},
		{
			name: "left press",
			x:    10, y: 20, buttons: ButtonLeft,
			want: [][]byte{EncodePointer(PtrButton1|PtrDown, 10, 20)},
		},
		{
			name: "drag",
			x:    11, y: 20, buttons: ButtonLeft,
			want: [][]byte{EncodePointer(PtrMove, 11, 20)},
		},
		{
			name: "left release and right press in one snapshot",
			x:    11, y: 20, buttons: ButtonRight,
			want: [][]byte{
				EncodePointer(PtrButton1, 11, 20),
				EncodePointer(PtrButton2|PtrDown, 11, 20),
			},
		},
		{
			name: "everything released",
			x:    11, y: 20,
			want: [][]byte{EncodePointer(PtrButton2, 11, 20)},
		},
	}
	// steps depend on each other, so no t.Parallel in subtests
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Update(tt.x, tt.y, tt.buttons))
		})
	}
	assert.Equal(t, Buttons(0), m.Buttons())
}

func TestEncodePointer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x20, 0x00, 0x90, 0x34, 0x12, 0x78, 0x56}, EncodePointer(PtrButton1|PtrDown, 0x1234, 0x5678))
}

func TestWheel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		flags uint16
	}{
		{delta: 120, flags: PtrWheel | 0x078},
		{delta: -120, flags: PtrWheel | PtrWheelNegative | 0x088},
		{delta: 1000, flags: PtrWheel | 0x0FF},
		{delta: -1000, flags: PtrWheel | PtrWheelNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, EncodePointer(tt.flags, 5, 6), Wheel(5, 6, tt.delta), "delta %d", tt.delta)
	}
}
