package input

import (
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Fast-path input event codes, placed in the top three bits of the event
// header.
const (
	eventScancode = 0x0
	eventMouse    = 0x1
	eventUnicode  = 0x4
)

// Keyboard event flags.
const (
	KeyRelease  = 0x01
	KeyExtended = 0x02
)

// EncodeScanCode returns the 2-byte fast-path keyboard event for s.
func EncodeScanCode(s ScanCode, release bool) []byte {
	flags := uint8(0)
	if release {
		flags |= KeyRelease
	}
	if s.Extended {
		flags |= KeyExtended
	}
	return []byte{eventScancode<<5 | flags, s.Code}
}

// EncodeKey maps k at loc and encodes it.
func EncodeKey(k Key, loc Location, release bool) []byte {
	return EncodeScanCode(Lookup(k, loc), release)
}

// EncodeUnicode returns the 3-byte fast-path unicode keyboard event for a
// UTF-16 code unit.
func EncodeUnicode(unit uint16, release bool) []byte {
	flags := uint8(0)
	if release {
		flags |= KeyRelease
	}
	return []byte{eventUnicode<<5 | flags, byte(unit), byte(unit >> 8)}
}

var shifted = map[rune]Key{
	'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
	'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,
	'_': KeyMinus, '+': KeyEqual, '{': KeyLeftBracket, '}': KeyRightBracket,
	'|': KeyBackslash, ':': KeySemicolon, '"': KeyQuote, '~': KeyBackquote,
	'<': KeyComma, '>': KeyPeriod, '?': KeySlash,
}

// keyForRune returns the key producing r on a US layout and whether shift
// is needed.
func keyForRune(r rune) (Key, bool, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return Key(r - 'a' + 'A'), false, true
	case r >= 'A' && r <= 'Z':
		return Key(r), true, true
	case r == '\n':
		return KeyEnter, false, true
	case r == '\t':
		return KeyTab, false, true
	}
	if k, ok := shifted[r]; ok {
		return k, true, true
	}
	if r < 0x80 && Known(Key(r)) {
		return Key(r), false, true
	}
	return 0, false, false
}

// TypeText returns press and release events that type text on a US
// layout. Shifted characters are wrapped in left-shift events.
func TypeText(text string) ([][]byte, error) {
	var events [][]byte
	shift := Lookup(KeyShift, LocationLeft)
	for i, r := range text {
		k, needShift, ok := keyForRune(r)
		if !ok {
			return nil, rdperr.New(rdperr.Unsupported, "type text", "no key for %q at offset %d", r, i)
		}
		s := Lookup(k, LocationStandard)
		if needShift {
			events = append(events, EncodeScanCode(shift, false))
		}
		events = append(events, EncodeScanCode(s, false), EncodeScanCode(s, true))
		if needShift {
			events = append(events, EncodeScanCode(shift, true))
		}
	}
	return events, nil
}
