// Package input encodes local keyboard and mouse activity as fast-path
// input events.
package input

// Key identifies a physical key. Keys that produce a printable character
// without shift use that character's code; the rest start at 0x100.
type Key int

const (
	KeySpace        Key = ' '
	KeyQuote        Key = '\''
	KeyComma        Key = ','
	KeyMinus        Key = '-'
	KeyPeriod       Key = '.'
	KeySlash        Key = '/'
	Key0            Key = '0'
	Key1            Key = '1'
	Key2            Key = '2'
	Key3            Key = '3'
	Key4            Key = '4'
	Key5            Key = '5'
	Key6            Key = '6'
	Key7            Key = '7'
	Key8            Key = '8'
	Key9            Key = '9'
	KeySemicolon    Key = ';'
	KeyEqual        Key = '='
	KeyA            Key = 'A'
	KeyB            Key = 'B'
	KeyC            Key = 'C'
	KeyD            Key = 'D'
	KeyE            Key = 'E'
	KeyF            Key = 'F'
	KeyG            Key = 'G'
	KeyH            Key = 'H'
	KeyI            Key = 'I'
	KeyJ            Key = 'J'
	KeyK            Key = 'K'
	KeyL            Key = 'L'
	KeyM            Key = 'M'
	KeyN            Key = 'N'
	KeyO            Key = 'O'
	KeyP            Key = 'P'
	KeyQ            Key = 'Q'
	KeyR            Key = 'R'
	KeyS            Key = 'S'
	KeyT            Key = 'T'
	KeyU            Key = 'U'
	KeyV            Key = 'V'
	KeyW            Key = 'W'
	KeyX            Key = 'X'
	KeyY            Key = 'Y'
	KeyZ            Key = 'Z'
	KeyLeftBracket  Key = '['
	KeyBackslash    Key = '\\'
	KeyRightBracket Key = ']'
	KeyBackquote    Key = '`'
)

const (
	KeyEscape Key = 0x100 + iota
	KeyBackspace
	KeyTab
	KeyEnter
	KeyCapsLock
	KeyShift
	KeyControl
	KeyAlt
	KeyMeta
	KeyMenu
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	KeyPrintScreen
	KeyScrollLock
	KeyInsert
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyNumLock
	KeyMultiply
	KeyAdd
	KeyClear
)

// Location distinguishes keys that exist more than once on a keyboard.
type Location int

const (
	LocationStandard Location = iota
	LocationLeft
	LocationRight
	LocationNumpad
)

// ScanCode is a set-1 scan code and whether it needs the extended prefix.
type ScanCode struct {
	Code     uint8
	Extended bool
}

// SpaceScanCode is what unmapped keys produce.
var SpaceScanCode = ScanCode{Code: 0x39}

type keyAt struct {
	key Key
	loc Location
}

func sc(code uint8) ScanCode  { return ScanCode{Code: code} }
func ext(code uint8) ScanCode { return ScanCode{Code: code, Extended: true} }

var standard = map[Key]ScanCode{
	KeyEscape:       sc(0x01),
	Key1:            sc(0x02),
	Key2:            sc(0x03),
	Key3:            sc(0x04),
	Key4:            sc(0x05),
	Key5:            sc(0x06),
	Key6:            sc(0x07),
	Key7:            sc(0x08),
	Key8:            sc(0x09),
	Key9:            sc(0x0A),
	Key0:            sc(0x0B),
	KeyMinus:        sc(0x0C),
	KeyEqual:        sc(0x0D),
	KeyBackspace:    sc(0x0E),
	KeyTab:          sc(0x0F),
	KeyQ:            sc(0x10),
	KeyW:            sc(0x11),
	KeyE:            sc(0x12),
	KeyR:            sc(0x13),
	KeyT:            sc(0x14),
	KeyY:            sc(0x15),
	KeyU:            sc(0x16),
	KeyI:            sc(0x17),
	KeyO:            sc(0x18),
	KeyP:            sc(0x19),
	KeyLeftBracket:  sc(0x1A),
	KeyRightBracket: sc(0x1B),
	KeyEnter:        sc(0x1C),
	KeyControl:      sc(0x1D),
	KeyA:            sc(0x1E),
	KeyS:            sc(0x1F),
	KeyD:            sc(0x20),
	KeyF:            sc(0x21),
	KeyG:            sc(0x22),
	KeyH:            sc(0x23),
	KeyJ:            sc(0x24),
	KeyK:            sc(0x25),
	KeyL:            sc(0x26),
	KeySemicolon:    sc(0x27),
	KeyQuote:        sc(0x28),
	KeyBackquote:    sc(0x29),
	KeyShift:        sc(0x2A),
	KeyBackslash:    sc(0x2B),
	KeyZ:            sc(0x2C),
	KeyX:            sc(0x2D),
	KeyC:            sc(0x2E),
	KeyV:            sc(0x2F),
	KeyB:            sc(0x30),
	KeyN:            sc(0x31),
	KeyM:            sc(0x32),
	KeyComma:        sc(0x33),
	KeyPeriod:       sc(0x34),
	KeySlash:        sc(0x35),
	KeyMultiply:     sc(0x37),
	KeyAlt:          sc(0x38),
	KeySpace:        sc(0x39),
	KeyCapsLock:     sc(0x3A),
	KeyF1:           sc(0x3B),
	KeyF2:           sc(0x3C),
	KeyF3:           sc(0x3D),
	KeyF4:           sc(0x3E),
	KeyF5:           sc(0x3F),
	KeyF6:           sc(0x40),
	KeyF7:           sc(0x41),
	KeyF8:           sc(0x42),
	KeyF9:           sc(0x43),
	KeyF10:          sc(0x44),
	KeyNumLock:      sc(0x45),
	KeyScrollLock:   sc(0x46),
	KeyAdd:          sc(0x4E),
	KeyClear:        sc(0x4C),
	KeyF11:          sc(0x57),
	KeyF12:          sc(0x58),
	KeyHome:         ext(0x47),
	KeyUp:           ext(0x48),
	KeyPageUp:       ext(0x49),
	KeyLeft:         ext(0x4B),
	KeyRight:        ext(0x4D),
	KeyEnd:          ext(0x4F),
	KeyDown:         ext(0x50),
	KeyPageDown:     ext(0x51),
	KeyInsert:       ext(0x52),
	KeyDelete:       ext(0x53),
	KeyMeta:         ext(0x5B),
	KeyMenu:         ext(0x5D),
	KeyPrintScreen:  ext(0x37),
}

// located holds the keys whose scan code depends on where they are.
var located = map[keyAt]ScanCode{
	{KeyShift, LocationRight}:   sc(0x36),
	{KeyControl, LocationRight}: ext(0x1D),
	{KeyAlt, LocationRight}:     ext(0x38),
	{KeyMeta, LocationRight}:    ext(0x5C),

	{KeyEnter, LocationNumpad}:    ext(0x1C),
	{KeySlash, LocationNumpad}:    ext(0x35),
	{KeyMinus, LocationNumpad}:    sc(0x4A),
	{KeyPeriod, LocationNumpad}:   sc(0x53),
	{KeyDelete, LocationNumpad}:   sc(0x53),
	{Key0, LocationNumpad}:        sc(0x52),
	{Key1, LocationNumpad}:        sc(0x4F),
	{Key2, LocationNumpad}:        sc(0x50),
	{Key3, LocationNumpad}:        sc(0x51),
	{Key4, LocationNumpad}:        sc(0x4B),
	{Key5, LocationNumpad}:        sc(0x4C),
	{Key6, LocationNumpad}:        sc(0x4D),
	{Key7, LocationNumpad}:        sc(0x47),
	{Key8, LocationNumpad}:        sc(0x48),
	{Key9, LocationNumpad}:        sc(0x49),
	{KeyInsert, LocationNumpad}:   sc(0x52),
	{KeyEnd, LocationNumpad}:      sc(0x4F),
	{KeyDown, LocationNumpad}:     sc(0x50),
	{KeyPageDown, LocationNumpad}: sc(0x51),
	{KeyLeft, LocationNumpad}:     sc(0x4B),
	{KeyRight, LocationNumpad}:    sc(0x4D),
	{KeyHome, LocationNumpad}:     sc(0x47),
	{KeyUp, LocationNumpad}:       sc(0x48),
	{KeyPageUp, LocationNumpad}:   sc(0x49),
}

// Lookup maps a key at a location to its scan code. A location-specific
// entry wins, then the key's standard code; anything else is the space bar.
func Lookup(k Key, loc Location) ScanCode {
	if s, ok := located[keyAt{k, loc}]; ok {
		return s
	}
	if s, ok := standard[k]; ok {
		return s
	}
	return SpaceScanCode
}

// Known reports whether k has an entry of its own rather than the space
// fallback.
func Known(k Key) bool {
	_, ok := standard[k]
	return ok
}
