package keystroke

import (
	"unicode"

	"kswitchd/internal/layout"
)

// Options configures platform capture.
type Options struct {
	// Devices lists input device paths. Empty means autodetect.
	Devices []string

	// Layout reports the active keyboard layout. Key codes are translated
	// to characters of that layout. Nil means US.
	Layout func() layout.ID
}

// Linux input event key codes, from linux/input-event-codes.h.
const (
	codeEsc        = 1
	codeBackspace  = 14
	codeTab        = 15
	codeEnter      = 28
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeSpace      = 57
	codeCapsLock   = 58
	codeKPEnter    = 96
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeHome       = 102
	codeUp         = 103
	codePageUp     = 104
	codeLeft       = 105
	codeRight      = 106
	codeEnd        = 107
	codeDown       = 108
	codePageDown   = 109
	codeInsert     = 110
	codeDelete     = 111
	codeLeftMeta   = 125
	codeRightMeta  = 126
)

// usKeys maps key codes to the unshifted and shifted US characters.
var usKeys = map[uint16][2]rune{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
}

var specialKeys = map[uint16]string{
	codeEsc:      KeyEscape,
	codeHome:     KeyHome,
	codeEnd:      KeyEnd,
	codeUp:       KeyUp,
	codeDown:     KeyDown,
	codeLeft:     KeyLeft,
	codeRight:    KeyRight,
	codePageUp:   KeyPageUp,
	codePageDown: KeyPageDown,
	codeInsert:   KeyInsert,
	codeDelete:   KeyDelete,
}

func modifierFor(code uint16) (Modifiers, bool) {
	switch code {
	case codeLeftShift, codeRightShift:
		return ModShift, true
	case codeLeftCtrl, codeRightCtrl:
		return ModCtrl, true
	case codeLeftAlt, codeRightAlt:
		return ModAlt, true
	case codeLeftMeta, codeRightMeta:
		return ModSuper, true
	}
	return 0, false
}

// translator turns key presses into Handler calls. It tracks modifier and
// caps lock state across events.
type translator struct {
	mods     Modifiers
	capsLock bool
	layout   func() layout.ID
}

// keyState values of an EV_KEY event.
const (
	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

func (t *translator) handle(b *Base, code uint16, value int32) {
	if m, ok := modifierFor(code); ok {
		switch value {
		case keyPress, keyRepeat:
			t.mods |= m
		case keyRelease:
			t.mods &^= m
		}
		return
	}
	if value == keyRelease {
		return
	}
	if code == codeCapsLock {
		if value == keyPress {
			t.capsLock = !t.capsLock
		}
		return
	}

	chord := t.mods & (ModCtrl | ModAlt | ModSuper)

	switch code {
	case codeBackspace:
		if chord == 0 {
			b.DispatchBackspace()
		}
		return
	case codeEnter, codeKPEnter:
		if chord == 0 {
			b.DispatchChar('\n')
		} else {
			b.DispatchSpecial(KeyReturn, t.mods)
		}
		return
	case codeTab:
		if chord == 0 {
			b.DispatchChar('\t')
		} else {
			b.DispatchSpecial(KeyTab, t.mods)
		}
		return
	case codeSpace:
		if chord == 0 {
			b.DispatchChar(' ')
		}
		return
	}

	if name, ok := specialKeys[code]; ok {
		b.DispatchSpecial(name, t.mods)
		return
	}

	pair, ok := usKeys[code]
	if !ok {
		return
	}
	if chord != 0 {
		b.DispatchSpecial(string(pair[0]), t.mods)
		return
	}
	b.DispatchChar(t.char(pair))
}

func (t *translator) char(pair [2]rune) rune {
	ru := t.layout != nil && t.layout() == layout.RU
	base := pair[0]
	if ru {
		base = toRU(base)
	}
	shifted := t.mods.Has(ModShift)
	if t.capsLock && unicode.IsLetter(base) {
		shifted = !shifted
	}
	r := pair[0]
	if shifted {
		r = pair[1]
	}
	if ru {
		return toRU(r)
	}
	return r
}

func toRU(r rune) rune {
	if rs := []rune(layout.MapToRU(string(r))); len(rs) == 1 {
		return rs[0]
	}
	return r
}
