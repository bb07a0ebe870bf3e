package daemon

import (
	"fmt"
	"strings"

	"kswitchd/internal/keystroke"
)

// Hotkey is a key chord such as ctrl+shift+/.
type Hotkey struct {
	Key  string
	Mods keystroke.Modifiers
}

var keyAliases = map[string]string{
	"slash":  "/",
	"comma":  ",",
	"period": ".",
	"minus":  "-",
	"equal":  "=",
	"space":  " ",
}

// ParseHotkey parses strings like "ctrl+shift+p". Modifier and key names
// are case-insensitive; "control" and "meta" are accepted for ctrl and
// super, and "slash" for "/".
func ParseHotkey(s string) (Hotkey, error) {
	var hk Hotkey
	parts := strings.Split(strings.TrimSpace(s), "+")
	if len(parts) == 0 || strings.TrimSpace(s) == "" {
		return hk, fmt.Errorf("daemon: empty hotkey")
	}
	// "ctrl++" binds the plus key.
	if strings.HasSuffix(s, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}
	for i, p := range parts {
		name := strings.ToLower(strings.TrimSpace(p))
		if i == len(parts)-1 {
			if name == "" {
				return hk, fmt.Errorf("daemon: hotkey %q has no key", s)
			}
			hk.Key = normalizeKey(name)
			break
		}
		switch name {
		case "ctrl", "control":
			hk.Mods |= keystroke.ModCtrl
		case "shift":
			hk.Mods |= keystroke.ModShift
		case "alt":
			hk.Mods |= keystroke.ModAlt
		case "super", "meta":
			hk.Mods |= keystroke.ModSuper
		default:
			return hk, fmt.Errorf("daemon: unknown modifier %q in hotkey %q", p, s)
		}
	}
	return hk, nil
}

// MustParseHotkey is ParseHotkey for constants.
func MustParseHotkey(s string) Hotkey {
	hk, err := ParseHotkey(s)
	if err != nil {
		panic(err)
	}
	return hk
}

func normalizeKey(name string) string {
	if alias, ok := keyAliases[name]; ok {
		return alias
	}
	return name
}

// Matches reports whether key pressed with mods triggers hk. Modifiers must
// match exactly.
func (hk Hotkey) Matches(key string, mods keystroke.Modifiers) bool {
	if hk.Key == "" {
		return false
	}
	return hk.Mods == mods && hk.Key == normalizeKey(strings.ToLower(key))
}

func (hk Hotkey) String() string {
	key := hk.Key
	if m := hk.Mods.String(); m != "" {
		return m + "+" + key
	}
	return key
}

// Hotkeys binds the daemon's hotkey operations.
type Hotkeys struct {
	Undo    Hotkey
	Rethink Hotkey
	Toggle  Hotkey
	Polish  Hotkey
}

// DefaultHotkeys returns ctrl+/ undo, ctrl+shift+/ rethink, ctrl+shift+p
// toggle and ctrl+shift+l polish.
func DefaultHotkeys() Hotkeys {
	return Hotkeys{
		Undo:    MustParseHotkey("ctrl+/"),
		Rethink: MustParseHotkey("ctrl+shift+/"),
		Toggle:  MustParseHotkey("ctrl+shift+p"),
		Polish:  MustParseHotkey("ctrl+shift+l"),
	}
}

// navigationKeys break the typing context.
var navigationKeys = map[string]bool{
	keystroke.KeyReturn:   true,
	keystroke.KeyTab:      true,
	keystroke.KeyEscape:   true,
	keystroke.KeyHome:     true,
	keystroke.KeyEnd:      true,
	keystroke.KeyLeft:     true,
	keystroke.KeyRight:    true,
	keystroke.KeyUp:       true,
	keystroke.KeyDown:     true,
	keystroke.KeyPageUp:   true,
	keystroke.KeyPageDown: true,
}

// IsNavigation reports whether key resets the typing context.
func IsNavigation(key string) bool {
	return navigationKeys[key]
}
