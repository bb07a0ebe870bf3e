package daemon

import (
	"testing"

	"kswitchd/internal/keystroke"
)

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		in   string
		key  string
		mods keystroke.Modifiers
	}{
		{"ctrl+/", "/", keystroke.ModCtrl},
		{"Ctrl+Shift+slash", "/", keystroke.ModCtrl | keystroke.ModShift},
		{"control+shift+P", "p", keystroke.ModCtrl | keystroke.ModShift},
		{"meta+alt+l", "l", keystroke.ModSuper | keystroke.ModAlt},
		{"ctrl++", "+", keystroke.ModCtrl},
		{"F5", "f5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hk, err := ParseHotkey(tt.in)
			if err != nil {
				t.Fatalf("ParseHotkey(%q): %v", tt.in, err)
			}
			if hk.Key != tt.key || hk.Mods != tt.mods {
				t.Errorf("ParseHotkey(%q) = %+v, want key %q mods %v", tt.in, hk, tt.key, tt.mods)
			}
		})
	}
}

func TestParseHotkeyErrors(t *testing.T) {
	for _, in := range []string{"", "ctrl+", "hyper+x"} {
		if _, err := ParseHotkey(in); err == nil {
			t.Errorf("ParseHotkey(%q) succeeded", in)
		}
	}
}

func TestHotkeyMatches(t *testing.T) {
	hk := MustParseHotkey("ctrl+shift+/")
	if !hk.Matches("/", keystroke.ModCtrl|keystroke.ModShift) {
		t.Error("exact chord should match")
	}
	if !hk.Matches("slash", keystroke.ModCtrl|keystroke.ModShift) {
		t.Error("key alias should match")
	}
	if hk.Matches("/", keystroke.ModCtrl) {
		t.Error("missing modifier should not match")
	}
	if (Hotkey{}).Matches("", 0) {
		t.Error("unbound hotkey matched")
	}
	if got := hk.String(); got != "ctrl+shift+/" {
		t.Errorf("String() = %q", got)
	}
}

func TestIsNavigation(t *testing.T) {
	for _, k := range []string{keystroke.KeyReturn, keystroke.KeyEscape, keystroke.KeyPageDown, keystroke.KeyTab} {
		if !IsNavigation(k) {
			t.Errorf("%s should be navigation", k)
		}
	}
	if IsNavigation("p") || IsNavigation(keystroke.KeyDelete) {
		t.Error("unexpected navigation key")
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateTyping:        "typing",
		StateWordFinalized: "word_finalized",
		StateIdle:          "idle",
		StateHandoff:       "handoff",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), w)
		}
	}
}
