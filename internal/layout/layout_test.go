package layout

import "testing"

func TestMapToRU(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ghbdtn", "привет"},
		{"Ghbdtn", "Привет"},
		{"rfr ltkf", "как дела"},
		{"ntcn 123", "тест 123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MapToRU(tt.in); got != tt.want {
			t.Errorf("MapToRU(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapToEN(t *testing.T) {
	if got := MapToEN("руддщ"); got != "hello" {
		t.Errorf("MapToEN = %q, want hello", got)
	}
	if got := MapToEN("Руддщ цщкдв"); got != "Hello world" {
		t.Errorf("MapToEN = %q, want %q", got, "Hello world")
	}
}

func TestRoundTrip(t *testing.T) {
	var all []rune
	for k := range enToRU {
		all = append(all, k)
	}
	text := string(all)
	if got := MapToEN(MapToRU(text)); got != text {
		t.Fatalf("round trip through RU changed text:\n got %q\nwant %q", got, text)
	}

	var ru []rune
	for k := range ruToEN {
		ru = append(ru, k)
	}
	text = string(ru)
	if got := MapToRU(MapToEN(text)); got != text {
		t.Fatalf("round trip through EN changed text:\n got %q\nwant %q", got, text)
	}
}

func TestDetectMismatch(t *testing.T) {
	tests := []struct {
		in   string
		want Mismatch
	}{
		{"ghbdtn", ENMeantRU},
		{"руддщ", RUMeantEN},
		{"выклюchил", Mixed},
		{"123", MismatchNone},
		{"", MismatchNone},
		{"...", MismatchNone},
	}
	for _, tt := range tests {
		if got := DetectMismatch(tt.in); got != tt.want {
			t.Errorf("DetectMismatch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFixMixed(t *testing.T) {
	if got := FixMixed("выклюchил", Cyrillic); got != "выклюсрил" {
		t.Errorf("FixMixed = %q", got)
	}
	if got := FixMixed("hellщ", Latin); got != "hello" {
		t.Errorf("FixMixed = %q", got)
	}
}

func TestMajority(t *testing.T) {
	if Majority("выклюchил") != Cyrillic {
		t.Error("expected cyrillic majority")
	}
	if Majority("hellщ") != Latin {
		t.Error("expected latin majority")
	}
}

func TestIsAllCaps(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"HELLO", true},
		{"ПРИВЕТ", true},
		{"HELLO123", true},
		{"Hello", false},
		{"A", false},
		{"A1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAllCaps(tt.in); got != tt.want {
			t.Errorf("IsAllCaps(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDetectTargetLayout(t *testing.T) {
	tests := []struct {
		in     string
		want   ID
		wantOK bool
	}{
		{"привет", RU, true},
		{"hello", US, true},
		{"hello привет", RU, true},
		{"привет world", US, true},
		{"123", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectTargetLayout(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("DetectTargetLayout(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
