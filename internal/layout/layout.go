// Package layout holds the static per-key tables between the US QWERTY and
// Russian JCUKEN layouts, plus the heuristics that decide whether a piece of
// text was typed on the wrong one.
//
// Everything here is pure string processing and safe for concurrent use.
package layout

import (
	"strings"
	"unicode"
)

// ID identifies a keyboard layout as understood by the layout switchers.
type ID string

const (
	US ID = "us"
	RU ID = "ru"
)

// Script is an alphabet the tables map between.
type Script int

const (
	Latin Script = iota
	Cyrillic
)

func (s Script) String() string {
	if s == Cyrillic {
		return "cyrillic"
	}
	return "latin"
}

// Layout returns the keyboard layout that types this script.
func (s Script) Layout() ID {
	if s == Cyrillic {
		return RU
	}
	return US
}

// Mismatch classifies a piece of text.
type Mismatch int

const (
	MismatchNone Mismatch = iota
	// ENMeantRU is Latin text that was meant to be typed on the Russian layout.
	ENMeantRU
	// RUMeantEN is Cyrillic text that was meant to be typed on the US layout.
	RUMeantEN
	// Mixed text carries letters of both scripts.
	Mixed
)

func (m Mismatch) String() string {
	switch m {
	case ENMeantRU:
		return "en_meant_ru"
	case RUMeantEN:
		return "ru_meant_en"
	case Mixed:
		return "mixed"
	default:
		return "none"
	}
}

// majorityFraction is the share of one script's letters above which the
// whole text is considered typed on the wrong layout.
const majorityFraction = 0.7

// enToRU pairs are "physical key char on US" -> "char the same key produces on RU".
var enToRU = map[rune]rune{
	'q': 'й', 'w': 'ц', 'e': 'у', 'r': 'к', 't': 'е', 'y': 'н', 'u': 'г',
	'i': 'ш', 'o': 'щ', 'p': 'з', '[': 'х', ']': 'ъ',
	'a': 'ф', 's': 'ы', 'd': 'в', 'f': 'а', 'g': 'п', 'h': 'р', 'j': 'о',
	'k': 'л', 'l': 'д', ';': 'ж', '\'': 'э',
	'z': 'я', 'x': 'ч', 'c': 'с', 'v': 'м', 'b': 'и', 'n': 'т', 'm': 'ь',
	',': 'б', '.': 'ю', '/': '.',

	'Q': 'Й', 'W': 'Ц', 'E': 'У', 'R': 'К', 'T': 'Е', 'Y': 'Н', 'U': 'Г',
	'I': 'Ш', 'O': 'Щ', 'P': 'З', '{': 'Х', '}': 'Ъ',
	'A': 'Ф', 'S': 'Ы', 'D': 'В', 'F': 'А', 'G': 'П', 'H': 'Р', 'J': 'О',
	'K': 'Л', 'L': 'Д', ':': 'Ж', '"': 'Э',
	'Z': 'Я', 'X': 'Ч', 'C': 'С', 'V': 'М', 'B': 'И', 'N': 'Т', 'M': 'Ь',
	'<': 'Б', '>': 'Ю', '?': ',',

	'`': 'ё', '~': 'Ё',
}

var (
	ruToEN   = invert(enToRU)
	enLetter = letterSet(keys(enToRU))
	ruLetter = letterSet(keys(ruToEN))
)

func invert(m map[rune]rune) map[rune]rune {
	out := make(map[rune]rune, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func keys(m map[rune]rune) []rune {
	out := make([]rune, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func letterSet(rs []rune) map[rune]bool {
	out := make(map[rune]bool)
	for _, r := range rs {
		if unicode.IsLetter(r) {
			out[r] = true
		}
	}
	return out
}

// MapToRU rewrites text as if every key had been pressed on the Russian
// layout. Characters without a key mapping pass through unchanged.
func MapToRU(text string) string { return mapWith(text, enToRU) }

// MapToEN rewrites text as if every key had been pressed on the US layout.
func MapToEN(text string) string { return mapWith(text, ruToEN) }

// Map rewrites text into the given target script.
func Map(text string, target Script) string {
	if target == Cyrillic {
		return MapToRU(text)
	}
	return MapToEN(text)
}

func mapWith(text string, table map[rune]rune) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if m, ok := table[r]; ok {
			b.WriteRune(m)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsLatin reports whether r is a letter of the US layout.
func IsLatin(r rune) bool { return enLetter[r] }

// IsCyrillic reports whether r is a letter of the Russian layout.
func IsCyrillic(r rune) bool { return ruLetter[r] }

// Counts returns the number of Latin and Cyrillic letters in text.
func Counts(text string) (latin, cyrillic int) {
	for _, r := range text {
		switch {
		case enLetter[r]:
			latin++
		case ruLetter[r]:
			cyrillic++
		}
	}
	return latin, cyrillic
}

// DetectMismatch classifies text by the share of each script among its letters.
func DetectMismatch(text string) Mismatch {
	total := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			total++
		}
	}
	if total == 0 {
		return MismatchNone
	}

	latin, cyrillic := Counts(text)
	if latin > 0 && cyrillic > 0 {
		return Mixed
	}
	if float64(latin)/float64(total) > majorityFraction {
		return ENMeantRU
	}
	if float64(cyrillic)/float64(total) > majorityFraction {
		return RUMeantEN
	}
	return MismatchNone
}

// Majority returns the script with more letters in text. Ties go to Cyrillic.
func Majority(text string) Script {
	latin, cyrillic := Counts(text)
	if latin > cyrillic {
		return Latin
	}
	return Cyrillic
}

// FixMixed remaps every character whose key produces a character of target
// script on the other layout, leaving the rest alone.
func FixMixed(text string, target Script) string {
	return Map(text, target)
}

// IsAllCaps reports whether text has more than one letter and all of them
// are uppercase.
func IsAllCaps(text string) bool {
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters > 1
}

// DetectTargetLayout picks the layout of the last word of text, since that
// is what the user is most likely to keep typing in.
func DetectTargetLayout(text string) (ID, bool) {
	fields := strings.Fields(text)
	last := text
	if len(fields) > 0 {
		last = fields[len(fields)-1]
	}

	var ru, en int
	for _, r := range last {
		if !unicode.IsLetter(r) {
			continue
		}
		switch {
		case r >= 0x0400 && r <= 0x04FF:
			ru++
		case r < unicode.MaxASCII:
			en++
		}
	}
	switch {
	case ru > en:
		return RU, true
	case en > ru:
		return US, true
	}
	return "", false
}

// ScriptOf returns the script of a single letter.
func ScriptOf(r rune) (Script, bool) {
	switch {
	case enLetter[r]:
		return Latin, true
	case ruLetter[r]:
		return Cyrillic, true
	}
	return 0, false
}
