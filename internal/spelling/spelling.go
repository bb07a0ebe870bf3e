// Package spelling validates words against the enabled dictionaries and
// proposes dictionary corrections for misspelled ones.
package spelling

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"kswitchd/internal/dictionary"
	"kswitchd/internal/layout"
	"kswitchd/internal/textdist"
)

// edgePunct is stripped from both ends of a word before lookup.
const edgePunct = ".,;:!?()[]{}\"'/\\-=+@#$%^&*~`<>|"

// DefaultMaxDistance is the largest edit distance at which a dictionary
// candidate is accepted as a correction.
const DefaultMaxDistance = 3

// Checker answers validity and correction queries for the currently enabled
// languages. It is safe for concurrent use.
type Checker struct {
	dicts *dictionary.Set

	mu          sync.RWMutex
	langs       []dictionary.Language
	maxDistance int
}

// NewChecker returns a checker over dicts restricted to langs.
func NewChecker(dicts *dictionary.Set, langs []dictionary.Language) *Checker {
	c := &Checker{dicts: dicts, maxDistance: DefaultMaxDistance}
	c.SetLanguages(langs)
	return c
}

// SetLanguages replaces the enabled language set.
func (c *Checker) SetLanguages(langs []dictionary.Language) {
	cp := append([]dictionary.Language(nil), langs...)
	c.mu.Lock()
	c.langs = cp
	c.mu.Unlock()
}

// Languages returns the enabled languages.
func (c *Checker) Languages() []dictionary.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]dictionary.Language(nil), c.langs...)
}

// SetMaxDistance sets the acceptance distance for corrections.
func (c *Checker) SetMaxDistance(d int) {
	c.mu.Lock()
	c.maxDistance = d
	c.mu.Unlock()
}

// Clean strips punctuation from both ends of word.
func Clean(word string) string {
	return strings.Trim(word, edgePunct)
}

// ApplyCasing gives corrected the casing pattern of original: all upper
// stays all upper, a leading capital stays a leading capital.
func ApplyCasing(original, corrected string) string {
	if isUpper(original) {
		return strings.ToUpper(corrected)
	}
	first, _ := utf8.DecodeRuneInString(original)
	if unicode.IsUpper(first) {
		return capitalize(corrected)
	}
	return corrected
}

// isUpper matches the usual "has cased letters and none are lowercase" rule.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// IsValidWord reports whether word belongs to any enabled language written
// in the word's script. Empty words are valid.
func (c *Checker) IsValidWord(word string) bool {
	if word == "" {
		return true
	}
	for _, lang := range c.Languages() {
		if !dictionary.Written(lang, word) {
			continue
		}
		d, ok := c.dicts.Get(lang)
		if ok && d.Contains(word) {
			return true
		}
	}
	return false
}

// IsValidText reports whether every whitespace-separated word of text is
// valid once edge punctuation is removed.
func (c *Checker) IsValidText(text string) bool {
	for _, w := range strings.Fields(text) {
		if !c.IsValidWord(Clean(w)) {
			return false
		}
	}
	return true
}

// ValidityScore is the fraction of words in text that are individually valid.
func (c *Checker) ValidityScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	valid := 0
	for _, w := range words {
		if c.IsValidWord(Clean(w)) {
			valid++
		}
	}
	return float64(valid) / float64(len(words))
}

// CorrectWord returns the closest dictionary word for word, lowercased,
// searching every enabled language the word could be written in.
func (c *Checker) CorrectWord(word string) (string, bool) {
	lower := strings.ToLower(word)
	hasCyrillic := strings.IndexFunc(lower, func(r rune) bool {
		return unicode.Is(unicode.Cyrillic, r)
	}) >= 0

	c.mu.RLock()
	maxDistance := c.maxDistance
	c.mu.RUnlock()

	var candidates []string
	for _, lang := range c.Languages() {
		if lang.Script() == layout.Latin {
			if !dictionary.Written(lang, lower) {
				continue
			}
		} else if !hasCyrillic {
			continue
		}
		if d, ok := c.dicts.Get(lang); ok {
			candidates = append(candidates, d.Candidates(lower)...)
		}
	}

	m, ok := textdist.Best(lower, candidates, maxDistance)
	if !ok || m.Word == lower {
		return "", false
	}
	return m.Word, true
}

// CorrectText spell-corrects each invalid word of text, keeping its
// original casing and edge punctuation. It reports false when nothing changed.
func (c *Checker) CorrectText(text string) (string, bool) {
	words := strings.Fields(text)
	changed := false
	for i, w := range words {
		clean := Clean(w)
		if clean == "" || c.IsValidWord(clean) {
			continue
		}
		fix, ok := c.CorrectWord(clean)
		if !ok {
			continue
		}
		words[i] = strings.Replace(w, clean, ApplyCasing(clean, fix), 1)
		changed = true
	}
	if !changed {
		return "", false
	}
	return strings.Join(words, " "), true
}
