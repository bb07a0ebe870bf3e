// Package dictionary provides word lists for spelling validation and
// candidate generation, one per language.
//
// Built-in lists for English and Russian are embedded in the binary. Users
// may extend any language with a plain text file (one word per line) named
// after the language code in a configured directory; see Watcher.
package dictionary

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"

	"kswitchd/internal/layout"
	"kswitchd/internal/textdist"
)

//go:embed words/*.txt
var builtinFS embed.FS

// Language is an ISO 639-1 language code.
type Language string

const (
	English    Language = "en"
	Russian    Language = "ru"
	Belarusian Language = "be"
)

// Script returns the alphabet the language is written in.
func (l Language) Script() layout.Script {
	if l == English {
		return layout.Latin
	}
	return layout.Cyrillic
}

// ErrNoBuiltin is returned by Builtin for languages without an embedded list.
var ErrNoBuiltin = errors.New("dictionary: no built-in word list")

// DefaultCandidateDistance is the widest edit distance Candidates considers.
const DefaultCandidateDistance = 2

// Dictionary answers membership and spelling-candidate queries for one
// language. Implementations must be safe for concurrent use.
type Dictionary interface {
	Contains(word string) bool
	Candidates(word string) []string
}

// WordList is an in-memory Dictionary.
type WordList struct {
	mu          sync.RWMutex
	lang        Language
	words       map[string]struct{}
	byLen       map[int][][]rune
	maxDistance int
}

// NewWordList builds a list from words. Words are lowercased and trimmed;
// blank entries are skipped.
func NewWordList(lang Language, words []string) *WordList {
	w := &WordList{
		lang:        lang,
		words:       make(map[string]struct{}, len(words)),
		byLen:       make(map[int][][]rune),
		maxDistance: DefaultCandidateDistance,
	}
	w.Add(words...)
	return w
}

// Load reads one word per line from r. Lines starting with '#' are ignored.
func Load(lang Language, r io.Reader) (*WordList, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s word list: %w", lang, err)
	}
	return NewWordList(lang, words), nil
}

// Builtin returns the embedded list for lang.
func Builtin(lang Language) (*WordList, error) {
	f, err := builtinFS.Open("words/" + string(lang) + ".txt")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBuiltin, lang)
	}
	defer f.Close()
	return Load(lang, f)
}

// Language returns the list's language.
func (w *WordList) Language() Language { return w.lang }

// SetMaxDistance changes the widest edit distance Candidates considers.
func (w *WordList) SetMaxDistance(d int) {
	w.mu.Lock()
	w.maxDistance = d
	w.mu.Unlock()
}

// Add inserts words into the list.
func (w *WordList) Add(words ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, ok := w.words[word]; ok {
			continue
		}
		w.words[word] = struct{}{}
		runes := []rune(word)
		w.byLen[len(runes)] = append(w.byLen[len(runes)], runes)
	}
}

// Len returns the number of words.
func (w *WordList) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.words)
}

// Contains reports whether word is in the list, ignoring case.
func (w *WordList) Contains(word string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.words[strings.ToLower(word)]
	return ok
}

// Candidates returns the words within the configured edit distance of word,
// excluding word itself. Only buckets whose length is within that distance
// are scanned.
func (w *WordList) Candidates(word string) []string {
	lower := []rune(strings.ToLower(word))
	n := len(lower)

	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []string
	for l := n - w.maxDistance; l <= n+w.maxDistance; l++ {
		for _, cand := range w.byLen[l] {
			if textdist.Within(lower, cand, w.maxDistance) && !slices.Equal(lower, cand) {
				out = append(out, string(cand))
			}
		}
	}
	sort.Strings(out)
	return out
}

// Set groups dictionaries by language.
type Set struct {
	mu    sync.RWMutex
	dicts map[Language]Dictionary
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{dicts: make(map[Language]Dictionary)}
}

// Register installs d for lang, replacing any previous dictionary.
func (s *Set) Register(lang Language, d Dictionary) {
	s.mu.Lock()
	s.dicts[lang] = d
	s.mu.Unlock()
}

// Get returns the dictionary for lang.
func (s *Set) Get(lang Language) (Dictionary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dicts[lang]
	return d, ok
}

// Languages returns the registered languages in sorted order.
func (s *Set) Languages() []Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Language, 0, len(s.dicts))
	for l := range s.dicts {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewDefaultSet loads the built-in lists for every language that has one.
func NewDefaultSet() (*Set, error) {
	s := NewSet()
	for _, lang := range []Language{English, Russian} {
		wl, err := Builtin(lang)
		if err != nil {
			return nil, err
		}
		s.Register(lang, wl)
	}
	return s, nil
}

// Written reports whether every letter of word belongs to the language's
// script. Words without letters are not written in any language.
func Written(lang Language, word string) bool {
	letters := 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if lang.Script() == layout.Latin {
			if r > unicode.MaxASCII {
				return false
			}
		} else if !unicode.Is(unicode.Cyrillic, r) {
			return false
		}
	}
	return letters > 0
}
