package semantic

import (
	"context"
	"strings"

	"kswitchd/internal/layout"
	"kswitchd/internal/spelling"
)

// Local is the in-process rule-based provider. It combines layout remapping
// and dictionary spelling over whole phrases and single words, never
// inventing words that are not in a dictionary.
type Local struct {
	checker *spelling.Checker
}

// NewLocal returns a local provider backed by checker.
func NewLocal(checker *spelling.Checker) *Local {
	return &Local{checker: checker}
}

// Name implements Provider.
func (l *Local) Name() string { return string(KindLocal) }

// Correct implements Provider. It never fails.
func (l *Local) Correct(ctx context.Context, text, _ string) (string, bool, error) {
	if strings.TrimSpace(text) == "" || layout.IsAllCaps(text) {
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	words := strings.Fields(text)
	if len(words) > 1 {
		if out, ok := l.correctPhrase(words); ok && out != text {
			return out, true, nil
		}
		return "", false, nil
	}
	if out, ok := l.correctWord(words[0]); ok && out != words[0] {
		return out, true, nil
	}
	return "", false, nil
}

func (l *Local) correctPhrase(words []string) (string, bool) {
	text := strings.Join(words, " ")
	if mapped, ok := l.swapPhrase(text); ok {
		if fixed, ok := l.checker.CorrectText(mapped); ok {
			return fixed, true
		}
		return mapped, true
	}

	changed := false
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w
		if fixed, ok := l.correctWord(w); ok && fixed != w {
			out[i] = fixed
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	return strings.Join(out, " "), true
}

func (l *Local) swapPhrase(text string) (string, bool) {
	var mapped string
	switch layout.DetectMismatch(text) {
	case layout.ENMeantRU:
		mapped = layout.MapToRU(text)
	case layout.RUMeantEN:
		mapped = layout.MapToEN(text)
	default:
		return "", false
	}
	if l.checker.ValidityScore(mapped) >= 0.5 {
		return mapped, true
	}
	return "", false
}

func (l *Local) correctWord(word string) (string, bool) {
	clean := spelling.Clean(word)
	if clean == "" || l.checker.IsValidWord(clean) {
		return "", false
	}

	steps := []func(string) (string, bool){
		l.swapWord,
		l.fixMixed,
		l.checker.CorrectWord,
		l.swapThenSpell,
	}
	for _, step := range steps {
		if fixed, ok := step(clean); ok && !strings.EqualFold(fixed, clean) {
			return spelling.ApplyCasing(word, fixed), true
		}
	}
	return "", false
}

func (l *Local) swapWord(word string) (string, bool) {
	m := layout.DetectMismatch(word)
	if m != layout.ENMeantRU && m != layout.RUMeantEN {
		return "", false
	}
	mapped := swap(word, m)
	if l.checker.IsValidWord(mapped) {
		return mapped, true
	}
	return "", false
}

func (l *Local) fixMixed(word string) (string, bool) {
	if layout.DetectMismatch(word) != layout.Mixed {
		return "", false
	}
	fixed := layout.FixMixed(word, layout.Majority(word))
	if fixed == word {
		return "", false
	}
	if l.checker.IsValidWord(fixed) {
		return fixed, true
	}
	if spelled, ok := l.checker.CorrectWord(fixed); ok && l.checker.IsValidWord(spelled) {
		return spelled, true
	}
	return "", false
}

func (l *Local) swapThenSpell(word string) (string, bool) {
	m := layout.DetectMismatch(word)
	if m != layout.ENMeantRU && m != layout.RUMeantEN {
		return "", false
	}
	spelled, ok := l.checker.CorrectWord(swap(word, m))
	if ok && l.checker.IsValidWord(spelled) {
		return spelled, true
	}
	return "", false
}

func swap(text string, m layout.Mismatch) string {
	if m == layout.ENMeantRU {
		return layout.MapToRU(text)
	}
	return layout.MapToEN(text)
}
