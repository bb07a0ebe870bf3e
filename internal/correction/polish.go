package correction

import (
	"strings"

	"kswitchd/internal/layout"
	"kswitchd/internal/spelling"
)

// Polish cleans up a whole line with deterministic passes only: a layout
// swap of the entire text, per-word correction without the semantic
// provider, then whitespace normalization. It never rephrases. The bool is
// false when the text would come out unchanged.
func (e *Engine) Polish(text string, threshold float64) (string, bool) {
	original := strings.TrimSpace(text)
	if original == "" {
		return "", false
	}

	work := original
	switch layout.DetectMismatch(work) {
	case layout.ENMeantRU:
		mapped := layout.MapToRU(work)
		if e.checker.IsValidText(mapped) || e.checker.ValidityScore(mapped) > partialValidity {
			work = mapped
		}
	case layout.RUMeantEN:
		mapped := layout.MapToEN(work)
		if e.checker.IsValidText(mapped) {
			work = mapped
		}
	}

	words := strings.Fields(work)
	for i, w := range words {
		words[i] = e.polishWord(w, threshold)
	}
	polished := strings.Join(words, " ")
	if polished == original {
		return "", false
	}
	return polished, true
}

// polishWord corrects the core of w, keeping edge punctuation in place.
func (e *Engine) polishWord(w string, threshold float64) string {
	core := spelling.Clean(w)
	if core == "" {
		return w
	}
	res, ok, _ := e.deterministic(core)
	if !ok || res.Text == core || res.Confidence < threshold {
		return w
	}
	return strings.Replace(w, core, res.Text, 1)
}
