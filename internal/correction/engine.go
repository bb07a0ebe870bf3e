// Package correction arbitrates the correction strategies for a word or a
// phrase. Strategies run in a fixed priority order and the first one that
// produces an acceptable result wins:
//
//  1. all-caps veto
//  2. already valid in an enabled language
//  3. layout swap, optionally followed by spelling
//  4. mixed-layout repair, optionally followed by spelling
//  5. dictionary spelling
//  6. semantic provider (remote when configured, local otherwise)
//
// Every strategy reports a confidence in [0,1]; the caller decides whether
// it clears the acceptance threshold.
package correction

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"kswitchd/internal/layout"
	"kswitchd/internal/semantic"
	"kswitchd/internal/spelling"
)

// Strategy names the step that produced a result.
type Strategy string

const (
	StrategyLayout        Strategy = "layout"
	StrategyLayoutSpell   Strategy = "layout_spell"
	StrategyLayoutPartial Strategy = "layout_partial"
	StrategyMixed         Strategy = "mixed"
	StrategyMixedSpell    Strategy = "mixed_spell"
	StrategySpelling      Strategy = "spelling"
	StrategyLocal         Strategy = "semantic_local"
	StrategyRemote        Strategy = "semantic_remote"
)

// Confidence holds the score assigned to each strategy. The values are
// empirical and exposed through configuration for calibration.
type Confidence struct {
	Layout      float64 `toml:"layout" json:"layout" yaml:"layout"`
	LayoutSpell float64 `toml:"layout_spell" json:"layout_spell" yaml:"layout_spell"`
	Mixed       float64 `toml:"mixed" json:"mixed" yaml:"mixed"`
	MixedSpell  float64 `toml:"mixed_spell" json:"mixed_spell" yaml:"mixed_spell"`
	Spelling    float64 `toml:"spelling" json:"spelling" yaml:"spelling"`
	Local       float64 `toml:"local" json:"local" yaml:"local"`
	Remote      float64 `toml:"remote" json:"remote" yaml:"remote"`
	// PhraseSpellFactor scales a phrase result when the extra spelling
	// pass changed it.
	PhraseSpellFactor float64 `toml:"phrase_spell_factor" json:"phrase_spell_factor" yaml:"phrase_spell_factor"`
}

// DefaultConfidence returns the stock scores.
func DefaultConfidence() Confidence {
	return Confidence{
		Layout:            0.95,
		LayoutSpell:       0.90,
		Mixed:             0.90,
		MixedSpell:        0.85,
		Spelling:          0.80,
		Local:             0.75,
		Remote:            0.70,
		PhraseSpellFactor: 0.95,
	}
}

// partialValidity is the share of valid words a layout-swapped text needs
// to be accepted without being fully valid.
const partialValidity = 0.5

// Result is a proposed correction.
type Result struct {
	Text       string
	Confidence float64
	Strategy   Strategy
}

// Engine runs the strategy pipeline. It is safe for concurrent use.
type Engine struct {
	checker *spelling.Checker
	logger  *slog.Logger

	mu        sync.RWMutex
	conf      Confidence
	kind      semantic.Kind
	providers map[semantic.Kind]semantic.Provider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfidence overrides the strategy scores.
func WithConfidence(c Confidence) Option {
	return func(e *Engine) { e.conf = c }
}

// WithProvider registers a semantic provider under its kind.
func WithProvider(kind semantic.Kind, p semantic.Provider) Option {
	return func(e *Engine) { e.providers[kind] = p }
}

// WithProviderKind selects which registered provider is consulted.
func WithProviderKind(kind semantic.Kind) Option {
	return func(e *Engine) { e.kind = kind }
}

// NewEngine returns an engine validating against checker.
func NewEngine(checker *spelling.Checker, opts ...Option) *Engine {
	e := &Engine{
		checker:   checker,
		logger:    slog.Default().With("component", "engine"),
		conf:      DefaultConfidence(),
		kind:      semantic.KindLocal,
		providers: make(map[semantic.Kind]semantic.Provider),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checker returns the spelling checker the engine validates with.
func (e *Engine) Checker() *spelling.Checker { return e.checker }

// SetConfidence replaces the strategy scores.
func (e *Engine) SetConfidence(c Confidence) {
	e.mu.Lock()
	e.conf = c
	e.mu.Unlock()
}

// SetProvider registers or, with a nil provider, removes a semantic provider.
func (e *Engine) SetProvider(kind semantic.Kind, p semantic.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		delete(e.providers, kind)
		return
	}
	e.providers[kind] = p
}

// SetProviderKind selects the semantic provider variant.
func (e *Engine) SetProviderKind(kind semantic.Kind) {
	e.mu.Lock()
	e.kind = kind
	e.mu.Unlock()
}

func (e *Engine) confidence() Confidence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conf
}

// provider picks exactly one provider: the remote one when it is selected
// and registered, the local one otherwise.
func (e *Engine) provider() (semantic.Provider, Strategy, float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.kind == semantic.KindRemote {
		if p, ok := e.providers[semantic.KindRemote]; ok {
			return p, StrategyRemote, e.conf.Remote, true
		}
	}
	if p, ok := e.providers[semantic.KindLocal]; ok {
		return p, StrategyLocal, e.conf.Local, true
	}
	return nil, "", 0, false
}

// ProviderName names the semantic provider currently consulted, or "none".
func (e *Engine) ProviderName() string {
	if p, _, _, ok := e.provider(); ok {
		return p.Name()
	}
	return "none"
}

// Correct proposes a correction for a single word. The bool is false when
// the word should be left alone.
func (e *Engine) Correct(ctx context.Context, word, surrounding string) (Result, bool) {
	if res, ok, done := e.deterministic(word); done {
		return res, ok
	}
	if err := ctx.Err(); err != nil {
		return Result{}, false
	}
	return e.semantic(ctx, word, surrounding)
}

// deterministic runs strategies 1 to 5. done is true when a strategy made
// a decision, including the decision to leave the word alone.
func (e *Engine) deterministic(text string) (res Result, ok, done bool) {
	if strings.TrimSpace(text) == "" || layout.IsAllCaps(text) {
		return Result{}, false, true
	}
	if e.checker.IsValidText(text) {
		return Result{}, false, true
	}
	conf := e.confidence()
	if res, ok := e.layoutSwap(text, conf); ok {
		return res, true, true
	}
	if res, ok := e.mixedLayout(text, conf); ok {
		return res, true, true
	}
	if fixed, ok := e.checker.CorrectText(text); ok && fixed != text {
		return Result{Text: fixed, Confidence: conf.Spelling, Strategy: StrategySpelling}, true, true
	}
	return Result{}, false, false
}

func (e *Engine) layoutSwap(text string, conf Confidence) (Result, bool) {
	switch layout.DetectMismatch(text) {
	case layout.ENMeantRU:
		mapped := layout.MapToRU(text)
		if e.checker.IsValidText(mapped) {
			return Result{Text: mapped, Confidence: conf.Layout, Strategy: StrategyLayout}, true
		}
		if fixed, ok := e.checker.CorrectText(mapped); ok && e.checker.IsValidText(fixed) {
			return Result{Text: fixed, Confidence: conf.LayoutSpell, Strategy: StrategyLayoutSpell}, true
		}
		if score := e.checker.ValidityScore(mapped); score > partialValidity {
			return Result{Text: mapped, Confidence: score, Strategy: StrategyLayoutPartial}, true
		}
	case layout.RUMeantEN:
		mapped := layout.MapToEN(text)
		if e.checker.IsValidText(mapped) {
			return Result{Text: mapped, Confidence: conf.Layout, Strategy: StrategyLayout}, true
		}
	}
	return Result{}, false
}

func (e *Engine) mixedLayout(text string, conf Confidence) (Result, bool) {
	if layout.DetectMismatch(text) != layout.Mixed {
		return Result{}, false
	}
	fixed := layout.FixMixed(text, layout.Majority(text))
	if fixed == text {
		return Result{}, false
	}
	if e.checker.IsValidText(fixed) {
		return Result{Text: fixed, Confidence: conf.Mixed, Strategy: StrategyMixed}, true
	}
	if spelled, ok := e.checker.CorrectText(fixed); ok && e.checker.IsValidText(spelled) {
		return Result{Text: spelled, Confidence: conf.MixedSpell, Strategy: StrategyMixedSpell}, true
	}
	return Result{}, false
}

func (e *Engine) semantic(ctx context.Context, text, surrounding string) (Result, bool) {
	p, strategy, score, ok := e.provider()
	if !ok {
		return Result{}, false
	}
	out, ok, err := p.Correct(ctx, text, surrounding)
	if err != nil {
		e.logger.Debug("semantic provider failed", "provider", p.Name(), "error", err)
		return Result{}, false
	}
	if !ok || out == text {
		return Result{}, false
	}
	return Result{Text: out, Confidence: score, Strategy: strategy}, true
}

// CorrectPhrase considers words jointly. Only the layout swap runs on the
// joined phrase, followed by one more spelling pass over the swapped text.
func (e *Engine) CorrectPhrase(ctx context.Context, words []string) (Result, bool) {
	if len(words) == 0 {
		return Result{}, false
	}
	phrase := strings.Join(words, " ")
	if layout.IsAllCaps(phrase) || e.checker.IsValidText(phrase) {
		return Result{}, false
	}
	if ctx.Err() != nil {
		return Result{}, false
	}

	conf := e.confidence()
	res, ok := e.layoutSwap(phrase, conf)
	if !ok {
		return Result{}, false
	}
	if fixed, ok := e.checker.CorrectText(res.Text); ok && fixed != res.Text {
		res.Text = fixed
		res.Confidence *= conf.PhraseSpellFactor
	}
	return res, true
}
