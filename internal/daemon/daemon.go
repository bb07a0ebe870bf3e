// Package daemon runs the correction state machine over live keystrokes.
//
// The daemon owns the text buffer, the phrase of recent uncorrected words,
// the set of words already finalized in the current context and the last
// applied correction. All of it sits behind one mutex that is never held
// across a correction call: handlers snapshot under the lock, correct
// outside it on a bounded worker with a hard timeout, then re-acquire the
// lock and re-validate before committing.
//
// Self-feedback is blocked three ways: the capture drops the replacer's
// synthetic events, a word equal to the last correction's output within
// idempotencyWindow is ignored, and words finalized in the current context
// are never corrected again.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"kswitchd/internal/buffer"
	"kswitchd/internal/correction"
	"kswitchd/internal/dictionary"
	"kswitchd/internal/keystroke"
	"kswitchd/internal/layout"
	"kswitchd/internal/replacer"
	"kswitchd/internal/rules"
	"kswitchd/internal/semantic"
	"kswitchd/internal/store"
	"kswitchd/internal/undo"
)

// State is the daemon's input state.
type State int

const (
	StateTyping State = iota
	StateWordFinalized
	StateIdle
	StateHandoff
)

func (s State) String() string {
	switch s {
	case StateTyping:
		return "typing"
	case StateWordFinalized:
		return "word_finalized"
	case StateIdle:
		return "idle"
	case StateHandoff:
		return "handoff"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// maxPhraseWords bounds the phrase; the oldest word is dropped.
	maxPhraseWords = 10

	// idempotencyWindow is how long the last correction's output is
	// recognised as a leaked echo.
	idempotencyWindow = 2 * time.Second

	// maxWorkers bounds concurrent correction calls, including ones
	// abandoned after their timeout.
	maxWorkers = 4
)

var (
	// ErrNotRunning is returned by operations that need a started daemon.
	ErrNotRunning = errors.New("daemon: not running")

	// ErrAlreadyRunning is returned by Start on a running daemon.
	ErrAlreadyRunning = errors.New("daemon: already running")
)

// Config is the runtime-adjustable behaviour of the daemon.
type Config struct {
	Enabled     bool
	Threshold   float64
	Timeout     time.Duration
	PhraseDelay time.Duration
	Hotkeys     Hotkeys

	// Languages and Provider are pushed into the engine by SetConfig.
	// Zero values leave the engine untouched.
	Languages  []dictionary.Language
	Provider   semantic.Kind
	Confidence *correction.Confidence
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Threshold:   0.6,
		Timeout:     100 * time.Millisecond,
		PhraseDelay: 350 * time.Millisecond,
		Hotkeys:     DefaultHotkeys(),
	}
}

// Journal records applied corrections. *store.Store implements it.
type Journal interface {
	AppendJournal(ctx context.Context, e *store.JournalEntry) (int64, error)
}

// Observer receives daemon events for metrics.
type Observer interface {
	CorrectionApplied(kind store.JournalKind, strategy string)
	CorrectionSkipped(reason string)
	CorrectionTimedOut()
	CorrectionDuration(d time.Duration)
	StateChanged(s State)
	LayoutRequested(id layout.ID)
}

// Deps are the collaborators of a Daemon. Engine, Replacer and Rules are
// required.
type Deps struct {
	Engine   *correction.Engine
	Replacer replacer.Replacer
	Rules    *rules.Store

	// Capture is optional; without it events are fed by calling the On*
	// methods directly.
	Capture keystroke.Capture
	// Undo defaults to a stack of undo.DefaultCapacity.
	Undo     *undo.Stack
	Journal  Journal
	Observer Observer
	Now      func() time.Time
}

type lastCorrection struct {
	original  string
	corrected string
	at        time.Time
}

// Daemon is the correction state machine.
type Daemon struct {
	engine   *correction.Engine
	replacer replacer.Replacer
	rules    *rules.Store
	capture  keystroke.Capture
	undo     *undo.Stack
	journal  Journal
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
	sem      *semaphore.Weighted

	mu             sync.Mutex
	cfg            Config
	running        bool
	baseCtx        context.Context
	cancel         context.CancelFunc
	state          State
	buf            *buffer.Buffer
	phrase         []string
	phraseLen      int
	finalized      map[string]bool
	last           *lastCorrection
	handoffLayout  layout.ID
	epoch          uint64
	phraseGen      uint64
	phraseTimer    *time.Timer
	lastLayoutSent layout.ID

	// injectMu serialises replacements. It is taken while mu is held and
	// mu is then released, so edits reach the screen in commit order.
	injectMu sync.Mutex

	layoutMu      sync.Mutex
	pendingLayout layout.ID
	hasPending    bool
}

// New returns a stopped daemon.
func New(cfg Config, deps Deps) (*Daemon, error) {
	if deps.Engine == nil {
		return nil, errors.New("daemon: engine is required")
	}
	if deps.Replacer == nil {
		return nil, errors.New("daemon: replacer is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("daemon: rule store is required")
	}
	if deps.Undo == nil {
		deps.Undo = undo.New(undo.DefaultCapacity)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	rep := deps.Replacer
	if deps.Capture != nil {
		rep = replacer.WithSuppression(rep, deps.Capture)
	}

	d := &Daemon{
		engine:    deps.Engine,
		replacer:  rep,
		rules:     deps.Rules,
		capture:   deps.Capture,
		undo:      deps.Undo,
		journal:   deps.Journal,
		observer:  deps.Observer,
		now:       deps.Now,
		logger:    slog.Default().With("component", "daemon"),
		sem:       semaphore.NewWeighted(maxWorkers),
		baseCtx:   context.Background(),
		buf:       buffer.New(),
		finalized: make(map[string]bool),
	}
	d.applyConfigLocked(cfg)
	return d, nil
}

// Start begins capturing keystrokes. Without a capture the daemon only
// accepts events through its On* methods. A capture that fails to start
// leaves correction disabled; the error is returned for the caller to log.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.baseCtx, d.cancel = context.WithCancel(ctx)
	d.running = true
	d.state = StateTyping
	d.mu.Unlock()

	if d.capture == nil {
		d.logger.Info("daemon started without keyboard capture")
		return nil
	}
	err := d.capture.Start(d.baseCtx, keystroke.Handler{
		OnChar:      d.OnChar,
		OnBackspace: d.OnBackspace,
		OnSpecial:   d.OnSpecial,
	})
	if err != nil {
		d.logger.Error("keyboard capture unavailable, correction disabled", "error", err)
		return fmt.Errorf("start capture: %w", err)
	}
	d.logger.Info("daemon started")
	return nil
}

// Stop cancels the pending phrase correction and stops capture.
// Outstanding correction calls are abandoned.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancelPhraseLocked()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	var err error
	if d.capture != nil {
		err = d.capture.Stop()
	}
	d.logger.Info("daemon stopped")
	return err
}

// SetConfig applies cfg from the next event on.
func (d *Daemon) SetConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyConfigLocked(cfg)
	d.logger.Info("configuration applied",
		"enabled", cfg.Enabled,
		"threshold", cfg.Threshold,
		"timeout", cfg.Timeout,
		"phrase_delay", cfg.PhraseDelay)
}

func (d *Daemon) applyConfigLocked(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.PhraseDelay <= 0 {
		cfg.PhraseDelay = DefaultConfig().PhraseDelay
	}
	if len(cfg.Languages) > 0 {
		d.engine.Checker().SetLanguages(cfg.Languages)
	}
	if cfg.Provider != "" {
		d.engine.SetProviderKind(cfg.Provider)
	}
	if cfg.Confidence != nil {
		d.engine.SetConfidence(*cfg.Confidence)
	}
	d.cfg = cfg
}

// Config returns the active configuration.
func (d *Daemon) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// State returns the current input state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Daemon) setStateLocked(s State) {
	if d.state != s {
		d.state = s
		d.observer.StateChanged(s)
	}
}

// ConsumeLayoutRequest returns and clears the pending layout switch.
func (d *Daemon) ConsumeLayoutRequest() (layout.ID, bool) {
	d.layoutMu.Lock()
	defer d.layoutMu.Unlock()
	id, ok := d.pendingLayout, d.hasPending
	d.pendingLayout, d.hasPending = "", false
	return id, ok
}

func (d *Daemon) requestLayout(text string) layout.ID {
	id, ok := layout.DetectTargetLayout(text)
	if !ok {
		return ""
	}
	d.layoutMu.Lock()
	d.pendingLayout, d.hasPending = id, true
	d.layoutMu.Unlock()
	d.observer.LayoutRequested(id)
	return id
}

// OnChar handles a typed character.
func (d *Daemon) OnChar(r rune) {
	d.mu.Lock()
	if !d.cfg.Enabled {
		d.mu.Unlock()
		return
	}
	d.cancelPhraseLocked()

	if d.state == StateHandoff {
		word, done := d.buf.Add(r)
		if !done {
			d.mu.Unlock()
			return
		}
		if !d.leavesHandoffLocked(word) {
			d.appendPhraseLocked(word)
			d.mu.Unlock()
			return
		}
		d.logger.Debug("leaving handoff on wrong-layout word", "word", word)
		clear(d.finalized)
		d.handoffLayout = ""
		d.setStateLocked(StateWordFinalized)
		d.correctWordLocked(word, true)
		return
	}

	d.setStateLocked(StateTyping)
	word, done := d.buf.Add(r)
	if !done {
		d.mu.Unlock()
		return
	}
	d.setStateLocked(StateWordFinalized)
	d.correctWordLocked(word, true)
}

// leavesHandoffLocked reports whether word was typed on the layout
// opposite to the one the last correction switched to.
func (d *Daemon) leavesHandoffLocked(word string) bool {
	var typedOn layout.ID
	switch layout.DetectMismatch(word) {
	case layout.ENMeantRU:
		typedOn = layout.US
	case layout.RUMeantEN:
		typedOn = layout.RU
	default:
		return false
	}
	return d.handoffLayout == "" || typedOn != d.handoffLayout
}

// OnBackspace handles a backspace.
func (d *Daemon) OnBackspace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelPhraseLocked()
	d.buf.Backspace()
}

// OnSpecial handles hotkeys and context-breaking keys.
func (d *Daemon) OnSpecial(key string, mods keystroke.Modifiers) {
	d.mu.Lock()
	hk := d.cfg.Hotkeys
	d.mu.Unlock()

	ctx := d.context()
	switch {
	case hk.Undo.Matches(key, mods):
		d.Undo(ctx)
	case hk.Rethink.Matches(key, mods):
		d.Rethink(ctx)
	case hk.Toggle.Matches(key, mods):
		d.Toggle()
	case hk.Polish.Matches(key, mods):
		d.Polish(ctx)
	case IsNavigation(key):
		d.ResetContext()
	}
}

// ResetContext forgets the buffer, phrase and finalized words.
func (d *Daemon) ResetContext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	d.setStateLocked(StateTyping)
}

func (d *Daemon) resetLocked() {
	d.cancelPhraseLocked()
	d.buf.Clear()
	d.clearPhraseLocked()
	clear(d.finalized)
	d.handoffLayout = ""
	d.epoch++
}

// Toggle flips the enabled flag and returns the new value.
func (d *Daemon) Toggle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Enabled = !d.cfg.Enabled
	if !d.cfg.Enabled {
		d.resetLocked()
		d.setStateLocked(StateTyping)
	}
	d.logger.Info("correction toggled", "enabled", d.cfg.Enabled)
	return d.cfg.Enabled
}

func (d *Daemon) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseCtx
}

func (d *Daemon) appendPhraseLocked(word string) {
	d.phrase = append(d.phrase, word)
	d.phraseLen += utf8.RuneCountInString(word) + 1
	for len(d.phrase) > maxPhraseWords {
		d.phraseLen -= utf8.RuneCountInString(d.phrase[0]) + 1
		d.phrase = d.phrase[1:]
	}
}

func (d *Daemon) clearPhraseLocked() {
	d.phrase = nil
	d.phraseLen = 0
}

func (d *Daemon) isEchoLocked(word string) bool {
	if d.last == nil {
		return false
	}
	if !strings.EqualFold(word, d.last.corrected) {
		return false
	}
	return d.now().Sub(d.last.at) < idempotencyWindow
}

// correctWordLocked runs single-word correction on a completed word.
// Called with mu held; returns with mu released. typedBoundary is false
// when the word was flushed without a boundary character on screen.
func (d *Daemon) correctWordLocked(word string, typedBoundary bool) {
	if d.isEchoLocked(word) {
		d.logger.Debug("skipping echo of last correction", "word", word)
		d.observer.CorrectionSkipped("echo")
		d.clearPhraseLocked()
		d.mu.Unlock()
		return
	}
	if d.finalized[strings.ToLower(word)] {
		d.observer.CorrectionSkipped("finalized")
		d.appendPhraseLocked(word)
		d.schedulePhraseLocked()
		d.mu.Unlock()
		return
	}
	if d.rules.IsSuppressed(word) {
		d.logger.Debug("skipping suppressed pattern", "word", word)
		d.observer.CorrectionSkipped("suppressed")
		d.appendPhraseLocked(word)
		d.schedulePhraseLocked()
		d.mu.Unlock()
		return
	}

	d.appendPhraseLocked(word)
	epoch := d.epoch
	surrounding := d.buf.Context()
	threshold := d.cfg.Threshold
	d.mu.Unlock()

	res, ok := d.runBounded("word", func(ctx context.Context) (correction.Result, bool) {
		return d.engine.Correct(ctx, word, surrounding)
	})

	d.mu.Lock()
	if d.epoch != epoch {
		d.mu.Unlock()
		return
	}
	if !ok || res.Text == word || res.Confidence < threshold {
		if ok && res.Text != word {
			d.observer.CorrectionSkipped("below_threshold")
		}
		d.schedulePhraseLocked()
		d.mu.Unlock()
		return
	}

	if n := len(d.phrase); n > 0 && d.phrase[n-1] == word {
		d.phrase = d.phrase[:n-1]
		d.phraseLen -= utf8.RuneCountInString(word) + 1
	}
	inj := d.applyWordLocked(word, res, typedBoundary)
	d.clearPhraseLocked()
	d.finishLocked(d.baseCtx, inj)
}

// injection is a replacement committed under mu and executed after it is
// released.
type injection struct {
	op          store.JournalKind
	deleteCount int
	text        string
	journal     *store.JournalEntry
}

func (d *Daemon) applyWordLocked(word string, res correction.Result, typedBoundary bool) *injection {
	boundary := ""
	deleteCount := utf8.RuneCountInString(word)
	if typedBoundary {
		boundary = string(d.buf.LastBoundary())
		deleteCount++
	}
	d.logger.Info("correcting word", "original", word, "corrected", res.Text,
		"strategy", string(res.Strategy), "confidence", res.Confidence)

	d.last = &lastCorrection{original: word, corrected: res.Text, at: d.now()}
	d.finalized[strings.ToLower(word)] = true
	d.finalized[strings.ToLower(res.Text)] = true

	entry := undo.NewEntry(word, res.Text, d.buf.Context())
	entry.Trailing = typedBoundary
	d.undo.Push(entry)

	d.handoffLayout = d.requestLayout(res.Text)
	d.setStateLocked(StateHandoff)
	d.buf.Clear()
	d.epoch++

	d.observer.CorrectionApplied(store.KindWord, string(res.Strategy))
	return &injection{
		op:          store.KindWord,
		deleteCount: deleteCount,
		text:        res.Text + boundary,
		journal: &store.JournalEntry{
			EntryID:    entry.ID,
			Kind:       store.KindWord,
			Original:   word,
			Corrected:  res.Text,
			Strategy:   string(res.Strategy),
			Confidence: res.Confidence,
		},
	}
}

// finishLocked releases mu and performs inj, if any. Injection failures
// are logged; committed state is kept.
func (d *Daemon) finishLocked(ctx context.Context, inj *injection) {
	if inj == nil {
		d.mu.Unlock()
		return
	}
	d.injectMu.Lock()
	d.mu.Unlock()
	defer d.injectMu.Unlock()
	d.inject(ctx, inj)
}

func (d *Daemon) inject(ctx context.Context, inj *injection) {
	if err := d.replacer.ReplaceText(ctx, inj.deleteCount, inj.text); err != nil {
		d.logger.Warn("text replacement failed", "op", string(inj.op), "error", err)
	}
	if d.journal != nil && inj.journal != nil {
		inj.journal.TimestampNs = d.now().UnixNano()
		if _, err := d.journal.AppendJournal(ctx, inj.journal); err != nil {
			d.logger.Warn("journal append failed", "error", err)
		}
	}
}

// runBounded runs fn on a worker under the configured hard timeout. A
// timed-out call is abandoned and counts as no correction.
func (d *Daemon) runBounded(op string, fn func(ctx context.Context) (correction.Result, bool)) (correction.Result, bool) {
	d.mu.Lock()
	timeout := d.cfg.Timeout
	base := d.baseCtx
	d.mu.Unlock()

	if !d.sem.TryAcquire(1) {
		d.logger.Warn("correction workers busy, skipping", "op", op)
		d.observer.CorrectionSkipped("busy")
		return correction.Result{}, false
	}

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	type outcome struct {
		res correction.Result
		ok  bool
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("correction panicked", "op", op, "panic", r)
				done <- outcome{}
			}
		}()
		res, ok := fn(ctx)
		done <- outcome{res: res, ok: ok}
	}()

	select {
	case out := <-done:
		d.observer.CorrectionDuration(time.Since(start))
		return out.res, out.ok
	case <-ctx.Done():
		d.logger.Warn("correction timed out", "op", op, "timeout", timeout)
		d.observer.CorrectionTimedOut()
		return correction.Result{}, false
	}
}

func (d *Daemon) cancelPhraseLocked() {
	d.phraseGen++
	if d.phraseTimer != nil {
		d.phraseTimer.Stop()
		d.phraseTimer = nil
	}
}

func (d *Daemon) schedulePhraseLocked() {
	if len(d.phrase) < 2 {
		return
	}
	d.cancelPhraseLocked()
	gen := d.phraseGen
	d.phraseTimer = time.AfterFunc(d.cfg.PhraseDelay, func() {
		d.correctPhrase(gen)
	})
}

// correctPhrase is the debounced phrase correction.
func (d *Daemon) correctPhrase(gen uint64) {
	d.mu.Lock()
	if gen != d.phraseGen || d.state == StateTyping {
		d.mu.Unlock()
		return
	}
	snapshot := slices.Clone(d.phrase)
	threshold := d.cfg.Threshold
	d.mu.Unlock()
	if len(snapshot) < 2 {
		return
	}

	res, ok := d.runBounded("phrase", func(ctx context.Context) (correction.Result, bool) {
		return d.engine.CorrectPhrase(ctx, snapshot)
	})

	d.mu.Lock()
	if gen != d.phraseGen {
		d.mu.Unlock()
		return
	}
	if !ok {
		d.setStateLocked(StateIdle)
		d.mu.Unlock()
		return
	}
	if !slices.Equal(d.phrase, snapshot) {
		d.mu.Unlock()
		return
	}

	var inj *injection
	original := strings.Join(snapshot, " ")
	if res.Text != original && res.Confidence >= threshold {
		inj = d.applyPhraseLocked(original, res)
	}
	d.setStateLocked(StateIdle)
	d.finishLocked(d.baseCtx, inj)
}

func (d *Daemon) applyPhraseLocked(original string, res correction.Result) *injection {
	d.logger.Info("correcting phrase", "original", original, "corrected", res.Text,
		"strategy", string(res.Strategy), "confidence", res.Confidence)

	words := strings.Fields(res.Text)
	if len(words) > 0 {
		d.last = &lastCorrection{original: original, corrected: words[len(words)-1], at: d.now()}
	}
	for _, w := range strings.Fields(original) {
		d.finalized[strings.ToLower(w)] = true
	}
	for _, w := range words {
		d.finalized[strings.ToLower(w)] = true
	}

	entry := undo.NewEntry(original, res.Text, d.buf.Context())
	entry.Phrase = true
	entry.Trailing = true
	d.undo.Push(entry)

	deleteCount := d.phraseLen
	text := res.Text + string(d.buf.LastBoundary())

	d.handoffLayout = d.requestLayout(res.Text)
	d.setStateLocked(StateHandoff)
	d.buf.Clear()
	d.clearPhraseLocked()
	d.epoch++

	d.observer.CorrectionApplied(store.KindPhrase, string(res.Strategy))
	return &injection{
		op:          store.KindPhrase,
		deleteCount: deleteCount,
		text:        text,
		journal: &store.JournalEntry{
			EntryID:    entry.ID,
			Kind:       store.KindPhrase,
			Original:   original,
			Corrected:  res.Text,
			Strategy:   string(res.Strategy),
			Confidence: res.Confidence,
		},
	}
}
