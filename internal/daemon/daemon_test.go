package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/correction"
	"kswitchd/internal/dictionary"
	"kswitchd/internal/keystroke"
	"kswitchd/internal/layout"
	"kswitchd/internal/replacer"
	"kswitchd/internal/rules"
	"kswitchd/internal/semantic"
	"kswitchd/internal/spelling"
	"kswitchd/internal/store"
)

var testLangs = []dictionary.Language{dictionary.English, dictionary.Russian}

func builtinEngine(t *testing.T, opts ...correction.Option) *correction.Engine {
	t.Helper()
	set, err := dictionary.NewDefaultSet()
	require.NoError(t, err)
	return correction.NewEngine(spelling.NewChecker(set, testLangs), opts...)
}

type countingObserver struct {
	mu       sync.Mutex
	applied  map[store.JournalKind]int
	skipped  map[string]int
	timeouts int
	layouts  []layout.ID
}

func newCountingObserver() *countingObserver {
	return &countingObserver{applied: map[store.JournalKind]int{}, skipped: map[string]int{}}
}

func (o *countingObserver) CorrectionApplied(k store.JournalKind, _ string) {
	o.mu.Lock()
	o.applied[k]++
	o.mu.Unlock()
}

func (o *countingObserver) CorrectionSkipped(reason string) {
	o.mu.Lock()
	o.skipped[reason]++
	o.mu.Unlock()
}

func (o *countingObserver) CorrectionTimedOut() {
	o.mu.Lock()
	o.timeouts++
	o.mu.Unlock()
}

func (o *countingObserver) CorrectionDuration(time.Duration) {}
func (o *countingObserver) StateChanged(State)               {}

func (o *countingObserver) LayoutRequested(id layout.ID) {
	o.mu.Lock()
	o.layouts = append(o.layouts, id)
	o.mu.Unlock()
}

func (o *countingObserver) timedOut() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timeouts
}

func (o *countingObserver) count(k store.JournalKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applied[k]
}

type memJournal struct {
	mu      sync.Mutex
	entries []store.JournalEntry
}

func (j *memJournal) AppendJournal(_ context.Context, e *store.JournalEntry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *e)
	return int64(len(j.entries)), nil
}

type harness struct {
	d       *Daemon
	rec     *replacer.Recorder
	rules   *rules.Store
	obs     *countingObserver
	journal *memJournal
}

func newHarness(t *testing.T, engine *correction.Engine, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.PhraseDelay = 20 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		rec:     replacer.NewRecorder(),
		rules:   rules.Open(context.Background(), rules.NewMemoryBackend()),
		obs:     newCountingObserver(),
		journal: &memJournal{},
	}
	d, err := New(cfg, Deps{
		Engine:   engine,
		Replacer: h.rec,
		Rules:    h.rules,
		Journal:  h.journal,
		Observer: h.obs,
	})
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) typeText(s string) {
	for _, r := range s {
		h.rec.Typed(string(r))
		h.d.OnChar(r)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestWordCorrection(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.typeText("Ghbdtn ")

	assert.Equal(t, "Привет ", h.rec.Document())
	assert.Equal(t, []replacer.Call{{DeleteCount: 7, Text: "Привет "}}, h.rec.Calls())
	assert.Equal(t, StateHandoff, h.d.State())

	id, ok := h.d.ConsumeLayoutRequest()
	require.True(t, ok)
	assert.Equal(t, layout.RU, id)
	_, ok = h.d.ConsumeLayoutRequest()
	assert.False(t, ok, "layout request is single-slot")

	st := h.d.Status()
	assert.Equal(t, 1, st.UndoDepth)
	assert.Equal(t, "handoff", st.State)
	assert.Equal(t, layout.RU, st.HandoffLayout)

	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, store.KindWord, h.journal.entries[0].Kind)
	assert.Equal(t, "Ghbdtn", h.journal.entries[0].Original)
	assert.NotZero(t, h.journal.entries[0].TimestampNs)
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"layout swap", "Ghbdtn ", "Привет "},
		{"spelling", "ывгключил ", "выключил "},
		{"mixed script", "выклюchил ", "выключил "},
		{"all caps veto", "HELLO ", "HELLO "},
		{"valid word", "hello ", "hello "},
		{"keeps boundary", "ghbdtn,", "привет,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, builtinEngine(t), nil)
			h.typeText(tt.input)
			assert.Equal(t, tt.want, h.rec.Document())
		})
	}
}

func TestEchoProducesSingleReplacement(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.typeText("Ghbdtn ")
	h.typeText("Привет ")
	assert.Len(t, h.rec.Calls(), 1)

	// Even with the context reset, the idempotency window still catches
	// a leaked copy of the output.
	h.d.ResetContext()
	h.typeText("привет ")
	assert.Len(t, h.rec.Calls(), 1)
}

func TestEchoWindowExpires(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := newHarness(t, builtinEngine(t), nil)
	h.d.now = clock

	h.typeText("Ghbdtn ")
	require.Len(t, h.rec.Calls(), 1)
	h.d.mu.Lock()
	assert.True(t, h.d.isEchoLocked("привет"))
	mu.Lock()
	now = now.Add(3 * time.Second)
	mu.Unlock()
	assert.False(t, h.d.isEchoLocked("привет"))
	h.d.mu.Unlock()
}

func TestPhraseWordsCorrectedInHandoff(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.typeText("rfr ltkf ")

	assert.Equal(t, "как дела ", h.rec.Document())
	assert.Len(t, h.rec.Calls(), 2)
}

func TestDebouncedPhraseCorrection(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	require.NoError(t, h.rules.Merge(context.Background(), rules.Snapshot{
		Suppressed: []string{"rfr", "ltkf"},
	}))

	h.typeText("rfr ltkf ")
	assert.Empty(t, h.rec.Calls(), "suppressed words are not corrected alone")

	require.Eventually(t, func() bool {
		return len(h.rec.Calls()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "как дела ", h.rec.Document())
	assert.Equal(t, replacer.Call{DeleteCount: 9, Text: "как дела "}, h.rec.Calls()[0])
	require.Eventually(t, func() bool { return h.d.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.obs.count(store.KindPhrase))
}

func TestPhraseCancelledByTyping(t *testing.T) {
	h := newHarness(t, builtinEngine(t), func(c *Config) {
		c.PhraseDelay = 50 * time.Millisecond
	})
	require.NoError(t, h.rules.Merge(context.Background(), rules.Snapshot{
		Suppressed: []string{"rfr", "ltkf"},
	}))

	h.typeText("rfr ltkf ")
	h.typeText("r")
	time.Sleep(150 * time.Millisecond)

	assert.Empty(t, h.rec.Calls())
	assert.Equal(t, StateTyping, h.d.State())
}

func TestPhraseIsBounded(t *testing.T) {
	h := newHarness(t, builtinEngine(t), func(c *Config) { c.PhraseDelay = time.Hour })
	for i := 0; i < 15; i++ {
		h.typeText("hello ")
	}
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	assert.Len(t, h.d.phrase, maxPhraseWords)
	assert.Equal(t, maxPhraseWords*len("hello "), h.d.phraseLen)
}

func TestUndoRestoresSpaceBoundary(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.typeText("ghbdtn,")
	require.Equal(t, "привет,", h.rec.Document())

	entry, ok := h.d.Undo(context.Background())
	require.True(t, ok)
	assert.True(t, entry.Trailing)
	assert.Equal(t, "ghbdtn ", h.rec.Document(), "the comma comes back as a space")
	assert.Equal(t, replacer.Call{DeleteCount: 7, Text: "ghbdtn "}, h.rec.Calls()[1])
}

func TestUndoLearnsSuppression(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	ctx := context.Background()

	for i := 0; i < rules.SuppressAfter; i++ {
		h.typeText("Ghbdtn ")
		require.Equal(t, "Привет ", lastN(h.rec.Document(), 7), "round %d", i)
		h.d.OnSpecial("/", keystroke.ModCtrl)
		h.d.ResetContext()
	}
	assert.True(t, h.rules.IsSuppressed("ghbdtn"))
	assert.Equal(t, 2*rules.SuppressAfter, len(h.rec.Calls()))

	calls := h.rec.Calls()
	assert.Equal(t, replacer.Call{DeleteCount: 7, Text: "Ghbdtn "}, calls[1])

	h.typeText("Ghbdtn ")
	assert.Len(t, h.rec.Calls(), 2*rules.SuppressAfter, "suppressed pattern is left alone")

	_, ok := h.d.Undo(ctx)
	assert.False(t, ok, "history is empty")
}

func lastN(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[len(r)-n:])
}

type switchingProvider struct {
	mu  sync.Mutex
	out string
}

func (p *switchingProvider) Name() string { return "local" }

func (p *switchingProvider) Correct(context.Context, string, string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out, true, nil
}

func (p *switchingProvider) set(out string) {
	p.mu.Lock()
	p.out = out
	p.mu.Unlock()
}

func TestRethinkReplacesInPlace(t *testing.T) {
	prov := &switchingProvider{out: "first"}
	h := newHarness(t, builtinEngine(t, correction.WithProvider(semantic.KindLocal, prov)), nil)

	h.typeText("qqqqqqqq ")
	require.Equal(t, "first ", h.rec.Document())

	prov.set("second")
	got, ok := h.d.Rethink(context.Background())
	require.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, "second ", h.rec.Document())

	entry, ok := h.d.undo.Peek()
	require.True(t, ok)
	assert.Equal(t, "second", entry.Corrected)

	_, ok = h.d.Rethink(context.Background())
	assert.False(t, ok, "unchanged answer is not reapplied")

	h.d.Undo(context.Background())
	assert.Equal(t, "qqqqqqqq ", h.rec.Document())
}

func TestRethinkFlushesLiveWord(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.typeText("Ghbdtn")
	assert.Empty(t, h.rec.Calls())

	got, ok := h.d.Rethink(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Привет", got)
	assert.Equal(t, "Привет", h.rec.Document())
	assert.Equal(t, replacer.Call{DeleteCount: 6, Text: "Привет"}, h.rec.Calls()[0])

	h.d.Undo(context.Background())
	assert.Equal(t, "Ghbdtn", h.rec.Document())
}

func TestPolish(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	require.NoError(t, h.rules.Merge(context.Background(), rules.Snapshot{Suppressed: []string{"rfr"}}))

	h.typeText("rfr ltkf")
	require.Empty(t, h.rec.Calls())

	h.d.OnSpecial("l", keystroke.ModCtrl|keystroke.ModShift)
	assert.Equal(t, "как дела", h.rec.Document())
	assert.Equal(t, StateHandoff, h.d.State())
	id, ok := h.d.ConsumeLayoutRequest()
	require.True(t, ok)
	assert.Equal(t, layout.RU, id)

	h.d.Undo(context.Background())
	assert.Equal(t, "rfr ltkf", h.rec.Document())
}

func TestPolishNothingToDo(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	_, ok := h.d.Polish(context.Background())
	assert.False(t, ok)

	h.typeText("hello world")
	_, ok = h.d.Polish(context.Background())
	assert.False(t, ok)
	assert.Empty(t, h.rec.Calls())
}

func TestNavigationResetsContext(t *testing.T) {
	h := newHarness(t, builtinEngine(t), func(c *Config) { c.PhraseDelay = time.Hour })
	h.typeText("hello world ghb")

	h.d.OnSpecial(keystroke.KeyHome, 0)

	st := h.d.Status()
	assert.Equal(t, "typing", st.State)
	assert.Zero(t, st.PhraseWords)
	assert.Zero(t, st.Finalized)
	_, ok := h.d.Polish(context.Background())
	assert.False(t, ok, "buffer is empty after navigation")
}

func TestToggle(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)

	h.d.OnSpecial("p", keystroke.ModCtrl|keystroke.ModShift)
	assert.False(t, h.d.Config().Enabled)
	h.typeText("Ghbdtn ")
	assert.Empty(t, h.rec.Calls())

	assert.True(t, h.d.Toggle())
	h.typeText("Ghbdtn ")
	assert.Len(t, h.rec.Calls(), 1)
}

func TestCustomHotkeys(t *testing.T) {
	h := newHarness(t, builtinEngine(t), func(c *Config) {
		c.Hotkeys.Toggle = MustParseHotkey("alt+t")
	})
	h.d.OnSpecial("p", keystroke.ModCtrl|keystroke.ModShift)
	assert.True(t, h.d.Config().Enabled)
	h.d.OnSpecial("T", keystroke.ModAlt)
	assert.False(t, h.d.Config().Enabled)
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "local" }

func (blockingProvider) Correct(ctx context.Context, _, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func TestCorrectionTimeout(t *testing.T) {
	engine := builtinEngine(t, correction.WithProvider(semantic.KindLocal, blockingProvider{}))
	h := newHarness(t, engine, func(c *Config) { c.Timeout = 20 * time.Millisecond })

	start := time.Now()
	h.typeText("qqqqqqqq ")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, h.rec.Calls())
	assert.Equal(t, 1, h.obs.timedOut())
}

func TestReplacerFailureKeepsState(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	h.rec.Fail(errors.New("xdotool: cannot open display"))

	h.typeText("Ghbdtn ")
	assert.Len(t, h.rec.Calls(), 1)
	assert.Equal(t, StateHandoff, h.d.State())
	assert.Equal(t, 1, h.d.Status().UndoDepth)
}

func TestSetConfigThreshold(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	cfg := h.d.Config()
	cfg.Threshold = 0.99
	h.d.SetConfig(cfg)

	h.typeText("Ghbdtn ")
	assert.Empty(t, h.rec.Calls())
}

func TestSetConfigLanguages(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	cfg := h.d.Config()
	cfg.Languages = []dictionary.Language{dictionary.English}
	h.d.SetConfig(cfg)

	h.typeText("Ghbdtn ")
	assert.NotContains(t, h.rec.Document(), "Привет")
	assert.Equal(t, []string{"en"}, h.d.Status().Languages)
}

// echoReplacer types the replacement back into the capture, the way a
// display server would report synthetic events.
type echoReplacer struct {
	sim *keystroke.Simulated
	rec *replacer.Recorder
}

func (e *echoReplacer) ReplaceText(ctx context.Context, n int, text string) error {
	e.sim.Backspace(n)
	e.sim.Type(text)
	return e.rec.ReplaceText(ctx, n, text)
}

func TestCaptureSuppressesOwnOutput(t *testing.T) {
	sim := keystroke.NewSimulated()
	rec := replacer.NewRecorder()
	d, err := New(DefaultConfig(), Deps{
		Engine:   builtinEngine(t),
		Replacer: &echoReplacer{sim: sim, rec: rec},
		Rules:    rules.Open(context.Background(), rules.NewMemoryBackend()),
		Capture:  sim,
	})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	for _, r := range "Ghbdtn " {
		rec.Typed(string(r))
		sim.Type(string(r))
	}

	assert.Len(t, rec.Calls(), 1)
	assert.Equal(t, "Привет ", rec.Document())
	assert.Equal(t, uint64(7+7), sim.Dropped())
	assert.False(t, sim.Suppressed())
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, builtinEngine(t), nil)
	require.NoError(t, h.d.Start(context.Background()))
	assert.True(t, h.d.Status().Running)
	require.NoError(t, h.d.Stop())
	require.NoError(t, h.d.Stop())
	assert.False(t, h.d.Status().Running)
}
