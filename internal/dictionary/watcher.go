package dictionary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// LoadExtra merges <dir>/<lang>.txt into the built-in list of each language
// and registers the result in s. Missing files are not an error.
func LoadExtra(s *Set, dir string, langs []Language) error {
	if dir == "" {
		return nil
	}
	var errs []error
	for _, lang := range langs {
		if err := loadExtraLanguage(s, dir, lang); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func loadExtraLanguage(s *Set, dir string, lang Language) error {
	path := filepath.Join(dir, string(lang)+".txt")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	extra, err := Load(lang, f)
	if err != nil {
		return err
	}

	base, err := Builtin(lang)
	if errors.Is(err, ErrNoBuiltin) {
		s.Register(lang, extra)
		return nil
	}
	if err != nil {
		return err
	}
	extra.mu.RLock()
	words := make([]string, 0, len(extra.words))
	for w := range extra.words {
		words = append(words, w)
	}
	extra.mu.RUnlock()
	base.Add(words...)
	s.Register(lang, base)
	return nil
}

// Watcher reloads user word lists when files in the extra directory change.
type Watcher struct {
	set    *Set
	dir    string
	langs  []Language
	logger *slog.Logger

	mu      sync.Mutex
	pending map[Language]*time.Timer
}

// NewWatcher returns a watcher for dir. Call Run to start watching.
func NewWatcher(s *Set, dir string, langs []Language) *Watcher {
	return &Watcher{
		set:     s,
		dir:     dir,
		langs:   langs,
		logger:  slog.Default().With("component", "dictionary"),
		pending: make(map[Language]*time.Timer),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			for _, t := range w.pending {
				t.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			lang, ok := w.languageFor(ev.Name)
			if !ok || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.schedule(lang)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) languageFor(path string) (Language, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".txt") {
		return "", false
	}
	code := Language(strings.TrimSuffix(base, ".txt"))
	for _, l := range w.langs {
		if l == code {
			return l, true
		}
	}
	return "", false
}

func (w *Watcher) schedule(lang Language) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[lang]; ok {
		t.Stop()
	}
	w.pending[lang] = time.AfterFunc(reloadDebounce, func() {
		if err := loadExtraLanguage(w.set, w.dir, lang); err != nil {
			w.logger.Warn("reload word list failed", "lang", lang, "error", err)
			return
		}
		w.logger.Info("word list reloaded", "lang", lang)
	})
}
