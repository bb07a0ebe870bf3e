package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kswitchd/internal/config"
	"kswitchd/internal/correction"
	"kswitchd/internal/daemon"
	"kswitchd/internal/dictionary"
	"kswitchd/internal/focus"
	"kswitchd/internal/health"
	"kswitchd/internal/ipc"
	"kswitchd/internal/keystroke"
	"kswitchd/internal/layout"
	"kswitchd/internal/layoutswitch"
	"kswitchd/internal/logging"
	"kswitchd/internal/metrics"
	"kswitchd/internal/replacer"
	"kswitchd/internal/rules"
	"kswitchd/internal/semantic"
	"kswitchd/internal/spelling"
	"kswitchd/internal/store"
)

const (
	pruneInterval     = time.Hour
	maxHeapBytes      = 256 << 20
	minFreeBytes      = 16 << 20
	layoutBackendNone = "none"
)

func newRunCmd() *cobra.Command {
	var noCapture bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the correction daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), noCapture)
		},
	}
	cmd.Flags().BoolVar(&noCapture, "no-capture", false, "do not read the keyboard; drive the daemon over the control socket only")
	return cmd
}

// stack is every long-lived component of a running daemon.
type stack struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   *logging.Logger
	crash    *logging.CrashHandler
	dicts    *dictionary.Set
	engine   *correction.Engine
	db       *store.Store // nil unless storage is sqlite
	rules    *rules.Store
	capture  keystroke.Capture
	tracker  *layoutswitch.Tracker
	switcher layoutswitch.Switcher
	daemon   *daemon.Daemon
	ipc      *ipc.Server
	events   *ipc.EventObserver
	metrics  *metrics.Metrics
	health   *health.Checker
}

func runDaemon(ctx context.Context, noCapture bool) error {
	loader := config.NewLoader(resolveConfigPath())
	cfg, loadErr := loader.LoadOrDefault()
	if socketPath != "" {
		cfg.IPC.SocketPath = socketPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.WithComponent("main")

	if loadErr != nil {
		log.Warn("configuration invalid, using defaults", "path", loader.Path(), "error", loadErr)
	}
	log.Info("starting kswitchd", "version", Version, "config", loader.Path())

	s := &stack{
		cfg:    cfg,
		loader: loader,
		logger: logger,
		crash:  logging.NewCrashHandler(filepath.Join(config.StateDir(), "crashes"), Version),
	}
	if err := s.build(ctx, noCapture); err != nil {
		return err
	}
	defer s.close()

	return s.run(ctx)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel())
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.AddSource = cfg.Logging.AddSource
	lc.LogText = cfg.Logging.LogText
	return logging.New(lc)
}

func (s *stack) build(ctx context.Context, noCapture bool) error {
	cfg := s.cfg
	log := s.logger.WithComponent("main")

	dicts, err := dictionary.NewDefaultSet()
	if err != nil {
		return fmt.Errorf("load dictionaries: %w", err)
	}
	langs := cfg.EnabledLanguages()
	if cfg.Dictionary.ExtraDir != "" {
		if err := dictionary.LoadExtra(dicts, cfg.Dictionary.ExtraDir, langs); err != nil {
			log.Warn("extra dictionaries not loaded", "dir", cfg.Dictionary.ExtraDir, "error", err)
		}
	}
	s.dicts = dicts

	checker := spelling.NewChecker(dicts, langs)
	if cfg.Correction.MaxSpellDistance > 0 {
		checker.SetMaxDistance(cfg.Correction.MaxSpellDistance)
	}
	s.engine = correction.NewEngine(checker,
		correction.WithConfidence(cfg.Correction.Confidence),
		correction.WithProvider(semantic.KindLocal, semantic.NewLocal(checker)),
	)
	providerFailed := false
	if err := s.configureProvider(cfg); err != nil {
		log.Warn("remote provider unavailable, using local", "error", err)
		s.useLocalProvider()
		providerFailed = true
	}

	s.openStorage(ctx)

	if !noCapture {
		s.capture = keystroke.New(keystroke.Options{Devices: cfg.Capture.Devices, Layout: s.currentLayout})
		if ok, reason := s.capture.Available(); !ok {
			log.Warn("keyboard capture not available", "reason", reason)
		}
	}

	rep := newReplacer(cfg.Inject.Tool)

	if cfg.Layout.Backend != layoutBackendNone {
		sw, err := layoutswitch.New(cfg.Layout.Backend)
		if err != nil {
			return err
		}
		s.switcher = sw
		s.tracker = layoutswitch.NewTracker(sw, time.Second, layout.US)
	}

	observers := daemon.MultiObserver{}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(Version)
		observers = append(observers, s.metrics)
	}
	if cfg.IPC.Enabled {
		mode, err := socketMode(cfg.IPC.Permissions)
		if err != nil {
			return err
		}
		ic := ipc.DefaultServerConfig(cfg.IPC.SocketPath)
		ic.Version = Version
		ic.Permissions = mode
		ic.AllowOtherUsers = cfg.IPC.AllowOtherUsers
		s.ipc = ipc.NewServer(ic, nil)
		s.events = ipc.NewEventObserver(s.ipc)
		observers = append(observers, s.events)
	}

	dcfg, err := cfg.Daemon()
	if err != nil {
		return err
	}
	if providerFailed {
		dcfg.Provider = semantic.KindLocal
	}
	deps := daemon.Deps{
		Engine:   s.engine,
		Replacer: rep,
		Rules:    s.rules,
		Capture:  s.capture,
		Observer: observers,
	}
	if s.db != nil {
		deps.Journal = s.db
	}
	d, err := daemon.New(dcfg, deps)
	if err != nil {
		return err
	}
	s.daemon = d

	if s.ipc != nil {
		h := ipc.NewDaemonHandler(d, Version)
		h.Rules = s.rules
		if s.db != nil {
			h.Journal = s.db
		}
		h.Reload = func(context.Context) error { return s.loader.Reload() }
		h.Attach(s.ipc)
		s.ipc.SetHandler(h)
	}

	if s.metrics != nil {
		s.metrics.MustRegister(metrics.NewStatusCollector(d.Status))
	}
	s.health = s.buildHealth()

	s.loader.OnChange(s.applyConfig)
	return nil
}

func (s *stack) currentLayout() layout.ID {
	if s.tracker == nil {
		return layout.US
	}
	return s.tracker.Current()
}

func (s *stack) configureProvider(cfg *config.Config) error {
	kind, err := semantic.ParseKind(cfg.Semantic.Provider)
	if err != nil {
		return err
	}
	if kind != semantic.KindRemote {
		s.useLocalProvider()
		return nil
	}
	remote, err := semantic.NewRemote(semantic.RemoteConfig{
		URL:           cfg.Semantic.APIURL,
		Model:         cfg.Semantic.APIModel,
		APIKey:        cfg.Semantic.APIKey,
		Mode:          semantic.Mode(cfg.Semantic.Mode),
		RatePerSecond: cfg.Semantic.RatePerSecond,
	})
	if err != nil {
		return fmt.Errorf("remote provider: %w", err)
	}
	s.engine.SetProvider(semantic.KindRemote, remote)
	s.engine.SetProviderKind(semantic.KindRemote)
	return nil
}

func (s *stack) useLocalProvider() {
	s.engine.SetProviderKind(semantic.KindLocal)
	s.engine.SetProvider(semantic.KindRemote, nil)
}

func (s *stack) openStorage(ctx context.Context) {
	s.rules, s.db = openRuleStoreOrMemory(ctx, s.cfg.Storage)
	slog.Default().Info("rule store opened", "backend", s.cfg.Storage.Backend, "suppressed", len(s.rules.Suppressed()))
}

// openRuleStoreOrMemory opens the configured rule backend. When it cannot be
// opened the daemon keeps running on an in-memory store, so learned rules
// and the journal last only until exit.
func openRuleStoreOrMemory(ctx context.Context, cfg config.StorageConfig) (*rules.Store, *store.Store) {
	rs, db, err := openRuleStore(ctx, cfg)
	if err != nil {
		slog.Default().With("component", "main").Warn("rule store unavailable, keeping rules in memory",
			"backend", cfg.Backend, "path", cfg.Path, "error", err)
		return rules.Open(ctx, rules.NewMemoryBackend()), nil
	}
	return rs, db
}

// newReplacer returns the xdotool replacer, or one that fails every call
// with replacer.ErrToolNotFound when the tool is missing.
func newReplacer(tool string) replacer.Replacer {
	x, err := replacer.NewXdotool(tool)
	if err != nil {
		slog.Default().With("component", "main").Warn("text injection disabled", "tool", tool, "error", err)
		return replacer.Unavailable{Tool: tool}
	}
	return x
}

// openRuleStore opens the configured rule backend. The sqlite database is
// returned as well since it also carries the journal; other backends
// return a nil db.
func openRuleStore(ctx context.Context, cfg config.StorageConfig) (*rules.Store, *store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return rules.Open(ctx, rules.NewMemoryBackend()), nil, nil
	case "badger":
		b, err := rules.OpenBadger(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return rules.Open(ctx, b), nil, nil
	default:
		db, err := store.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return rules.Open(ctx, rules.NewSQLiteBackend(db)), db, nil
	}
}

func (s *stack) buildHealth() *health.Checker {
	c := health.NewChecker()
	c.RegisterFunc("daemon", true, health.RunningCheck(func() (bool, bool) {
		st := s.daemon.Status()
		return st.Running, st.Enabled
	}))
	c.RegisterFunc("injector", true, health.ToolCheck(s.cfg.Inject.Tool))
	if s.capture != nil {
		c.RegisterFunc("capture", false, health.AvailabilityCheck(s.capture.Available))
	}
	if s.db != nil {
		c.RegisterFunc("store", true, health.PingCheck(s.db.Ping))
	}
	c.RegisterFunc("disk", false, health.DiskSpaceCheck(filepath.Dir(s.cfg.Storage.Path), minFreeBytes))
	c.RegisterFunc("memory", false, health.MemoryCheck(maxHeapBytes))
	return c
}

// applyConfig pushes a reloaded configuration into the running components.
func (s *stack) applyConfig(cfg *config.Config) {
	log := slog.Default().With("component", "main")

	dcfg, err := cfg.Daemon()
	if err != nil {
		log.Warn("reloaded configuration rejected", "error", err)
		return
	}
	if err := s.configureProvider(cfg); err != nil {
		log.Warn("provider not changed", "error", err)
		dcfg.Provider = ""
	}
	if cfg.Correction.MaxSpellDistance > 0 {
		s.engine.Checker().SetMaxDistance(cfg.Correction.MaxSpellDistance)
	}
	s.daemon.SetConfig(dcfg)
	if s.events != nil {
		s.events.ConfigChanged(cfg.Enabled)
	}
	log.Info("configuration applied", "enabled", cfg.Enabled, "provider", cfg.Semantic.Provider)
}

func (s *stack) run(ctx context.Context) error {
	log := slog.Default().With("component", "main")
	cfg := s.cfg

	if err := s.daemon.Start(ctx); err != nil {
		// Hotkeys need capture; the control socket keeps working.
		log.Error("daemon started without keyboard", "error", err)
	}
	defer s.daemon.Stop()

	g, ctx := errgroup.WithContext(ctx)
	goSafe := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			var err error
			if ok := s.crash.Run(name, func() { err = fn(ctx) }); !ok {
				return fmt.Errorf("%s panicked", name)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	goSafe("config", s.loader.Watch)
	goSafe("config-errors", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-s.loader.Errors():
				log.Warn("configuration reload failed", "error", err)
			}
		}
	})
	if cfg.Dictionary.ExtraDir != "" {
		goSafe("dictionary", dictionary.NewWatcher(s.dicts, cfg.Dictionary.ExtraDir, cfg.EnabledLanguages()).Run)
	}
	if s.switcher != nil {
		poller := layoutswitch.NewPoller(s.daemon, s.switcher, time.Duration(cfg.Layout.PollIntervalMs)*time.Millisecond)
		poller.OnSwitch(func(id layout.ID, ok bool) {
			if ok {
				s.tracker.Set(id)
			}
		})
		goSafe("layout", poller.Run)
		goSafe("layout-tracker", s.tracker.Run)
	}
	if s.capture != nil && cfg.Capture.FocusPollMs > 0 {
		if src, err := focus.NewX11(); err != nil {
			log.Info("focus tracking disabled", "display", focus.DisplayServer())
		} else {
			w := focus.NewWatcher(src, time.Duration(cfg.Capture.FocusPollMs)*time.Millisecond, func(string) {
				s.daemon.ResetContext()
			})
			goSafe("focus", w.Run)
		}
	}
	if s.db != nil && cfg.Storage.JournalRetentionDays > 0 {
		retention := time.Duration(cfg.Storage.JournalRetentionDays) * 24 * time.Hour
		goSafe("journal-prune", func(ctx context.Context) error {
			return pruneJournal(ctx, s.db, retention, pruneInterval)
		})
	}
	if s.ipc != nil {
		if err := s.ipc.Start(); err != nil {
			return err
		}
		goSafe("ipc", s.ipc.Run)
	}
	if cfg.Metrics.Enabled {
		srv := health.NewServer(cfg.Metrics.Listen, s.health, s.metrics.Handler())
		goSafe("http", srv.Run)
	}

	s.health.SetReady(true)
	log.Info("kswitchd ready",
		"enabled", cfg.Enabled,
		"provider", s.engine.ProviderName(),
		"storage", cfg.Storage.Backend,
		"socket", cfg.IPC.SocketPath)

	err := g.Wait()
	s.health.SetReady(false)
	log.Info("kswitchd stopping")
	return err
}

func (s *stack) close() {
	if s.rules != nil {
		if err := s.rules.Close(); err != nil {
			slog.Default().Warn("close rule store", "error", err)
		}
	}
}

// pruneJournal deletes journal entries older than retention every interval.
func pruneJournal(ctx context.Context, db *store.Store, retention, interval time.Duration) error {
	log := slog.Default().With("component", "journal")
	prune := func() {
		n, err := db.PruneJournal(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("prune failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("pruned journal", "entries", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}

// socketMode parses an octal permission string such as "0600".
func socketMode(s string) (fs.FileMode, error) {
	if s == "" {
		return 0600, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid socket permissions %q: %w", s, err)
	}
	return fs.FileMode(v), nil
}
