// Package config handles configuration loading, validation and hot reload
// for kswitchd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"kswitchd/internal/correction"
	"kswitchd/internal/daemon"
	"kswitchd/internal/dictionary"
	"kswitchd/internal/semantic"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Enabled is the master switch. The toggle hotkey flips it at runtime.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	Languages  LanguagesConfig  `toml:"languages" json:"languages" yaml:"languages"`
	Semantic   SemanticConfig   `toml:"semantic" json:"semantic" yaml:"semantic"`
	Correction CorrectionConfig `toml:"correction" json:"correction" yaml:"correction"`
	Hotkeys    HotkeysConfig    `toml:"hotkeys" json:"hotkeys" yaml:"hotkeys"`
	Dictionary DictionaryConfig `toml:"dictionary" json:"dictionary" yaml:"dictionary"`
	Storage    StorageConfig    `toml:"storage" json:"storage" yaml:"storage"`
	Capture    CaptureConfig    `toml:"capture" json:"capture" yaml:"capture"`
	Inject     InjectConfig     `toml:"inject" json:"inject" yaml:"inject"`
	Layout     LayoutConfig     `toml:"layout" json:"layout" yaml:"layout"`
	IPC        IPCConfig        `toml:"ipc" json:"ipc" yaml:"ipc"`
	Metrics    MetricsConfig    `toml:"metrics" json:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `toml:"logging" json:"logging" yaml:"logging"`
}

// LanguagesConfig enables alphabets. Belarusian has no built-in word list;
// it only validates when dictionary.extra_dir supplies be.txt.
type LanguagesConfig struct {
	EN bool `toml:"en" json:"en" yaml:"en"`
	RU bool `toml:"ru" json:"ru" yaml:"ru"`
	BE bool `toml:"be" json:"be" yaml:"be"`
}

// SemanticConfig selects and configures the semantic provider.
type SemanticConfig struct {
	// Provider is "local" or "remote". The legacy names "tinyllm" and
	// "api" are accepted.
	Provider string `toml:"provider" json:"provider" yaml:"provider"`

	APIURL   string `toml:"api_url" json:"api_url" yaml:"api_url"`
	APIModel string `toml:"api_model" json:"api_model" yaml:"api_model"`

	// APIKey is sent as a bearer token. Prefer KSWITCHD_API_KEY.
	APIKey string `toml:"api_key" json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Mode is "raw" or "openai".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	RatePerSecond float64 `toml:"rate_per_second" json:"rate_per_second" yaml:"rate_per_second"`
}

// CorrectionConfig tunes the correction engine and the daemon timers.
type CorrectionConfig struct {
	ConfidenceThreshold float64               `toml:"confidence_threshold" json:"confidence_threshold" yaml:"confidence_threshold"`
	TimeoutMs           int                   `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
	PhraseIdleDelayMs   int                   `toml:"phrase_idle_delay_ms" json:"phrase_idle_delay_ms" yaml:"phrase_idle_delay_ms"`
	MaxSpellDistance    int                   `toml:"max_spell_distance" json:"max_spell_distance" yaml:"max_spell_distance"`
	Confidence          correction.Confidence `toml:"confidence" json:"confidence" yaml:"confidence"`
}

// HotkeysConfig holds chord strings such as "ctrl+shift+/".
type HotkeysConfig struct {
	Undo    string `toml:"undo" json:"undo" yaml:"undo"`
	Rethink string `toml:"rethink" json:"rethink" yaml:"rethink"`
	Toggle  string `toml:"toggle" json:"toggle" yaml:"toggle"`
	Polish  string `toml:"polish" json:"polish" yaml:"polish"`
}

// DictionaryConfig points at user word lists.
type DictionaryConfig struct {
	// ExtraDir holds <lang>.txt files merged into the built-in lists and
	// reloaded when they change.
	ExtraDir string `toml:"extra_dir" json:"extra_dir" yaml:"extra_dir"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Backend is "sqlite", "badger" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Path is the database file for sqlite or the directory for badger.
	Path string `toml:"path" json:"path" yaml:"path"`

	// JournalRetentionDays prunes journal entries older than this at
	// startup. Zero keeps everything.
	JournalRetentionDays int `toml:"journal_retention_days" json:"journal_retention_days" yaml:"journal_retention_days"`
}

// CaptureConfig selects input devices.
type CaptureConfig struct {
	// Devices lists /dev/input/event* paths. Empty autodetects keyboards.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`

	// FocusPollMs is how often the focused window is checked; a change
	// resets the typing context. Zero disables focus tracking.
	FocusPollMs int `toml:"focus_poll_ms" json:"focus_poll_ms" yaml:"focus_poll_ms"`
}

// InjectConfig selects the text injector.
type InjectConfig struct {
	Tool string `toml:"tool" json:"tool" yaml:"tool"`
}

// LayoutConfig controls keyboard layout switching.
type LayoutConfig struct {
	// Backend is "auto", "kde", "xkb-switch" or "setxkbmap".
	Backend        string `toml:"backend" json:"backend" yaml:"backend"`
	PollIntervalMs int    `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the socket file mode in octal, e.g. "0600".
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// AllowOtherUsers accepts connections from peers running as a
	// different uid. Only meaningful with wider Permissions.
	AllowOtherUsers bool `toml:"allow_other_users" json:"allow_other_users" yaml:"allow_other_users"`
}

// MetricsConfig controls the HTTP endpoint serving /metrics, /healthz and
// /readyz.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stderr", "stdout", "file" or "both".
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	AddSource  bool   `toml:"add_source" json:"add_source" yaml:"add_source"`

	// LogText writes typed text into logs. Off by default.
	LogText bool `toml:"log_text" json:"log_text" yaml:"log_text"`

	// Debug is the legacy debug_logging switch; it forces level debug.
	Debug bool `toml:"debug_logging" json:"debug_logging" yaml:"debug_logging"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	hk := daemon.DefaultHotkeys()
	return &Config{
		Version: Version,
		Enabled: true,
		Languages: LanguagesConfig{
			EN: true,
			RU: true,
		},
		Semantic: SemanticConfig{
			Provider:      string(semantic.KindLocal),
			APIURL:        "http://localhost:8080/v1/correct",
			Mode:          string(semantic.ModeRaw),
			RatePerSecond: 5,
		},
		Correction: CorrectionConfig{
			ConfidenceThreshold: 0.6,
			TimeoutMs:           100,
			PhraseIdleDelayMs:   350,
			MaxSpellDistance:    3,
			Confidence:          correction.DefaultConfidence(),
		},
		Hotkeys: HotkeysConfig{
			Undo:    hk.Undo.String(),
			Rethink: hk.Rethink.String(),
			Toggle:  hk.Toggle.String(),
			Polish:  hk.Polish.String(),
		},
		Storage: StorageConfig{
			Backend:              "sqlite",
			Path:                 filepath.Join(DataDir(), "rules.db"),
			JournalRetentionDays: 30,
		},
		Capture: CaptureConfig{
			FocusPollMs: 250,
		},
		Inject: InjectConfig{
			Tool: "xdotool",
		},
		Layout: LayoutConfig{
			Backend:        "auto",
			PollIntervalMs: 50,
		},
		IPC: IPCConfig{
			Enabled:     true,
			SocketPath:  defaultSocketPath(),
			Permissions: "0600",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(StateDir(), "kswitchd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from path, or from ConfigPath when path is
// empty. A missing file yields the defaults. Environment overrides are
// applied; validation is left to the caller.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.IPC.SocketPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies KSWITCHD_* environment variables. Malformed
// numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KSWITCHD_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := os.Getenv("KSWITCHD_PROVIDER"); v != "" {
		c.Semantic.Provider = v
	}
	if v := os.Getenv("KSWITCHD_API_URL"); v != "" {
		c.Semantic.APIURL = v
	}
	if v := os.Getenv("KSWITCHD_API_KEY"); v != "" {
		c.Semantic.APIKey = v
	}
	if v := os.Getenv("KSWITCHD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Correction.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("KSWITCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KSWITCHD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("KSWITCHD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Capture.Devices = slices.Clone(c.Capture.Devices)
	return &clone
}

// EnabledLanguages lists the enabled alphabets in a fixed order.
func (c *Config) EnabledLanguages() []dictionary.Language {
	var langs []dictionary.Language
	if c.Languages.EN {
		langs = append(langs, dictionary.English)
	}
	if c.Languages.RU {
		langs = append(langs, dictionary.Russian)
	}
	if c.Languages.BE {
		langs = append(langs, dictionary.Belarusian)
	}
	return langs
}

// LogLevel returns the effective level name, honouring debug_logging.
func (c *Config) LogLevel() string {
	if c.Logging.Debug {
		return "debug"
	}
	return c.Logging.Level
}

// Daemon converts the file configuration into the daemon's runtime
// configuration. The configuration must have passed Validate.
func (c *Config) Daemon() (daemon.Config, error) {
	kind, err := semantic.ParseKind(c.Semantic.Provider)
	if err != nil {
		return daemon.Config{}, err
	}
	hk, err := c.hotkeys()
	if err != nil {
		return daemon.Config{}, err
	}
	conf := c.Correction.Confidence
	return daemon.Config{
		Enabled:     c.Enabled,
		Threshold:   c.Correction.ConfidenceThreshold,
		Timeout:     time.Duration(c.Correction.TimeoutMs) * time.Millisecond,
		PhraseDelay: time.Duration(c.Correction.PhraseIdleDelayMs) * time.Millisecond,
		Hotkeys:     hk,
		Languages:   c.EnabledLanguages(),
		Provider:    kind,
		Confidence:  &conf,
	}, nil
}

func (c *Config) hotkeys() (daemon.Hotkeys, error) {
	var hk daemon.Hotkeys
	for _, f := range []struct {
		field string
		value string
		dst   *daemon.Hotkey
	}{
		{"hotkeys.undo", c.Hotkeys.Undo, &hk.Undo},
		{"hotkeys.rethink", c.Hotkeys.Rethink, &hk.Rethink},
		{"hotkeys.toggle", c.Hotkeys.Toggle, &hk.Toggle},
		{"hotkeys.polish", c.Hotkeys.Polish, &hk.Polish},
	} {
		if f.value == "" {
			continue
		}
		parsed, err := daemon.ParseHotkey(f.value)
		if err != nil {
			return daemon.Hotkeys{}, fmt.Errorf("%s: %w", f.field, err)
		}
		*f.dst = parsed
	}
	return hk, nil
}
