package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"kswitchd/internal/daemon"
	"kswitchd/internal/semantic"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match any validation failure.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig reports every problem in c at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	if !c.Languages.EN && !c.Languages.RU && !c.Languages.BE {
		errs = append(errs, ValidationError{Field: "languages", Message: "at least one language must be enabled"})
	}

	errs = append(errs, validateSemantic(&c.Semantic)...)
	errs = append(errs, validateCorrection(&c.Correction)...)
	errs = append(errs, validateHotkeys(&c.Hotkeys)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLayout(&c.Layout)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if c.Capture.FocusPollMs < 0 {
		errs = append(errs, ValidationError{Field: "capture.focus_poll_ms", Message: "must not be negative"})
	}
	if c.Inject.Tool == "" {
		errs = append(errs, *RequiredFieldError("inject.tool"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, ValidationError{Field: "metrics.listen", Message: "listen address is required when metrics are enabled"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSemantic(s *SemanticConfig) ValidationErrors {
	var errs ValidationErrors

	kind, err := semantic.ParseKind(s.Provider)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "semantic.provider",
			Message: fmt.Sprintf("invalid provider: %s (valid: local, remote)", s.Provider),
		})
	}
	if kind == semantic.KindRemote && !isValidURL(s.APIURL) {
		errs = append(errs, ValidationError{
			Field:   "semantic.api_url",
			Message: fmt.Sprintf("invalid URL: %q", s.APIURL),
		})
	}
	switch semantic.Mode(s.Mode) {
	case semantic.ModeRaw, semantic.ModeOpenAI:
	default:
		errs = append(errs, ValidationError{
			Field:   "semantic.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: raw, openai)", s.Mode),
		})
	}
	if s.RatePerSecond < 0 {
		errs = append(errs, ValidationError{Field: "semantic.rate_per_second", Message: "rate cannot be negative"})
	}
	return errs
}

func validateCorrection(c *CorrectionConfig) ValidationErrors {
	var errs ValidationErrors

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, *RangeError("correction.confidence_threshold", 0, 1))
	}
	if c.TimeoutMs < 1 || c.TimeoutMs > 10000 {
		errs = append(errs, *RangeError("correction.timeout_ms", 1, 10000))
	}
	if c.PhraseIdleDelayMs < 10 || c.PhraseIdleDelayMs > 10000 {
		errs = append(errs, *RangeError("correction.phrase_idle_delay_ms", 10, 10000))
	}
	if c.MaxSpellDistance < 1 || c.MaxSpellDistance > 5 {
		errs = append(errs, *RangeError("correction.max_spell_distance", 1, 5))
	}

	conf := c.Confidence
	for name, v := range map[string]float64{
		"layout":              conf.Layout,
		"layout_spell":        conf.LayoutSpell,
		"mixed":               conf.Mixed,
		"mixed_spell":         conf.MixedSpell,
		"spelling":            conf.Spelling,
		"local":               conf.Local,
		"remote":              conf.Remote,
		"phrase_spell_factor": conf.PhraseSpellFactor,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, *RangeError("correction.confidence."+name, 0, 1))
		}
	}
	return errs
}

func validateHotkeys(h *HotkeysConfig) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]string)
	for _, f := range []struct{ field, value string }{
		{"hotkeys.undo", h.Undo},
		{"hotkeys.rethink", h.Rethink},
		{"hotkeys.toggle", h.Toggle},
		{"hotkeys.polish", h.Polish},
	} {
		if f.value == "" {
			continue
		}
		hk, err := daemon.ParseHotkey(f.value)
		if err != nil {
			errs = append(errs, ValidationError{Field: f.field, Message: err.Error()})
			continue
		}
		if other, dup := seen[hk.String()]; dup {
			errs = append(errs, ValidationError{
				Field:   f.field,
				Message: fmt.Sprintf("chord %s is already bound to %s", hk, other),
			})
			continue
		}
		seen[hk.String()] = f.field
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Backend {
	case "sqlite", "badger":
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: fmt.Sprintf("path is required for the %s backend", s.Backend),
			})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: sqlite, badger, memory)", s.Backend),
		})
	}
	if s.JournalRetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "storage.journal_retention_days", Message: "retention cannot be negative"})
	}
	return errs
}

func validateLayout(l *LayoutConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Backend {
	case "auto", "kde", "xkb-switch", "setxkbmap", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "layout.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: auto, kde, xkb-switch, setxkbmap, none)", l.Backend),
		})
	}
	if l.PollIntervalMs < 10 || l.PollIntervalMs > 5000 {
		errs = append(errs, *RangeError("layout.poll_interval_ms", 10, 5000))
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		})
	}
	if i.Permissions != "" {
		if matched, _ := regexp.MatchString(`^0[0-7]{3}$`, i.Permissions); !matched {
			errs = append(errs, ValidationError{
				Field:   "ipc.permissions",
				Message: fmt.Sprintf("invalid permissions format: %s (expected octal like 0600)", i.Permissions),
			})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stderr, stdout, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	return errs
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
