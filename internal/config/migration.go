package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LegacyConfigPath returns the config.json written by kautoswitch.
func LegacyConfigPath() string {
	return filepath.Join(LegacyDir(), "config.json")
}

// LoadLegacy reads a legacy config.json and converts it.
func LoadLegacy(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode legacy config: %w", err)
	}
	return MigrateLegacyConfig(raw)
}

// MigrateLegacyConfig converts the flat legacy key set to a Config.
// Unknown keys are ignored; missing keys keep their defaults.
func MigrateLegacyConfig(data map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := data["enabled"].(bool); ok {
		cfg.Enabled = v
	}
	if langs, ok := data["languages"].(map[string]any); ok {
		if v, ok := langs["en"].(bool); ok {
			cfg.Languages.EN = v
		}
		if v, ok := langs["ru"].(bool); ok {
			cfg.Languages.RU = v
		}
		if v, ok := langs["be"].(bool); ok {
			cfg.Languages.BE = v
		}
	}
	if v, ok := data["model"].(string); ok && v != "" {
		cfg.Semantic.Provider = v
	}
	if v, ok := data["api_url"].(string); ok && v != "" {
		cfg.Semantic.APIURL = v
	}
	if v, ok := data["api_model"].(string); ok {
		cfg.Semantic.APIModel = v
	}
	if v, ok := data["ai_timeout_ms"].(float64); ok {
		cfg.Correction.TimeoutMs = int(v)
	}
	if v, ok := data["correction_confidence_threshold"].(float64); ok {
		cfg.Correction.ConfidenceThreshold = v
	}
	if v, ok := data["phrase_idle_delay_ms"].(float64); ok {
		cfg.Correction.PhraseIdleDelayMs = int(v)
	}
	if v, ok := data["hotkey_undo"].(string); ok && v != "" {
		cfg.Hotkeys.Undo = v
	}
	if v, ok := data["hotkey_rethink"].(string); ok && v != "" {
		cfg.Hotkeys.Rethink = v
	}
	if v, ok := data["hotkey_toggle"].(string); ok && v != "" {
		cfg.Hotkeys.Toggle = v
	}
	if v, ok := data["hotkey_polish"].(string); ok && v != "" {
		cfg.Hotkeys.Polish = v
	}
	if v, ok := data["debug_logging"].(bool); ok {
		cfg.Logging.Debug = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migrated config: %w", err)
	}
	return cfg, nil
}

const tomlHeader = `# kswitchd configuration
# Reloaded automatically when this file changes.

`

// SaveConfig writes cfg to path in the format its extension names, TOML
// by default.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = encodeToTOML(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// The file may carry an API key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func encodeToTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(tomlHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
