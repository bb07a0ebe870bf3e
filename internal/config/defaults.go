package config

import (
	"os"
	"path/filepath"
	"strconv"
)

const appName = "kswitchd"

// Directory layout follows the XDG Base Directory Specification:
//   - config: $XDG_CONFIG_HOME/kswitchd (~/.config/kswitchd)
//   - data:   $XDG_DATA_HOME/kswitchd (~/.local/share/kswitchd)
//   - state:  $XDG_STATE_HOME/kswitchd (~/.local/state/kswitchd)
//   - socket: $XDG_RUNTIME_DIR/kswitchd.sock (/tmp/kswitchd-$UID.sock)
//
// KSWITCHD_DATA_DIR overrides the data directory.

// ConfigDir returns the configuration directory.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the data directory.
func DataDir() string {
	if dir := os.Getenv("KSWITCHD_DATA_DIR"); dir != "" {
		return dir
	}
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the directory for logs and crash reports.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// LegacyDir is where kautoswitch kept its config.json and
// learned_rules.json.
func LegacyDir() string {
	return filepath.Join(xdgBase("XDG_CONFIG_HOME", ".config"), "kautoswitch")
}

func xdgDir(env string, fallback ...string) string {
	return filepath.Join(xdgBase(env, fallback...), appName)
}

func xdgBase(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(append([]string{os.TempDir()}, fallback...)...)
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func defaultSocketPath() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, appName+".sock")
	}
	return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(os.Getuid())+".sock")
}

// SupportedConfigFormats returns the config file extensions Load accepts.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile returns the first existing config file in ConfigDir, or
// the default TOML path when none exists.
func FindConfigFile() string {
	dir := ConfigDir()
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ConfigPath()
}
