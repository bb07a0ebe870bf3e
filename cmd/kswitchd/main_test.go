package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/config"
	"kswitchd/internal/replacer"
	"kswitchd/internal/rules"
)

// isolate points every XDG directory and the global flags at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, env := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "XDG_STATE_HOME", "XDG_RUNTIME_DIR"} {
		t.Setenv(env, dir)
	}
	t.Setenv("KSWITCHD_API_KEY", "")
	t.Setenv("KSWITCHD_DATA_DIR", "")

	oldConfig, oldJSON := configPath, jsonOutput
	t.Cleanup(func() { configPath, jsonOutput = oldConfig, oldJSON })
	configPath = filepath.Join(dir, "kswitchd", "config.toml")
	jsonOutput = false
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSocketMode(t *testing.T) {
	mode, err := socketMode("")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), mode)

	mode, err = socketMode("0660")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0660), mode)

	_, err = socketMode("rw-rw----")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	isolate(t)

	out, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, configPath)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	_, err = execute(t, "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init", "--force")
	assert.NoError(t, err)
}

func TestConfigInitFromLegacy(t *testing.T) {
	dir := isolate(t)

	legacy := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"enabled": false, "languages": {"en": true, "ru": true, "be": false}}`), 0600))

	_, err := execute(t, "init", "--from-legacy="+legacy)
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestConfigShowRedactsKey(t *testing.T) {
	isolate(t)
	t.Setenv("KSWITCHD_API_KEY", "sk-secret")

	out, err := execute(t, "show", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")

	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, redacted, shown.Semantic.APIKey)

	for _, format := range []string{"toml", "yaml"} {
		out, err := execute(t, "show", "--format", format)
		require.NoError(t, err, format)
		assert.NotContains(t, out, "sk-secret", format)
	}

	_, err = execute(t, "show", "--format", "ini")
	assert.ErrorContains(t, err, "unknown format")
}

func TestConfigValidate(t *testing.T) {
	isolate(t)

	_, err := execute(t, "validate")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0700))
	require.NoError(t, os.WriteFile(configPath, []byte("version = 1\n[inject]\ntool = \"\"\n"), 0600))

	out, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "inject.tool")
}

func TestImportRules(t *testing.T) {
	dir := isolate(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "badger"
	cfg.Storage.Path = filepath.Join(dir, "rules")
	cfg.IPC.SocketPath = filepath.Join(dir, "kswitchd.sock")

	file := filepath.Join(dir, "learned_rules.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"undo_counts": {"ghbdtn": 2, "rfr": 1}, "suppressed": ["ghbdtn"]}`), 0600))

	var out bytes.Buffer
	require.NoError(t, importRules(context.Background(), cfg, file, &out))
	assert.Contains(t, out.String(), "2 counters")

	b, err := rules.OpenBadger(cfg.Storage.Path)
	require.NoError(t, err)
	rs := rules.Open(context.Background(), b)
	defer rs.Close()
	assert.True(t, rs.IsSuppressed("ghbdtn"))
	assert.Equal(t, 1, rs.UndoCount("rfr"))
}

func TestImportRulesRefusesWhileDaemonRuns(t *testing.T) {
	dir := isolate(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.IPC.SocketPath = filepath.Join(dir, "kswitchd.sock")

	ln, err := net.Listen("unix", cfg.IPC.SocketPath)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	err = importRules(context.Background(), cfg, filepath.Join(dir, "missing.json"), &bytes.Buffer{})
	assert.ErrorIs(t, err, errDaemonRunning)
}

func TestGarbageRuleDatabaseFallsBackToMemory(t *testing.T) {
	dir := isolate(t)

	cfg := config.DefaultConfig().Storage
	cfg.Backend = "sqlite"
	cfg.Path = filepath.Join(dir, "rules.db")
	require.NoError(t, os.WriteFile(cfg.Path, bytes.Repeat([]byte("not a database\n"), 512), 0600))

	_, _, err := openRuleStore(context.Background(), cfg)
	require.Error(t, err)

	rs, db := openRuleStoreOrMemory(context.Background(), cfg)
	require.NotNil(t, rs)
	defer rs.Close()
	assert.Nil(t, db)

	require.NoError(t, rs.Merge(context.Background(), rules.Snapshot{Suppressed: []string{"ghbdtn"}}))
	assert.True(t, rs.IsSuppressed("ghbdtn"))
}

func TestNewReplacerMissingTool(t *testing.T) {
	r := newReplacer("kswitchd-no-such-tool")
	err := r.ReplaceText(context.Background(), 1, "a")
	assert.ErrorIs(t, err, replacer.ErrToolNotFound)
}

func TestBuildSurvivesBrokenEnvironment(t *testing.T) {
	dir := isolate(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "rules.db")
	require.NoError(t, os.WriteFile(cfg.Storage.Path, bytes.Repeat([]byte("not a database\n"), 512), 0600))
	cfg.Semantic.Provider = "remote"
	cfg.Semantic.APIURL = ""
	cfg.Inject.Tool = "kswitchd-no-such-tool"
	cfg.Layout.Backend = layoutBackendNone
	cfg.IPC.Enabled = false
	cfg.Metrics.Enabled = false

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	s := &stack{cfg: cfg, loader: config.NewLoader(configPath), logger: logger}
	require.NoError(t, s.build(context.Background(), true))
	defer s.close()

	assert.Nil(t, s.db)
	assert.NotNil(t, s.rules)
	assert.Equal(t, "local", s.engine.ProviderName())
	assert.Equal(t, "local", string(s.daemon.Config().Provider))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "correction", eventName(1))
	assert.Equal(t, "event(99)", eventName(99))
}
