package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/config"
)

func validConfig() string {
	return `
logging:
  level: debug
  format: json
engine:
  tick_interval: 100ms
feeds:
  file: feeds.hcl
  dir: ${DMPATH_TEST_FEED_DIR}
store:
  dsn: bindings.db
modules:
  simulator: true
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmpath.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DMPATH_TEST_FEED_DIR", "/srv/feeds")
	cfg, err := config.Load(writeConfig(t, validConfig()))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.TickInterval)
	assert.Equal(t, 4, cfg.Engine.MaxDepth)
	assert.Equal(t, "/srv/feeds", cfg.Feeds.Dir)
	assert.Equal(t, "bindings.db", cfg.Store.DSN)
	assert.Equal(t, "127.0.0.1:8089", cfg.HTTP.Addr)
	assert.True(t, cfg.Modules.Simulator)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DMPATH_LOG_LEVEL", "warn")
	t.Setenv("DMPATH_TICK_INTERVAL", "1s")
	t.Setenv("DMPATH_SIMULATOR", "off")
	t.Setenv("DMPATH_HTTP_ADDR", ":9000")

	cfg, err := config.Load(writeConfig(t, validConfig()))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, time.Second, cfg.Engine.TickInterval)
	assert.False(t, cfg.Modules.Simulator)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad level":  "logging:\n  level: loud\n",
		"bad format": "logging:\n  format: xml\n",
		"bad yaml":   "logging: [\n",
		"bad depth":  "engine:\n  max_depth: -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithFallback_Defaults(t *testing.T) {
	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.TickInterval)
	assert.Equal(t, "dmpath.db", cfg.Store.DSN)
	assert.True(t, cfg.HTTP.Metrics)
}

func TestHolder_ReloadAndOnChange(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer h.Stop()

	var gotOld, gotNew *config.Config
	h.OnChange(func(old, new *config.Config) { gotOld, gotNew = old, new })

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o644))
	require.NoError(t, h.Reload())

	assert.Equal(t, "error", h.Get().Logging.Level)
	require.NotNil(t, gotOld)
	assert.Equal(t, "debug", gotOld.Logging.Level)
	assert.Same(t, h.Get(), gotNew)
}

func TestHolder_ReloadFailureKeepsConfig(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))
	assert.Error(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Logging.Level)
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer h.Stop()

	changed := make(chan struct{}, 8)
	h.OnChange(func(_, _ *config.Config) { changed <- struct{}{} })
	require.NoError(t, h.WatchFile())

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change not detected")
	}
	assert.Eventually(t, func() bool { return h.Get().Logging.Level == "warn" }, 5*time.Second, 10*time.Millisecond)
}
