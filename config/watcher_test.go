package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// validConfigYAML is a minimal valid configuration for testing
const validConfigYAML = `
service:
  name: watcher-test
logging:
  level: debug
`

// invalidConfigYAML fails validation (unknown log level)
const invalidConfigYAML = `
service:
  name: watcher-test
logging:
  level: loud
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	configPath := writeConfigFile(t, validConfigYAML)

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback)
	require.NoError(t, err)
	require.NotNil(t, watcher)

	assert.Equal(t, configPath, watcher.path)
	assert.NotNil(t, watcher.callback)
	assert.Equal(t, 100*time.Millisecond, watcher.debounceDelay)
}

func TestNewWatcher_WithOptions(t *testing.T) {
	t.Parallel()

	configPath := writeConfigFile(t, validConfigYAML)

	logger := zap.NewNop()
	errorCallback := func(err error) {}

	watcher, err := NewWatcher(configPath, func(cfg *Config) {},
		WithDebounceDelay(200*time.Millisecond),
		WithLogger(logger),
		WithErrorCallback(errorCallback),
	)
	require.NoError(t, err)
	require.NotNil(t, watcher)

	assert.Equal(t, 200*time.Millisecond, watcher.debounceDelay)
	assert.Equal(t, logger, watcher.logger)
	assert.NotNil(t, watcher.errorCallback)
}

func TestWatcher_Start(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, validConfigYAML)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {},
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)

	// Verify initial config was loaded
	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "watcher-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)

	err = watcher.Stop()
	require.NoError(t, err)
}

func TestWatcher_Start_AlreadyRunning(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, validConfigYAML)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)

	// Start again should return nil (already running)
	err = watcher.Start(ctx)
	assert.NoError(t, err)

	err = watcher.Stop()
	require.NoError(t, err)
}

func TestWatcher_Start_InvalidConfig(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, invalidConfigYAML)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	err = watcher.Start(context.Background())
	assert.Error(t, err)

	// A failed start leaves the watcher stopped; Stop is a no-op.
	assert.NoError(t, watcher.Stop())
}

func TestWatcher_Start_FileNotFound(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nonexistent.yaml")

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	err = watcher.Start(context.Background())
	assert.Error(t, err)
}

func TestWatcher_Stop_NotRunning(t *testing.T) {
	t.Parallel()

	configPath := writeConfigFile(t, validConfigYAML)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	// Stop without starting should return nil
	err = watcher.Stop()
	assert.NoError(t, err)
}

func TestWatcher_Reload(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, validConfigYAML)

	reloaded := make(chan *Config, 1)
	watcher, err := NewWatcher(configPath, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer func() { _ = watcher.Stop() }()

	updated := strings.Replace(validConfigYAML, "level: debug", "level: warn", 1)
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "warn", watcher.GetLastConfig().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_Reload_InvalidKeepsPrevious(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, validConfigYAML)

	errCh := make(chan error, 1)
	watcher, err := NewWatcher(configPath, func(cfg *Config) {},
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errCh <- err:
			default:
			}
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(configPath, []byte(invalidConfigYAML), 0644))

	select {
	case reloadErr := <-errCh:
		assert.Contains(t, reloadErr.Error(), "logging.level")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}

	// The last good configuration is still served.
	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestWatcher_ForceReload(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, validConfigYAML)

	var got *Config
	watcher, err := NewWatcher(configPath, func(cfg *Config) {
		got = cfg
	})
	require.NoError(t, err)

	updated := strings.Replace(validConfigYAML, "level: debug", "level: error", 1)
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))

	require.NoError(t, watcher.ForceReload())

	require.NotNil(t, got)
	assert.Equal(t, "error", got.Logging.Level)
	assert.Equal(t, "error", watcher.GetLastConfig().Logging.Level)
}

func TestWatcher_ForceReload_InvalidConfig(t *testing.T) {
	// Not parallel due to file system operations

	configPath := writeConfigFile(t, invalidConfigYAML)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	err = watcher.ForceReload()
	assert.Error(t, err)
	assert.Nil(t, watcher.GetLastConfig())
}
