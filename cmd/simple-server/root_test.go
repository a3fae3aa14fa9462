package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simple-server/internal/config"
	"simple-server/internal/logger"
)

func parse(t *testing.T, args ...string) (*config.FileConfig, error) {
	t.Helper()
	v := viper.New()
	cmd := newCommand(v)
	require.NoError(t, cmd.ParseFlags(args))
	return loadConfig(v)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := parse(t,
		"--addr", "0.0.0.0:8080",
		"--workers", "8",
		"--max-connections", "2",
		"--max-open-conns", "32",
		"--accept-rate", "12.5",
		"--slow-delay", "250ms",
		"--read-timeout", "2s",
		"--write-timeout", "0s",
		"--admin",
		"--admin-addr", "127.0.0.1:9999",
		"--log-level", "debug",
		"--log-format", "json",
	)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Pool.Workers)
	assert.Equal(t, 2, cfg.Server.MaxConnections)
	assert.Equal(t, 32, cfg.Server.MaxOpenConns)
	assert.InDelta(t, 12.5, cfg.Server.AcceptRate, 0.001)
	assert.Equal(t, "250ms", cfg.Server.SlowDelay)
	assert.Equal(t, "2s", cfg.Server.ReadTimeout)
	assert.Equal(t, "0s", cfg.Server.WriteTimeout)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Admin.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := `
pool:
  workers: 3
server:
  max_connections: 10
  slow_delay: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := parse(t, "--config", path, "--max-connections", "2")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pool.Workers)
	assert.Equal(t, 2, cfg.Server.MaxConnections)
	assert.Equal(t, "1s", cfg.Server.SlowDelay)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("SIMPLE_SERVER_WORKERS", "5")
	t.Setenv("SIMPLE_SERVER_MAX_CONNECTIONS", "7")
	t.Setenv("SIMPLE_SERVER_LOG_LEVEL", "warn")

	cfg, err := parse(t, "--workers", "6")
	require.NoError(t, err)

	// フラグは環境変数より優先される
	assert.Equal(t, 6, cfg.Pool.Workers)
	assert.Equal(t, 7, cfg.Server.MaxConnections)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"negative workers", []string{"--workers", "-1"}},
		{"bad addr", []string{"--addr", "nowhere"}},
		{"bad log level", []string{"--log-level", "chatty"}},
		{"missing content dir", []string{"--content-dir", "/nonexistent/pages"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--addr", "127.0.0.1:0",
		"--workers", "2",
		"--admin",
		"--admin-addr", "127.0.0.1:0",
		"--log-level", "error",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop after cancel")
	}
}

func TestRunLogsSummaryAfterPoolStops(t *testing.T) {
	prev := logger.Default()
	t.Cleanup(func() { logger.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "server.log")
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--addr", "127.0.0.1:0",
		"--workers", "2",
		"--log-level", "info",
		"--log-file", logFile,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(data)

	stopped := strings.Index(out, "WorkerPool stopped")
	summary := strings.Index(out, "Served 0 connections (0 handled, 0 failed)")
	require.NotEqual(t, -1, stopped, out)
	require.NotEqual(t, -1, summary, out)
	assert.Less(t, stopped, summary)
}

func TestRunListenError(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--addr", "256.256.256.256:1", "--log-level", "error"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
