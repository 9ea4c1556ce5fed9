package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gofastq/filter"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 3, cfg.Retry.Count)
	assert.Equal(t, OnLossRetry, cfg.Queue.OnConnectionLoss)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfq.yaml")
	doc := `
log_level: debug
retry:
  enabled: true
  count: 5
  delay: 250ms
queue:
  skip_empty_dirs: true
  connections_per_site: 4
filters:
  - pattern: "*.tmp"
    action: skip
  - pattern: "*.iso"
    action: keep
    priority: -2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Retry.Count)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.True(t, cfg.Queue.SkipEmptyDirs)
	assert.Equal(t, 4, cfg.Queue.ConnectionsPerSite)
	assert.Equal(t, 16, cfg.Queue.Workers, "unset keys keep their defaults")

	chain, err := cfg.FilterChain()
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, filter.Skip, chain.Classify("/x/a.tmp", 1, false).Action)
	assert.Equal(t, -2, chain.Classify("/x/a.iso", 1, false).Priority)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		"GOFASTQ_RETRY_COUNT": "7",
		"GOFASTQ_RETRY_DELAY": "100ms",
		"GOFASTQ_CONNECTIONS": "3",
		"GOFASTQ_LOG_LEVEL":   "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 3, cfg.Queue.ConnectionsPerSite)
	assert.Equal(t, "warn", cfg.LogLevel)

	err = cfg.ApplyEnv(envOf(map[string]string{"GOFASTQ_RETRY_COUNT": "many"}))
	assert.Error(t, err)
	assert.Equal(t, 7, cfg.Retry.Count)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Retry.Count = -1
	cfg.Queue.ConnectionsPerSite = 0
	cfg.Queue.OnConnectionLoss = "panic"
	cfg.Filters = []FilterRule{{Pattern: "*", Action: "explode"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.count")
	assert.Contains(t, err.Error(), "connections_per_site")
	assert.Contains(t, err.Error(), "on_connection_loss")
	assert.Contains(t, err.Error(), "explode")
}

func TestAttemptDelayClamped(t *testing.T) {
	assert.Equal(t, MaxRetryDelay, RetryConfig{Delay: 5 * time.Second}.AttemptDelay())
	assert.Equal(t, 200*time.Millisecond, RetryConfig{Delay: 200 * time.Millisecond}.AttemptDelay())
	assert.Equal(t, time.Duration(0), RetryConfig{Delay: -time.Second}.AttemptDelay())
}

func TestParseFlagsOverrideEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  count: 9\nqueue:\n  connections_per_site: 6\n"), 0644))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts, err := Parse(fs, []string{
		"-config", path,
		"-source", "ftp://h/a", "-source", "ftp://h/b",
		"-dest", "/tmp/out",
		"-connections", "1",
		"-no-retry",
	}, envOf(map[string]string{"GOFASTQ_RETRY_COUNT": "4"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"ftp://h/a", "ftp://h/b"}, opts.Sources)
	assert.Equal(t, "/tmp/out", opts.Dest)
	assert.Equal(t, 4, opts.Retry.Count, "env overrides file")
	assert.Equal(t, 1, opts.Queue.ConnectionsPerSite, "flag overrides file")
	assert.False(t, opts.Retry.Enabled)
}

func TestParseRejectsInvalid(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, err := Parse(fs, []string{"-on-connection-loss", "ignore"}, envOf(nil))
	assert.Error(t, err)
}
