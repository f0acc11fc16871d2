package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: test-secret
database:
  dsn: "sqlite:file::memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenExpiry)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, []string{"available"}, cfg.Sync.Buckets.Available)
	assert.Equal(t, []string{"running", "complete"}, cfg.Sync.Buckets.InUse)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.ReconnectMin)
	assert.Equal(t, 30*time.Second, cfg.Sync.ReconnectMax)
	assert.Equal(t, 45, cfg.Sync.DefaultDurationMins)
	assert.Equal(t, 200, cfg.Notifications.InboxSize)
}

func TestLoad_CustomValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
auth:
  jwt_secret: s
  admin_emails: ["ops@example.com"]
sync:
  status_aliases:
    busy: running
  buckets:
    available: [available, complete]
    in_use: [running]
worker_pool:
  size: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "running", cfg.Sync.StatusAliases["busy"])
	assert.Equal(t, []string{"available", "complete"}, cfg.Sync.Buckets.Available)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := map[string]string{
		"missing secret":     "server:\n  port: 1\n",
		"overlapping bucket": "auth:\n  jwt_secret: s\nsync:\n  buckets:\n    available: [running]\n    in_use: [running]\n",
		"bad alias target":   "auth:\n  jwt_secret: s\nsync:\n  status_aliases:\n    busy: spinning\n",
	}

	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
