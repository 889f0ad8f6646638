package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satchel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Complete(t *testing.T) {
	path := writeConfig(t, `
database: ./satchel.db
stores: ./stores
remote:
  base_url: https://api.example.com
  timeout: 5s
identity:
  user: worker-7
  tenant: tenant-a
sync:
  interval: 1m
  max_attempts: 3
  backoff_base: 250ms
  backoff_max: 10s
read:
  stale_timeout: 200ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./satchel.db", cfg.Database)
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout.Std())
	assert.Equal(t, time.Minute, cfg.Sync.Interval.Std())
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BackoffBase.Std())
	assert.Equal(t, 200*time.Millisecond, cfg.Read.StaleTimeout.Std())
	assert.Equal(t, "worker-7", cfg.Identity.User)
}

func TestLoad_DefaultsAndMinimal(t *testing.T) {
	path := writeConfig(t, `
database: ./satchel.db
stores: ./stores
remote:
  base_url: https://api.example.com
identity:
  user: auditor-1
  all_tenants: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, cfg.Sync.Interval.Std())
	assert.True(t, cfg.Identity.AllTenants)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing database",
			"stores: ./s\nremote: {base_url: x}\nidentity: {user: u, tenant: t}\n",
			"database",
		},
		{
			"missing remote",
			"database: ./d\nstores: ./s\nidentity: {user: u, tenant: t}\n",
			"base_url",
		},
		{
			"missing tenant without all_tenants",
			"database: ./d\nstores: ./s\nremote: {base_url: x}\nidentity: {user: u}\n",
			"tenant",
		},
		{
			"bad duration",
			"database: ./d\nstores: ./s\nremote: {base_url: x, timeout: soon}\nidentity: {user: u, tenant: t}\n",
			"duration",
		},
		{
			"unknown field",
			"database: ./d\nstores: ./s\nremote: {base_url: x}\nidentity: {user: u, tenant: t}\ndatabass: oops\n",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
