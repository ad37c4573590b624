package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests set HOME and LSC_* variables, so they cannot run in parallel.

func writeConfig(t *testing.T, home, content string) {
	t.Helper()

	dir := filepath.Join(home, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DriverTOML, cfg.Store.Driver)
	assert.Equal(t, filepath.Join(home, ".lsc", "accounts.toml"), cfg.Store.Path)
	assert.Equal(t, ProviderLocal, cfg.Auth.Provider)
	assert.Equal(t, filepath.Join(home, ".lsc", "credentials"), cfg.Auth.CredentialsDir)
	assert.Equal(t, 5*time.Minute, cfg.Auth.Timeout)
	assert.Equal(t, "America/Mexico_City", cfg.Billing.Timezone)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Store.EnforceQuota)
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `
[store]
driver = "postgres"
postgres_dsn = "postgres://lsc@localhost/lsc?sslmode=disable"
enforce_quota = true

[auth]
provider = "oidc"
issuer = "https://id.example.com"
client_id = "lsc-cli"
timeout = "90s"

[log]
level = "debug"
`)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://lsc@localhost/lsc?sslmode=disable", cfg.Store.PostgresDSN)
	assert.True(t, cfg.Store.EnforceQuota)
	assert.Equal(t, ProviderOIDC, cfg.Auth.Provider)
	assert.Equal(t, "https://id.example.com", cfg.Auth.Issuer)
	assert.Equal(t, 90*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `
[store]
driver = "toml"
path = "~/data/accounts.toml"
`)
	t.Setenv("LSC_STORE_DRIVER", "redis")
	t.Setenv("LSC_STORE_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("LSC_METRICS_ADDR", ":9464")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis://cache:6379/2", cfg.Store.RedisURL)
	assert.Equal(t, filepath.Join(home, "data", "accounts.toml"), cfg.Store.Path)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
}

func TestLoadHonorsConfigFileOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	custom := filepath.Join(t.TempDir(), "lsc.toml")
	require.NoError(t, os.WriteFile(custom, []byte("[billing]\ntimezone = \"UTC\"\n"), 0o600))
	t.Setenv("LSC_CONFIG", custom)

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Billing.Timezone)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown driver",
			content: "[store]\ndriver = \"sqlite\"\n",
			wantErr: `store.driver must be one of toml redis postgres (got "sqlite")`,
		},
		{
			name:    "postgres without dsn",
			content: "[store]\ndriver = \"postgres\"\n",
			wantErr: "store.postgres_dsn is required",
		},
		{
			name:    "oidc without issuer",
			content: "[auth]\nprovider = \"oidc\"\nclient_id = \"lsc\"\n",
			wantErr: "auth.issuer is required",
		},
		{
			name:    "unknown provider",
			content: "[auth]\nprovider = \"ldap\"\n",
			wantErr: "auth.provider must be one of local oidc",
		},
		{
			name:    "unknown time zone",
			content: "[billing]\ntimezone = \"Mars/Olympus\"\n",
			wantErr: "billing.timezone",
		},
		{
			name:    "unknown log level",
			content: "[log]\nlevel = \"loud\"\n",
			wantErr: "log.level",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			writeConfig(t, home, tc.content)

			_, err := Load(viper.New())
			require.Error(t, err)
			assert.ErrorContains(t, err, "invalid config")
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "[store\ndriver = ")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.ErrorContains(t, err, "read config")
}
