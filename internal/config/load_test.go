package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "adsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "adsync.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Sync.MetricWorkers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestLoad_AppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/var/lib/adsync/adsync.db"

[sync]
metric_workers = 8

[logging]
level = "debug"
format = "json"

[platforms.google]
base_url = "https://googleads.example.test/v17"
token_url = "https://oauth2.example.test/token"
client_id = "cid"
client_secret = "csecret"
developer_token = "devtok"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/adsync/adsync.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Sync.MetricWorkers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	google := cfg.Platform("google")
	assert.Equal(t, "https://googleads.example.test/v17", google.BaseURL)
	assert.Equal(t, "devtok", google.DeveloperToken)

	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.ListenAddr)
}

func TestLoad_UnknownKeyIsFatal(t *testing.T) {
	path := writeConfig(t, `
[database]
pathh = "oops.db"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), "pathh")
}

func TestLoad_UnknownPlatformSectionIsFatal(t *testing.T) {
	path := writeConfig(t, `
[platforms.tiktok]
base_url = "https://ads.tiktok.example"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiktok")
}

func TestLoadOrDefault_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_CLIWinsOverEnvWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "file.db"

[logging]
level = "warn"
`)

	cfg, err := Resolve(
		EnvOverrides{ConfigPath: path, DBPath: "env.db", LogLevel: "error"},
		CLIOverrides{DBPath: "cli.db"},
	)

	require.NoError(t, err)
	assert.Equal(t, "cli.db", cfg.Database.Path, "CLI flag beats environment and file")
	assert.Equal(t, "error", cfg.Logging.Level, "environment beats file when no flag is set")
}

func TestResolve_CLIConfigPathWinsOverEnv(t *testing.T) {
	cliPath := writeConfig(t, `
[server]
listen_addr = "0.0.0.0:9000"
`)
	envPath := writeConfig(t, `
[server]
listen_addr = "0.0.0.0:9999"
`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
}

func TestResolve_RejectsInvalidOverride(t *testing.T) {
	_, err := Resolve(
		EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "nope.toml"), LogLevel: "loud"},
		CLIOverrides{},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty db path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Sync.MetricWorkers = -1 },
			wantErr: "metric_workers",
		},
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlatform_FallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, `
[platforms.naver]
base_url = "https://naver.example.test"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://naver.example.test", cfg.Platform("naver").BaseURL)
	assert.Equal(t,
		"https://graph.facebook.com/v19.0",
		cfg.Platform("meta").BaseURL,
		"sections absent from the file resolve to built-in defaults")
}
