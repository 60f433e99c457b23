// Package config implements TOML configuration loading and validation
// for adsync. Overrides apply in a fixed chain: defaults, then the
// config file, then environment variables, then CLI flags.
package config

// Config is the top-level structure parsed from a TOML file. Platform
// sections hold application-level settings (endpoints, OAuth client
// credentials, developer tokens); per-team account credentials live in
// the database, never in the config file.
type Config struct {
	Database  DatabaseConfig            `toml:"database"`
	Sync      SyncConfig                `toml:"sync"`
	Server    ServerConfig              `toml:"server"`
	Logging   LoggingConfig             `toml:"logging"`
	Platforms map[string]PlatformConfig `toml:"platforms"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SyncConfig controls orchestrator behavior.
type SyncConfig struct {
	MetricWorkers int `toml:"metric_workers"`
}

// ServerConfig controls the HTTP trigger endpoint used by `adsync serve`.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig controls log output: level and text-vs-JSON format.
// Format "auto" picks text on a TTY and JSON otherwise.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// PlatformConfig holds one platform's application-level settings. Not
// every field applies to every platform: OAuth platforms need the
// client pair and token URL, Google additionally needs the developer
// token. BaseURL always applies and is overridable for testing.
type PlatformConfig struct {
	BaseURL        string `toml:"base_url"`
	TokenURL       string `toml:"token_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	DeveloperToken string `toml:"developer_token"`
}

// DefaultConfig returns a Config with every default applied. Platform
// base URLs default to the public production endpoints.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "adsync.db"},
		Sync:     SyncConfig{MetricWorkers: 4},
		Server:   ServerConfig{ListenAddr: "127.0.0.1:8787"},
		Logging:  LoggingConfig{Level: "info", Format: "auto"},
		Platforms: map[string]PlatformConfig{
			"google": {
				BaseURL:  "https://googleads.googleapis.com/v17",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			"meta": {
				BaseURL: "https://graph.facebook.com/v19.0",
			},
			"kakao": {
				BaseURL:  "https://apis.moment.kakao.com/openapi/v4",
				TokenURL: "https://kauth.kakao.com/oauth/token",
			},
			"naver": {
				BaseURL: "https://api.searchad.naver.com",
			},
			"coupang": {
				BaseURL: "https://advertising-api.coupang.com",
			},
		},
	}
}
