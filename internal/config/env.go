package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "ADSYNC_CONFIG"
	EnvDBPath   = "ADSYNC_DB_PATH"
	EnvLogLevel = "ADSYNC_LOG_LEVEL"
	EnvListen   = "ADSYNC_LISTEN_ADDR"
)

// EnvOverrides holds values read from environment variables.
type EnvOverrides struct {
	ConfigPath string // ADSYNC_CONFIG: config file path
	DBPath     string // ADSYNC_DB_PATH: database path
	LogLevel   string // ADSYNC_LOG_LEVEL: log level
	ListenAddr string // ADSYNC_LISTEN_ADDR: serve listen address
}

// ReadEnvOverrides reads the override environment variables. It does
// not modify any Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDBPath),
		LogLevel:   os.Getenv(EnvLogLevel),
		ListenAddr: os.Getenv(EnvListen),
	}
}
