package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is where Resolve looks when neither the CLI nor the
// environment names a config file.
const DefaultConfigPath = "adsync.toml"

// CLIOverrides holds values from CLI flags. Empty means not specified.
type CLIOverrides struct {
	ConfigPath string // --config
	DBPath     string // --db
	LogLevel   string // --log-level
	ListenAddr string // --listen
}

// Load reads and parses a TOML config file on top of the defaults and
// validates the result. Unknown keys are fatal: a typo silently ignored
// is worse than a hard error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise
// returns the defaults. Running without a config file is supported.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults, config file, environment, CLI flags. CLI flags always win.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.DBPath != "" {
		cfg.Database.Path = env.DBPath
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}

	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}

	if cli.DBPath != "" {
		cfg.Database.Path = cli.DBPath
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	if cli.ListenAddr != "" {
		cfg.Server.ListenAddr = cli.ListenAddr
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the resolved configuration for values that would
// misbehave at runtime.
func Validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}

	if cfg.Sync.MetricWorkers < 0 {
		return fmt.Errorf("sync.metric_workers must not be negative, got %d", cfg.Sync.MetricWorkers)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format must be auto, text, or json, got %q", cfg.Logging.Format)
	}

	known := map[string]bool{
		"google": true, "meta": true, "kakao": true, "naver": true, "coupang": true,
	}
	for name := range cfg.Platforms {
		if !known[name] {
			return fmt.Errorf("unknown platform section %q", name)
		}
	}

	return nil
}

// Platform returns the named platform section, falling back to the
// built-in defaults when the config file omitted it.
func (c *Config) Platform(name string) PlatformConfig {
	if pc, ok := c.Platforms[name]; ok {
		return pc
	}

	return DefaultConfig().Platforms[name]
}
