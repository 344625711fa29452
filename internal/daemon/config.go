// Package daemon loads configuration, wires the store and services
// together, and runs the HTTP server and scheduled jobs.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/logger"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ConfigFile is the config file name inside MinderHome.
const ConfigFile = "config.toml"

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Stats     StatsConfig     `toml:"stats"`
	Jobs      JobsConfig      `toml:"jobs"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig selects and locates the store.
type StorageConfig struct {
	Driver string `toml:"driver"`
	Dir    string `toml:"dir"` // sqlite database directory
	DSN    string `toml:"dsn"` // postgres connection string
}

// StatsConfig tunes the stats engine.
type StatsConfig struct {
	LookbackDays int    `toml:"lookback_days"`
	XPMode       string `toml:"xp_mode"`
	DefaultRange string `toml:"default_range"`
}

// JobsConfig controls scheduled jobs.
type JobsConfig struct {
	Enabled      bool   `toml:"enabled"`
	SyncSchedule string `toml:"sync_schedule"` // standard 5-field cron expression
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxFiles   int    `toml:"max_files"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the configuration a fresh install runs with.
func DefaultConfig() Config {
	homeDir := minderHome()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Dir:    homeDir,
		},
		Stats: StatsConfig{
			LookbackDays: engagement.DefaultLookbackDays,
			XPMode:       string(engagement.XPModeReplay),
			DefaultRange: string(engagement.Period7Days),
		},
		Jobs: JobsConfig{
			Enabled:      true,
			SyncSchedule: "5 0 * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, "minder.log"),
			MaxSizeMB:  10,
			MaxFiles:   3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// Validate rejects values the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q (want sqlite, postgres or memory)", c.Storage.Driver))
	}
	if c.Stats.LookbackDays < 0 {
		errs = append(errs, fmt.Errorf("stats.lookback_days must not be negative, got %d", c.Stats.LookbackDays))
	}
	if _, err := engagement.ParseXPMode(c.Stats.XPMode); err != nil {
		errs = append(errs, fmt.Errorf("stats.xp_mode: %w", err))
	}
	if _, err := engagement.ParsePeriod(c.Stats.DefaultRange); err != nil {
		errs = append(errs, fmt.Errorf("stats.default_range: %w", err))
	}
	if c.Jobs.Enabled {
		if _, err := cron.ParseStandard(c.Jobs.SyncSchedule); err != nil {
			errs = append(errs, fmt.Errorf("jobs.sync_schedule: %w", err))
		}
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// EngineConfig turns the [stats] section into engine settings.
func (c Config) EngineConfig() engagement.Config {
	mode, _ := engagement.ParseXPMode(c.Stats.XPMode)
	return engagement.Config{LookbackDays: c.Stats.LookbackDays, XPMode: mode}
}

// LoggerConfig turns the [logging] section into logger settings.
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxFiles:   c.Logging.MaxFiles,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// ConfigPath returns $MINDER_HOME/config.toml.
func ConfigPath() string {
	return filepath.Join(minderHome(), ConfigFile)
}

// LoadConfig reads ConfigPath over the defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads path over the defaults. A missing file is not an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		logger.Warn("unknown config keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to ConfigPath.
func SaveConfig(cfg Config) error {
	return SaveConfigFile(ConfigPath(), cfg)
}

// SaveConfigFile writes cfg to path, creating its directory.
func SaveConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// minderHome returns the Routine Minder data directory.
func minderHome() string {
	if env := os.Getenv("MINDER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".routine-minder")
}

// MinderHome is exported for use by other packages.
func MinderHome() string {
	return minderHome()
}
