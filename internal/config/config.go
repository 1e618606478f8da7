// Package config loads netpresence settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"netpresence/internal/logger"
)

// PathEnv names the variable holding the YAML config path.
const PathEnv = "NETPRESENCE_CONFIG"

// GatewayConfig describes how to reach the router admin UI.
type GatewayConfig struct {
	BaseURL       string `yaml:"base_url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	DevicesURL    string `yaml:"devices_url"`
	LoginPath     string `yaml:"login_path"`
	UsernameField string `yaml:"username_field"`
	PasswordField string `yaml:"password_field"`
	Format        string `yaml:"format"`
	Constructor   string `yaml:"constructor"`
	// SnapshotFile replays a captured page instead of logging in.
	SnapshotFile string `yaml:"snapshot_file"`
}

// PollConfig controls the poll cycle.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// DatabaseConfig selects the SQL driver and DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the full service configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Poll     PollConfig     `yaml:"poll"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Timezone string         `yaml:"timezone"`
	Logging  logger.Config  `yaml:"logging"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			DevicesURL:    "/html/bbsp/common/GetLanUserDevInfo.asp",
			LoginPath:     "/login.cgi",
			UsernameField: "txt_Username",
			PasswordField: "txt_Password",
			Format:        "embedded",
			Constructor:   "USERDeviceNew",
		},
		Poll: PollConfig{
			Interval:     15 * time.Minute,
			FetchTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:netpresence.db",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Timezone: "UTC",
		Logging:  logger.Config{Level: "info"},
	}
}

// Load reads defaults, then the YAML file named by NETPRESENCE_CONFIG,
// then environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Gateway.BaseURL = getenvDefault("GATEWAY_URL", cfg.Gateway.BaseURL)
	cfg.Gateway.Username = getenvDefault("GATEWAY_USERNAME", cfg.Gateway.Username)
	cfg.Gateway.Password = getenvDefault("GATEWAY_PASSWORD", cfg.Gateway.Password)
	cfg.Gateway.DevicesURL = getenvDefault("GATEWAY_DEVICES_URL", cfg.Gateway.DevicesURL)
	cfg.Gateway.Format = getenvDefault("GATEWAY_FORMAT", cfg.Gateway.Format)
	cfg.Gateway.SnapshotFile = getenvDefault("GATEWAY_SNAPSHOT_FILE", cfg.Gateway.SnapshotFile)
	cfg.Poll.Interval = getenvDuration("POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.FetchTimeout = getenvDuration("FETCH_TIMEOUT", cfg.Poll.FetchTimeout)
	cfg.Database.Driver = getenvDefault("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.DSN))
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Timezone = getenvDefault("TIMEZONE", cfg.Timezone)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Debug = getenvBool("DEBUG", cfg.Logging.Debug)
}

// Validate checks required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Gateway.BaseURL == "" && c.Gateway.SnapshotFile == "" {
		errs = append(errs, errors.New("config: gateway.base_url or gateway.snapshot_file is required"))
	}
	if c.Gateway.DevicesURL == "" && c.Gateway.SnapshotFile == "" {
		errs = append(errs, errors.New("config: gateway.devices_url is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("config: poll.interval must be positive"))
	}
	if c.Poll.FetchTimeout <= 0 {
		errs = append(errs, errors.New("config: poll.fetch_timeout must be positive"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("config: database.dsn is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
