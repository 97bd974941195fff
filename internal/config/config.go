package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Backup   BackupConfig   `yaml:"backup"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig contains the central server connection and cycle settings.
type SyncConfig struct {
	CentralURL     string   `yaml:"central_url"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"-"` // env-only, never in YAML
	HardwareID     string   `yaml:"hardware_id"`
	Interval       Duration `yaml:"interval"`
	PullBatchSize  int      `yaml:"pull_batch_size"`
	PushBatchSize  int      `yaml:"push_batch_size"`
	RequestTimeout Duration `yaml:"request_timeout"`
	AppVersion     string   `yaml:"app_version"`
}

// AuthConfig contains local API authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackupConfig contains database backup settings. An empty Bucket keeps
// backups local-only.
type BackupConfig struct {
	Interval  Duration `yaml:"interval"`
	Dir       string   `yaml:"dir"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	Bucket    string   `yaml:"bucket"`
	Prefix    string   `yaml:"prefix"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → .env → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// .env only fills variables that are not already set
	if err := loadDotEnv(getEnv("OMSUPPLY_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	configPath := getEnv("OMSUPPLY_CONFIG_PATH", "config/omsupply-sync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used by the --config flag and in tests.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/omsupply-sync.db",
		},
		Sync: SyncConfig{
			Interval:       Duration(1 * time.Minute),
			PullBatchSize:  500,
			PushBatchSize:  500,
			RequestTimeout: Duration(60 * time.Second),
			AppVersion:     "dev",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Backup: BackupConfig{
			Interval: Duration(6 * time.Hour),
			Dir:      "data/backups",
			Region:   "us-east-1",
			Prefix:   "omsupply-sync",
			UseSSL:   &useSSL,
		},
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	return nil
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("OMSUPPLY_PORT", &cfg.Server.Port)
	envDuration("OMSUPPLY_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("OMSUPPLY_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("OMSUPPLY_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("OMSUPPLY_DB_PATH", &cfg.Database.Path)

	// Sync
	envString("OMSUPPLY_CENTRAL_URL", &cfg.Sync.CentralURL)
	envString("OMSUPPLY_SYNC_USERNAME", &cfg.Sync.Username)
	envString("OMSUPPLY_SYNC_PASSWORD", &cfg.Sync.Password)
	envString("OMSUPPLY_HARDWARE_ID", &cfg.Sync.HardwareID)
	envDuration("OMSUPPLY_SYNC_INTERVAL", &cfg.Sync.Interval)
	envInt("OMSUPPLY_PULL_BATCH_SIZE", &cfg.Sync.PullBatchSize)
	envInt("OMSUPPLY_PUSH_BATCH_SIZE", &cfg.Sync.PushBatchSize)
	envDuration("OMSUPPLY_REQUEST_TIMEOUT", &cfg.Sync.RequestTimeout)

	// Auth
	envString("OMSUPPLY_API_KEY", &cfg.Auth.APIKey)

	// Log
	envString("OMSUPPLY_LOG_LEVEL", &cfg.Log.Level)
	envString("OMSUPPLY_LOG_FORMAT", &cfg.Log.Format)

	// Backup
	envDuration("OMSUPPLY_BACKUP_INTERVAL", &cfg.Backup.Interval)
	envString("OMSUPPLY_BACKUP_DIR", &cfg.Backup.Dir)
	envString("OMSUPPLY_S3_ENDPOINT", &cfg.Backup.Endpoint)
	envString("OMSUPPLY_S3_REGION", &cfg.Backup.Region)
	envString("OMSUPPLY_BACKUP_BUCKET", &cfg.Backup.Bucket)
	envString("OMSUPPLY_BACKUP_PREFIX", &cfg.Backup.Prefix)
	envString("OMSUPPLY_S3_ACCESS_KEY", &cfg.Backup.AccessKey)
	envString("OMSUPPLY_S3_SECRET_KEY", &cfg.Backup.SecretKey)
	if v := os.Getenv("OMSUPPLY_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Backup.UseSSL = &b
	}
}

// validate checks that required configuration values are set.
// In dev mode (OMSUPPLY_DEV_MODE=true), secret validation is skipped.
func (c *Config) validate() error {
	if c.Sync.PullBatchSize <= 0 {
		return fmt.Errorf("sync.pull_batch_size must be positive, got %d", c.Sync.PullBatchSize)
	}
	if c.Sync.PushBatchSize <= 0 {
		return fmt.Errorf("sync.push_batch_size must be positive, got %d", c.Sync.PushBatchSize)
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}

	if os.Getenv("OMSUPPLY_DEV_MODE") == "true" {
		return nil
	}

	if c.Sync.CentralURL == "" {
		return errors.New("OMSUPPLY_CENTRAL_URL is required")
	}
	if c.Sync.Password == "" {
		return errors.New("OMSUPPLY_SYNC_PASSWORD is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("OMSUPPLY_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
