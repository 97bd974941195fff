package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"OMSUPPLY_PORT",
		"OMSUPPLY_READ_TIMEOUT",
		"OMSUPPLY_WRITE_TIMEOUT",
		"OMSUPPLY_SHUTDOWN_TIMEOUT",
		"OMSUPPLY_DB_PATH",
		"OMSUPPLY_CENTRAL_URL",
		"OMSUPPLY_SYNC_USERNAME",
		"OMSUPPLY_SYNC_PASSWORD",
		"OMSUPPLY_HARDWARE_ID",
		"OMSUPPLY_SYNC_INTERVAL",
		"OMSUPPLY_PULL_BATCH_SIZE",
		"OMSUPPLY_PUSH_BATCH_SIZE",
		"OMSUPPLY_REQUEST_TIMEOUT",
		"OMSUPPLY_API_KEY",
		"OMSUPPLY_LOG_LEVEL",
		"OMSUPPLY_LOG_FORMAT",
		"OMSUPPLY_CONFIG_PATH",
		"OMSUPPLY_ENV_FILE",
		"OMSUPPLY_DEV_MODE",
		"OMSUPPLY_BACKUP_INTERVAL",
		"OMSUPPLY_BACKUP_DIR",
		"OMSUPPLY_BACKUP_BUCKET",
		"OMSUPPLY_BACKUP_PREFIX",
		"OMSUPPLY_S3_ENDPOINT",
		"OMSUPPLY_S3_REGION",
		"OMSUPPLY_S3_ACCESS_KEY",
		"OMSUPPLY_S3_SECRET_KEY",
		"OMSUPPLY_S3_USE_SSL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
	// Keep a stray .env in the package directory out of the tests.
	os.Setenv("OMSUPPLY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

// Helper to set dev mode so secrets are not required
func setDevModeEnv(t *testing.T) {
	t.Helper()
	os.Setenv("OMSUPPLY_DEV_MODE", "true")
}

// Helper to set the env vars production validation requires
func setProdEnv(t *testing.T) {
	t.Helper()
	os.Setenv("OMSUPPLY_CENTRAL_URL", "https://central.example.org")
	os.Setenv("OMSUPPLY_SYNC_PASSWORD", "site-pass")
	os.Setenv("OMSUPPLY_API_KEY", "test-api-key")
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

// Test: Default values when no config file and no env vars (dev mode)
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if dur(cfg.Server.ShutdownTimeout) != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Path != "data/omsupply-sync.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}

	// Sync defaults
	if dur(cfg.Sync.Interval) != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", dur(cfg.Sync.Interval))
	}
	if cfg.Sync.PullBatchSize != 500 || cfg.Sync.PushBatchSize != 500 {
		t.Errorf("batch sizes = %d/%d, want 500/500", cfg.Sync.PullBatchSize, cfg.Sync.PushBatchSize)
	}
	if dur(cfg.Sync.RequestTimeout) != 60*time.Second {
		t.Errorf("Sync.RequestTimeout = %v, want 60s", dur(cfg.Sync.RequestTimeout))
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}

	// Backup is local-only by default
	if cfg.Backup.Bucket != "" {
		t.Errorf("Backup.Bucket = %q, want empty", cfg.Backup.Bucket)
	}
	if cfg.Backup.UseSSL == nil || !*cfg.Backup.UseSSL {
		t.Error("Backup.UseSSL should default to true")
	}
	if dur(cfg.Backup.Interval) != 6*time.Hour {
		t.Errorf("Backup.Interval = %v, want 6h", dur(cfg.Backup.Interval))
	}
}

// Test: Validation fails without secrets (non-dev mode)
func TestLoad_ValidationFailsWithoutSecrets(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr string
	}{
		{name: "central url", unset: "OMSUPPLY_CENTRAL_URL", wantErr: "OMSUPPLY_CENTRAL_URL"},
		{name: "sync password", unset: "OMSUPPLY_SYNC_PASSWORD", wantErr: "OMSUPPLY_SYNC_PASSWORD"},
		{name: "api key", unset: "OMSUPPLY_API_KEY", wantErr: "OMSUPPLY_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setProdEnv(t)
			os.Unsetenv(tt.unset)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ValidationPassesWithSecrets(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Password != "site-pass" {
		t.Errorf("Sync.Password = %q", cfg.Sync.Password)
	}
}

func TestLoad_RejectsNonPositiveBatchSize(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	os.Setenv("OMSUPPLY_PUSH_BATCH_SIZE", "0")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "push_batch_size") {
		t.Errorf("Load() error = %v, want push_batch_size error", err)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	os.Setenv("OMSUPPLY_PORT", "9090")
	os.Setenv("OMSUPPLY_DB_PATH", "/env/site.db")
	os.Setenv("OMSUPPLY_CENTRAL_URL", "https://central.env")
	os.Setenv("OMSUPPLY_SYNC_USERNAME", "site-env")
	os.Setenv("OMSUPPLY_HARDWARE_ID", "hw-1")
	os.Setenv("OMSUPPLY_SYNC_INTERVAL", "30s")
	os.Setenv("OMSUPPLY_PULL_BATCH_SIZE", "100")
	os.Setenv("OMSUPPLY_PUSH_BATCH_SIZE", "50")
	os.Setenv("OMSUPPLY_REQUEST_TIMEOUT", "5s")
	os.Setenv("OMSUPPLY_LOG_LEVEL", "debug")
	os.Setenv("OMSUPPLY_BACKUP_BUCKET", "site-backups")
	os.Setenv("OMSUPPLY_S3_USE_SSL", "false")
	os.Setenv("OMSUPPLY_S3_ACCESS_KEY", "AKIAEXAMPLE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/env/site.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Sync.CentralURL != "https://central.env" || cfg.Sync.Username != "site-env" || cfg.Sync.HardwareID != "hw-1" {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if dur(cfg.Sync.Interval) != 30*time.Second || dur(cfg.Sync.RequestTimeout) != 5*time.Second {
		t.Errorf("Sync durations = %v/%v", dur(cfg.Sync.Interval), dur(cfg.Sync.RequestTimeout))
	}
	if cfg.Sync.PullBatchSize != 100 || cfg.Sync.PushBatchSize != 50 {
		t.Errorf("batch sizes = %d/%d", cfg.Sync.PullBatchSize, cfg.Sync.PushBatchSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Backup.Bucket != "site-backups" || cfg.Backup.AccessKey != "AKIAEXAMPLE" {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if cfg.Backup.UseSSL == nil || *cfg.Backup.UseSSL {
		t.Error("Backup.UseSSL should be false from env")
	}
}

// Test: Invalid env values leave the default in place
func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	os.Setenv("OMSUPPLY_PORT", "not-a-port")
	os.Setenv("OMSUPPLY_SYNC_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 || dur(cfg.Sync.Interval) != time.Minute {
		t.Errorf("defaults overridden by invalid env: port=%d interval=%v", cfg.Server.Port, dur(cfg.Sync.Interval))
	}
}

func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	yamlContent := `
server:
  port: 9999
  read_timeout: 60s
database:
  path: /yaml/site.db
sync:
  central_url: https://central.yaml
  username: site-yaml
  interval: 2m
  pull_batch_size: 250
log:
  level: warn
backup:
  bucket: yaml-bucket
  use_ssl: false
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if dur(cfg.Server.ReadTimeout) != 60*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 60s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Path != "/yaml/site.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Sync.CentralURL != "https://central.yaml" || cfg.Sync.Username != "site-yaml" {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if dur(cfg.Sync.Interval) != 2*time.Minute || cfg.Sync.PullBatchSize != 250 {
		t.Errorf("Sync interval/pull = %v/%d", dur(cfg.Sync.Interval), cfg.Sync.PullBatchSize)
	}
	// Unset YAML keys keep their defaults
	if cfg.Sync.PushBatchSize != 500 {
		t.Errorf("Sync.PushBatchSize = %d, want default 500", cfg.Sync.PushBatchSize)
	}
	if cfg.Backup.Bucket != "yaml-bucket" || cfg.Backup.UseSSL == nil || *cfg.Backup.UseSSL {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
}

// Test: Env vars override YAML values
func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("sync:\n  username: from-yaml\nlog:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	os.Setenv("OMSUPPLY_CONFIG_PATH", configPath)
	os.Setenv("OMSUPPLY_SYNC_USERNAME", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Username != "from-env" {
		t.Errorf("Sync.Username = %q, want from-env", cfg.Sync.Username)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn from YAML", cfg.Log.Level)
	}
}

func TestLoad_DotEnvFillsUnsetVars(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	envPath := filepath.Join(t.TempDir(), ".env")
	content := "OMSUPPLY_SYNC_USERNAME=dotenv-user\nOMSUPPLY_LOG_LEVEL=error\n"
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	os.Setenv("OMSUPPLY_ENV_FILE", envPath)
	os.Setenv("OMSUPPLY_LOG_LEVEL", "debug")
	t.Cleanup(func() { os.Unsetenv("OMSUPPLY_SYNC_USERNAME") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Username != "dotenv-user" {
		t.Errorf("Sync.Username = %q, want dotenv-user", cfg.Sync.Username)
	}
	// Real environment wins over .env
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	os.Setenv("OMSUPPLY_CONFIG_PATH", "/nonexistent/omsupply-sync.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: [not valid"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("LoadFromFile() should fail on invalid YAML")
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("sync:\n  interval: every-minute\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("LoadFromFile() error = %v, want invalid duration", err)
	}
}

func TestConfig_SecretsNotInYAML(t *testing.T) {
	cfg := &Config{
		Sync:   SyncConfig{Password: "sync-secret", Username: "site"},
		Auth:   AuthConfig{APIKey: "api-secret"},
		Backup: BackupConfig{AccessKey: "access-secret", SecretKey: "s3-secret"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}

	yamlStr := string(data)
	for _, secret := range []string{"sync-secret", "api-secret", "access-secret", "s3-secret"} {
		if strings.Contains(yamlStr, secret) {
			t.Errorf("YAML contains secret %q: %s", secret, yamlStr)
		}
	}
}
