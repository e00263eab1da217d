package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gamepricetracker/internal/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGetConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
fetch_data_interval = "24h"
auth_secret_key = "file-secret"
log_level = "debug"
`)
	c, err := GetConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ServerAddress != "localhost:8888" || c.RedisAddress != "localhost:6379" {
		t.Errorf("unexpected addresses: %s, %s", c.ServerAddress, c.RedisAddress)
	}
	if c.LogLevel != logger.LevelDebug {
		t.Errorf("log level = %v", c.LogLevel)
	}
	if c.NintendoBatchSize != 5 || c.PlayStationBatchSize != 5 || c.SteamBatchSize != 10 {
		t.Errorf("unexpected batch sizes: %d/%d/%d", c.NintendoBatchSize, c.PlayStationBatchSize, c.SteamBatchSize)
	}
	if c.ItemDelayMin != 2*time.Second || c.ItemDelayMax != 5*time.Second || c.BatchDelay != 3*time.Second {
		t.Errorf("unexpected delays: %v %v %v", c.ItemDelayMin, c.ItemDelayMax, c.BatchDelay)
	}
	if c.NintendoLocale() != "en-ca" || c.PlayStationLocale != "en-ca" {
		t.Errorf("unexpected locales: %s, %s", c.NintendoLocale(), c.PlayStationLocale)
	}
	if c.AuthSecretKey == nil {
		t.Error("auth key not built")
	}
}

func TestGetConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
fetch_data_interval = "6h"
database_uri = "mongodb://file:27017"
auth_secret_key = "file-secret"
cron_secret_hash = "file-hash"

[refresh]
steam_batch_size = 20
item_delay_min = "1s"
item_delay_max = "1500ms"
`)
	t.Setenv(EnvDatabaseURI, "mongodb://env:27017")
	t.Setenv(EnvCronSecretHash, "env-hash")
	t.Setenv(EnvRedisAddress, "redis:6379")

	c, err := GetConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DatabaseURI != "mongodb://env:27017" || c.CronSecretHash != "env-hash" || c.RedisAddress != "redis:6379" {
		t.Errorf("env did not override: %+v", c)
	}
	if c.SteamBatchSize != 20 || c.ItemDelayMax != 1500*time.Millisecond {
		t.Errorf("refresh table not read: %d, %v", c.SteamBatchSize, c.ItemDelayMax)
	}
}

func TestGetConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing interval", `auth_secret_key = "k"`, "fetch_data_interval is not set"},
		{"short interval", "fetch_data_interval = \"1m\"\nauth_secret_key = \"k\"", "too short"},
		{"missing key", `fetch_data_interval = "24h"`, "auth_secret_key is not set"},
		{"bad level", "fetch_data_interval = \"24h\"\nauth_secret_key = \"k\"\nlog_level = \"loud\"", "invalid level"},
		{"inverted delays", "fetch_data_interval = \"24h\"\nauth_secret_key = \"k\"\n[refresh]\nitem_delay_min = \"5s\"\nitem_delay_max = \"1s\"", "below item_delay_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvAuthSecretKey, "")
			_, err := GetConfig(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("want error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
