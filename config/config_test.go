package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  driver: "postgres"
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  topics:
    sync_requests: "parcel.sync.requested"
    audit: "parcel.audit"
    notifications: "parcel.notifications"
redis:
  host: "localhost"
  port: 6379
parcelhub:
  http_addr: ":8080"
  carrier_webhook_token: "t0k"
  sync_schedule: "*/15 * * * *"
  sync_concurrency: 4
  gateway_mode: "fake"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.DSN())
	require.Equal(t, "parcel.sync.requested", cfg.Kafka.Topics.SyncRequests)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, ":8080", cfg.ParcelHub.HTTPAddr)
	require.Equal(t, "*/15 * * * *", cfg.ParcelHub.SyncSchedule)
	require.Equal(t, 4, cfg.ParcelHub.SyncConcurrency)
	require.Equal(t, "fake", cfg.ParcelHub.GatewayMode)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("database: [1, 2"), 0o600))
	_, err = LoadConfig(p)
	require.Error(t, err)
}

func TestEmptyAddrs(t *testing.T) {
	var cfg Config
	require.Nil(t, cfg.Kafka.Brokers())
	require.Empty(t, cfg.Redis.Addr())
}
