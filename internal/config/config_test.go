package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foresight.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ============================================================================
// Test: Defaults and validation
// ============================================================================

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.True(t, cfg.DevMode())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "sqlite"
	cfg.Pipeline.EmitBuffer = 0
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	cfg.Auth.JWTSecret = "short"
	cfg.Display.Decimals = 19

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"store.backend",
		"pipeline channel sizes",
		"kafka.brokers",
		"auth.jwt_secret",
		"display.decimals",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = BackendPostgres
	cfg.Store.PostgresDSN = ""
	assert.ErrorContains(t, cfg.Validate(), "postgres_dsn")

	cfg = Defaults()
	cfg.Store.Backend = BackendBadger
	cfg.Store.BadgerDir = ""
	assert.ErrorContains(t, cfg.Validate(), "badger_dir")
}

// ============================================================================
// Test: Loading
// ============================================================================

func TestLoad_NoFileGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeTOML(t, `
log_level = "debug"

[store]
backend = "badger"
badger_dir = "/var/lib/foresight"

[pipeline]
persist_flush_timeout = "25ms"

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]

[display]
decimals = 9
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/foresight", cfg.Store.BadgerDir)
	assert.Equal(t, 25*time.Millisecond, cfg.Pipeline.PersistFlushTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int32(9), cfg.Display.Decimals)
	// untouched sections keep their defaults
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, "foresight.events", cfg.Kafka.Topic)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, `
[store]
backnd = "memory"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.backnd")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTOML(t, `
[store]
backend = "badger"

[redis]
addr = "cache:6379"
`)
	t.Setenv("FORESIGHT_STORE_BACKEND", "postgres")
	t.Setenv("FORESIGHT_POSTGRES_DSN", "postgres://u:p@db/foresight")
	t.Setenv("FORESIGHT_KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("FORESIGHT_REDIS_ENABLED", "true")
	t.Setenv("FORESIGHT_REDIS_TTL", "90s")
	t.Setenv("FORESIGHT_DISPLAY_DECIMALS", "2")
	t.Setenv("FORESIGHT_JWT_SECRET", "0123456789abcdef")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://u:p@db/foresight", cfg.Store.PostgresDSN)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.Redis.TTL)
	assert.Equal(t, int32(2), cfg.Display.Decimals)
	assert.False(t, cfg.DevMode())
}

func TestLoad_UnparsableEnvIsIgnored(t *testing.T) {
	t.Setenv("FORESIGHT_EMIT_BUFFER", "lots")
	t.Setenv("FORESIGHT_NATS_ENABLED", "maybe")
	t.Setenv("FORESIGHT_TOKEN_TTL", "a day")

	cfg, err := Load("")
	require.NoError(t, err)
	def := Defaults()
	assert.Equal(t, def.Pipeline.EmitBuffer, cfg.Pipeline.EmitBuffer)
	assert.Equal(t, def.NATS.Enabled, cfg.NATS.Enabled)
	assert.Equal(t, def.Auth.TokenTTL, cfg.Auth.TokenTTL)
}
