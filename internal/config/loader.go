package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the configuration. path names an optional TOML file; an
// empty path skips it. A .env file in the working directory, if present,
// is loaded into the environment before FORESIGHT_* overrides apply.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose FORESIGHT_* variable is set,
// so secrets can be injected at deploy time without touching the file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "FORESIGHT_STORE_BACKEND")
	setStr(&cfg.Store.BadgerDir, "FORESIGHT_BADGER_DIR")
	setStr(&cfg.Store.PostgresDSN, "FORESIGHT_POSTGRES_DSN")
	setStr(&cfg.Store.MigrationsDir, "FORESIGHT_MIGRATIONS_DIR")
	setInt(&cfg.Store.MaxOpenConns, "FORESIGHT_POSTGRES_MAX_OPEN_CONNS")

	// ── Server ──
	setStr(&cfg.Server.GRPCAddr, "FORESIGHT_GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "FORESIGHT_HTTP_ADDR")
	setStr(&cfg.Server.MetricsAddr, "FORESIGHT_METRICS_ADDR")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.EmitBuffer, "FORESIGHT_EMIT_BUFFER")
	setInt(&cfg.Pipeline.PersistChanSize, "FORESIGHT_PERSIST_CHAN_SIZE")
	setInt(&cfg.Pipeline.ProjectionChanSize, "FORESIGHT_PROJECTION_CHAN_SIZE")
	setInt(&cfg.Pipeline.PersistBatchSize, "FORESIGHT_PERSIST_BATCH_SIZE")
	setDuration(&cfg.Pipeline.PersistFlushTimeout, "FORESIGHT_PERSIST_FLUSH_TIMEOUT")
	setInt(&cfg.Pipeline.IdempotencyLRUCapacity, "FORESIGHT_IDEMPOTENCY_LRU_CAPACITY")

	// ── NATS ──
	setBool(&cfg.NATS.Enabled, "FORESIGHT_NATS_ENABLED")
	setStr(&cfg.NATS.URL, "FORESIGHT_NATS_URL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "FORESIGHT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "FORESIGHT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "FORESIGHT_KAFKA_TOPIC")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FORESIGHT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FORESIGHT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FORESIGHT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FORESIGHT_REDIS_DB")
	setDuration(&cfg.Redis.TTL, "FORESIGHT_REDIS_TTL")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "FORESIGHT_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "FORESIGHT_TOKEN_TTL")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "FORESIGHT_AUDIT_ENABLED")
	setStr(&cfg.Audit.Schedule, "FORESIGHT_AUDIT_SCHEDULE")
	setInt(&cfg.Audit.ChainPageSize, "FORESIGHT_AUDIT_CHAIN_PAGE_SIZE")

	// ── Top-level ──
	setInt32(&cfg.Display.Decimals, "FORESIGHT_DISPLAY_DECIMALS")
	setStr(&cfg.LogLevel, "FORESIGHT_LOG_LEVEL")
}

// Each helper only mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
