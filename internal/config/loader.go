package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "planforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PLANFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "PLANFORGE_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PLANFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PLANFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PLANFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PLANFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PLANFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Inference.BaseURL, "PLANFORGE_INFERENCE_URL")
	setString(&cfg.Inference.APIKey, "PLANFORGE_INFERENCE_API_KEY")
	setString(&cfg.Inference.Model, "PLANFORGE_INFERENCE_MODEL")
	setInt(&cfg.Inference.MaxTokens, "PLANFORGE_INFERENCE_MAX_TOKENS")
	setDuration(&cfg.Inference.Timeout, "PLANFORGE_INFERENCE_TIMEOUT")

	setString(&cfg.Jira.BaseURL, "PLANFORGE_JIRA_URL")
	setString(&cfg.Jira.Email, "PLANFORGE_JIRA_EMAIL")
	setString(&cfg.Jira.APIToken, "PLANFORGE_JIRA_TOKEN")

	setString(&cfg.Logging.Level, "PLANFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PLANFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "PLANFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "PLANFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PLANFORGE_BREAKER_TIMEOUT")

	setInt(&cfg.Planner.TurnBudget, "PLANFORGE_TURN_BUDGET")
	setInt(&cfg.Planner.ChatTurnBudget, "PLANFORGE_CHAT_TURN_BUDGET")
	setDuration(&cfg.Planner.TurnTimeout, "PLANFORGE_TURN_TIMEOUT")
	setDuration(&cfg.Planner.SessionTimeout, "PLANFORGE_SESSION_TIMEOUT")
	setString(&cfg.Planner.CompletionMarker, "PLANFORGE_COMPLETION_MARKER")
	setInt(&cfg.Planner.RAGMaxResults, "PLANFORGE_RAG_MAX_RESULTS")

	setInt64(&cfg.Ingestion.MaxConcurrent, "PLANFORGE_INGEST_MAX_CONCURRENT")
	setDuration(&cfg.Ingestion.Retention, "PLANFORGE_INGEST_RETENTION")
	setDuration(&cfg.Ingestion.GCInterval, "PLANFORGE_INGEST_GC_INTERVAL")
	setInt(&cfg.Ingestion.ChunkSize, "PLANFORGE_INGEST_CHUNK_SIZE")

	setInt64(&cfg.Cache.MaxCostBytes, "PLANFORGE_CACHE_MAX_COST")
	setDuration(&cfg.Cache.QueryTTL, "PLANFORGE_CACHE_QUERY_TTL")
}

// validate checks that required fields are set and within range.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Planner.TurnBudget < 1 {
		return errors.New("planner.turn_budget must be >= 1")
	}
	if cfg.Planner.ChatTurnBudget < 1 {
		return errors.New("planner.chat_turn_budget must be >= 1")
	}
	if cfg.Planner.CompletionMarker == "" {
		return errors.New("planner.completion_marker is required")
	}
	if cfg.Ingestion.MaxConcurrent < 1 {
		return errors.New("ingestion.max_concurrent must be >= 1")
	}
	if cfg.Ingestion.Retention < time.Minute {
		return errors.New("ingestion.retention must be at least one minute")
	}
	if cfg.Ingestion.ChunkSize < 1 {
		return errors.New("ingestion.chunk_size must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
