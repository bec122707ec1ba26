// Package config provides hierarchical configuration loading for PlanForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the PlanForge core service.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Inference Inference `yaml:"inference"`
	Jira      Jira      `yaml:"jira"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Planner   Planner   `yaml:"planner"`
	Ingestion Ingestion `yaml:"ingestion"`
	Cache     Cache     `yaml:"cache"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN selects
// the in-memory store (development mode).
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables event
// publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// Inference holds language-model backend configuration.
type Inference struct {
	BaseURL   string        `yaml:"base_url"` // OpenAI-compatible endpoint; empty uses the provider default
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"` // per-request HTTP ceiling, below the planner's turn timeout
}

// Jira holds issue tracker configuration.
type Jira struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"` // buffer log records through a worker pool
}

// Breaker holds circuit breaker configuration for outbound clients.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Planner holds planning loop configuration.
type Planner struct {
	TurnBudget       int           `yaml:"turn_budget"`        // max turns per planning run (default: 12)
	ChatTurnBudget   int           `yaml:"chat_turn_budget"`   // max turns per chat follow-up (default: 3)
	TurnTimeout      time.Duration `yaml:"turn_timeout"`       // ceiling per backend call
	SessionTimeout   time.Duration `yaml:"session_timeout"`    // wall-clock ceiling per planning run
	CompletionMarker string        `yaml:"completion_marker"`  // free-text marker ending the loop
	RAGMaxResults    int           `yaml:"rag_max_results"`    // chunks injected as turn context
}

// Ingestion holds background ingestion engine configuration.
type Ingestion struct {
	MaxConcurrent int64         `yaml:"max_concurrent"` // concurrent ingestion workers
	Retention     time.Duration `yaml:"retention"`      // how long finished tasks stay pollable
	GCInterval    time.Duration `yaml:"gc_interval"`
	ChunkSize     int           `yaml:"chunk_size"` // characters per chunk handed to the store
}

// Cache holds in-process cache configuration for RAG query results.
type Cache struct {
	MaxCostBytes int64         `yaml:"max_cost_bytes"`
	QueryTTL     time.Duration `yaml:"query_ttl"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Inference: Inference{
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
			Timeout:   90 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "planforge-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Planner: Planner{
			TurnBudget:       12,
			ChatTurnBudget:   3,
			TurnTimeout:      120 * time.Second,
			SessionTimeout:   20 * time.Minute,
			CompletionMarker: "#FINAL_PLAN",
			RAGMaxResults:    5,
		},
		Ingestion: Ingestion{
			MaxConcurrent: 4,
			Retention:     30 * time.Minute,
			GCInterval:    5 * time.Minute,
			ChunkSize:     1200,
		},
		Cache: Cache{
			MaxCostBytes: 32 << 20,
			QueryTTL:     30 * time.Second,
		},
	}
}
