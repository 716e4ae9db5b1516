package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Agent runtime (turn event stream)
	AgentURL     string
	AgentTimeout int // seconds; covers one full turn stream

	// Neo4j (graph-read service)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// LLM (suggested questions)
	LLMBaseURL string
	LLMAPIKey  string
	ModelID    string

	// Graph limits
	SnapshotLimit  int // nodes in the initial full-graph snapshot
	ExpandDepth    int // neighborhood depth for manual expansion
	ExpandLimit    int // nodes per expansion fetch
	ExtractDepth   int // neighborhood depth for extractor fallback fetches
	ExtractIDLimit int // ids collected per payload collection
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8090"),
		Env:            getEnv("ENV", "development"),
		AgentURL:       getEnv("AGENT_URL", "http://localhost:8000"),
		AgentTimeout:   getEnvInt("AGENT_TIMEOUT_SECONDS", 300),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:  getEnv("NEO4J_DATABASE", "neo4j"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		ModelID:        getEnv("MODEL_ID", "claude-sonnet-4-20250514"),
		SnapshotLimit:  getEnvInt("SNAPSHOT_LIMIT", 100),
		ExpandDepth:    getEnvInt("EXPAND_DEPTH", 1),
		ExpandLimit:    getEnvInt("EXPAND_LIMIT", 50),
		ExtractDepth:   getEnvInt("EXTRACT_DEPTH", 2),
		ExtractIDLimit: getEnvInt("EXTRACT_ID_LIMIT", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.AgentURL == "" {
		return fmt.Errorf("AGENT_URL is required")
	}
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.SnapshotLimit <= 0 {
		return fmt.Errorf("SNAPSHOT_LIMIT must be positive")
	}
	if c.ExpandDepth <= 0 {
		return fmt.Errorf("EXPAND_DEPTH must be positive")
	}
	// LLM settings are optional; the suggestion service falls back to defaults
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
