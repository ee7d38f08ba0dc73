package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service and the CLI.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	HTTP      HTTPConfig

	// TempDir receives transient image files handed to the embedding provider.
	// Empty means the OS temp directory.
	TempDir string `env:"TEMP_DIR"`
}

type DatabaseConfig struct {
	Driver       string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN          string `env:"DATABASE_DSN" envDefault:"face_recognition.db"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

type RedisConfig struct {
	// Addr is optional; without it verification results are served from the database only.
	Addr string `env:"REDIS_ADDR"`
}

type EmbeddingConfig struct {
	Transport string        `env:"EMBEDDING_TRANSPORT" envDefault:"http"`
	URL       string        `env:"DEEPFACE_URL" envDefault:"http://localhost:5005"`
	GRPCAddr  string        `env:"EMBEDDING_GRPC_ADDR" envDefault:"localhost:50051"`
	Timeout   time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"2m"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	switch c.Embedding.Transport {
	case TransportHTTP:
		if c.Embedding.URL == "" {
			return fmt.Errorf("DEEPFACE_URL is required for the http transport")
		}
	case TransportGRPC:
		if c.Embedding.GRPCAddr == "" {
			return fmt.Errorf("EMBEDDING_GRPC_ADDR is required for the grpc transport")
		}
	default:
		return fmt.Errorf("unsupported EMBEDDING_TRANSPORT %q", c.Embedding.Transport)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be positive")
	}
	return nil
}
