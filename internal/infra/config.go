package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"sentinel"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"sentinel"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"sentinel"`

	// Database pool. Ingest traffic is many short-lived statements, so the
	// pool leans toward more connections with a short idle timeout.
	PGPoolMaxConns int `env:"PG_POOL_MAX_CONNS" envDefault:"40"`
	PGPoolMinConns int `env:"PG_POOL_MIN_CONNS" envDefault:"5"`

	// Redis
	RedisURL               string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	BaselineCacheTTL       time.Duration `env:"BASELINE_CACHE_TTL" envDefault:"10m"`
	VerificationPendingTTL time.Duration `env:"VERIFICATION_PENDING_TTL" envDefault:"15m"`

	// JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry  string `env:"JWT_USER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`

	// Behavior analysis
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"30s"`

	// Ingest guard
	IngestRatePerMinute int `env:"INGEST_RATE_PER_MINUTE" envDefault:"600"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig reads an optional .env file, then parses environment variables
// into a Config struct.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
