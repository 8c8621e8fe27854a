package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BackendConfig locates the analytics backend
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	RESTPort    string
	WSPort      string
	CORSOrigins []string
}

// RedisConfig holds Redis connection configuration. An empty URL disables
// snapshots and the event stream.
type RedisConfig struct {
	URL           string
	EnableEvents  bool
	ConnectTries  int
	ConnectDelay  time.Duration
	SnapshotTTL   time.Duration
	FanoutTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN disables the
// durable chat history.
type DatabaseConfig struct {
	DSN string
}

// SessionConfig controls in-memory session lifetime
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// ProfileConfig lists the hosts player profile pages may be fetched from
type ProfileConfig struct {
	Hosts []string
}

// Config holds all application configuration
type Config struct {
	Backend  BackendConfig
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Session  SessionConfig
	Profile  ProfileConfig
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] ⚠️  could not read .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables
func FromEnv() (*Config, error) {
	var errs []string
	duration := func(key, def string) time.Duration {
		raw := getEnv(key, def)
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, raw))
			return 0
		}
		return d
	}

	cfg := &Config{
		Backend: BackendConfig{
			URL:     strings.TrimRight(getEnv("BACKEND_URL", "http://127.0.0.1:5000"), "/"),
			Timeout: duration("BACKEND_TIMEOUT", "30s"),
		},
		Server: ServerConfig{
			RESTPort:    getEnv("REST_PORT", "8080"),
			WSPort:      getEnv("WS_PORT", "8081"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			EnableEvents:  getEnv("ENABLE_EVENTS", "true") == "true",
			ConnectTries:  30,
			ConnectDelay:  2 * time.Second,
			SnapshotTTL:   duration("SESSION_TTL", "24h"),
			FanoutTimeout: duration("FANOUT_TIMEOUT", "5s"),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_URL", ""),
		},
		Session: SessionConfig{
			IdleTimeout:   duration("SESSION_IDLE_TIMEOUT", "30m"),
			SweepInterval: duration("SESSION_SWEEP_INTERVAL", "5m"),
		},
		Profile: ProfileConfig{
			Hosts: splitList(getEnv("PROFILE_HOSTS", "basketball-reference.com")),
		},
	}

	if cfg.Backend.Timeout == 0 && len(errs) == 0 {
		errs = append(errs, "BACKEND_TIMEOUT: must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
