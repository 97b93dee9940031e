package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPass     string
	DBHost     string
	DBPort     string
	DBName     string
	SSLMode    string
	RedisHost  string
	RedisPort  string
	NatsHost   string
	NatsPort   string
	ApiPort    string
	ApiEnabled string
	JWTSecret  string

	// OperationTimeout bounds the wait for a settlement confirmation.
	// Zero disables the local timeout and leaves the policy to the backend.
	OperationTimeout time.Duration
}

// New loads and validates configuration from environment variables.
// HTTP server is optional: if WEALTH_API_ENABLED != "true", ApiAddr() returns
// an error and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:           os.Getenv("WEALTH_POSTGRES_USER"),
		DBPass:           os.Getenv("WEALTH_POSTGRES_PASSWORD"),
		DBHost:           os.Getenv("WEALTH_POSTGRES_HOST"),
		DBPort:           os.Getenv("WEALTH_POSTGRES_PORT"),
		DBName:           os.Getenv("WEALTH_POSTGRES_DB"),
		SSLMode:          os.Getenv("WEALTH_POSTGRES_SSLMODE"),
		RedisHost:        os.Getenv("WEALTH_REDIS_HOST"),
		RedisPort:        os.Getenv("WEALTH_REDIS_PORT"),
		NatsHost:         os.Getenv("WEALTH_NATS_HOST"),
		NatsPort:         os.Getenv("WEALTH_NATS_PORT"),
		ApiPort:          os.Getenv("WEALTH_API_PORT"),
		ApiEnabled:       os.Getenv("WEALTH_API_ENABLED"),
		JWTSecret:        os.Getenv("WEALTH_JWT_SECRET"),
		OperationTimeout: getEnvDuration("WEALTH_OPERATION_TIMEOUT", 0),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: WEALTH_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: WEALTH_REDIS_HOST/PORT")
	}

	// Required: settlement bus
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats bus: WEALTH_NATS_HOST/PORT")
	}

	// Required: identity token key
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env: WEALTH_JWT_SECRET")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if WEALTH_API_ENABLED != "true" — callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("WEALTH_API_PORT is required when WEALTH_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (WEALTH_API_ENABLED != true)")
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
