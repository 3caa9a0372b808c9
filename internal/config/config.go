package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SessionBackendDB    = "db"
	SessionBackendRedis = "redis"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"usersvc"`
	Port        int    `env:"SERVER_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://usersvc.db"`

	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"1h"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,required,notEmpty"`

	SessionBackend string `env:"SESSION_BACKEND" envDefault:"db"`
	Redis          RedisConfig
	Kafka          KafkaConfig
	ES             ESConfig

	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`
	CSRFEnabled  bool `env:"CSRF_ENABLED"  envDefault:"false"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

type KafkaConfig struct {
	Brokers   []string `env:"KAFKA_BROKERS"    envSeparator:","`
	UserTopic string   `env:"KAFKA_USER_TOPIC" envDefault:"user_events"`
}

type ESConfig struct {
	URL       string `env:"ES_URL"`
	User      string `env:"ES_USER"`
	Password  string `env:"ES_PASSWORD"`
	UserIndex string `env:"ES_USER_INDEX" envDefault:"users"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

func (c ESConfig) Enabled() bool { return c.URL != "" }

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnvironment parses vars instead of the process environment.
func LoadFromEnvironment(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	brokers := cfg.Kafka.Brokers[:0]
	for _, b := range cfg.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.AccessSecret == "" || c.RefreshSecret == "":
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	case c.AccessSecret == c.RefreshSecret:
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	case c.AccessTTL <= 0:
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	case c.RefreshTTL <= 0:
		return errors.New("REFRESH_TOKEN_TTL must be positive")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("SERVER_PORT %d out of range", c.Port)
	}
	switch c.SessionBackend {
	case SessionBackendDB, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND %q: want %q or %q", c.SessionBackend, SessionBackendDB, SessionBackendRedis)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
