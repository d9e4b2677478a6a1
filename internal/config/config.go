// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Port            string        `env:"PORT"             envDefault:"8080"`
	OriginAllowlist []string      `env:"ORIGIN_ALLOWLIST" envSeparator:","`
	GamesDir        string        `env:"GAMES_DIR"        envDefault:"games"`
	DataDir         string        `env:"DATA_DIR"         envDefault:"data"`
	JWTSecret       string        `env:"JWT_SECRET"`
	TokenTTL        time.Duration `env:"TOKEN_TTL"        envDefault:"12h"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	TickRate        int           `env:"TICK_RATE"        envDefault:"20"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
}

// Load reads optional .env files, then parses the environment. Variables
// already set in the environment win over .env values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logrus.Debugf("No .env loaded: %v", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("TICK_RATE must be between 1 and 1000, got %d", c.TickRate)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// ConfigureLogging applies LogLevel and the text formatter to the standard logger.
func (c Config) ConfigureLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
}
