// Package config loads process configuration for the draft binaries: .env
// first, then the environment, then an optional YAML file for draft tuning.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mcdev12/draftlobby/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is shared by every binary; each reads the fields it needs.
type Config struct {
	DB  dbconfig.Config
	Log Logging

	APIAddr          string `env:"API_ADDR" envDefault:":8080"`
	GatewayAddr      string `env:"GATEWAY_ADDR" envDefault:":8081"`
	OrchestratorAddr string `env:"ORCHESTRATOR_ADDR" envDefault:":8082"`
	RelayAddr        string `env:"RELAY_ADDR" envDefault:":8083"`

	NATSURL        string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	StreamMaxAge   time.Duration `env:"DRAFT_STREAM_MAX_AGE" envDefault:"24h"`
	JWTSecret      string        `env:"JWT_SECRET"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// DraftConfigPath names a YAML file whose values override Draft.
	DraftConfigPath string `env:"DRAFT_CONFIG"`
	Draft           Draft
}

// Logging selects the zerolog level and output.
type Logging struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Draft holds the engine's tuning knobs.
type Draft struct {
	ScanInterval      time.Duration `env:"DRAFT_SCAN_INTERVAL" envDefault:"1s" yaml:"scan_interval"`
	ScanBatchSize     int           `env:"DRAFT_SCAN_BATCH_SIZE" envDefault:"100" yaml:"scan_batch_size"`
	ScanWorkers       int           `env:"DRAFT_SCAN_WORKERS" envDefault:"10" yaml:"scan_workers"`
	TransitionTimeout time.Duration `env:"DRAFT_TRANSITION_TIMEOUT" envDefault:"10s" yaml:"transition_timeout"`

	RelayBatchSize      int           `env:"DRAFT_RELAY_BATCH_SIZE" envDefault:"100" yaml:"relay_batch_size"`
	RelayFallbackPeriod time.Duration `env:"DRAFT_RELAY_FALLBACK" envDefault:"5s" yaml:"relay_fallback_period"`

	MaxMessageBytes   int64   `env:"DRAFT_WS_MAX_MESSAGE_BYTES" envDefault:"4096" yaml:"max_message_bytes"`
	InboundRatePerSec float64 `env:"DRAFT_WS_RATE" envDefault:"10" yaml:"inbound_rate_per_sec"`
	InboundBurst      int     `env:"DRAFT_WS_BURST" envDefault:"20" yaml:"inbound_burst"`
	SendBuffer        int     `env:"DRAFT_WS_SEND_BUFFER" envDefault:"256" yaml:"send_buffer"`
}

// Load reads .env (if present), parses the environment, and applies the
// DRAFT_CONFIG override file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DraftConfigPath != "" {
		if err := cfg.Draft.overrideFromFile(cfg.DraftConfigPath); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (d *Draft) overrideFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(l Logging) {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if l.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
