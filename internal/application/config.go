package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/gavel-arena/internal/ports"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultAddr               = ":8080"
	DefaultJudgeProvider      = "groq"
	DefaultJudgeModel         = "llama-3.3-70b-versatile"
	DefaultCompetitionSecret  = "default_password"
	DefaultAdminSecret        = "admin123"
	DefaultHeartbeatWindow    = 10 * time.Second
	DefaultStreamInterval     = 3 * time.Second
	DefaultJudgeTimeout       = 20 * time.Second
	DefaultJudgeConcurrency   = 3
	DefaultNATSSubject        = "arena.events"
	DefaultBcryptCost         = 10
	DefaultBreakerCooldown    = 30 * time.Second
	DefaultJudgeRateLimit     = 5.0
	DefaultJudgeFuzzyCutoff   = 0.2
	defaultJudgeTemperature   = 0.1
	defaultJudgeMaxTokens     = 256
	defaultJudgeMaxRetries    = 2
	defaultJudgeBurst         = 10
	defaultBreakerFailures    = 5
	defaultPostgresMaxConns   = 10
	defaultServerReadTimeout  = 15 * time.Second
	defaultServerWriteTimeout = 60 * time.Second
)

// AppConfig is the complete process configuration.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Competition CompetitionConfig `yaml:"competition"`
	Judge       JudgeConfig       `yaml:"judge"`
	NATS        NATSConfig        `yaml:"nats"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	CORSOrigins  []string      `yaml:"cors_origins" validate:"dive,required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"min=0"`
	// StreamInterval is how often the websocket stream re-sends status.
	StreamInterval time.Duration `yaml:"stream_interval" validate:"min=1s"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=memory postgres"`
	DSN      string `yaml:"dsn" validate:"required_if=Driver postgres"`
	MaxConns int32  `yaml:"max_conns" validate:"min=1,max=100"`
}

// CompetitionConfig seeds the lazily created competition and admin
// records.
type CompetitionConfig struct {
	DefaultSecret      string        `yaml:"default_secret" validate:"required"`
	DefaultAdminSecret string        `yaml:"default_admin_secret" validate:"required"`
	HeartbeatWindow    time.Duration `yaml:"heartbeat_window" validate:"min=1s"`
	BcryptCost         int           `yaml:"bcrypt_cost" validate:"min=4,max=31"`
}

// JudgeConfig configures the scoring judge and its LLM client.
type JudgeConfig struct {
	Provider        string        `yaml:"provider" validate:"required,judgeprovider"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature     float64       `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens       int           `yaml:"max_tokens" validate:"min=16,max=4096"`
	Timeout         time.Duration `yaml:"timeout" validate:"min=1s"`
	MaxRetries      int           `yaml:"max_retries" validate:"min=0,max=10"`
	RateLimit       float64       `yaml:"rate_limit" validate:"min=0"`
	Burst           int           `yaml:"burst" validate:"min=0"`
	BreakerFailures int           `yaml:"breaker_failures" validate:"min=1"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"min=0"`
	MaxConcurrency  int           `yaml:"max_concurrency" validate:"min=1,max=32"`
	FuzzyThreshold  float64       `yaml:"fuzzy_threshold" validate:"min=0,max=1"`
}

// NATSConfig enables cross-replica event fan-out. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject" validate:"required_with=URL"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level string `yaml:"level" validate:"loglevel"`
}

// DefaultAppConfig returns the configuration used when nothing overrides it.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:           DefaultAddr,
			CORSOrigins:    []string{"*"},
			ReadTimeout:    defaultServerReadTimeout,
			WriteTimeout:   defaultServerWriteTimeout,
			StreamInterval: DefaultStreamInterval,
		},
		Store: StoreConfig{Driver: "memory", MaxConns: defaultPostgresMaxConns},
		Competition: CompetitionConfig{
			DefaultSecret:      DefaultCompetitionSecret,
			DefaultAdminSecret: DefaultAdminSecret,
			HeartbeatWindow:    DefaultHeartbeatWindow,
			BcryptCost:         DefaultBcryptCost,
		},
		Judge: JudgeConfig{
			Provider:        DefaultJudgeProvider,
			Model:           DefaultJudgeModel,
			Temperature:     defaultJudgeTemperature,
			MaxTokens:       defaultJudgeMaxTokens,
			Timeout:         DefaultJudgeTimeout,
			MaxRetries:      defaultJudgeMaxRetries,
			RateLimit:       DefaultJudgeRateLimit,
			Burst:           defaultJudgeBurst,
			BreakerFailures: defaultBreakerFailures,
			BreakerCooldown: DefaultBreakerCooldown,
			MaxConcurrency:  DefaultJudgeConcurrency,
			FuzzyThreshold:  DefaultJudgeFuzzyCutoff,
		},
		NATS: NATSConfig{Subject: DefaultNATSSubject},
		Log:  LogConfig{Level: "info"},
	}
}

// LoadConfig reads path (optional) over the defaults, then applies
// environment overrides and validates the result.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigWithEnv(path, os.Getenv)
}

// LoadConfigWithEnv is LoadConfig with an injectable environment.
func LoadConfigWithEnv(path string, getenv func(string) string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ports.NewConfigError(path, fmt.Errorf("read config file: %w", err))
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return nil, ports.NewConfigError(path, err)
		}
	}

	applyEnv(&cfg, envLookup(getenv))

	if err := ValidateAppConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeStrict rejects unknown keys so typos do not pass silently. An
// empty document leaves cfg unchanged.
func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config (check for typos): %w", err)
	}
	return nil
}

// ValidateAppConfig checks struct tags and the custom validators.
func ValidateAppConfig(cfg *AppConfig) error {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return err
	}
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ports.NewConfigError(verrs[0].Namespace(), err)
		}
		return ports.NewConfigError("config", err)
	}
	return nil
}

type envLookup func(string) string

func (e envLookup) get(key, fallback string) string {
	if v := e(key); v != "" {
		return v
	}
	return fallback
}

func applyEnv(cfg *AppConfig, env envLookup) {
	cfg.Server.Addr = env.get("ARENA_ADDR", cfg.Server.Addr)
	cfg.Log.Level = env.get("LOG_LEVEL", cfg.Log.Level)
	cfg.NATS.URL = env.get("NATS_URL", cfg.NATS.URL)

	cfg.Judge.Provider = strings.ToLower(strings.TrimSpace(env.get("ARENA_JUDGE_PROVIDER", cfg.Judge.Provider)))
	cfg.Judge.Model = env.get("ARENA_JUDGE_MODEL", cfg.Judge.Model)
	cfg.Judge.APIKey = env.get("ARENA_JUDGE_API_KEY", cfg.Judge.APIKey)
	if cfg.Judge.Provider == DefaultJudgeProvider {
		cfg.Judge.APIKey = env.get("GROQ_API_KEY", cfg.Judge.APIKey)
	}

	cfg.Competition.DefaultSecret = env.get("ARENA_DEFAULT_SECRET", cfg.Competition.DefaultSecret)
	cfg.Competition.DefaultAdminSecret = env.get("ARENA_ADMIN_SECRET", cfg.Competition.DefaultAdminSecret)

	switch {
	case env("DATABASE_URL") != "":
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = env("DATABASE_URL")
	case env("DB_HOST") != "":
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = dbDSNFromEnv(env)
	}
}

// dbDSNFromEnv builds a Postgres URL from DB_* variables.
func dbDSNFromEnv(env envLookup) string {
	port, err := strconv.Atoi(env.get("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		env.get("DB_USER", "postgres"),
		env.get("DB_PASSWORD", "postgres"),
		env.get("DB_HOST", "localhost"),
		port,
		env.get("DB_NAME", "arena"),
		env.get("DB_SSLMODE", "disable"),
	)
}
