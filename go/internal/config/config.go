package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Contest    ContestConfig    `yaml:"contest"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Auth       AuthConfig       `yaml:"auth"`
	NATS       NATSConfig       `yaml:"nats"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Completion CompletionConfig `yaml:"completion"`
	LogLevel   string           `yaml:"log_level"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type ContestConfig struct {
	TimeLimitSec int           `yaml:"time_limit_sec"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// TimeLimit is the default countdown for quizzes without their own limit
func (c ContestConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSec) * time.Second
}

type WebSocketConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBufferSize int           `yaml:"send_buffer_size"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
	QueueSize     int    `yaml:"queue_size"`
}

type EnrollmentConfig struct {
	ListenerEnabled bool          `yaml:"listener_enabled"`
	NotifyChannel   string        `yaml:"notify_channel"`
	PingInterval    time.Duration `yaml:"ping_interval"`
}

type CompletionConfig struct {
	Enabled    bool          `yaml:"enabled"`
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Contest: ContestConfig{
			TimeLimitSec: 60,
			TickInterval: time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 1024,
			SendBufferSize: 256,
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			StreamName:    "QUIZ_EVENTS",
			SubjectPrefix: "quiz.events",
			QueueSize:     1024,
		},
		Enrollment: EnrollmentConfig{
			ListenerEnabled: true,
			NotifyChannel:   "quiz_enrollment_events",
			PingInterval:    90 * time.Second,
		},
		Completion: CompletionConfig{
			Enabled:    true,
			QueueSize:  256,
			MaxRetries: 5,
			RetryDelay: 200 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Contest.TimeLimitSec = getEnvAsInt("QUIZ_TIME_LIMIT_SEC", c.Contest.TimeLimitSec)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.Contest.TimeLimitSec <= 0 {
		return fmt.Errorf("contest.time_limit_sec must be positive, got %d", c.Contest.TimeLimitSec)
	}
	if c.Contest.TickInterval <= 0 {
		return fmt.Errorf("contest.tick_interval must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
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
