// Package config loads the chat server settings from the environment, with an
// optional .env file layered underneath.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Credential backends.
const (
	CredentialsBuiltin = "builtin"
	CredentialsFile    = "file"
	CredentialsSQLite  = "sqlite"
)

// Credential cache kinds.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var validate = validator.New()

// Config holds every server setting. Field tags name the environment
// variables and their defaults.
type Config struct {
	Host        string `env:"CHAT_HOST"`
	Port        int    `env:"CHAT_PORT,default=5000" validate:"min=1,max=65535"`
	ServiceName string `env:"CHAT_SERVICE_NAME,default=chatserver" validate:"required"`

	LogLevel  string `env:"CHAT_LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"CHAT_LOG_FORMAT,default=console" validate:"oneof=console json"`
	LogDir    string `env:"CHAT_LOG_DIR"`

	Credentials     string `env:"CHAT_CREDENTIALS,default=builtin" validate:"oneof=builtin file sqlite"`
	CredentialsFile string `env:"CHAT_CREDENTIALS_FILE" validate:"required_if=Credentials file"`
	SQLitePath      string `env:"CHAT_SQLITE_PATH" validate:"required_if=Credentials sqlite"`

	Cache         string        `env:"CHAT_CACHE,default=none" validate:"oneof=none memory redis"`
	CacheTTL      time.Duration `env:"CHAT_CACHE_TTL,default=5m" validate:"gt=0"`
	RedisAddr     string        `env:"CHAT_REDIS_ADDR" validate:"required_if=Cache redis"`
	RedisPassword string        `env:"CHAT_REDIS_PASSWORD"`
	RedisDB       int           `env:"CHAT_REDIS_DB,default=0" validate:"min=0"`

	WriteTimeout time.Duration `env:"CHAT_WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	AuthTimeout  time.Duration `env:"CHAT_AUTH_TIMEOUT,default=3s" validate:"gt=0"`
	QueueSize    int           `env:"CHAT_QUEUE_SIZE,default=256" validate:"min=1"`
}

// Load reads envFile (if non-empty) into the process environment without
// overriding variables that are already set, then decodes and validates the
// environment. With an empty envFile a ".env" in the working directory is
// used when present.
//
// Returns:
//   - The validated Config, or an error naming the offending setting
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// Address is the listen address, "host:port".
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
