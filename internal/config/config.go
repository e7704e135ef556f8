// Package config loads the notification server configuration from the
// environment, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ajsutton/disruptedLongPoll/internal/server"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpollhttp"
)

// Config is the complete server configuration.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Service  string `env:"APP_NAME" envDefault:"longpoll-server"`
	LogLevel string `env:"LOG_LEVEL"`

	// PublishRoute enables the POST endpoint that publishes request bodies.
	PublishRoute bool `env:"LONGPOLL_PUBLISH_ROUTE" envDefault:"true"`

	Server   server.Config
	LongPoll longpoll.Config
	HTTP     longpollhttp.Config
}

// LoadEnv loads the given .env files into the process environment. Variables
// that are already set win. Without arguments it loads ./.env if it exists.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrLoadingEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Parse fills v from the environment based on its env tags.
func Parse[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// Load reads the .env files (./.env by default) and parses Config.
func Load(paths ...string) (Config, error) {
	var cfg Config
	if err := LoadEnv(paths...); err != nil {
		return cfg, err
	}
	if err := Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure.
func MustLoad(paths ...string) Config {
	cfg, err := Load(paths...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
