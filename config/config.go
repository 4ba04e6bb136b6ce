// Package config loads the tilestream settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Logger    Logger         `envPrefix:"LOGGER_"`
		Tiling    manager.Config `envPrefix:"TILING_"`
		Store     Store          `envPrefix:"STORE_"`
		MapTiles  MapTiles       `envPrefix:"MAPTILES_"`
		HTTP      HTTP           `envPrefix:"HTTP_"`
		Telemetry Telemetry      `envPrefix:"TELEMETRY_"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	}

	Store struct {
		// Kind selects the payload backend: "dir", "sqlite", "redis" or the
		// read-only "pack" archive written by the export command.
		Kind string `env:"KIND" envDefault:"dir" validate:"oneof=dir sqlite redis pack"`

		// Path is a file pattern with {i} and {j} for "dir" and a database
		// file for "sqlite".
		Path string `env:"PATH" envDefault:"tiles/{i}/{j}.bin"`

		// CacheMaxCost is the byte budget of the in-memory read cache.
		// Zero disables the cache.
		CacheMaxCost int64 `env:"CACHE_MAX_COST" envDefault:"67108864" validate:"gte=0"`

		Compress bool  `env:"COMPRESS" envDefault:"true"`
		Redis    Redis `envPrefix:"REDIS_"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD"`
		DB       int           `env:"DB" envDefault:"0" validate:"gte=0"`
		TTL      time.Duration `env:"TTL" envDefault:"0s"`
	}

	MapTiles struct {
		// Path of an MBTiles file. Empty means payloads come from the store.
		Path string `env:"PATH"`
		Zoom int    `env:"ZOOM" envDefault:"16" validate:"gte=0,lte=24"`
	}

	HTTP struct {
		Addr            string        `env:"ADDR" envDefault:":8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
		// CORSOrigins lists the origins allowed to call the API from a
		// browser, comma separated; "*" allows any.
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tilestream"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}
)

// New loads the given .env files (".env" when none are given), then parses
// the process environment. Missing .env files are not an error.
func New(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse builds a Config from an explicit environment instead of the process one.
func Parse(environ map[string]string) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", manager.ErrInvalidConfig, err)
	}
	return c.Tiling.Validate()
}
