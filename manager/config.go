package manager

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("tilestream: invalid config")

// Config holds the tiling parameters. Field tags allow loading it from the
// environment with github.com/caarlos0/env.
type Config struct {
	// TileSize is the side length of a tile in planar units.
	TileSize float64 `env:"SIZE" envDefault:"500"`

	// Margin is the distance from a tile edge at which the neighbor in the
	// direction of travel is preloaded.
	Margin float64 `env:"OFFSET" envDefault:"50"`

	// Sensitivity is the displacement, on either axis, required before a
	// position update is evaluated.
	Sensitivity float64 `env:"SENSITIVITY" envDefault:"10"`

	HeightMapResolution int `env:"HEIGHTMAP" envDefault:"129"`

	// AutoEvict enables destroying far tiles once CacheSize is exceeded.
	AutoEvict bool `env:"AUTOCLEAN" envDefault:"true"`

	// CacheSize is the number of loaded tiles, active or not, kept before
	// eviction starts.
	CacheSize int `env:"CACHE_SIZE" envDefault:"4"`

	// EvictionThreshold is the Manhattan distance in index space beyond which
	// tiles are evicted. It is at least 1 so the preloaded neighbor survives.
	EvictionThreshold int `env:"THRESHOLD" envDefault:"4"`
}

func DefaultConfig() Config {
	return Config{
		TileSize:            500,
		Margin:              50,
		Sensitivity:         10,
		HeightMapResolution: 129,
		AutoEvict:           true,
		CacheSize:           4,
		EvictionThreshold:   4,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TileSize <= 0:
		return fmt.Errorf("%w: tile size must be positive, got %v", ErrInvalidConfig, c.TileSize)
	case c.Margin < 0:
		return fmt.Errorf("%w: margin must not be negative, got %v", ErrInvalidConfig, c.Margin)
	case c.Margin >= c.TileSize/2:
		return fmt.Errorf("%w: margin %v must be less than half the tile size %v", ErrInvalidConfig, c.Margin, c.TileSize)
	case c.Sensitivity < 0:
		return fmt.Errorf("%w: sensitivity must not be negative, got %v", ErrInvalidConfig, c.Sensitivity)
	case c.HeightMapResolution < 0:
		return fmt.Errorf("%w: height map resolution must not be negative, got %v", ErrInvalidConfig, c.HeightMapResolution)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache size must not be negative, got %v", ErrInvalidConfig, c.CacheSize)
	case c.EvictionThreshold < 1:
		return fmt.Errorf("%w: eviction threshold must be at least 1, got %v", ErrInvalidConfig, c.EvictionThreshold)
	}
	return nil
}
