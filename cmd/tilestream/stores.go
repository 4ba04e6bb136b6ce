package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/index"
	"github.com/eak1mov/go-tilestream/logger"
	"github.com/eak1mov/go-tilestream/store"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, *zap.Logger, error) {
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.New(files...)
	if err != nil {
		return nil, nil, err
	}
	l, err := logger.New(cfg.Logger.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

// deduceKind picks the store kind from the path when none is given.
func deduceKind(kind, path string) string {
	if kind != "" {
		return kind
	}
	if strings.HasSuffix(path, ".pack") {
		return "pack"
	}
	for _, suffix := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, suffix) {
			return "sqlite"
		}
	}
	return "dir"
}

// openRawStore opens the backend only, without compression or caching.
func openRawStore(ctx context.Context, cfg config.Store, l *zap.Logger) (store.Store, error) {
	opts := []store.Option{store.WithLogger(l)}
	switch deduceKind(cfg.Kind, cfg.Path) {
	case "dir":
		return store.NewDirStore(cfg.Path, opts...)
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.Path, opts...)
	case "pack":
		r, err := index.NewReader(cfg.Path)
		if err != nil {
			return nil, err
		}
		l.Info("pack opened", zap.String("path", cfg.Path), zap.Int("tiles", r.Len()))
		return r, nil
	case "redis":
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, opts...)
	default:
		return nil, fmt.Errorf("invalid store kind: %q", cfg.Kind)
	}
}

// openStore opens the backend wrapped with compression and caching as
// configured.
func openStore(ctx context.Context, cfg config.Store, l *zap.Logger) (store.Store, error) {
	s, err := openRawStore(ctx, cfg, l)
	if err != nil {
		return nil, err
	}
	if cfg.Compress {
		compressed, err := store.NewCompressed(s, zstd.SpeedDefault)
		if err != nil {
			s.Close()
			return nil, err
		}
		s = compressed
	}
	if cfg.CacheMaxCost > 0 {
		cached, err := store.NewCached(s, cfg.CacheMaxCost)
		if err != nil {
			s.Close()
			return nil, err
		}
		s = cached
	}
	return s, nil
}

func closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		log.Println("close store:", err)
	}
}
