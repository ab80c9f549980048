package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/bpxfeeder/internal/infra/storage"
	"github.com/vietddude/bpxfeeder/internal/infra/storage/memory"
	"github.com/vietddude/bpxfeeder/internal/infra/storage/postgres"
)

// Storage is the configured relational store.
type Storage struct {
	Open storage.Opener
	db   *postgres.DB
}

// OpenStorage connects to PostgreSQL and applies migrations, or falls back
// to an in-memory store when no URL is configured.
func OpenStorage(ctx context.Context, cfg postgres.Config) (*Storage, error) {
	if cfg.URL == "" {
		slog.Info("Using Memory storage")
		return &Storage{Open: memory.NewMemoryStorage().Opener()}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if cfg.Migrate == nil || *cfg.Migrate {
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	slog.Info("Using PostgreSQL storage", "driver", cfg.Driver)
	return &Storage{Open: db.Opener(), db: db}, nil
}

// DB returns the PostgreSQL pool, nil for the memory store.
func (s *Storage) DB() *postgres.DB {
	return s.db
}

// Close releases the pool.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
