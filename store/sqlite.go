package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/hilbert"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	hilbertBits   = 16
	hilbertSide   = 1 << hilbertBits
	hilbertOffset = hilbertSide / 2
)

var curve, _ = hilbert.NewHilbert(hilbertSide)

// HilbertCode maps idx onto a Hilbert curve over the 2^16 x 2^16 window
// centred on (0,0), so that tiles close on the plane are stored close on
// disk. Indices outside the window get -1.
func HilbertCode(idx tile.Index) int64 {
	x, y := int(idx.I)+hilbertOffset, int(idx.J)+hilbertOffset
	if x < 0 || x >= hilbertSide || y < 0 || y >= hilbertSide {
		return -1
	}
	code, err := curve.MapInverse(x, y)
	if err != nil {
		return -1
	}
	return int64(code)
}

// SQLiteStore keeps payloads in a single SQLite database, ordered by the
// Hilbert code of their index.
type SQLiteStore struct {
	db     *sql.DB
	get    *sql.Stmt
	put    *sql.Stmt
	logger *zap.Logger
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ tile.Visitor = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates the database at path and applies pending
// schema migrations.
//
// The returned store must be closed after use to release database resources.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	c := newConfig(opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	s, err := newSQLiteStore(ctx, db, c.logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.logger.Info("sqlite store opened", zap.String("path", path))
	return s, nil
}

func newSQLiteStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := migrate(ctx, db, logger); err != nil {
		return nil, err
	}

	get, err := db.PrepareContext(ctx, "SELECT data FROM tiles WHERE i = ? AND j = ?")
	if err != nil {
		return nil, err
	}
	put, err := db.PrepareContext(ctx, `INSERT INTO tiles (i, j, code, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(i, j) DO UPDATE SET data = excluded.data`)
	if err != nil {
		get.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, get: get, put: put, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		logger.Debug("migration applied", zap.String("source", r.Source.Path), zap.Duration("duration", r.Duration))
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return errors.Join(s.get.Close(), s.put.Close(), s.db.Close())
}

func (s *SQLiteStore) Get(ctx context.Context, idx tile.Index) ([]byte, error) {
	var data []byte
	if err := s.get.QueryRowContext(ctx, idx.I, idx.J).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, idx)
		}
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, idx tile.Index, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	if _, err := s.put.ExecContext(ctx, idx.I, idx.J, HilbertCode(idx), data); err != nil {
		s.logger.Error("sqlite put failed", zap.Stringer("index", idx), zap.Error(err))
		return err
	}
	return nil
}

// VisitPayloads calls visitor for every stored tile in Hilbert order.
func (s *SQLiteStore) VisitPayloads(visitor func(tile.Index, []byte) error) error {
	rows, err := s.db.Query("SELECT i, j, data FROM tiles ORDER BY code, i, j")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var idx tile.Index
		var data []byte
		if err := rows.Scan(&idx.I, &idx.J, &data); err != nil {
			return err
		}
		if err := visitor(idx, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
