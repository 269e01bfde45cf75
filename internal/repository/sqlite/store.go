// Package sqlite persists the in-memory sale store to a single SQLite file. The whole
// state is written as JSON buckets inside the commit of every transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/mamadbah2/shellsale/internal/repository"
	"github.com/mamadbah2/shellsale/internal/repository/memory"
)

var _ repository.Store = (*Store)(nil)

const defaultPath = "shellsale.db"

var buckets = []string{"sales", "claims", "bags", "operations", "baskets", "sizes", "counters"}

// Store is a memory.Store whose commits are written through to SQLite.
type Store struct {
	*memory.Store
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewStore opens (or creates) the database at path and loads the last committed state.
func NewStore(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer keeps the file consistent with the in-memory lock
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger.Named("sqlite")}
	s.Store = memory.NewStore(memory.WithCommitHook(s.persist))

	snapshot, found, err := s.load(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if found {
		s.ImportState(snapshot)
		s.logger.Info("state loaded",
			zap.String("path", path),
			zap.Int("sales", len(snapshot.Sales)),
			zap.Int64("last_sale_number", snapshot.Counters.SaleNumber))
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) (memory.Snapshot, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		"sales":      &snapshot.Sales,
		"claims":     &snapshot.Claims,
		"bags":       &snapshot.Bags,
		"operations": &snapshot.Operations,
		"baskets":    &snapshot.Baskets,
		"sizes":      &snapshot.Sizes,
		"counters":   &snapshot.Counters,
	}

	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("scan state: %w", err)
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("decode %s: %w", bucket, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, found, nil
}

// persist runs as the commit hook; a failure keeps the previous in-memory state.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case "sales":
			data, err = json.Marshal(snapshot.Sales)
		case "claims":
			data, err = json.Marshal(snapshot.Claims)
		case "bags":
			data, err = json.Marshal(snapshot.Bags)
		case "operations":
			data, err = json.Marshal(snapshot.Operations)
		case "baskets":
			data, err = json.Marshal(snapshot.Baskets)
		case "sizes":
			data, err = json.Marshal(snapshot.Sizes)
		case "counters":
			data, err = json.Marshal(snapshot.Counters)
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket, payload) VALUES(?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
