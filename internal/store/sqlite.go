package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"scqueue/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS deck_state (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	payload  TEXT    NOT NULL,
	saved_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT    PRIMARY KEY,
	payload    TEXT    NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// SQLiteStore implements core.StateStore on a single sqlite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	logger.Debug("Opened state store", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveState replaces the persisted deck state.
func (s *SQLiteStore) SaveState(ctx context.Context, state *core.State) error {
	saved := *state
	saved.SavedAt = s.now().UTC()

	payload, err := json.Marshal(&saved)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deck_state (id, payload, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload), saved.SavedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState returns the persisted deck state, or nil when nothing was saved.
// States that fail validation are reported as core.ErrIncompatibleState.
func (s *SQLiteStore) LoadState(ctx context.Context) (*core.State, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM deck_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state core.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIncompatibleState, err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveCollection caches a fetched collection under name.
func (s *SQLiteStore) SaveCollection(ctx context.Context, name core.Collection, tracks []core.Track) error {
	if tracks == nil {
		tracks = []core.Track{}
	}
	payload, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to encode %s collection: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (name, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		string(name), string(payload), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save %s collection: %w", name, err)
	}
	return nil
}

// LoadCollection returns a cached collection and whether it was present.
func (s *SQLiteStore) LoadCollection(ctx context.Context, name core.Collection) ([]core.Track, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, string(name)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s collection: %w", name, err)
	}

	var tracks []core.Track
	if err := json.Unmarshal([]byte(payload), &tracks); err != nil {
		s.logger.Warn("Discarding unreadable collection cache", zap.String("collection", string(name)), zap.Error(err))
		return nil, false, nil
	}
	return tracks, true, nil
}

// ClearCollections drops every cached collection.
func (s *SQLiteStore) ClearCollections(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections`); err != nil {
		return fmt.Errorf("failed to clear collections: %w", err)
	}
	return nil
}
