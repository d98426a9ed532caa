package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"matrixbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore holds the dedup ledger and the channel mapping table.
// It implements domain.Ledger and domain.MappingStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS handled_events (
		event_id     TEXT PRIMARY KEY,
		processed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channel_mappings (
		source_room_id TEXT PRIMARY KEY,
		target_room_id TEXT NOT NULL,
		updated_at     DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsHandled reports whether a ledger record exists for the event.
func (s *SQLiteStore) IsHandled(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM handled_events WHERE event_id = ?`, eventID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger query: %w", err)
	}
	return true, nil
}

// MarkHandled records the event identifier. The primary key makes the
// check-and-insert atomic: when two concurrent deliveries race, exactly
// one insert wins and the other observes inserted=false.
func (s *SQLiteStore) MarkHandled(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO handled_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger insert result: %w", err)
	}
	return n > 0, nil
}

// Mapping returns the channel mapping for the source room, nil when absent.
func (s *SQLiteStore) Mapping(ctx context.Context, sourceRoomID string) (*domain.ChannelMapping, error) {
	var m domain.ChannelMapping
	err := s.db.QueryRowContext(ctx,
		`SELECT source_room_id, target_room_id, updated_at
		 FROM channel_mappings WHERE source_room_id = ?`, sourceRoomID,
	).Scan(&m.SourceRoomID, &m.TargetRoomID, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mapping query: %w", err)
	}
	return &m, nil
}

// PutMapping upserts the mapping keyed by the source room.
func (s *SQLiteStore) PutMapping(ctx context.Context, sourceRoomID, targetRoomID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_mappings (source_room_id, target_room_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(source_room_id) DO UPDATE SET
		   target_room_id = excluded.target_room_id,
		   updated_at     = excluded.updated_at`,
		sourceRoomID, targetRoomID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mapping upsert: %w", err)
	}
	return nil
}

// DeleteMapping removes the mapping, reporting whether one existed.
func (s *SQLiteStore) DeleteMapping(ctx context.Context, sourceRoomID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_mappings WHERE source_room_id = ?`, sourceRoomID,
	)
	if err != nil {
		return false, fmt.Errorf("mapping delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mapping delete result: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
