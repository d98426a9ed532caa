// Package index maintains a locally replicated copy of room metadata and
// message bodies, fed by the sync loop. The resolver and the quote/search
// commands read from it without any network round trip.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"matrixbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteIndex implements domain.Index on a local SQLite database.
type SQLiteIndex struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteIndex(dbPath string, logger *slog.Logger) (*SQLiteIndex, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &SQLiteIndex{db: db, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index migration failed: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_aliases (
		room_id         TEXT PRIMARY KEY,
		canonical_alias TEXT,
		alt_aliases     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_room_aliases_canonical ON room_aliases(canonical_alias);

	CREATE TABLE IF NOT EXISTS messages (
		event_id  TEXT PRIMARY KEY,
		room_id   TEXT NOT NULL,
		sender    TEXT NOT NULL,
		body      TEXT NOT NULL,
		origin_ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(origin_ts);
	`
	_, err := idx.db.Exec(schema)
	return err
}

// RecordAliases stores the alias state for a room. altAliases are kept as
// a newline-joined list; membership checks match whole entries.
func (idx *SQLiteIndex) RecordAliases(ctx context.Context, roomID, canonicalAlias string, altAliases []string) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO room_aliases (room_id, canonical_alias, alt_aliases)
		 VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET
		   canonical_alias = excluded.canonical_alias,
		   alt_aliases     = excluded.alt_aliases`,
		roomID, canonicalAlias, strings.Join(altAliases, "\n"),
	)
	if err != nil {
		return fmt.Errorf("record aliases: %w", err)
	}
	return nil
}

// RecordMessage stores one text message. Replayed events are ignored.
func (idx *SQLiteIndex) RecordMessage(ctx context.Context, msg domain.IndexedMessage) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (event_id, room_id, sender, body, origin_ts)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.EventID, msg.RoomID, msg.Sender, msg.Body, msg.OriginTS,
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RoomIDForAlias checks the canonical alias first, then the alternative
// alias lists. Returns "" when the alias is unknown locally.
func (idx *SQLiteIndex) RoomIDForAlias(ctx context.Context, alias string) (string, error) {
	var roomID string
	err := idx.db.QueryRowContext(ctx,
		`SELECT room_id FROM room_aliases WHERE canonical_alias = ?`, alias,
	).Scan(&roomID)
	if err == nil {
		return roomID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("canonical alias lookup: %w", err)
	}

	// Alt-alias list membership: entries are newline-separated. instr on
	// the newline-padded list is a byte-exact whole-entry match; LIKE would
	// treat _ and % in the queried alias as wildcards and fold ASCII case.
	err = idx.db.QueryRowContext(ctx,
		`SELECT room_id FROM room_aliases
		 WHERE alt_aliases <> ''
		   AND instr(char(10) || alt_aliases || char(10), char(10) || ? || char(10)) > 0
		 LIMIT 1`,
		alias,
	).Scan(&roomID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("alt alias lookup: %w", err)
	}
	return roomID, nil
}

// SearchMessages returns up to limit messages containing the query,
// newest first.
func (idx *SQLiteIndex) SearchMessages(ctx context.Context, query string, limit int) ([]domain.IndexedMessage, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + query + "%"
	rows, err := idx.db.QueryContext(ctx,
		`SELECT event_id, room_id, sender, body, origin_ts
		 FROM messages WHERE body LIKE ?
		 ORDER BY origin_ts DESC LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("message search: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SampleShouted returns a random sample of messages that contain no
// lowercase ASCII letters. SQLite's UPPER only folds ASCII, so
// body = UPPER(body) is exactly the no-lowercase test we need.
func (idx *SQLiteIndex) SampleShouted(ctx context.Context, senderFilter string, exclude []string, limit int) ([]domain.IndexedMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	sb.WriteString(`SELECT event_id, room_id, sender, body, origin_ts
		 FROM messages WHERE body = UPPER(body)`)
	args := make([]any, 0, len(exclude)+2)

	if len(exclude) > 0 {
		sb.WriteString(` AND sender NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`)
		for _, s := range exclude {
			args = append(args, s)
		}
	}
	if senderFilter != "" {
		sb.WriteString(` AND sender LIKE ?`)
		args = append(args, "%"+senderFilter+"%")
	}
	sb.WriteString(` ORDER BY RANDOM() LIMIT ?`)
	args = append(args, limit)

	rows, err := idx.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("shouted sample: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.IndexedMessage, error) {
	var msgs []domain.IndexedMessage
	for rows.Next() {
		var m domain.IndexedMessage
		if err := rows.Scan(&m.EventID, &m.RoomID, &m.Sender, &m.Body, &m.OriginTS); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}
