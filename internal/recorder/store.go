// Package recorder persists observed signals to a local SQLite database so
// watch sessions can be inspected after the fact.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"buswatch/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed signal log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at dbPath and runs migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		member      TEXT NOT NULL,
		interface   TEXT,
		sender      TEXT,
		path        TEXT,
		body        TEXT,
		received_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_signals_member ON signals(member);
	CREATE INDEX IF NOT EXISTS idx_signals_received ON signals(received_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Entry is one recorded signal.
type Entry struct {
	ID         int64
	Member     string
	Interface  string
	Sender     string
	Path       string
	Body       string // JSON array of the positional arguments
	ReceivedAt time.Time
}

// Record appends one signal. A body that cannot be marshalled is stored as
// its string rendering rather than dropped.
func (s *Store) Record(ctx context.Context, sig domain.Signal) error {
	body, err := json.Marshal(sig.Body)
	if err != nil {
		body, _ = json.Marshal(fmt.Sprint(sig.Body))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signals (member, interface, sender, path, body) VALUES (?, ?, ?, ?, ?)`,
		sig.Member, sig.Interface, sig.Sender, sig.Path, string(body))
	if err != nil {
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

// Recent returns the most recently received entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member, COALESCE(interface,''), COALESCE(sender,''), COALESCE(path,''), COALESCE(body,''), received_at
		 FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.Member, &e.Interface, &e.Sender, &e.Path, &e.Body, &ts); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
			e.ReceivedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signals WHERE received_at < datetime('now', ?)`,
		fmt.Sprintf("%d seconds", -int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("prune signals: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 && s.logger != nil {
		s.logger.Debug("pruned recorded signals", "count", n)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
