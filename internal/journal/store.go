// Package journal persists per-turn diagnostics in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"replybot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.TurnJournal using SQLite.
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

	// Single connection for SQLite; concurrent turns serialize here.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	return RunMigrations(s.db, s.logger)
}

func (s *SQLiteStore) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO turns
		 (id, channel, chat_id, prompt_chars, wants_image, wants_web_search, completion, image, speech, actions, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Channel, rec.ChatID, rec.PromptChars, rec.WantsImage, rec.WantsWebSearch,
		rec.Completion, rec.Image, rec.Speech, rec.Actions, rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

// RecentTurns returns up to limit turns, newest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, chat_id, prompt_chars, wants_image, wants_web_search,
		        completion, image, speech, actions, latency_ms, created_at
		 FROM turns ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.TurnRecord
	for rows.Next() {
		var r domain.TurnRecord
		var completion, image, speech, actions sql.NullString
		if err := rows.Scan(&r.ID, &r.Channel, &r.ChatID, &r.PromptChars, &r.WantsImage, &r.WantsWebSearch,
			&completion, &image, &speech, &actions, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Completion = completion.String
		r.Image = image.String
		r.Speech = speech.String
		r.Actions = actions.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// PruneBefore deletes turns older than cutoff and returns how many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned turn journal", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}

// OutcomeCounts tallies completion outcomes for turns created at or after since.
func (s *SQLiteStore) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(completion, ''), COUNT(*) FROM turns WHERE created_at >= ? GROUP BY completion`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
