// Package history keeps a SQLite record of every executed deletion wave.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raoulx24/rec-pruner/internal/notify"
)

type Store struct {
	db *sql.DB
}

// WaveSummary is one row of the waves table.
type WaveSummary struct {
	ID           string
	ArmedAt      time.Time
	ExecutedAt   time.Time
	RemovedCount int
	RemovedBytes int64
	FailedCount  int
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a completed wave with its per-directory and per-volume outcome.
func (s *Store) Record(ctx context.Context, c notify.Completion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO waves (id, armed_at, executed_at, removed_count, removed_bytes, failed_count) VALUES (?, ?, ?, ?, ?, ?)`,
		c.WaveID, c.ArmedAt.UnixNano(), c.ExecutedAt.UnixNano(), len(c.Removed), c.RemovedBytes(), len(c.Retained),
	); err != nil {
		return fmt.Errorf("inserting wave: %w", err)
	}

	const dirSQL = `INSERT INTO wave_directories (wave_id, path, size, mod_time, removed, reason) VALUES (?, ?, ?, ?, ?, ?)`
	for _, d := range c.Removed {
		if _, err := tx.ExecContext(ctx, dirSQL, c.WaveID, d.Path, d.Size, d.ModTime.UnixNano(), 1, ""); err != nil {
			return fmt.Errorf("inserting removed directory: %w", err)
		}
	}
	for _, r := range c.Retained {
		d := r.Directory
		if _, err := tx.ExecContext(ctx, dirSQL, c.WaveID, d.Path, d.Size, d.ModTime.UnixNano(), 0, r.Reason); err != nil {
			return fmt.Errorf("inserting retained directory: %w", err)
		}
	}

	for _, v := range c.Volumes {
		var after sql.NullInt64
		if v.ProbeErr == "" {
			after = sql.NullInt64{Int64: int64(v.After.Free), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wave_volumes (wave_id, volume, total_bytes, free_before, free_after, probe_error) VALUES (?, ?, ?, ?, ?, ?)`,
			c.WaveID, string(v.Volume), int64(v.Before.Total), int64(v.Before.Free), after, v.ProbeErr,
		); err != nil {
			return fmt.Errorf("inserting volume: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the last n waves, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]WaveSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, armed_at, executed_at, removed_count, removed_bytes, failed_count FROM waves ORDER BY executed_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying waves: %w", err)
	}
	defer rows.Close()

	var out []WaveSummary
	for rows.Next() {
		var (
			w               WaveSummary
			armed, executed int64
		)
		if err := rows.Scan(&w.ID, &armed, &executed, &w.RemovedCount, &w.RemovedBytes, &w.FailedCount); err != nil {
			return nil, fmt.Errorf("scanning wave: %w", err)
		}
		w.ArmedAt = time.Unix(0, armed)
		w.ExecutedAt = time.Unix(0, executed)
		out = append(out, w)
	}
	return out, rows.Err()
}

// Retained lists directories a wave failed to remove.
func (s *Store) Retained(ctx context.Context, waveID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM wave_directories WHERE wave_id = ? AND removed = 0 ORDER BY path`, waveID)
	if err != nil {
		return nil, fmt.Errorf("querying retained directories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Latest returns the most recent wave and the directories it left behind, or
// nil when no wave has run yet.
func (s *Store) Latest(ctx context.Context) (*WaveSummary, []string, error) {
	waves, err := s.Recent(ctx, 1)
	if err != nil || len(waves) == 0 {
		return nil, nil, err
	}
	retained, err := s.Retained(ctx, waves[0].ID)
	if err != nil {
		return nil, nil, err
	}
	return &waves[0], retained, nil
}
