package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const runColumns = `id, start_url, max_depth, status, started_at, finished_at, pages_fetched, pages_failed, error`

// CreateRun inserts a new crawl run
func (s *Store) CreateRun(ctx context.Context, run CrawlRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, "create run", func() error {
		_, err := s.writer.ExecContext(ctx, `
			INSERT INTO crawl_runs (id, start_url, max_depth, status, started_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, run.StartURL, run.MaxDepth, string(run.Status), run.StartedAt.UnixNano())
		return err
	})
}

// UpdateRun writes the mutable fields of a run: status, counters,
// finished_at and error
func (s *Store) UpdateRun(ctx context.Context, run CrawlRun) error {
	return s.withRetry(ctx, "update run", func() error {
		res, err := s.writer.ExecContext(ctx, `
			UPDATE crawl_runs SET
				status = ?, finished_at = ?, pages_fetched = ?, pages_failed = ?, error = ?
			WHERE id = ?
		`, string(run.Status), toNanos(run.FinishedAt), run.PagesFetched, run.PagesFailed, run.Error, run.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return err
	})
}

// GetRun returns a run by ID, or ErrNotFound
func (s *Store) GetRun(ctx context.Context, id string) (CrawlRun, error) {
	var run CrawlRun
	err := s.withRetry(ctx, "get run", func() error {
		r, err := scanRun(s.reader.QueryRowContext(ctx, "SELECT "+runColumns+" FROM crawl_runs WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		run = r
		return err
	})
	return run, err
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []CrawlRun
	err := s.withRetry(ctx, "list runs", func() error {
		runs = runs[:0]
		rows, err := s.reader.QueryContext(ctx,
			"SELECT "+runColumns+" FROM crawl_runs ORDER BY started_at DESC LIMIT ?", limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return rows.Err()
	})
	return runs, err
}

func scanRun(row rowScanner) (CrawlRun, error) {
	var (
		r          CrawlRun
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.StartURL, &r.MaxDepth, &status, &startedAt, &finishedAt,
		&r.PagesFetched, &r.PagesFailed, &r.Error); err != nil {
		return CrawlRun{}, err
	}
	r.Status = RunStatus(status)
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.FinishedAt = fromNanos(finishedAt)
	return r, nil
}
