package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"
)

const defaultBatchSize = 200

const pageColumns = `id, url, host, depth, status, run_id, discovered_from, priority, added_at,
	status_code, title, description, keywords, raw_text, content_hash, fetched_at, error_kind, error_message`

// RecordPending creates the page row for a URL about to be fetched, or
// moves an existing row back to pending for a new run. Fetched text and hash
// are left untouched so the page stays searchable while it is re-crawled.
func (s *Store) RecordPending(ctx context.Context, page Page) error {
	if page.AddedAt.IsZero() {
		page.AddedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, "record pending", func() error {
		_, err := s.writer.ExecContext(ctx, `
			INSERT INTO pages (url, host, depth, status, run_id, discovered_from, added_at)
			VALUES (?, ?, ?, 'pending', ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				status = 'pending',
				depth = excluded.depth,
				run_id = excluded.run_id,
				discovered_from = excluded.discovered_from
		`, page.URL, page.Host, page.Depth, page.RunID, page.DiscoveredFrom, page.AddedAt.UnixNano())
		return err
	})
}

// RecordPage stores the fetch result of a page together with its outbound
// edge set in one transaction. A failed page has its text and hash cleared.
// Readers never see a fetched page without its text or edges.
func (s *Store) RecordPage(ctx context.Context, page Page, targets []string) error {
	if page.Status != StatusFetched && page.Status != StatusFailed {
		return fmt.Errorf("record page %s: invalid status %q", page.URL, page.Status)
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now().UTC()
	}
	if page.AddedAt.IsZero() {
		page.AddedAt = page.FetchedAt
	}
	if page.Status == StatusFailed {
		page.Title, page.Description, page.Keywords = "", "", ""
		page.RawText, page.ContentHash = "", ""
		targets = nil
	}

	return s.withRetry(ctx, "record page", func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages (url, host, depth, status, run_id, discovered_from, added_at,
				status_code, title, description, keywords, raw_text, content_hash, fetched_at,
				error_kind, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				depth = excluded.depth,
				status = excluded.status,
				run_id = excluded.run_id,
				status_code = excluded.status_code,
				title = excluded.title,
				description = excluded.description,
				keywords = excluded.keywords,
				raw_text = excluded.raw_text,
				content_hash = excluded.content_hash,
				fetched_at = excluded.fetched_at,
				error_kind = excluded.error_kind,
				error_message = excluded.error_message
		`,
			page.URL, page.Host, page.Depth, string(page.Status), page.RunID, page.DiscoveredFrom,
			page.AddedAt.UnixNano(),
			page.StatusCode, page.Title, page.Description, page.Keywords, page.RawText, page.ContentHash,
			toNanos(page.FetchedAt),
			page.ErrorKind, page.ErrorMessage,
		); err != nil {
			return fmt.Errorf("failed to save page %s: %w", page.URL, err)
		}

		if s.afterPageWrite != nil {
			if err := s.afterPageWrite(); err != nil {
				return err
			}
		}

		if err := replaceEdges(ctx, tx, page.URL, targets); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RecordEdges replaces the outbound edge set of source
func (s *Store) RecordEdges(ctx context.Context, source string, targets []string) error {
	return s.withRetry(ctx, "record edges", func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := replaceEdges(ctx, tx, source, targets); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func replaceEdges(ctx context.Context, tx *sql.Tx, source string, targets []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM links WHERE source_url = ?", source); err != nil {
		return fmt.Errorf("failed to clear links of %s: %w", source, err)
	}
	if len(targets) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO links (source_url, target_url) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, target := range targets {
		if _, err := stmt.ExecContext(ctx, source, target); err != nil {
			return fmt.Errorf("failed to insert link %s -> %s: %w", source, target, err)
		}
	}
	return nil
}

// GetPage returns the page stored for url, or ErrNotFound
func (s *Store) GetPage(ctx context.Context, url string) (Page, error) {
	var page Page
	err := s.withRetry(ctx, "get page", func() error {
		row := s.reader.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE url = ?", url)
		p, err := scanPage(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		page = p
		return err
	})
	return page, err
}

// OutLinks returns the stored outbound edges of source in insertion order
func (s *Store) OutLinks(ctx context.Context, source string) ([]string, error) {
	var targets []string
	err := s.withRetry(ctx, "out links", func() error {
		targets = targets[:0]
		rows, err := s.reader.QueryContext(ctx,
			"SELECT target_url FROM links WHERE source_url = ? ORDER BY id", source)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var target string
			if err := rows.Scan(&target); err != nil {
				return err
			}
			targets = append(targets, target)
		}
		return rows.Err()
	})
	return targets, err
}

// IteratePages lazily yields pages matching filter in insertion order. Pages
// are read in keyset-paginated batches, so the sequence can be consumed while
// the store is being written and can be restarted by ranging again.
func (s *Store) IteratePages(ctx context.Context, filter PageFilter) iter.Seq2[Page, error] {
	batchSize := filter.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	query := "SELECT " + pageColumns + " FROM pages WHERE id > ?"
	for _, w := range where {
		query += " AND " + w
	}
	query += " ORDER BY id LIMIT ?"

	return func(yield func(Page, error) bool) {
		var lastID int64
		for {
			var batch []Page
			err := s.withRetry(ctx, "iterate pages", func() error {
				batch = batch[:0]
				queryArgs := append([]any{lastID}, args...)
				queryArgs = append(queryArgs, batchSize)
				rows, err := s.reader.QueryContext(ctx, query, queryArgs...)
				if err != nil {
					return err
				}
				defer rows.Close()

				for rows.Next() {
					p, err := scanPage(rows)
					if err != nil {
						return err
					}
					batch = append(batch, p)
				}
				return rows.Err()
			})
			if err != nil {
				yield(Page{}, err)
				return
			}

			for _, p := range batch {
				if !yield(p, nil) {
					return
				}
			}
			if len(batch) < batchSize {
				return
			}
			lastID = batch[len(batch)-1].ID
		}
	}
}

// AdjustPriority adds delta to a page's priority
func (s *Store) AdjustPriority(ctx context.Context, url string, delta int) error {
	return s.withRetry(ctx, "adjust priority", func() error {
		res, err := s.writer.ExecContext(ctx,
			"UPDATE pages SET priority = priority + ? WHERE url = ?", delta, url)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (Page, error) {
	var (
		p         Page
		status    string
		addedAt   int64
		fetchedAt sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.URL, &p.Host, &p.Depth, &status, &p.RunID, &p.DiscoveredFrom, &p.Priority, &addedAt,
		&p.StatusCode, &p.Title, &p.Description, &p.Keywords, &p.RawText, &p.ContentHash, &fetchedAt,
		&p.ErrorKind, &p.ErrorMessage,
	)
	if err != nil {
		return Page{}, err
	}
	p.Status = PageStatus(status)
	p.AddedAt = time.Unix(0, addedAt).UTC()
	p.FetchedAt = fromNanos(fetchedAt)
	return p, nil
}
