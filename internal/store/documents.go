package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReplaceDocument atomically replaces the index entry and every posting of
// doc.URL. Indexing the same content twice leaves identical rows.
func (s *Store) ReplaceDocument(ctx context.Context, doc Document, postings []Posting) error {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, "replace document", func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := deleteDocument(ctx, tx, doc.URL); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (url, content_hash, doc_length, run_id, indexed_at)
			VALUES (?, ?, ?, ?, ?)
		`, doc.URL, doc.ContentHash, doc.Length, doc.RunID, doc.IndexedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.URL, err)
		}

		if len(postings) > 0 {
			stmt, err := tx.PrepareContext(ctx,
				"INSERT INTO postings (term, url, tf, positions) VALUES (?, ?, ?, ?)")
			if err != nil {
				return fmt.Errorf("failed to prepare statement: %w", err)
			}
			defer stmt.Close()

			for _, p := range postings {
				if _, err := stmt.ExecContext(ctx, p.Term, doc.URL, p.TF, encodePositions(p.Positions)); err != nil {
					return fmt.Errorf("failed to insert posting %q for %s: %w", p.Term, doc.URL, err)
				}
			}
		}
		return tx.Commit()
	})
}

// DeleteDocument removes a document and its postings. Missing documents are
// not an error.
func (s *Store) DeleteDocument(ctx context.Context, url string) error {
	return s.withRetry(ctx, "delete document", func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := deleteDocument(ctx, tx, url); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func deleteDocument(ctx context.Context, tx *sql.Tx, url string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM postings WHERE url = ?", url); err != nil {
		return fmt.Errorf("failed to delete postings of %s: %w", url, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE url = ?", url); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", url, err)
	}
	return nil
}

// GetDocument returns the index entry for url, or ErrNotFound
func (s *Store) GetDocument(ctx context.Context, url string) (Document, error) {
	var doc Document
	err := s.withRetry(ctx, "get document", func() error {
		var indexedAt int64
		err := s.reader.QueryRowContext(ctx, `
			SELECT url, content_hash, doc_length, run_id, indexed_at FROM documents WHERE url = ?
		`, url).Scan(&doc.URL, &doc.ContentHash, &doc.Length, &doc.RunID, &indexedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		doc.IndexedAt = time.Unix(0, indexedAt).UTC()
		return err
	})
	return doc, err
}

// CountPostings returns how many postings rows exist for url
func (s *Store) CountPostings(ctx context.Context, url string) (int, error) {
	var n int
	err := s.withRetry(ctx, "count postings", func() error {
		return s.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings WHERE url = ?", url).Scan(&n)
	})
	return n, err
}

// StaleDocuments lists URLs whose index entry disagrees with the page:
// fetched pages never indexed or indexed from different content, and
// failed pages that still have a document.
func (s *Store) StaleDocuments(ctx context.Context) ([]string, error) {
	var urls []string
	err := s.withRetry(ctx, "stale documents", func() error {
		urls = urls[:0]
		rows, err := s.reader.QueryContext(ctx, `
			SELECT p.url FROM pages p LEFT JOIN documents d ON d.url = p.url
			WHERE p.status = 'fetched' AND (d.url IS NULL OR d.content_hash != p.content_hash)
			UNION
			SELECT d.url FROM documents d LEFT JOIN pages p ON p.url = d.url
			WHERE p.url IS NULL OR p.status = 'failed'
			ORDER BY 1
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return err
			}
			urls = append(urls, u)
		}
		return rows.Err()
	})
	return urls, err
}

func encodePositions(positions []int) string {
	var sb strings.Builder
	for i, p := range positions {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return sb.String()
}

func decodePositions(s string) []int {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	positions := make([]int, 0, len(fields))
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			positions = append(positions, n)
		}
	}
	return positions
}
