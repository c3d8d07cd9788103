package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// visibleDocuments joins documents to the page they were built from. Only
// documents indexed from the page's current content are visible.
const visibleDocuments = `documents d JOIN pages p ON p.url = d.url AND p.content_hash = d.content_hash`

// Snapshot is a read-only transaction. Every read through it sees the same
// committed state regardless of concurrent writers.
type Snapshot struct {
	store *Store
	tx    *sql.Tx
}

// Snapshot begins a read-only transaction. Callers must Close it.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	var tx *sql.Tx
	err := s.withRetry(ctx, "snapshot", func() error {
		var err error
		tx, err = s.reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Snapshot{store: s, tx: tx}, nil
}

// Close ends the snapshot
func (sn *Snapshot) Close() error {
	return sn.tx.Rollback()
}

// DocumentCount returns the number of visible documents
func (sn *Snapshot) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := sn.store.withRetry(ctx, "document count", func() error {
		return sn.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+visibleDocuments).Scan(&n)
	})
	return n, err
}

// Postings returns the posting list of term restricted to visible documents
func (sn *Snapshot) Postings(ctx context.Context, term string) ([]Posting, error) {
	var postings []Posting
	err := sn.store.withRetry(ctx, "postings", func() error {
		postings = postings[:0]
		rows, err := sn.tx.QueryContext(ctx, `
			SELECT po.url, po.tf, po.positions
			FROM postings po
			JOIN documents d ON d.url = po.url
			JOIN pages p ON p.url = d.url AND p.content_hash = d.content_hash
			WHERE po.term = ?
			ORDER BY po.url
		`, term)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p         = Posting{Term: term}
				positions string
			)
			if err := rows.Scan(&p.URL, &p.TF, &positions); err != nil {
				return err
			}
			p.Positions = decodePositions(positions)
			postings = append(postings, p)
		}
		return rows.Err()
	})
	return postings, err
}

// Pages loads the given URLs. Missing URLs are absent from the map.
func (sn *Snapshot) Pages(ctx context.Context, urls []string) (map[string]Page, error) {
	const chunk = 500
	pages := make(map[string]Page, len(urls))

	for start := 0; start < len(urls); start += chunk {
		end := min(start+chunk, len(urls))
		batch := urls[start:end]

		args := make([]any, len(batch))
		for i, u := range batch {
			args[i] = u
		}
		query := fmt.Sprintf("SELECT %s FROM pages WHERE url IN (?%s)",
			pageColumns, strings.Repeat(", ?", len(batch)-1))

		err := sn.store.withRetry(ctx, "load pages", func() error {
			rows, err := sn.tx.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				p, err := scanPage(rows)
				if err != nil {
					return err
				}
				pages[p.URL] = p
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
	}
	return pages, nil
}
