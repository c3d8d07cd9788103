package store

import (
	"context"
	"database/sql"
	"time"
)

const topDomainLimit = 10

// Stats summarizes pages, links and the index
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	dayAgo := time.Now().Add(-24 * time.Hour).UnixNano()

	err := s.withRetry(ctx, "stats", func() error {
		var oldest sql.NullInt64
		err := s.reader.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN status = 'fetched' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN fetched_at >= ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN fetched_at IS NULL THEN 1 ELSE 0 END), 0),
				MIN(fetched_at)
			FROM pages
		`, dayAgo).Scan(&st.TotalPages, &st.FetchedPages, &st.FailedPages, &st.PendingPages,
			&st.FetchedLast24h, &st.NeverFetched, &oldest)
		if err != nil {
			return err
		}
		st.OldestFetch = fromNanos(oldest)

		if err := s.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM links").Scan(&st.Links); err != nil {
			return err
		}
		if err := s.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&st.Documents); err != nil {
			return err
		}
		if err := s.reader.QueryRowContext(ctx, "SELECT COUNT(DISTINCT term) FROM postings").Scan(&st.Terms); err != nil {
			return err
		}

		rows, err := s.reader.QueryContext(ctx, `
			SELECT host, COUNT(*) AS n FROM pages
			WHERE host != ''
			GROUP BY host ORDER BY n DESC, host ASC LIMIT ?
		`, topDomainLimit)
		if err != nil {
			return err
		}
		defer rows.Close()

		st.TopDomains = st.TopDomains[:0]
		for rows.Next() {
			var dc DomainCount
			if err := rows.Scan(&dc.Host, &dc.Pages); err != nil {
				return err
			}
			st.TopDomains = append(st.TopDomains, dc)
		}
		return rows.Err()
	})
	return st, err
}
