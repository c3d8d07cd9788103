package store

const schemaVersion = "2"

const schemaSQL = `
-- Pages hold one row per normalized URL. status moves pending -> fetched|failed
-- and back to pending only when the URL is crawled again.
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    host TEXT NOT NULL DEFAULT '',
    depth INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'fetched', 'failed')),
    run_id TEXT NOT NULL DEFAULT '',
    discovered_from TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    added_at INTEGER NOT NULL,

    -- Fetch result fields (empty until fetched)
    status_code INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '',
    raw_text TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    fetched_at INTEGER,

    -- Failure details
    error_kind TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status);
CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id, status);
CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at) WHERE fetched_at IS NOT NULL;

-- Outbound edge set of each fetched page
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_url TEXT NOT NULL,
    target_url TEXT NOT NULL,
    UNIQUE(source_url, target_url)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_url);

CREATE TABLE IF NOT EXISTS crawl_runs (
    id TEXT PRIMARY KEY NOT NULL,
    start_url TEXT NOT NULL,
    max_depth INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'cancelled', 'failed')),
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    pages_fetched INTEGER NOT NULL DEFAULT 0,
    pages_failed INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

-- Indexed documents. A document is visible to queries only while its
-- content_hash matches the page it was built from.
CREATE TABLE IF NOT EXISTS documents (
    url TEXT PRIMARY KEY NOT NULL,
    content_hash TEXT NOT NULL,
    doc_length INTEGER NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
    term TEXT NOT NULL,
    url TEXT NOT NULL REFERENCES documents(url) ON DELETE CASCADE,
    tf INTEGER NOT NULL,
    positions TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (term, url)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_postings_url ON postings(url);

-- Key/value metadata
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`

// migrations upgrade a database from the keyed version to the next one
var migrations = map[string]struct {
	next string
	sql  string
}{
	"1": {
		next: "2",
		sql: `
ALTER TABLE pages ADD COLUMN description TEXT NOT NULL DEFAULT '';
ALTER TABLE pages ADD COLUMN keywords TEXT NOT NULL DEFAULT '';
`,
	},
}
