package storage

const schemaSQL = `
-- One row per invocation of the pipeline
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY NOT NULL,
    seed_url TEXT NOT NULL,
    destination TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'interrupted', 'failed')),
    started_at DATETIME NOT NULL,
    finished_at DATETIME,

    -- Summary counts (NULL until finished)
    pages INTEGER,
    page_errors INTEGER,
    discovered INTEGER,
    skipped INTEGER,
    succeeded INTEGER,
    failed INTEGER,
    bytes_written INTEGER,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Items seen by a run and what happened to them
CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    file_name TEXT NOT NULL,
    title TEXT,
    declared_size TEXT,
    source_page TEXT,
    status TEXT NOT NULL CHECK (status IN ('skipped', 'downloaded', 'failed')),

    -- Transfer fields (NULL unless downloaded)
    saved_path TEXT,
    bytes_written INTEGER,
    content_length INTEGER,
    duration_ms INTEGER,
    completed_at DATETIME,

    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_items_run ON items(run_id);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(run_id, status);

-- Secondary pages that could not be crawled
CREATE TABLE IF NOT EXISTS page_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_page_errors_run ON page_errors(run_id);
`
