package storage

const schema = `
PRAGMA foreign_keys = ON;

-- The 'sources' table tracks where items come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL DEFAULT 'local', -- local | git
    path TEXT NOT NULL UNIQUE,
    last_scanned DATETIME
);

-- The 'items' table stores every parsed item, keyed by its content id.
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]', -- JSON array of normalized tags
    source_id INTEGER NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_id);

-- Progress records are stored whole as JSON and replaced on every save.
CREATE TABLE IF NOT EXISTS confidence_progress (
    id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mastery_progress (
    id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

-- One review-due card per item.
CREATE TABLE IF NOT EXISTS review_cards (
    item_id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS review_configs (
    id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS session_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    correct INTEGER NOT NULL,
    rating TEXT NOT NULL,
    answered_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_results_session ON session_results(session_id);
`
