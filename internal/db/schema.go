package db

// Schema for the extraction index. One row per extracted message keyed by
// its source file name, attachment payloads stored alongside so the index
// stays usable after sources are deleted.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT UNIQUE NOT NULL,
    subject TEXT,
    sender TEXT,
    to_addrs TEXT,
    cc TEXT,
    bcc TEXT,
    date TEXT,             -- As given by the source, not normalized
    body TEXT,
    attachment_count INTEGER DEFAULT 0,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search virtual table
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender,
    to_addrs,
    body,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender, to_addrs, body)
    VALUES (new.id, new.subject, new.sender, new.to_addrs, new.body);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, to_addrs, body)
    VALUES ('delete', old.id, old.subject, old.sender, old.to_addrs, old.body);
END;

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    filename TEXT NOT NULL,
    path TEXT NOT NULL,     -- Where the attachment writer put it
    content_type TEXT,      -- Detected from the payload
    size INTEGER,
    data BLOB,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
);

-- Settings table (last run details)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_source ON messages(source);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id, position);
`
