package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	message_id TEXT PRIMARY KEY,
	headers    TEXT NOT NULL, -- rendered header block, CRLF folded
	body       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	inserted_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	name       TEXT PRIMARY KEY,
	moderated  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_articles (
	group_name  TEXT NOT NULL,
	number      INTEGER NOT NULL,
	message_id  TEXT NOT NULL,
	inserted_at INTEGER NOT NULL,
	PRIMARY KEY (group_name, number)
);

CREATE INDEX IF NOT EXISTS idx_group_articles_msgid ON group_articles(message_id);
CREATE INDEX IF NOT EXISTS idx_group_articles_inserted ON group_articles(group_name, inserted_at);
`

const currentSchemaVersion = 1
