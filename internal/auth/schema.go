package auth

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	username    TEXT PRIMARY KEY,
	password    TEXT NOT NULL, -- argon2id verifier string
	pgp_key     TEXT,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS admins (
	username TEXT PRIMARY KEY REFERENCES users(username) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS moderators (
	username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	pattern  TEXT NOT NULL,
	PRIMARY KEY (username, pattern)
);

CREATE TABLE IF NOT EXISTS user_limits (
	username              TEXT PRIMARY KEY REFERENCES users(username) ON DELETE CASCADE,
	posting_allowed       INTEGER,          -- NULL means "use default"
	max_connections       INTEGER,          -- NULL means infinite; 0 is invalid
	bandwidth_cap_bytes   INTEGER,          -- NULL means infinite
	bandwidth_window_secs INTEGER           -- NULL means lifetime/absolute
);

CREATE TABLE IF NOT EXISTS user_usage (
	username         TEXT PRIMARY KEY REFERENCES users(username) ON DELETE CASCADE,
	bytes_uploaded   INTEGER NOT NULL DEFAULT 0,
	bytes_downloaded INTEGER NOT NULL DEFAULT 0,
	window_start     INTEGER NOT NULL DEFAULT 0
);
`
