package auth

import "database/sql"

// Limits mirrors spec.md §3 UserLimits. A nil pointer field means
// "no override, use configuration default"; MaxConnections == nil means
// infinite, same for BandwidthCapBytes; BandwidthWindowSeconds == nil
// means the cap is lifetime/absolute.
type Limits struct {
	PostingAllowed         *bool
	MaxConnections         *int64
	BandwidthCapBytes      *int64
	BandwidthWindowSeconds *int64
}

// GetLimits returns the stored per-user overrides for username, or a
// zero-value Limits (all nil) if none are set.
func (s *Store) GetLimits(username string) (Limits, error) {
	var l Limits
	var posting sql.NullBool
	var maxConn, cap_, window sql.NullInt64
	err := s.db.QueryRow(`SELECT posting_allowed, max_connections, bandwidth_cap_bytes, bandwidth_window_secs
		FROM user_limits WHERE username = ?`, username).Scan(&posting, &maxConn, &cap_, &window)
	if err == sql.ErrNoRows {
		return l, nil
	}
	if err != nil {
		return l, err
	}
	if posting.Valid {
		v := posting.Bool
		l.PostingAllowed = &v
	}
	if maxConn.Valid {
		v := maxConn.Int64
		l.MaxConnections = &v
	}
	if cap_.Valid {
		v := cap_.Int64
		l.BandwidthCapBytes = &v
	}
	if window.Valid {
		v := window.Int64
		l.BandwidthWindowSeconds = &v
	}
	return l, nil
}

// SetLimits upserts username's per-user overrides.
func (s *Store) SetLimits(username string, l Limits) error {
	_, err := s.db.Exec(`
		INSERT INTO user_limits(username, posting_allowed, max_connections, bandwidth_cap_bytes, bandwidth_window_secs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			posting_allowed = excluded.posting_allowed,
			max_connections = excluded.max_connections,
			bandwidth_cap_bytes = excluded.bandwidth_cap_bytes,
			bandwidth_window_secs = excluded.bandwidth_window_secs
	`, username, nullableBool(l.PostingAllowed), nullableInt(l.MaxConnections), nullableInt(l.BandwidthCapBytes), nullableInt(l.BandwidthWindowSeconds))
	return err
}

// Usage mirrors spec.md §3 UserUsage's persisted copy.
type Usage struct {
	BytesUploaded   int64
	BytesDownloaded int64
	WindowStart     int64 // unix seconds
}

// GetUsage returns the persisted usage snapshot for username.
func (s *Store) GetUsage(username string) (Usage, error) {
	var u Usage
	err := s.db.QueryRow(`SELECT bytes_uploaded, bytes_downloaded, window_start FROM user_usage WHERE username = ?`,
		username).Scan(&u.BytesUploaded, &u.BytesDownloaded, &u.WindowStart)
	if err == sql.ErrNoRows {
		return Usage{}, nil
	}
	return u, err
}

// SetUsage upserts the persisted usage snapshot for username.
func (s *Store) SetUsage(username string, u Usage) error {
	_, err := s.db.Exec(`
		INSERT INTO user_usage(username, bytes_uploaded, bytes_downloaded, window_start)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			bytes_uploaded = excluded.bytes_uploaded,
			bytes_downloaded = excluded.bytes_downloaded,
			window_start = excluded.window_start
	`, username, u.BytesUploaded, u.BytesDownloaded, u.WindowStart)
	return err
}

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullableInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
