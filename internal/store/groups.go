package store

import (
	"database/sql"
	"time"

	"github.com/nntpcore/newsd/internal/nntperr"
)

// GroupInfo is a (name, moderated, created-at) row.
type GroupInfo struct {
	Name      string
	Moderated bool
	CreatedAt time.Time
}

// AddGroup creates group idempotently (spec.md §4.C add_group, invariant 6).
func (s *Store) AddGroup(name string, moderated bool) error {
	_, err := retryableExec(s.db,
		`INSERT INTO groups(name, moderated, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, moderated, time.Now().Unix())
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "add group", err)
	}
	return nil
}

// RemoveGroup removes group idempotently, cascading to GroupArticle rows
// and then purging any messages left unreferenced.
func (s *Store) RemoveGroup(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_articles WHERE group_name = ?`, name); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "delete group_articles", err)
	}
	if _, err := tx.Exec(`DELETE FROM groups WHERE name = ?`, name); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "delete group", err)
	}
	if err := tx.Commit(); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "commit remove group", err)
	}
	_, err = s.PurgeOrphanMessages()
	return err
}

// GetGroup returns group metadata or GroupNotFound.
func (s *Store) GetGroup(name string) (*GroupInfo, error) {
	var g GroupInfo
	var created int64
	var moderated bool
	err := retryableQueryRowScan(s.db, `SELECT name, moderated, created_at FROM groups WHERE name = ?`,
		[]interface{}{name}, &g.Name, &moderated, &created)
	if err == sql.ErrNoRows {
		return nil, nntperr.New(nntperr.KindGroupNotFound, "no such group")
	}
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "get group", err)
	}
	g.Moderated = moderated
	g.CreatedAt = time.Unix(created, 0).UTC()
	return &g, nil
}

// IsGroupModerated reports whether name is moderated; false for unknown groups.
func (s *Store) IsGroupModerated(name string) bool {
	g, err := s.GetGroup(name)
	if err != nil {
		return false
	}
	return g.Moderated
}

// ListGroups returns all group names, ordered ascending.
func (s *Store) ListGroups() ([]string, error) {
	rows, err := retryableQuery(s.db, `SELECT name FROM groups ORDER BY name ASC`)
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list groups", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan group", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListGroupsSince returns group names created after ts, ordered ascending.
func (s *Store) ListGroupsSince(ts time.Time) ([]string, error) {
	rows, err := retryableQuery(s.db, `SELECT name FROM groups WHERE created_at > ? ORDER BY name ASC`, ts.Unix())
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list groups since", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan group", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// GroupTime pairs a group name with its creation time.
type GroupTime struct {
	Name      string
	CreatedAt time.Time
}

// ListGroupsWithTimes returns (name, created_at) pairs, ordered by name ascending.
func (s *Store) ListGroupsWithTimes() ([]GroupTime, error) {
	rows, err := retryableQuery(s.db, `SELECT name, created_at FROM groups ORDER BY name ASC`)
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list groups with times", err)
	}
	defer rows.Close()
	var out []GroupTime
	for rows.Next() {
		var gt GroupTime
		var created int64
		if err := rows.Scan(&gt.Name, &created); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan group with time", err)
		}
		gt.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, gt)
	}
	return out, rows.Err()
}
