package store

import (
	"database/sql"
	"time"

	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/wire"
)

// GetArticleByNumber returns the message stored at (group, n).
func (s *Store) GetArticleByNumber(group string, n int64) (*wire.Message, error) {
	var msgID string
	err := retryableQueryRowScan(s.db, `SELECT message_id FROM group_articles WHERE group_name = ? AND number = ?`,
		[]interface{}{group, n}, &msgID)
	if err == sql.ErrNoRows {
		return nil, nntperr.New(nntperr.KindArticleNotFound, "no such article number")
	}
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "lookup group_article", err)
	}
	return s.GetArticleByID(msgID)
}

// GetArticleByID returns the message by Message-ID.
func (s *Store) GetArticleByID(id string) (*wire.Message, error) {
	var headers string
	var body string
	err := retryableQueryRowScan(s.db, `SELECT headers, body FROM messages WHERE message_id = ?`,
		[]interface{}{id}, &headers, &body)
	if err == sql.ErrNoRows {
		return nil, nntperr.New(nntperr.KindArticleNotFound, "no such message-id")
	}
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "lookup message", err)
	}
	msg, perr := wire.ParseMessage(headers + "\r\n" + body)
	if perr != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "corrupt stored message", perr)
	}
	return msg, nil
}

// GetMessageSize returns the stored body size in bytes, or ArticleNotFound.
func (s *Store) GetMessageSize(id string) (int64, error) {
	var size int64
	err := retryableQueryRowScan(s.db, `SELECT size FROM messages WHERE message_id = ?`, []interface{}{id}, &size)
	if err == sql.ErrNoRows {
		return 0, nntperr.New(nntperr.KindArticleNotFound, "no such message-id")
	}
	if err != nil {
		return 0, nntperr.Wrap(nntperr.KindDatabase, "lookup message size", err)
	}
	return size, nil
}

// ArticleNumberForID returns the number assigned to id within group.
func (s *Store) ArticleNumberForID(group, id string) (int64, error) {
	var n int64
	err := retryableQueryRowScan(s.db, `SELECT number FROM group_articles WHERE group_name = ? AND message_id = ?`,
		[]interface{}{group, id}, &n)
	if err == sql.ErrNoRows {
		return 0, nntperr.New(nntperr.KindArticleNotFound, "article not in group")
	}
	if err != nil {
		return 0, nntperr.Wrap(nntperr.KindDatabase, "lookup article number", err)
	}
	return n, nil
}

// DeleteArticleByID removes all GroupArticle rows for id, then deletes
// the message if no group still references it (spec.md §4.C).
func (s *Store) DeleteArticleByID(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_articles WHERE message_id = ?`, id); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "delete group_articles", err)
	}
	var refs int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM group_articles WHERE message_id = ?`, id).Scan(&refs); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "count references", err)
	}
	if refs == 0 {
		if _, err := tx.Exec(`DELETE FROM messages WHERE message_id = ?`, id); err != nil {
			return nntperr.Wrap(nntperr.KindDatabase, "delete message", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "commit delete", err)
	}
	return nil
}

// ArticleRange describes the low/high article numbers listed for a
// group, as returned by GROUP.
type ArticleRange struct {
	Count int64
	Low   int64
	High  int64
}

// GroupRange returns the count/low/high watermarks for group.
func (s *Store) GroupRange(group string) (ArticleRange, error) {
	if _, err := s.GetGroup(group); err != nil {
		return ArticleRange{}, err
	}
	var count int64
	var low, high sql.NullInt64
	err := retryableQueryRowScan(s.db,
		`SELECT COUNT(1), MIN(number), MAX(number) FROM group_articles WHERE group_name = ?`,
		[]interface{}{group}, &count, &low, &high)
	if err != nil {
		return ArticleRange{}, nntperr.Wrap(nntperr.KindDatabase, "group range", err)
	}
	return ArticleRange{Count: count, Low: low.Int64, High: high.Int64}, nil
}

// ListArticleNumbers returns the article numbers in group, ascending.
func (s *Store) ListArticleNumbers(group string) ([]int64, error) {
	rows, err := retryableQuery(s.db, `SELECT number FROM group_articles WHERE group_name = ? ORDER BY number ASC`, group)
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list article numbers", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan article number", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NumberedID pairs an article number with its Message-ID, as emitted by
// listings that need both (OVER/HDR/NEWNEWS-by-group).
type NumberedID struct {
	Number    int64
	MessageID string
}

// ListArticleIDs returns (number, message-id) pairs in group, ascending by number.
func (s *Store) ListArticleIDs(group string) ([]NumberedID, error) {
	rows, err := retryableQuery(s.db, `SELECT number, message_id FROM group_articles WHERE group_name = ? ORDER BY number ASC`, group)
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list article ids", err)
	}
	defer rows.Close()
	var out []NumberedID
	for rows.Next() {
		var nid NumberedID
		if err := rows.Scan(&nid.Number, &nid.MessageID); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan article id", err)
		}
		out = append(out, nid)
	}
	return out, rows.Err()
}

// ListArticleIDsSince returns (number, message-id) pairs inserted after ts, ascending by number.
func (s *Store) ListArticleIDsSince(group string, ts time.Time) ([]NumberedID, error) {
	rows, err := retryableQuery(s.db,
		`SELECT number, message_id FROM group_articles WHERE group_name = ? AND inserted_at > ? ORDER BY number ASC`,
		group, ts.Unix())
	if err != nil {
		return nil, nntperr.Wrap(nntperr.KindDatabase, "list article ids since", err)
	}
	defer rows.Close()
	var out []NumberedID
	for rows.Next() {
		var nid NumberedID
		if err := rows.Scan(&nid.Number, &nid.MessageID); err != nil {
			return nil, nntperr.Wrap(nntperr.KindDatabase, "scan article id", err)
		}
		out = append(out, nid)
	}
	return out, rows.Err()
}

// PurgeGroupBefore deletes GroupArticle rows inserted before ts.
func (s *Store) PurgeGroupBefore(group string, ts time.Time) (int64, error) {
	res, err := retryableExec(s.db, `DELETE FROM group_articles WHERE group_name = ? AND inserted_at < ?`, group, ts.Unix())
	if err != nil {
		return 0, nntperr.Wrap(nntperr.KindDatabase, "purge group before", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeOrphanMessages deletes messages no longer referenced by any group.
func (s *Store) PurgeOrphanMessages() (int64, error) {
	res, err := retryableExec(s.db, `
		DELETE FROM messages
		WHERE message_id NOT IN (SELECT DISTINCT message_id FROM group_articles)
	`)
	if err != nil {
		return 0, nntperr.Wrap(nntperr.KindDatabase, "purge orphan messages", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
