package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nntpcore/newsd/internal/wildmat"
	"github.com/nntpcore/newsd/internal/wire"
)

// overviewEntry pairs an article number with its parsed message, the
// unit HDR/OVER/XPAT iterate over.
type overviewEntry struct {
	Number int64
	ID     string
	Msg    *wire.Message
}

// selectEntries resolves the id|range|none selector shared by HDR, OVER
// and XPAT (spec.md §4.I). An empty tok means "the current article"; a
// '<...>' token is a bare Message-ID; anything else is a bare number or
// an N-, N-M range against the selected group.
func (sess *Session) selectEntries(tok string) ([]overviewEntry, error) {
	if tok == "" {
		if sess.currentGroup == "" || sess.currentArticle == 0 {
			return nil, sess.newStateErr(412, "no newsgroup selected")
		}
		msg, err := sess.server.Store.GetArticleByNumber(sess.currentGroup, sess.currentArticle)
		if err != nil {
			return nil, err
		}
		id, _ := msg.Get("Message-ID")
		return []overviewEntry{{Number: sess.currentArticle, ID: id, Msg: msg}}, nil
	}

	if isMessageID(tok) {
		msg, err := sess.server.Store.GetArticleByID(tok)
		if err != nil {
			return nil, err
		}
		var number int64
		if sess.currentGroup != "" {
			if n, nerr := sess.server.Store.ArticleNumberForID(sess.currentGroup, tok); nerr == nil {
				number = n
			}
		}
		return []overviewEntry{{Number: number, ID: tok, Msg: msg}}, nil
	}

	if sess.currentGroup == "" {
		return nil, sess.newStateErr(412, "no newsgroup selected")
	}
	low, high, err := parseArticleRange(tok)
	if err != nil {
		return nil, sess.newStateErr(501, "invalid range")
	}
	all, err := sess.server.Store.ListArticleIDs(sess.currentGroup)
	if err != nil {
		return nil, err
	}
	var out []overviewEntry
	for _, nid := range all {
		if nid.Number < low || (high >= 0 && nid.Number > high) {
			continue
		}
		msg, err := sess.server.Store.GetArticleByID(nid.MessageID)
		if err != nil {
			continue
		}
		out = append(out, overviewEntry{Number: nid.Number, ID: nid.MessageID, Msg: msg})
	}
	if len(out) == 0 {
		return nil, sess.newStateErr(423, "no articles in that range")
	}
	return out, nil
}

// parseArticleRange parses "N", "N-" (high=-1 meaning open-ended) or
// "N-M" (spec.md §4.I range syntax).
func parseArticleRange(tok string) (low, high int64, err error) {
	if !strings.Contains(tok, "-") {
		n, ok := parseInt(tok)
		if !ok {
			return 0, 0, fmt.Errorf("invalid article number %q", tok)
		}
		return n, n, nil
	}
	parts := strings.SplitN(tok, "-", 2)
	lo, ok := parseInt(parts[0])
	if !ok {
		return 0, 0, fmt.Errorf("invalid range start %q", parts[0])
	}
	if parts[1] == "" {
		return lo, -1, nil
	}
	hi, ok := parseInt(parts[1])
	if !ok {
		return 0, 0, fmt.Errorf("invalid range end %q", parts[1])
	}
	return lo, hi, nil
}

func (sess *Session) cmdHdr(args []string) error {
	if len(args) == 0 {
		return sess.sendResponse(501, "HDR requires a header field")
	}
	field := args[0]
	var tok string
	if len(args) > 1 {
		tok = args[1]
	}

	entries, err := sess.selectEntries(tok)
	if err != nil {
		return sess.respondSelectError(err)
	}

	var lines []string
	for _, e := range entries {
		value, ok := e.Msg.Get(field)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d %s", e.Number, sanitizeOverviewField(value)))
	}
	return sess.sendMultiline(225, "Headers follow", lines)
}

func (sess *Session) cmdOver(args []string) error {
	var tok string
	if len(args) > 0 {
		tok = args[0]
	}
	entries, err := sess.selectEntries(tok)
	if err != nil {
		return sess.respondSelectError(err)
	}

	var lines []string
	for _, e := range entries {
		lines = append(lines, overviewRow(e.Number, e.Msg))
	}
	return sess.sendMultiline(224, "Overview information follows", lines)
}

func (sess *Session) cmdXPat(args []string) error {
	if len(args) < 3 {
		return sess.sendResponse(501, "XPAT requires field, range and at least one pattern")
	}
	field := args[0]
	tok := args[1]
	patterns := args[2:]

	entries, err := sess.selectEntries(tok)
	if err != nil {
		return sess.respondSelectError(err)
	}

	var lines []string
	for _, e := range entries {
		value, ok := e.Msg.Get(field)
		if !ok {
			continue
		}
		if wildmat.MatchAny(value, patterns) {
			lines = append(lines, fmt.Sprintf("%d %s", e.Number, sanitizeOverviewField(value)))
		}
	}
	return sess.sendMultiline(221, "Header follows", lines)
}

func (sess *Session) respondSelectError(err error) error {
	if se, ok := err.(*stateErr); ok {
		return sess.sendResponse(se.code, se.text)
	}
	return sess.sendResponse(430, "no such article")
}

// overviewRow renders one tab-separated overview line (spec.md §4.I).
func overviewRow(number int64, msg *wire.Message) string {
	subject, _ := msg.Get("Subject")
	from, _ := msg.Get("From")
	date, _ := msg.Get("Date")
	id, _ := msg.Get("Message-ID")
	refs, _ := msg.Get("References")
	lines := 1
	if msg.Body != "" {
		lines = strings.Count(msg.Body, "\n") + 1
	}
	return strings.Join([]string{
		strconv.FormatInt(number, 10),
		sanitizeOverviewField(subject),
		sanitizeOverviewField(from),
		sanitizeOverviewField(date),
		sanitizeOverviewField(id),
		sanitizeOverviewField(refs),
		strconv.Itoa(len(msg.Body)),
		strconv.Itoa(lines),
	}, "\t")
}

// sanitizeOverviewField converts embedded tabs to spaces and strips
// control characters, per spec.md §4.I's overview row rule.
func sanitizeOverviewField(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
