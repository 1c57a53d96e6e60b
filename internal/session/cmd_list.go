package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/nntpcore/newsd/internal/wildmat"
)

var overviewFmtLines = []string{
	"Subject:", "From:", "Date:", "Message-ID:", "References:", ":bytes", ":lines",
}

func (sess *Session) cmdList(args []string) error {
	keyword := "ACTIVE"
	if len(args) > 0 {
		keyword = strings.ToUpper(args[0])
	}
	var pattern string
	if len(args) > 1 {
		pattern = args[1]
	}

	switch keyword {
	case "ACTIVE":
		return sess.listActive(pattern)
	case "NEWSGROUPS":
		return sess.listNewsgroups(pattern)
	case "ACTIVE.TIMES":
		return sess.listActiveTimes(pattern)
	case "OVERVIEW.FMT":
		return sess.sendMultiline(215, "Order of fields in overview database.", overviewFmtLines)
	case "HEADERS":
		return sess.sendMultiline(215, "Header and metadata list follows", overviewFmtLines)
	case "DISTRIB.PATS":
		return sess.sendResponse(503, "LIST DISTRIB.PATS not supported")
	default:
		return sess.sendResponse(501, "unknown LIST keyword")
	}
}

func (sess *Session) listActive(pattern string) error {
	groups, err := sess.server.Store.ListGroupsWithTimes()
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve group list")
	}
	var lines []string
	for _, g := range groups {
		if pattern != "" && !wildmat.Match(g.Name, pattern) {
			continue
		}
		rng, err := sess.server.Store.GroupRange(g.Name)
		if err != nil {
			continue
		}
		flag := "y"
		if info, err := sess.server.Store.GetGroup(g.Name); err == nil && info.Moderated {
			flag = "m"
		}
		lines = append(lines, fmt.Sprintf("%s %d %d %s", g.Name, rng.High, rng.Low, flag))
	}
	return sess.sendMultiline(215, "list of newsgroups follows", lines)
}

func (sess *Session) listNewsgroups(pattern string) error {
	groups, err := sess.server.Store.ListGroups()
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve group list")
	}
	var lines []string
	for _, name := range groups {
		if pattern != "" && !wildmat.Match(name, pattern) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\tno description available", name))
	}
	return sess.sendMultiline(215, "list of newsgroups follows", lines)
}

func (sess *Session) listActiveTimes(pattern string) error {
	groups, err := sess.server.Store.ListGroupsWithTimes()
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve group list")
	}
	var lines []string
	for _, g := range groups {
		if pattern != "" && !wildmat.Match(g.Name, pattern) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d -", g.Name, g.CreatedAt.Unix()))
	}
	return sess.sendMultiline(215, "list of newsgroups follows", lines)
}

func (sess *Session) cmdNewgroups(args []string) error {
	if len(args) < 2 {
		return sess.sendResponse(501, "NEWGROUPS requires date and time")
	}
	ts, err := parseNewsDateTime(args[0], args[1])
	if err != nil {
		return sess.sendResponse(501, "invalid date/time")
	}
	names, err := sess.server.Store.ListGroupsSince(ts)
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve group list")
	}
	var lines []string
	for _, name := range names {
		rng, err := sess.server.Store.GroupRange(name)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d %d y", name, rng.High, rng.Low))
	}
	return sess.sendMultiline(231, "list of new newsgroups follows", lines)
}

func (sess *Session) cmdNewnews(args []string) error {
	if len(args) < 3 {
		return sess.sendResponse(501, "NEWNEWS requires wildmat, date and time")
	}
	patterns := strings.Split(args[0], ",")
	ts, err := parseNewsDateTime(args[1], args[2])
	if err != nil {
		return sess.sendResponse(501, "invalid date/time")
	}
	groups, err := sess.server.Store.ListGroups()
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve group list")
	}

	seen := make(map[string]bool)
	var ids []string
	for _, g := range groups {
		if !wildmat.MatchAny(g, patterns) {
			continue
		}
		nids, err := sess.server.Store.ListArticleIDsSince(g, ts)
		if err != nil {
			continue
		}
		for _, nid := range nids {
			if !seen[nid.MessageID] {
				seen[nid.MessageID] = true
				ids = append(ids, nid.MessageID)
			}
		}
	}
	return sess.sendMultiline(230, "list of new articles follows", ids)
}

// parseNewsDateTime parses the NEWGROUPS/NEWNEWS date+time pair: date is
// YYMMDD or YYYYMMDD, time is HHMMSS, both interpreted as UTC (an
// optional trailing "GMT" token, if present, is a no-op here since this
// server never interprets the pair as local time).
func parseNewsDateTime(date, clock string) (time.Time, error) {
	var year, month, day int
	switch len(date) {
	case 6:
		yy, mm, dd := date[0:2], date[2:4], date[4:6]
		y, err := atoi(yy)
		if err != nil {
			return time.Time{}, err
		}
		if y < 70 {
			year = 2000 + y
		} else {
			year = 1900 + y
		}
		month, _ = atoi(mm)
		day, _ = atoi(dd)
	case 8:
		y, err := atoi(date[0:4])
		if err != nil {
			return time.Time{}, err
		}
		year = y
		month, _ = atoi(date[4:6])
		day, _ = atoi(date[6:8])
	default:
		return time.Time{}, fmt.Errorf("malformed date %q", date)
	}

	if len(clock) != 6 {
		return time.Time{}, fmt.Errorf("malformed time %q", clock)
	}
	hh, err := atoi(clock[0:2])
	if err != nil {
		return time.Time{}, err
	}
	mm, err := atoi(clock[2:4])
	if err != nil {
		return time.Time{}, err
	}
	ss, err := atoi(clock[4:6])
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(year, time.Month(month), day, hh, mm, ss, 0, time.UTC), nil
}

func atoi(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
