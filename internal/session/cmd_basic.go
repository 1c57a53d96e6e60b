package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/nntpcore/newsd/internal/config"
)

// cmdCapabilities emits the fixed capability list of spec.md §6
// verbatim; only AUTHINFO USER is conditional, gated by the same
// TLS/config posture as the AUTHINFO command itself.
func (sess *Session) cmdCapabilities() error {
	caps := []string{
		"VERSION 2",
		fmt.Sprintf("IMPLEMENTATION newsd %s", config.AppVersion),
		"READER",
		"NEWNEWS",
		"IHAVE",
		"STREAMING",
		"OVER MSGID",
		"HDR",
		"LIST ACTIVE NEWSGROUPS ACTIVE.TIMES OVERVIEW.FMT HEADERS",
	}
	if sess.isTLS || sess.allowAuthInsecure() {
		caps = append(caps, "AUTHINFO USER")
	}
	return sess.sendMultiline(101, "Capability list:", caps)
}

func (sess *Session) allowAuthInsecure() bool {
	return sess.server.Config.Snapshot().AllowAuthInsecure
}

func (sess *Session) cmdMode(args []string) error {
	if len(args) == 0 {
		return sess.sendResponse(501, "MODE requires an argument")
	}
	switch strings.ToUpper(args[0]) {
	case "READER":
		if sess.isTLS || sess.allowPostingInsecure {
			return sess.sendResponse(200, "posting allowed")
		}
		return sess.sendResponse(201, "no posting allowed")
	case "STREAM":
		sess.streamingMode = true
		return sess.sendResponse(203, "streaming permitted")
	default:
		return sess.sendResponse(501, "unknown MODE argument")
	}
}

func (sess *Session) cmdDate() error {
	return sess.sendResponse(111, time.Now().UTC().Format("20060102150405"))
}

func (sess *Session) cmdHelp() error {
	lines := []string{
		"CAPABILITIES, MODE READER, MODE STREAM",
		"GROUP, LISTGROUP, LIST, NEWGROUPS, NEWNEWS",
		"ARTICLE, HEAD, BODY, STAT, NEXT, LAST",
		"HDR, OVER, XOVER, XPAT",
		"POST, IHAVE, CHECK, TAKETHIS",
		"AUTHINFO USER/PASS, DATE, HELP, QUIT",
	}
	return sess.sendMultiline(100, "Legal commands", lines)
}
