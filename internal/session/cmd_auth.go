package session

import (
	"strings"

	"github.com/nntpcore/newsd/internal/usage"
)

func (sess *Session) cmdAuthInfo(args []string) error {
	if !sess.isTLS && !sess.allowAuthInsecure() {
		return sess.sendResponse(483, "encryption required")
	}
	if len(args) < 2 {
		return sess.sendResponse(501, "AUTHINFO requires a subcommand and argument")
	}
	switch strings.ToUpper(args[0]) {
	case "USER":
		sess.pendingUser = args[1]
		return sess.sendResponse(381, "password required")
	case "PASS":
		return sess.authInfoPass(args[1])
	default:
		return sess.sendResponse(501, "unknown AUTHINFO subcommand")
	}
}

func (sess *Session) authInfoPass(password string) error {
	if sess.pendingUser == "" {
		return sess.sendResponse(481, "Authentication rejected")
	}
	username := sess.pendingUser
	sess.pendingUser = ""

	if err := sess.server.Auth.VerifyUser(username, password); err != nil {
		return sess.sendResponse(481, "Authentication rejected")
	}

	decision := sess.server.Usage.TryConnect(username)
	if decision != usage.Allowed {
		return sess.sendResponse(481, "Authentication rejected")
	}

	sess.authenticated = true
	sess.username = username
	return sess.sendResponse(281, "Authentication accepted")
}

// cleanup releases any connection-count slot held by an authenticated
// session, called once when the connection loop exits.
func (sess *Session) cleanup() {
	if sess.authenticated {
		sess.server.Usage.Disconnect(sess.username)
	}
}
