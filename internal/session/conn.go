package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nntpcore/newsd/internal/wire"
)

// Handle runs the connection's command loop until the client
// disconnects, an idle timeout fires, or a fatal read error occurs
// (spec.md §4.I greeting + dispatch loop).
func (sess *Session) Handle() error {
	defer sess.cleanup()

	if err := sess.sendGreeting(); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	for {
		sess.conn.SetReadDeadline(time.Now().Add(sess.idleTimeout))
		line, err := sess.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		sess.server.Stats.AddBytesIn(len(line))

		cmd, perr := wire.ParseCommand(line)
		if perr != nil {
			if err := sess.sendResponse(500, "command not recognized"); err != nil {
				return err
			}
			continue
		}
		sess.server.Stats.CommandExecuted()

		if cmd.Name == "QUIT" {
			sess.sendResponse(205, "closing connection")
			return nil
		}

		if err := sess.dispatch(cmd); err != nil {
			return fmt.Errorf("dispatch %s: %w", cmd.Name, err)
		}
	}
}

func (sess *Session) sendGreeting() error {
	hostname := sess.server.Config.Snapshot().Hostname
	if sess.isTLS || sess.allowPostingInsecure {
		return sess.sendResponse(200, fmt.Sprintf("%s NNTP Service Ready - posting allowed", hostname))
	}
	return sess.sendResponse(201, fmt.Sprintf("%s NNTP Service Ready - no posting allowed", hostname))
}

func (sess *Session) dispatch(cmd *wire.Command) error {
	switch cmd.Name {
	case "CAPABILITIES":
		return sess.cmdCapabilities()
	case "MODE":
		return sess.cmdMode(cmd.Args)
	case "DATE":
		return sess.cmdDate()
	case "HELP":
		return sess.cmdHelp()
	case "AUTHINFO":
		return sess.cmdAuthInfo(cmd.Args)
	case "GROUP":
		return sess.cmdGroup(cmd.Args)
	case "LISTGROUP":
		return sess.cmdListGroup(cmd.Args)
	case "LIST":
		return sess.cmdList(cmd.Args)
	case "ARTICLE":
		return sess.cmdRetrieve(cmd.Args, retrieveArticle)
	case "HEAD":
		return sess.cmdRetrieve(cmd.Args, retrieveHead)
	case "BODY":
		return sess.cmdRetrieve(cmd.Args, retrieveBody)
	case "STAT":
		return sess.cmdRetrieve(cmd.Args, retrieveStat)
	case "NEXT":
		return sess.cmdNextLast(cmd.Args, true)
	case "LAST":
		return sess.cmdNextLast(cmd.Args, false)
	case "NEWGROUPS":
		return sess.cmdNewgroups(cmd.Args)
	case "NEWNEWS":
		return sess.cmdNewnews(cmd.Args)
	case "HDR":
		return sess.cmdHdr(cmd.Args)
	case "OVER", "XOVER":
		return sess.cmdOver(cmd.Args)
	case "XPAT":
		return sess.cmdXPat(cmd.Args)
	case "POST":
		return sess.cmdPost()
	case "IHAVE":
		return sess.cmdIHave(cmd.Args)
	case "CHECK":
		return sess.cmdCheck(cmd.Args)
	case "TAKETHIS":
		return sess.cmdTakeThis(cmd.Args)
	default:
		return sess.sendResponse(500, "command not recognized")
	}
}

// --- wire helpers ---

func (sess *Session) sendResponse(code int, text string) error {
	line := wire.FormatResponse(code, text)
	if _, err := sess.writer.WriteString(line); err != nil {
		return err
	}
	sess.server.Stats.AddBytesOut(len(line))
	return sess.writer.Flush()
}

// sendMultiline emits a status line followed by a dot-stuffed block of
// already-formatted lines.
func (sess *Session) sendMultiline(code int, statusText string, lines []string) error {
	if err := sess.sendResponse(code, statusText); err != nil {
		return err
	}
	body := strings.Join(lines, "\n")
	if err := wire.WriteDotStuffed(sess.writer, body); err != nil {
		return err
	}
	return sess.writer.Flush()
}

// sendArticlePayload emits a status line followed by a dot-stuffed
// article rendering (headers, body, or both per kind).
func (sess *Session) sendArticlePayload(code int, statusText, payload string) error {
	if err := sess.sendResponse(code, statusText); err != nil {
		return err
	}
	if err := wire.WriteDotStuffed(sess.writer, payload); err != nil {
		return err
	}
	return sess.writer.Flush()
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func isMessageID(tok string) bool {
	return len(tok) >= 2 && tok[0] == '<' && tok[len(tok)-1] == '>'
}
