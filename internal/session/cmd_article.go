package session

import (
	"fmt"
	"strings"

	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/wire"
)

type retrieveKind int

const (
	retrieveArticle retrieveKind = iota
	retrieveHead
	retrieveBody
	retrieveStat
)

// resolveArticle locates the article named by args (a bare number, a
// Message-ID token, or the current article if args is empty), updating
// currentArticle when the selection is by-group-number.
func (sess *Session) resolveArticle(args []string) (msg *wire.Message, number int64, id string, err error) {
	if len(args) == 0 {
		if sess.currentGroup == "" {
			return nil, 0, "", sess.newStateErr(412, "no newsgroup selected")
		}
		if sess.currentArticle == 0 {
			return nil, 0, "", sess.newStateErr(420, "no current article selected")
		}
		msg, err = sess.server.Store.GetArticleByNumber(sess.currentGroup, sess.currentArticle)
		if err != nil {
			return nil, 0, "", err
		}
		id, _ = msg.Get("Message-ID")
		return msg, sess.currentArticle, id, nil
	}

	token := args[0]
	if isMessageID(token) {
		msg, err = sess.server.Store.GetArticleByID(token)
		if err != nil {
			return nil, 0, "", err
		}
		number = 0
		if sess.currentGroup != "" {
			if n, nerr := sess.server.Store.ArticleNumberForID(sess.currentGroup, token); nerr == nil {
				number = n
			}
		}
		return msg, number, token, nil
	}

	n, ok := parseInt(token)
	if !ok {
		return nil, 0, "", sess.newStateErr(501, "invalid article selector")
	}
	if sess.currentGroup == "" {
		return nil, 0, "", sess.newStateErr(412, "no newsgroup selected")
	}
	msg, err = sess.server.Store.GetArticleByNumber(sess.currentGroup, n)
	if err != nil {
		return nil, 0, "", err
	}
	id, _ = msg.Get("Message-ID")
	sess.currentArticle = n
	return msg, n, id, nil
}

// stateErr is a locally raised protocol-state error carrying its own
// response code, distinct from the nntperr taxonomy used for
// storage/validation failures.
type stateErr struct {
	code int
	text string
}

func (e *stateErr) Error() string { return e.text }

func (sess *Session) newStateErr(code int, text string) error {
	return &stateErr{code: code, text: text}
}

func (sess *Session) cmdRetrieve(args []string, kind retrieveKind) error {
	msg, number, id, err := sess.resolveArticle(args)
	if err != nil {
		if se, ok := err.(*stateErr); ok {
			return sess.sendResponse(se.code, se.text)
		}
		return sess.sendResponse(nntperr.CodeOf(err, nntperr.SiteDefault), "no such article")
	}

	switch kind {
	case retrieveStat:
		return sess.sendResponse(223, fmt.Sprintf("%d %s article retrieved", number, id))
	case retrieveHead:
		return sess.sendArticlePayload(221, fmt.Sprintf("%d %s article headers follow", number, id), renderHeaders(msg))
	case retrieveBody:
		return sess.sendArticlePayload(222, fmt.Sprintf("%d %s article body follows", number, id), msg.Body)
	default: // retrieveArticle
		payload := renderHeaders(msg) + "\n" + msg.Body
		return sess.sendArticlePayload(220, fmt.Sprintf("%d %s article retrieved", number, id), payload)
	}
}

// renderHeaders formats a message's headers LF-joined, suitable as
// WriteDotStuffed input (which expects LF line endings).
func renderHeaders(msg *wire.Message) string {
	var b strings.Builder
	for i, h := range msg.Headers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
	}
	return b.String()
}
