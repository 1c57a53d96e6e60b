package session

import (
	"fmt"

	"github.com/nntpcore/newsd/internal/wire"
)

func (sess *Session) cmdPost() error {
	if !sess.isTLS && !sess.allowPostingInsecure {
		return sess.sendResponse(440, "posting not permitted")
	}
	if !sess.authenticated {
		return sess.sendResponse(440, "posting not permitted")
	}

	if err := sess.sendResponse(340, "send article to be posted"); err != nil {
		return err
	}
	raw, err := wire.ReadDotStuffed(sess.reader)
	if err != nil {
		return fmt.Errorf("read posted article: %w", err)
	}
	msg, perr := wire.ParseMessage(raw)
	if perr != nil {
		return sess.sendResponse(441, "posting failed")
	}
	wire.EnsureMessageID(msg, sess.server.Config.Snapshot().Hostname)

	result, subErr := sess.server.Queue.Submit(msg, int64(len(msg.Body)))
	if subErr != nil {
		return sess.sendResponse(441, "posting failed")
	}
	if err := <-result; err != nil {
		return sess.sendResponse(441, "posting failed")
	}
	sess.server.Stats.ArticleAccepted()
	return sess.sendResponse(240, "article posted ok")
}

func (sess *Session) cmdIHave(args []string) error {
	if len(args) != 1 || !isMessageID(args[0]) {
		return sess.sendResponse(501, "IHAVE requires a Message-ID")
	}
	id := args[0]

	if sess.server.local430.recentlyRejected(id) {
		return sess.sendResponse(435, "article not wanted - do not send it")
	}
	if _, err := sess.server.Store.GetArticleByID(id); err == nil {
		return sess.sendResponse(435, "article not wanted - do not send it")
	}

	if err := sess.sendResponse(335, "send article to be transferred"); err != nil {
		return err
	}
	raw, err := wire.ReadDotStuffed(sess.reader)
	if err != nil {
		return fmt.Errorf("read ihave article: %w", err)
	}
	msg, perr := wire.ParseMessage(raw)
	if perr != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(437, "article rejected - do not try again")
	}

	result, subErr := sess.server.Queue.Submit(msg, int64(len(msg.Body)))
	if subErr != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(437, "article rejected - do not try again")
	}
	if err := <-result; err != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(437, "article rejected - do not try again")
	}
	sess.server.Stats.ArticleAccepted()
	return sess.sendResponse(235, "article transferred ok")
}

func (sess *Session) cmdCheck(args []string) error {
	if len(args) != 1 || !isMessageID(args[0]) {
		return sess.sendResponse(501, "CHECK requires a Message-ID")
	}
	id := args[0]

	if sess.server.local430.recentlyRejected(id) {
		return sess.sendResponse(438, fmt.Sprintf("%s not wanted", id))
	}
	if _, err := sess.server.Store.GetArticleByID(id); err == nil {
		return sess.sendResponse(438, fmt.Sprintf("%s not wanted", id))
	}
	return sess.sendResponse(238, fmt.Sprintf("%s wanted", id))
}

func (sess *Session) cmdTakeThis(args []string) error {
	if len(args) != 1 || !isMessageID(args[0]) {
		return sess.sendResponse(501, "TAKETHIS requires a Message-ID")
	}
	id := args[0]

	raw, err := wire.ReadDotStuffed(sess.reader)
	if err != nil {
		return fmt.Errorf("read takethis article: %w", err)
	}
	msg, perr := wire.ParseMessage(raw)
	if perr != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(439, fmt.Sprintf("%s transfer rejected", id))
	}

	result, subErr := sess.server.Queue.Submit(msg, int64(len(msg.Body)))
	if subErr != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(439, fmt.Sprintf("%s transfer rejected", id))
	}
	if err := <-result; err != nil {
		sess.server.local430.mark(id)
		return sess.sendResponse(439, fmt.Sprintf("%s transfer rejected", id))
	}
	sess.server.Stats.ArticleAccepted()
	return sess.sendResponse(239, fmt.Sprintf("%s transferred ok", id))
}
