package session

import (
	"fmt"

	"github.com/nntpcore/newsd/internal/nntperr"
)

func (sess *Session) cmdGroup(args []string) error {
	if len(args) == 0 {
		return sess.sendResponse(501, "GROUP requires a group name")
	}
	name := args[0]

	if _, err := sess.server.Store.GetGroup(name); err != nil {
		return sess.sendResponse(nntperr.CodeOf(err, nntperr.SiteGroup), "no such newsgroup")
	}
	rng, err := sess.server.Store.GroupRange(name)
	if err != nil {
		return sess.sendResponse(nntperr.CodeOf(err, nntperr.SiteGroup), "no such newsgroup")
	}

	sess.currentGroup = name
	sess.groupLow = rng.Low
	sess.groupHigh = rng.High
	sess.currentArticle = rng.Low

	return sess.sendResponse(211, fmt.Sprintf("%d %d %d %s", rng.Count, rng.Low, rng.High, name))
}

func (sess *Session) cmdListGroup(args []string) error {
	name := sess.currentGroup
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		return sess.sendResponse(412, "no newsgroup selected")
	}
	rng, err := sess.server.Store.GroupRange(name)
	if err != nil {
		return sess.sendResponse(nntperr.CodeOf(err, nntperr.SiteGroup), "no such newsgroup")
	}
	numbers, err := sess.server.Store.ListArticleNumbers(name)
	if err != nil {
		return sess.sendResponse(503, "failed to retrieve article list")
	}

	sess.currentGroup = name
	sess.groupLow = rng.Low
	sess.groupHigh = rng.High
	sess.currentArticle = rng.Low

	lines := make([]string, 0, len(numbers))
	for _, n := range numbers {
		lines = append(lines, fmt.Sprintf("%d", n))
	}
	return sess.sendMultiline(211, fmt.Sprintf("%d %d %d %s list follows", rng.Count, rng.Low, rng.High, name), lines)
}

func (sess *Session) cmdNextLast(args []string, forward bool) error {
	if sess.currentGroup == "" {
		return sess.sendResponse(412, "no newsgroup selected")
	}
	numbers, err := sess.server.Store.ListArticleNumbers(sess.currentGroup)
	if err != nil || len(numbers) == 0 {
		if forward {
			return sess.sendResponse(421, "no next article in this group")
		}
		return sess.sendResponse(422, "no previous article in this group")
	}

	var target int64
	found := false
	if forward {
		for _, n := range numbers {
			if n > sess.currentArticle {
				target = n
				found = true
				break
			}
		}
		if !found {
			return sess.sendResponse(421, "no next article in this group")
		}
	} else {
		for i := len(numbers) - 1; i >= 0; i-- {
			if numbers[i] < sess.currentArticle {
				target = numbers[i]
				found = true
				break
			}
		}
		if !found {
			return sess.sendResponse(422, "no previous article in this group")
		}
	}

	sess.currentArticle = target
	id, err := sess.idForNumber(sess.currentGroup, target)
	if err != nil {
		return sess.sendResponse(nntperr.CodeOf(err, nntperr.SiteDefault), "article not found")
	}
	return sess.sendResponse(223, fmt.Sprintf("%d %s article retrieved", target, id))
}

func (sess *Session) idForNumber(group string, n int64) (string, error) {
	msg, err := sess.server.Store.GetArticleByNumber(group, n)
	if err != nil {
		return "", err
	}
	id, _ := msg.Get("Message-ID")
	return id, nil
}
