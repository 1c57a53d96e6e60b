package filter

import (
	"fmt"
	"strings"

	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/pgp"
	"github.com/nntpcore/newsd/internal/wire"
)

// HeaderFilter rejects an article missing From, Subject, or Newsgroups,
// or whose Newsgroups list (comma-split, trimmed, empty entries
// dropped) is empty (spec.md §4.F.1).
type HeaderFilter struct{}

func (HeaderFilter) Name() string { return "header" }

func (HeaderFilter) Check(_ Deps, msg *wire.Message, _ int64) error {
	for _, required := range []string{"From", "Subject", "Newsgroups"} {
		v, ok := msg.Get(required)
		if !ok || strings.TrimSpace(v) == "" {
			return nntperr.New(nntperr.KindMissingHeader, fmt.Sprintf("missing required header %s", required))
		}
	}
	if len(TargetGroups(msg)) == 0 {
		return nntperr.New(nntperr.KindMissingHeader, "Newsgroups header has no usable group names")
	}
	return nil
}

// TargetGroups splits and trims the Newsgroups header into group
// tokens, dropping empties, shared by every predicate that needs the
// target group list.
func TargetGroups(msg *wire.Message) []string {
	raw, ok := msg.Get("Newsgroups")
	if !ok {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// SizeFilter rejects articles exceeding the resolved max-bytes setting
// for any target group (spec.md §4.F.2).
type SizeFilter struct{}

func (SizeFilter) Name() string { return "size" }

func (SizeFilter) Check(deps Deps, msg *wire.Message, size int64) error {
	for _, group := range TargetGroups(msg) {
		max := deps.Config.ResolveMaxBytes(group)
		if max > 0 && size > max {
			return nntperr.New(nntperr.KindSizeExceeded, fmt.Sprintf("article too large for group %s", group))
		}
	}
	return nil
}

// GroupExistenceFilter rejects an article if any listed group is not
// present in storage (spec.md §4.F.3).
type GroupExistenceFilter struct{}

func (GroupExistenceFilter) Name() string { return "group-existence" }

func (GroupExistenceFilter) Check(deps Deps, msg *wire.Message, _ int64) error {
	for _, group := range TargetGroups(msg) {
		if _, err := deps.Store.GetGroup(group); err != nil {
			return nntperr.New(nntperr.KindGroupNotFound, fmt.Sprintf("unknown group %s", group))
		}
	}
	return nil
}

// ModerationFilter enforces moderator approval on moderated target
// groups, verifying detached PGP signatures over a canonicalised
// reconstruction of the article per approver (spec.md §4.F.4).
//
// Cross-posted articles naming both a moderated and an unmoderated
// group are enforced per-group (this predicate's default posture); set
// Config.Filters.StrictCrossPostModeration to require moderation for
// every target group when any one of them is moderated, per the Open
// Question in spec.md §9 (decision recorded in DESIGN.md).
type ModerationFilter struct{}

func (ModerationFilter) Name() string { return "moderation" }

func (ModerationFilter) Check(deps Deps, msg *wire.Message, _ int64) error {
	groups := TargetGroups(msg)
	anyModerated := false
	var moderatedGroups []string
	for _, g := range groups {
		if deps.Store.IsGroupModerated(g) {
			anyModerated = true
			moderatedGroups = append(moderatedGroups, g)
		}
	}
	if !anyModerated {
		return nil
	}
	if deps.Config.Filters.StrictCrossPostModeration {
		moderatedGroups = groups
	}

	approvals := msg.GetAll("Approved")
	xpgpSigs := msg.GetAll("X-PGP-Sig")

	for _, group := range moderatedGroups {
		approvers, err := deps.Auth.ModeratorsOf(group)
		if err != nil {
			return nntperr.Wrap(nntperr.KindDatabase, "resolve moderators", err)
		}
		approverSet := map[string]bool{}
		for _, a := range approvers {
			approverSet[a] = true
		}

		var matched []string
		for _, a := range approvals {
			if approverSet[strings.TrimSpace(a)] {
				matched = append(matched, strings.TrimSpace(a))
			}
		}
		if len(matched) == 0 {
			return nntperr.New(nntperr.KindModerationRequired, fmt.Sprintf("group %s is moderated and carries no recognised Approved header", group))
		}
		if len(xpgpSigs) < len(matched) {
			return nntperr.New(nntperr.KindModerationRequired, "fewer X-PGP-Sig headers than approvers")
		}

		if err := verifyApprovals(deps, msg, matched); err != nil {
			return err
		}
	}
	return nil
}

func verifyApprovals(deps Deps, msg *wire.Message, approvers []string) error {
	xpgpSigs := msg.GetAll("X-PGP-Sig")
	for i, approver := range approvers {
		if i >= len(xpgpSigs) {
			return nntperr.New(nntperr.KindModerationRequired, "missing X-PGP-Sig for approver "+approver)
		}
		sigValue := xpgpSigs[i]
		headers := pgp.XPGPSigHeaders(sigValue)
		if headers == nil {
			headers = pgp.AdminCanonicalHeaders
		}
		armor := pgp.XPGPSigArmor(sigValue)
		if armor == "" {
			return nntperr.New(nntperr.KindModerationRequired, "malformed X-PGP-Sig for approver "+approver)
		}
		key, ok := deps.Auth.GetPGPKey(approver)
		if !ok {
			return nntperr.New(nntperr.KindModerationRequired, "no PGP key on file for approver "+approver)
		}
		canonical := pgp.ApprovalCanonicalText(msg, headers, approver)
		if err := pgp.VerifyDetached(key, armor, canonical); err != nil {
			return nntperr.Wrap(nntperr.KindModerationRequired, "signature verification failed for approver "+approver, err)
		}
	}
	return nil
}
