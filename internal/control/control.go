// Package control dispatches signed administrative control messages
// (newgroup, rmgroup, cancel) per spec.md §4.G. Grounded on the
// teacher's internal/nntp/nntp-cmd-posting.go dispatch shape (switch
// over a history lookup's outcome, one case per branch, each returning
// a client-visible status), generalized from history-cache outcomes to
// Control-header commands.
package control

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/pgp"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

// Processor dispatches control messages against a storage and auth store.
type Processor struct {
	Store *store.Store
	Auth  *auth.Store
}

// New builds a Processor.
func New(st *store.Store, as *auth.Store) *Processor {
	return &Processor{Store: st, Auth: as}
}

// IsControl reports whether msg carries a Control header, the trigger
// condition for Process.
func IsControl(msg *wire.Message) bool {
	_, ok := msg.Get("Control")
	return ok
}

// Process dispatches a control message (spec.md §4.G state machine):
// Accepted -> parse Control -> Dispatch -> newgroup/rmgroup/cancel ->
// Done, or Reject on signature/lock/permission failure. Control
// messages that dispatch successfully are not stored as regular
// articles; the caller must not call store.StoreArticle for them.
func (p *Processor) Process(msg *wire.Message) error {
	control, ok := msg.Get("Control")
	if !ok {
		return nntperr.New(nntperr.KindInvalidHeader, "not a control message")
	}
	fields := strings.Fields(control)
	if len(fields) == 0 {
		return nntperr.New(nntperr.KindInvalidHeader, "empty Control header")
	}

	switch strings.ToLower(fields[0]) {
	case "newgroup":
		return p.newgroup(msg, fields[1:])
	case "rmgroup":
		return p.rmgroup(msg, fields[1:])
	case "cancel":
		return p.cancel(msg, fields[1:])
	default:
		return nntperr.New(nntperr.KindInvalidHeader, "unsupported control command "+fields[0])
	}
}

func (p *Processor) newgroup(msg *wire.Message, args []string) error {
	if len(args) == 0 {
		return nntperr.New(nntperr.KindInvalidHeader, "newgroup requires a group name")
	}
	name := args[0]
	moderated := len(args) > 1 && strings.EqualFold(args[1], "moderated")

	signer, err := p.requireAdminSignature(msg)
	if err != nil {
		return err
	}
	_ = signer
	return p.Store.AddGroup(name, moderated)
}

func (p *Processor) rmgroup(msg *wire.Message, args []string) error {
	if len(args) == 0 {
		return nntperr.New(nntperr.KindInvalidHeader, "rmgroup requires a group name")
	}
	if _, err := p.requireAdminSignature(msg); err != nil {
		return err
	}
	return p.Store.RemoveGroup(args[0])
}

func (p *Processor) cancel(msg *wire.Message, args []string) error {
	if len(args) == 0 {
		return nntperr.New(nntperr.KindInvalidHeader, "cancel requires a target Message-ID")
	}
	targetID := args[0]

	target, err := p.Store.GetArticleByID(targetID)
	if err != nil {
		return err
	}

	if _, err := p.requireAdminSignature(msg); err == nil {
		return p.Store.DeleteArticleByID(targetID)
	}

	if err := p.verifyCancelKey(msg, target); err != nil {
		return err
	}
	return p.Store.DeleteArticleByID(targetID)
}

// verifyCancelKey checks the Cancel-Key in msg against target's
// Cancel-Lock header: base64(sha256(key)) must equal the lock value
// (spec.md §4.G, §8 invariant 7).
func (p *Processor) verifyCancelKey(msg, target *wire.Message) error {
	cancelKey, ok := msg.Get("Cancel-Key")
	if !ok {
		return nntperr.New(nntperr.KindAccountDisabled, "cancel requires admin signature or a matching Cancel-Key")
	}
	lock, ok := target.Get("Cancel-Lock")
	if !ok {
		return nntperr.New(nntperr.KindAccountDisabled, "target article carries no Cancel-Lock")
	}
	if !cancelKeyMatches(cancelKey, lock) {
		return nntperr.New(nntperr.KindAccountDisabled, "Cancel-Key does not match Cancel-Lock")
	}
	return nil
}

// cancelKeyMatches implements the pre-image check: each scheme:value
// token pair in cancelKey is checked against the matching scheme in
// lock (only sha256 is supported, per spec.md's glossary entry).
func cancelKeyMatches(cancelKey, lock string) bool {
	for _, keyTok := range strings.Fields(cancelKey) {
		scheme, key, ok := strings.Cut(keyTok, ":")
		if !ok || scheme != "sha256" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		computed := "sha256:" + base64.StdEncoding.EncodeToString(sum[:])
		for _, lockTok := range strings.Fields(lock) {
			if lockTok == computed {
				return true
			}
		}
	}
	return false
}

// requireAdminSignature verifies msg carries a detached PGP signature
// from an admin user over the canonical admin header set, and returns
// that admin's username.
func (p *Processor) requireAdminSignature(msg *wire.Message) (string, error) {
	sigValue, ok := msg.Get("X-PGP-Sig")
	if !ok {
		return "", nntperr.New(nntperr.KindAccountDisabled, "control message carries no X-PGP-Sig")
	}
	from, ok := msg.Get("Sender")
	if !ok {
		from, ok = msg.Get("From")
	}
	if !ok {
		return "", nntperr.New(nntperr.KindAccountDisabled, "control message carries no From/Sender")
	}
	signer := extractUsername(from)
	if !p.Auth.IsAdmin(signer) {
		return "", nntperr.New(nntperr.KindAccountDisabled, fmt.Sprintf("%s is not an admin", signer))
	}
	key, ok := p.Auth.GetPGPKey(signer)
	if !ok {
		return "", nntperr.New(nntperr.KindAccountDisabled, "no PGP key on file for "+signer)
	}

	headers := pgp.XPGPSigHeaders(sigValue)
	if headers == nil {
		headers = pgp.AdminCanonicalHeaders
	}
	armor := pgp.XPGPSigArmor(sigValue)
	canonical := pgp.CanonicalText(msg, headers)
	if err := pgp.VerifyDetached(key, armor, canonical); err != nil {
		return "", nntperr.Wrap(nntperr.KindAccountDisabled, "control message signature verification failed", err)
	}
	return signer, nil
}

// extractUsername pulls a bare local-part out of a From/Sender header
// value like "Name <user@host>" or "user@host".
func extractUsername(addr string) string {
	if i := strings.IndexByte(addr, '<'); i >= 0 {
		addr = addr[i+1:]
		addr = strings.TrimSuffix(addr, ">")
	}
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		return addr[:at]
	}
	return strings.TrimSpace(addr)
}
