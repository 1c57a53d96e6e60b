// Package pgp builds the canonical signing text for control messages
// and moderation approvals (spec.md §4.G) and verifies detached
// signatures against a user's stored PGP public key. Grounded on the
// teacher's "crypto lives in golang.org/x/crypto" convention
// (db_nntp_users.go uses that module's bcrypt); this package reaches
// for the same module's openpgp subpackage, the only PGP implementation
// in the retrieved ecosystem sample.
package pgp

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"github.com/nntpcore/newsd/internal/wire"
)

// AdminCanonicalHeaders is the fixed header order used to sign admin
// control messages (newgroup/rmgroup/cancel) per spec.md §4.G.
var AdminCanonicalHeaders = []string{"Subject", "Control", "Message-ID", "Date", "From", "Sender"}

// CanonicalText reconstructs the canonical signing text for msg: each
// header in headers, in order, as "Name: value\n" (LF, no folding, no
// trailing whitespace), a blank line, then the body with LF endings.
// Headers msg doesn't carry are simply skipped.
func CanonicalText(msg *wire.Message, headers []string) string {
	var b strings.Builder
	for _, name := range headers {
		v, ok := msg.Get(name)
		if !ok {
			continue
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.TrimRight(v, " \t"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.ReplaceAll(msg.Body, "\r\n", "\n"))
	return b.String()
}

// ApprovalCanonicalText builds the canonical text for a moderation
// approval check: msg with its Approved header replaced by exactly one
// value (approver), per spec.md §4.F.4.
func ApprovalCanonicalText(msg *wire.Message, headers []string, approver string) string {
	clone := &wire.Message{Headers: append([]wire.Header{}, msg.Headers...), Body: msg.Body}
	clone.Delete("Approved")
	clone.Set("Approved", approver)
	return CanonicalText(clone, headers)
}

// XPGPSigHeaders parses the signed-headers field of an X-PGP-Sig header
// value (the comma-separated header list that follows the version
// token) into the header names a control message or moderated posting
// declares it signed. It returns nil when that field is absent.
func XPGPSigHeaders(xpgpSig string) []string {
	fields := strings.Fields(xpgpSig)
	if len(fields) < 2 {
		return nil
	}
	var out []string
	for _, h := range strings.Split(fields[1], ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// XPGPSigArmor reassembles the base64 signature body from the
// continuation lines of an X-PGP-Sig header (the wire codec joins
// continuations with spaces; the armor body needs them back as lines).
func XPGPSigArmor(xpgpSigValue string) string {
	fields := strings.Fields(xpgpSigValue)
	if len(fields) < 3 {
		return ""
	}
	body := strings.Join(fields[2:], "\n")
	return "-----BEGIN PGP SIGNATURE-----\n\n" + body + "\n-----END PGP SIGNATURE-----\n"
}

// VerifyDetached checks a detached signature (PEM/armor-wrapped) over
// signedText against the given armored public key.
func VerifyDetached(publicKeyArmor, signatureArmor, signedText string) error {
	keyBlock, err := armor.Decode(strings.NewReader(publicKeyArmor))
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	keyring, err := openpgp.ReadKeyRing(keyBlock.Body)
	if err != nil {
		return fmt.Errorf("read key ring: %w", err)
	}

	sigBlock, err := armor.Decode(strings.NewReader(signatureArmor))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader([]byte(signedText)), sigBlock.Body, nil)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
