package control

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	as, err := auth.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { as.Close() })
	return New(st, as)
}

func TestCancelKeyMatches(t *testing.T) {
	key := "supersecret"
	sum := sha256.Sum256([]byte(key))
	lock := "sha256:" + base64.StdEncoding.EncodeToString(sum[:])

	if !cancelKeyMatches("sha256:"+key, lock) {
		t.Fatal("expected matching cancel key to verify")
	}
	if cancelKeyMatches("sha256:wrongkey", lock) {
		t.Fatal("expected non-matching cancel key to fail")
	}
}

func TestCancelWithoutSignatureOrKeyRejected(t *testing.T) {
	p := newTestProcessor(t)
	p.Store.AddGroup("misc.test", false)
	target := &wire.Message{Headers: []wire.Header{
		{Name: "Message-ID", Value: "<target@test>"},
		{Name: "From", Value: "a@b"},
		{Name: "Subject", Value: "hi"},
		{Name: "Newsgroups", Value: "misc.test"},
	}, Body: "body"}
	if err := p.Store.StoreArticle(target); err != nil {
		t.Fatal(err)
	}

	cancelMsg := &wire.Message{Headers: []wire.Header{
		{Name: "Control", Value: "cancel <target@test>"},
		{Name: "From", Value: "someone@else"},
	}}
	err := p.Process(cancelMsg)
	if err == nil {
		t.Fatal("expected rejection without admin signature or cancel key")
	}
	if e, ok := nntperr.As(err); !ok || e.Kind != nntperr.KindAccountDisabled {
		t.Fatalf("expected AccountDisabled, got %v", err)
	}
}

func TestCancelWithMatchingKeySucceeds(t *testing.T) {
	p := newTestProcessor(t)
	p.Store.AddGroup("misc.test", false)
	key := "mykey123"
	sum := sha256.Sum256([]byte(key))
	lock := "sha256:" + base64.StdEncoding.EncodeToString(sum[:])

	target := &wire.Message{Headers: []wire.Header{
		{Name: "Message-ID", Value: "<target2@test>"},
		{Name: "From", Value: "a@b"},
		{Name: "Subject", Value: "hi"},
		{Name: "Newsgroups", Value: "misc.test"},
		{Name: "Cancel-Lock", Value: lock},
	}, Body: "body"}
	if err := p.Store.StoreArticle(target); err != nil {
		t.Fatal(err)
	}

	cancelMsg := &wire.Message{Headers: []wire.Header{
		{Name: "Control", Value: "cancel <target2@test>"},
		{Name: "From", Value: "someone@else"},
		{Name: "Cancel-Key", Value: "sha256:" + key},
	}}
	if err := p.Process(cancelMsg); err != nil {
		t.Fatalf("expected cancel to succeed with matching key, got %v", err)
	}
	if _, err := p.Store.GetArticleByID("<target2@test>"); err == nil {
		t.Fatal("expected article to be gone after cancel")
	}
}

func TestNewgroupWithoutAdminSignatureRejected(t *testing.T) {
	p := newTestProcessor(t)
	msg := &wire.Message{Headers: []wire.Header{
		{Name: "Control", Value: "newgroup misc.newgroup"},
		{Name: "From", Value: "someone@else"},
	}}
	if err := p.Process(msg); err == nil {
		t.Fatal("expected rejection without admin signature")
	}
	if _, err := p.Store.GetGroup("misc.newgroup"); err == nil {
		t.Fatal("expected group not to have been created")
	}
}
