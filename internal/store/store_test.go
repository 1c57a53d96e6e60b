package store

import (
	"testing"
	"time"

	"github.com/nntpcore/newsd/internal/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessage(id, newsgroups string) *wire.Message {
	m := &wire.Message{
		Headers: []wire.Header{
			{Name: "Message-ID", Value: id},
			{Name: "From", Value: "a@b"},
			{Name: "Subject", Value: "hi"},
			{Name: "Newsgroups", Value: newsgroups},
		},
		Body: "hello world",
	}
	return m
}

func TestStoreAndFetchArticle(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddGroup("misc.test", false); err != nil {
		t.Fatal(err)
	}
	msg := sampleMessage("<1@test>", "misc.test")
	if err := s.StoreArticle(msg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetArticleByNumber("misc.test", 1)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Get("Message-ID"); v != "<1@test>" {
		t.Fatalf("got %q", v)
	}

	byID, err := s.GetArticleByID("<1@test>")
	if err != nil {
		t.Fatal(err)
	}
	if byID.Body != "hello world" {
		t.Fatalf("got body %q", byID.Body)
	}
}

func TestStoreArticleIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.AddGroup("misc.test", false)
	msg := sampleMessage("<dup@test>", "misc.test")
	if err := s.StoreArticle(msg); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreArticle(msg); err != nil {
		t.Fatal(err)
	}
	ids, err := s.ListArticleIDs("misc.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 group_article rows (one per store_article call), got %d", len(ids))
	}
	var count int
	s.db.QueryRow(`SELECT COUNT(1) FROM messages WHERE message_id = ?`, "<dup@test>").Scan(&count)
	if count != 1 {
		t.Fatalf("expected exactly one message row, got %d", count)
	}
}

func TestAddGroupIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddGroup("alt.test", false); err != nil {
		t.Fatal(err)
	}
	if err := s.AddGroup("alt.test", true); err != nil {
		t.Fatal(err)
	}
	groups, err := s.ListGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected exactly one group, got %v", groups)
	}
}

func TestDeleteArticleByID(t *testing.T) {
	s := newTestStore(t)
	s.AddGroup("misc.test", false)
	msg := sampleMessage("<del@test>", "misc.test")
	s.StoreArticle(msg)
	if err := s.DeleteArticleByID("<del@test>"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetArticleByID("<del@test>"); err == nil {
		t.Fatal("expected article to be gone")
	}
}

func TestListArticleIDsSinceIsSubsequence(t *testing.T) {
	s := newTestStore(t)
	s.AddGroup("misc.test", false)
	cutoff := time.Now()
	s.StoreArticle(sampleMessage("<a@test>", "misc.test"))
	since, err := s.ListArticleIDsSince("misc.test", cutoff.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	all, err := s.ListArticleIDs("misc.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != len(all) {
		t.Fatalf("expected since() to equal all() for a cutoff before any insert: %v vs %v", since, all)
	}
}

func TestCrossPost(t *testing.T) {
	s := newTestStore(t)
	s.AddGroup("a.test", false)
	s.AddGroup("b.test", false)
	s.StoreArticle(sampleMessage("<x@test>", "a.test, b.test"))
	na, _ := s.ArticleNumberForID("a.test", "<x@test>")
	nb, _ := s.ArticleNumberForID("b.test", "<x@test>")
	if na != 1 || nb != 1 {
		t.Fatalf("expected independent numbering, got %d %d", na, nb)
	}
}
