package retention

import (
	"sync"
	"testing"
	"time"

	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func articleWithExpires(id, group, expires string) *wire.Message {
	msg := &wire.Message{Body: "stale"}
	msg.Set("Message-ID", id)
	msg.Set("Newsgroups", group)
	msg.Set("Subject", "x")
	if expires != "" {
		msg.Set("Expires", expires)
	}
	return msg
}

func TestParseHeaderDate(t *testing.T) {
	if _, err := parseHeaderDate("Mon, 02 Jan 2006 15:04:05 -0700"); err != nil {
		t.Fatalf("RFC1123Z should parse: %v", err)
	}
	if _, err := parseHeaderDate("2006-01-02T15:04:05Z"); err != nil {
		t.Fatalf("RFC3339 should parse: %v", err)
	}
	if _, err := parseHeaderDate("not a date"); err == nil {
		t.Fatal("expected an error for garbage input")
	}
}

func TestSweepOnceDeletesExpiredArticle(t *testing.T) {
	st := newTestStore(t)
	if err := st.AddGroup("misc.test", false); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if err := st.StoreArticle(articleWithExpires("<expired@test>", "misc.test", past)); err != nil {
		t.Fatal(err)
	}
	if err := st.StoreArticle(articleWithExpires("<fresh@test>", "misc.test", "")); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cell := config.NewCell(cfg)
	var wg sync.WaitGroup
	sw := NewSweeper(st, cell, time.Hour, &wg)

	sw.sweepOnce()

	if _, err := st.GetArticleByID("<expired@test>"); err == nil {
		t.Fatal("expected the expired article to be deleted")
	}
	if _, err := st.GetArticleByID("<fresh@test>"); err != nil {
		t.Fatalf("expected the fresh article to survive, got %v", err)
	}
}

func TestSweepOncePurgesGroupByRetentionWindow(t *testing.T) {
	st := newTestStore(t)
	if err := st.AddGroup("misc.test", false); err != nil {
		t.Fatal(err)
	}
	if err := st.StoreArticle(articleWithExpires("<old@test>", "misc.test", "")); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Groups.RetentionByGroup = map[string]int64{"misc.test": 1}
	cell := config.NewCell(cfg)
	var wg sync.WaitGroup
	sw := NewSweeper(st, cell, time.Hour, &wg)

	// inserted_at and the cutoff are whole unix seconds, so wait past two
	// second boundaries for the 1-second window to cover the insert.
	time.Sleep(2100 * time.Millisecond)
	sw.sweepOnce()

	if _, err := st.GetArticleByNumber("misc.test", 1); err == nil {
		t.Fatal("expected the article to be purged by the 1-second retention window")
	}
}
