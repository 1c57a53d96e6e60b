package queue

import (
	"testing"
	"time"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/control"
	"github.com/nntpcore/newsd/internal/filter"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

func newTestQueue(t *testing.T, capacity, workers int) *Queue {
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
	if err := st.AddGroup("misc.test", false); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	deps := filter.Deps{Store: st, Auth: as, Config: cfg}
	chain := filter.NewChain()
	ctl := control.New(st, as)

	q := New(capacity, workers, deps, chain, ctl)
	t.Cleanup(q.Stop)
	return q
}

func sampleMsg(id string) *wire.Message {
	return &wire.Message{Headers: []wire.Header{
		{Name: "Message-ID", Value: id},
		{Name: "From", Value: "a@b"},
		{Name: "Subject", Value: "hi"},
		{Name: "Newsgroups", Value: "misc.test"},
	}, Body: "body"}
}

func TestSubmitAndStore(t *testing.T) {
	q := newTestQueue(t, 4, 2)
	result, err := q.Submit(sampleMsg("<one@test>"), 4)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected article to be accepted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker")
	}
}

func TestSubmitRejectsInvalid(t *testing.T) {
	q := newTestQueue(t, 4, 1)
	msg := &wire.Message{Headers: []wire.Header{
		{Name: "Message-ID", Value: "<bad@test>"},
	}, Body: "body"}
	result, err := q.Submit(msg, 4)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-result:
		if err == nil {
			t.Fatal("expected rejection for missing headers")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker")
	}
}

func TestSubmitFailsFastWhenFull(t *testing.T) {
	// Zero workers: nothing drains the channel, so the single slot
	// fills on the first submission and the second must fail fast.
	q := newTestQueue(t, 1, 0)
	if _, err := q.Submit(sampleMsg("<a@test>"), 4); err != nil {
		t.Fatalf("expected first submission to fit, got %v", err)
	}
	_, err := q.Submit(sampleMsg("<b@test>"), 4)
	if err == nil {
		t.Fatal("expected second submission to fail fast on a full queue")
	}
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindFilterRejected {
		t.Fatalf("expected FilterRejected, got %v", err)
	}
}
