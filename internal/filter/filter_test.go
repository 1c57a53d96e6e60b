package filter

import (
	"testing"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

func testDeps(t *testing.T) Deps {
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
	cfg := config.Default()
	return Deps{Store: st, Auth: as, Config: cfg}
}

func msgFor(newsgroups string) *wire.Message {
	return &wire.Message{
		Headers: []wire.Header{
			{Name: "From", Value: "a@b"},
			{Name: "Subject", Value: "hi"},
			{Name: "Newsgroups", Value: newsgroups},
		},
		Body: "hello",
	}
}

func TestHeaderFilterRejectsMissing(t *testing.T) {
	deps := testDeps(t)
	msg := &wire.Message{Headers: []wire.Header{{Name: "From", Value: "a@b"}}}
	err := HeaderFilter{}.Check(deps, msg, 5)
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindMissingHeader {
		t.Fatalf("expected MissingHeader, got %v", err)
	}
}

func TestSizeFilterRejectsOversized(t *testing.T) {
	deps := testDeps(t)
	deps.Config.Groups.DefaultMaxBytes = 10
	msg := msgFor("misc.test")
	err := SizeFilter{}.Check(deps, msg, 100)
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindSizeExceeded {
		t.Fatalf("expected SizeExceeded, got %v", err)
	}
}

func TestGroupExistenceFilter(t *testing.T) {
	deps := testDeps(t)
	msg := msgFor("misc.unknown")
	err := GroupExistenceFilter{}.Check(deps, msg, 5)
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindGroupNotFound {
		t.Fatalf("expected GroupNotFound, got %v", err)
	}

	deps.Store.AddGroup("misc.known", false)
	msg2 := msgFor("misc.known")
	if err := GroupExistenceFilter{}.Check(deps, msg2, 5); err != nil {
		t.Fatalf("expected pass for known group, got %v", err)
	}
}

func TestModerationFilterRequiresApproval(t *testing.T) {
	deps := testDeps(t)
	deps.Store.AddGroup("mod.group", true)
	msg := msgFor("mod.group")
	err := ModerationFilter{}.Check(deps, msg, 5)
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindModerationRequired {
		t.Fatalf("expected ModerationRequired, got %v", err)
	}
}

func TestModerationFilterSkipsUnmoderated(t *testing.T) {
	deps := testDeps(t)
	deps.Store.AddGroup("plain.group", false)
	msg := msgFor("plain.group")
	if err := ModerationFilter{}.Check(deps, msg, 5); err != nil {
		t.Fatalf("expected pass for unmoderated group, got %v", err)
	}
}

func TestChainMonotonicity(t *testing.T) {
	deps := testDeps(t)
	deps.Store.AddGroup("misc.test", false)
	msg := msgFor("misc.test")

	shortChain := &Chain{predicates: []Predicate{HeaderFilter{}}}
	if err := shortChain.Run(deps, msg, 5); err != nil {
		t.Fatalf("short chain unexpectedly rejected: %v", err)
	}

	longChain := &Chain{predicates: []Predicate{HeaderFilter{}, rejectAll{}}}
	if err := longChain.Run(deps, msg, 5); err == nil {
		t.Fatal("expected longer chain to reject what the shorter chain accepted")
	}
}

type rejectAll struct{}

func (rejectAll) Name() string { return "reject-all" }
func (rejectAll) Check(Deps, *wire.Message, int64) error {
	return nntperr.New(nntperr.KindFilterRejected, "rejected by test predicate")
}
