package usage

import (
	"testing"

	"github.com/nntpcore/newsd/internal/auth"
)

func newTestTracker(t *testing.T) (*Tracker, *auth.Store) {
	t.Helper()
	store, err := auth.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	store.AddUser("alice", "pw")
	return New(store, auth.Limits{}), store
}

func TestConnectionLimit(t *testing.T) {
	tr, store := newTestTracker(t)
	maxConn := int64(2)
	store.SetLimits("alice", auth.Limits{MaxConnections: &maxConn})

	if tr.TryConnect("alice") != Allowed {
		t.Fatal("expected first connect allowed")
	}
	if tr.TryConnect("alice") != Allowed {
		t.Fatal("expected second connect allowed")
	}
	if tr.TryConnect("alice") != DeniedConnectionLimit {
		t.Fatal("expected third connect denied")
	}
	tr.Disconnect("alice")
	if tr.TryConnect("alice") != Allowed {
		t.Fatal("expected connect allowed after disconnect freed a slot")
	}
}

func TestUnlimitedConnections(t *testing.T) {
	tr, _ := newTestTracker(t)
	for i := 0; i < 50; i++ {
		if tr.TryConnect("alice") != Allowed {
			t.Fatalf("expected unlimited connect %d to be allowed", i)
		}
	}
}

func TestBandwidthCap(t *testing.T) {
	tr, store := newTestTracker(t)
	cap := int64(100)
	store.SetLimits("alice", auth.Limits{BandwidthCapBytes: &cap})

	if tr.CheckBandwidth("alice", 60) != Allowed {
		t.Fatal("expected 60 bytes allowed under cap 100")
	}
	tr.RecordBandwidth("alice", 60, true)
	if tr.CheckBandwidth("alice", 50) != DeniedBandwidth {
		t.Fatal("expected 60+50 > 100 to be denied")
	}
	if tr.CheckBandwidth("alice", 40) != Allowed {
		t.Fatal("expected 60+40 == 100 to be allowed")
	}
}

func TestCanPost(t *testing.T) {
	tr, store := newTestTracker(t)
	if tr.CanPost("alice") != Allowed {
		t.Fatal("expected posting allowed by default")
	}
	no := false
	store.SetLimits("alice", auth.Limits{PostingAllowed: &no})
	tr.InvalidateLimitsCache("alice")
	if tr.CanPost("alice") != DeniedPostingDisabled {
		t.Fatal("expected posting disabled")
	}
}

func TestPersist(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.RecordBandwidth("alice", 10, true)
	n := tr.Persist(nil)
	if n != 1 {
		t.Fatalf("expected 1 user persisted, got %d", n)
	}
	u, err := store.GetUsage("alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.BytesUploaded != 10 {
		t.Fatalf("got %+v", u)
	}
}
