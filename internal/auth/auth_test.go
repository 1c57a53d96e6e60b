package auth

import (
	"testing"

	"github.com/nntpcore/newsd/internal/nntperr"
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

func TestAddAndVerifyUser(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddUser("alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if err := s.VerifyUser("alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	err := s.VerifyUser("alice", "wrong")
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindInvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
}

func TestVerifyUnknownUser(t *testing.T) {
	s := newTestStore(t)
	err := s.VerifyUser("nobody", "x")
	e, ok := nntperr.As(err)
	if !ok || e.Kind != nntperr.KindUserNotFound {
		t.Fatalf("expected UserNotFound, got %v", err)
	}
}

func TestAdminRoleCycle(t *testing.T) {
	s := newTestStore(t)
	s.AddUser("bob", "pw")
	if s.IsAdmin("bob") {
		t.Fatal("should not be admin yet")
	}
	if err := s.AddAdminWithoutKey("bob"); err != nil {
		t.Fatal(err)
	}
	if !s.IsAdmin("bob") {
		t.Fatal("expected admin")
	}
	if err := s.RemoveAdmin("bob"); err != nil {
		t.Fatal(err)
	}
	if s.IsAdmin("bob") {
		t.Fatal("expected admin revoked")
	}
}

func TestModeratorWildmat(t *testing.T) {
	s := newTestStore(t)
	s.AddUser("carol", "pw")
	s.AddModerator("carol", "comp.*")
	if !s.IsModerator("carol", "comp.lang.go") {
		t.Fatal("expected moderator match")
	}
	if s.IsModerator("carol", "alt.test") {
		t.Fatal("expected no match")
	}
	mods, err := s.ModeratorsOf("comp.lang.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 1 || mods[0] != "carol" {
		t.Fatalf("got %v", mods)
	}
}

func TestRemoveUserCascades(t *testing.T) {
	s := newTestStore(t)
	s.AddUser("dave", "pw")
	s.AddAdminWithoutKey("dave")
	s.AddModerator("dave", "alt.*")
	if err := s.RemoveUser("dave"); err != nil {
		t.Fatal(err)
	}
	if s.IsAdmin("dave") {
		t.Fatal("expected admin row cascaded away")
	}
	if s.IsModerator("dave", "alt.test") {
		t.Fatal("expected moderator row cascaded away")
	}
}

func TestLimitsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.AddUser("erin", "pw")
	maxConn := int64(3)
	allowed := false
	if err := s.SetLimits("erin", Limits{MaxConnections: &maxConn, PostingAllowed: &allowed}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetLimits("erin")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxConnections == nil || *got.MaxConnections != 3 {
		t.Fatalf("got %+v", got)
	}
	if got.PostingAllowed == nil || *got.PostingAllowed != false {
		t.Fatalf("got %+v", got)
	}
	if got.BandwidthCapBytes != nil {
		t.Fatalf("expected nil bandwidth cap, got %v", *got.BandwidthCapBytes)
	}
}
