package session

import "testing"

func TestStorageCreateSessionReturnsExistingOnRace(t *testing.T) {
	s := NewStorage()

	first := s.CreateSession("host-1", ExtraInfo{SessionID: "sess-a"})
	if first.SessionID != "sess-a" {
		t.Fatalf("expected first session id sess-a, got %s", first.SessionID)
	}

	second := s.CreateSession("host-1", ExtraInfo{SessionID: "sess-b"})
	if second != first {
		t.Fatal("expected CreateSession to return the existing session, not overwrite it")
	}
	if second.SessionID != "sess-a" {
		t.Fatalf("expected incumbent session id sess-a, got %s", second.SessionID)
	}
}

func TestStorageGetAndList(t *testing.T) {
	s := NewStorage()
	s.CreateSession("host-1", ExtraInfo{SessionID: "sess-a"})
	s.CreateSession("host-2", ExtraInfo{SessionID: "sess-b"})

	if s.Get("host-1") == nil {
		t.Fatal("expected host-1 to be found")
	}
	if s.Get("missing") != nil {
		t.Fatal("expected missing host to be nil")
	}

	hosts := s.List()
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
}

func TestStorageRemoveRequiresMatchingSessionID(t *testing.T) {
	s := NewStorage()
	s.CreateSession("host-1", ExtraInfo{SessionID: "sess-a"})

	s.Remove("host-1", "wrong-session")
	if s.Get("host-1") == nil {
		t.Fatal("expected session to survive a remove with the wrong session id")
	}

	s.Remove("host-1", "sess-a")
	if s.Get("host-1") != nil {
		t.Fatal("expected session to be removed once the session id matches")
	}
}
