package playback

import "testing"

func TestTracker_ApplyEventAddsAndRemovesSessions(t *testing.T) {
	tr := NewTracker()

	start := &Event{Vendor: VendorPlex, ServerUID: "s1", Username: "alice", Action: ActionStart}
	before, after := tr.ApplyEvent(start)
	if before != 0 || after != 1 {
		t.Fatalf("expected 0 -> 1, got %d -> %d", before, after)
	}

	// Repeated start for the same user is idempotent
	_, after = tr.ApplyEvent(start)
	if after != 1 {
		t.Fatalf("expected repeated start to be idempotent, got %d", after)
	}

	stop := &Event{Vendor: VendorPlex, ServerUID: "s1", Username: "alice", Action: ActionStop}
	before, after = tr.ApplyEvent(stop)
	if before != 1 || after != 0 {
		t.Fatalf("expected 1 -> 0, got %d -> %d", before, after)
	}
}

func TestTracker_StopForUnknownSessionIsNoop(t *testing.T) {
	tr := NewTracker()

	stop := &Event{Vendor: VendorEmby, ServerUID: "s1", Username: "ghost", Action: ActionStop}
	before, after := tr.ApplyEvent(stop)
	if before != 0 || after != 0 {
		t.Fatalf("expected 0 -> 0, got %d -> %d", before, after)
	}
}

func TestTracker_CountsAcrossServers(t *testing.T) {
	tr := NewTracker()

	tr.ApplyEvent(&Event{Vendor: VendorPlex, ServerUID: "s1", Username: "alice", Action: ActionStart})
	tr.ApplyEvent(&Event{Vendor: VendorJellyfin, ServerUID: "s2", Username: "bob", Action: ActionStart})
	tr.ApplyEvent(&Event{Vendor: VendorJellyfin, ServerUID: "s2", Username: "carol", Action: ActionStart})

	if got := tr.ActiveCount(); got != 3 {
		t.Fatalf("expected 3 active sessions, got %d", got)
	}

	// Same username on a different server is a distinct session
	tr.ApplyEvent(&Event{Vendor: VendorEmby, ServerUID: "s3", Username: "alice", Action: ActionStart})
	if got := tr.ActiveCount(); got != 4 {
		t.Fatalf("expected 4 active sessions, got %d", got)
	}
}

func TestTracker_ReplaceServerOverwritesState(t *testing.T) {
	tr := NewTracker()

	tr.ReplaceServer("plex:1", []string{"sess-1", "sess-2"})
	if got := tr.ActiveCount(); got != 2 {
		t.Fatalf("expected 2 sessions after replace, got %d", got)
	}

	before, after := tr.ReplaceServer("plex:1", []string{"sess-3"})
	if before != 2 || after != 1 {
		t.Fatalf("expected 2 -> 1, got %d -> %d", before, after)
	}

	// Empty poll result clears the server
	_, after = tr.ReplaceServer("plex:1", nil)
	if after != 0 {
		t.Fatalf("expected 0 sessions after empty replace, got %d", after)
	}
}

func TestTracker_ReplaceServerDoesNotTouchOtherServers(t *testing.T) {
	tr := NewTracker()

	tr.ApplyEvent(&Event{Vendor: VendorPlex, ServerUID: "s1", Username: "alice", Action: ActionStart})
	tr.ReplaceServer("jellyfin:2", []string{"sess-1"})

	_, after := tr.ReplaceServer("jellyfin:2", nil)
	if after != 1 {
		t.Fatalf("expected webhook session to survive poll of another server, got %d", after)
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker()

	tr.ApplyEvent(&Event{Vendor: VendorPlex, ServerUID: "s1", Username: "bob", Action: ActionStart})
	tr.ApplyEvent(&Event{Vendor: VendorPlex, ServerUID: "s1", Username: "alice", Action: ActionStart})

	snap := tr.Snapshot()
	users, ok := snap["plex:s1"]
	if !ok {
		t.Fatal("expected plex:s1 in snapshot")
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("expected sorted users [alice bob], got %v", users)
	}
}
