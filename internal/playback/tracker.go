package playback

import (
	"sort"
	"sync"
)

// Tracker maintains the set of active playback sessions across all media
// servers. Webhook events mutate individual sessions; poll results replace a
// server's state wholesale. The last writer wins per server.
type Tracker struct {
	mu      sync.RWMutex
	servers map[string]map[string]struct{}
}

// NewTracker creates an empty session tracker
func NewTracker() *Tracker {
	return &Tracker{
		servers: make(map[string]map[string]struct{}),
	}
}

// ApplyEvent applies a webhook event to the tracked state and returns the
// total active session count before and after
func (t *Tracker) ApplyEvent(event *Event) (before, after int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before = t.totalLocked()

	serverKey := event.ServerKey()
	sessions, ok := t.servers[serverKey]
	if !ok {
		sessions = make(map[string]struct{})
		t.servers[serverKey] = sessions
	}

	switch event.Action {
	case ActionStart:
		sessions[event.SessionKey()] = struct{}{}
	case ActionStop:
		delete(sessions, event.SessionKey())
		if len(sessions) == 0 {
			delete(t.servers, serverKey)
		}
	}

	return before, t.totalLocked()
}

// ReplaceServer replaces a server's session set with a fresh poll result and
// returns the total active session count before and after
func (t *Tracker) ReplaceServer(serverKey string, sessionKeys []string) (before, after int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before = t.totalLocked()

	if len(sessionKeys) == 0 {
		delete(t.servers, serverKey)
		return before, t.totalLocked()
	}

	sessions := make(map[string]struct{}, len(sessionKeys))
	for _, key := range sessionKeys {
		sessions[key] = struct{}{}
	}
	t.servers[serverKey] = sessions

	return before, t.totalLocked()
}

// RemoveServer drops all tracked sessions for a server
func (t *Tracker) RemoveServer(serverKey string) {
	t.mu.Lock()
	delete(t.servers, serverKey)
	t.mu.Unlock()
}

// ActiveCount returns the total number of active sessions across all servers
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalLocked()
}

// Snapshot returns the tracked sessions per server, sorted for stable output
func (t *Tracker) Snapshot() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]string, len(t.servers))
	for serverKey, sessions := range t.servers {
		keys := make([]string, 0, len(sessions))
		for key := range sessions {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out[serverKey] = keys
	}
	return out
}

// Clear drops all tracked sessions
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.servers = make(map[string]map[string]struct{})
	t.mu.Unlock()
}

func (t *Tracker) totalLocked() int {
	total := 0
	for _, sessions := range t.servers {
		total += len(sessions)
	}
	return total
}
