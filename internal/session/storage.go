package session

import (
	"mxfleet/internal/concurrent"
)

// Storage is the controller's process-wide table of live sessions,
// keyed by host id (spec §4.6-4.7). Only one HostSession may occupy a
// given host id at a time; CreateSession never overwrites a live one,
// so a second connection attempt for an already-connected host must
// notify the incumbent and wait for it to remove itself.
type Storage struct {
	byHost *concurrent.KeyedStateMap[string, HostSession]
}

// NewStorage creates an empty session table.
func NewStorage() *Storage {
	return &Storage{byHost: concurrent.NewKeyedStateMap[string, HostSession]()}
}

// CreateSession returns the existing session for hostID if one is
// already live, constructing and installing a fresh one only when
// absent. The caller must compare the returned session's SessionID
// against the connection attempt's own session id: a mismatch means
// this is a second, newer connection racing an existing one, and the
// caller should fire the returned session's Notify and reject its own
// attempt (spec §4.6-4.7).
func (s *Storage) CreateSession(hostID string, extra ExtraInfo) *HostSession {
	return s.byHost.TryInsertDeferredReturning(hostID, func() HostSession {
		return *NewHostSession(hostID, extra)
	})
}

// Get returns the live session for hostID, or nil if the host is not
// currently connected.
func (s *Storage) Get(hostID string) *HostSession {
	return s.byHost.GetArc(hostID)
}

// Remove drops the session for hostID iff it is still the current
// one for that host and its SessionID matches sessionID; this avoids
// a late-arriving disconnect handler from removing a session that has
// already been superseded by a newer connection.
func (s *Storage) Remove(hostID, sessionID string) {
	sess := s.byHost.GetArc(hostID)
	if sess == nil || sess.SessionID != sessionID {
		return
	}
	s.byHost.Remove(hostID)
}

// List returns every currently connected host id.
func (s *Storage) List() []string {
	return s.byHost.List()
}
