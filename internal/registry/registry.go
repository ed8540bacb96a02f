// Package registry maps live rendezvous connections to the peer identifiers they announced.
//
// The registry is bookkeeping only. It never carries file data, and a transfer can run
// without it as long as the receiver learns the sender's identifier some other way.
package registry

import "sync"

// Store is a thread-safe connection-to-peer table. Each connection owns at most one
// peer identifier, and a peer identifier belongs to at most one live connection: the
// first connection to announce it keeps it until that connection re-announces or is
// forgotten.
type Store struct {
	mu     sync.RWMutex
	byConn map[string]string // connID -> peerID
	byPeer map[string]string // peerID -> owning connID
}

// New creates an empty registry.
func New() *Store {
	return &Store{
		byConn: make(map[string]string),
		byPeer: make(map[string]string),
	}
}

// Announce records peerID for connID, replacing any earlier announcement from the
// same connection. It reports false and changes nothing when peerID is already owned
// by another live connection.
func (s *Store) Announce(connID, peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byPeer[peerID]; ok && owner != connID {
		return false
	}
	if old, ok := s.byConn[connID]; ok && old != peerID {
		delete(s.byPeer, old)
	}
	s.byConn[connID] = peerID
	s.byPeer[peerID] = connID
	return true
}

// Lookup returns the peer identifier announced by connID. The boolean is false when
// the connection never announced or has been forgotten.
func (s *Store) Lookup(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peerID, ok := s.byConn[connID]
	return peerID, ok
}

// Resolve returns the live connection that owns peerID.
func (s *Store) Resolve(peerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.byPeer[peerID]
	return connID, ok
}

// Forget drops the mapping for connID. Unknown ids are ignored.
func (s *Store) Forget(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peerID, ok := s.byConn[connID]
	if !ok {
		return
	}
	delete(s.byConn, connID)
	if s.byPeer[peerID] == connID {
		delete(s.byPeer, peerID)
	}
}

// Len returns the number of connections with a live announcement.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}
