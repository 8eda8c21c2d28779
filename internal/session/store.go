// Package session maps WhatsApp senders to their Retell chat sessions.
//
// Entries live for the lifetime of the process. There is no TTL and no
// eviction; ClearAll is the only way to drop them short of a restart.
package session

import "sync"

// Store holds at most one session id per sender. The first write for a sender
// wins and later writes for the same sender are ignored.
type Store interface {
	Get(senderID string) (string, bool)
	Put(senderID, sessionID string) string
	ClearAll()
	Len() int
}

// MemoryStore is a mutex-guarded map implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

// Get returns the session id stored for senderID.
func (s *MemoryStore) Get(senderID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[senderID]
	return id, ok
}

// Put stores sessionID for senderID if no entry exists and returns the value
// held after the call.
func (s *MemoryStore) Put(senderID, sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[senderID]; ok {
		return existing
	}
	s.sessions[senderID] = sessionID
	return sessionID
}

// ClearAll drops every entry. Calling it on an empty store is a no-op.
func (s *MemoryStore) ClearAll() {
	s.mu.Lock()
	s.sessions = make(map[string]string)
	s.mu.Unlock()
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
