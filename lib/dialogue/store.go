// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import (
	"sync"
	"time"
)

// Store holds the live and archived sessions. Safe for concurrent
// use; the map lock covers only insert/lookup/move, never a turn
// (turns are serialized per session by the gate).
type Store struct {
	mu       sync.RWMutex
	active   map[string]*Session
	archived map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		active:   make(map[string]*Session),
		archived: make(map[string]*Session),
	}
}

// Insert registers a new session under its ID.
func (st *Store) Insert(session *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[session.ID] = session
}

// Active returns the live session for id, or nil.
func (st *Store) Active(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.active[id]
}

// Lookup returns the session for id from the active or archived map.
// Archived sessions serve get_ticket; they accept no further turns.
func (st *Store) Lookup(id string) (session *Session, isArchived bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if session := st.active[id]; session != nil {
		return session, false
	}
	if session := st.archived[id]; session != nil {
		return session, true
	}
	return nil, false
}

// Archive moves a terminal session out of the active map. Lookups for
// tickets keep working; ProcessTurn no longer finds it.
func (st *Store) Archive(session *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.active, session.ID)
	st.archived[session.ID] = session
}

// ActiveCount returns the number of live sessions.
func (st *Store) ActiveCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.active)
}

// ArchivedCount returns the number of archived sessions.
func (st *Store) ArchivedCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.archived)
}

// Idle returns the active sessions whose last activity is older than
// cutoff. The caller must still try-acquire each session's gate
// before touching it: a session can become active again between this
// scan and the acquire.
func (st *Store) Idle(cutoff time.Time) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var idle []*Session
	for _, session := range st.active {
		if session.lastActive().Before(cutoff) {
			idle = append(idle, session)
		}
	}
	return idle
}
