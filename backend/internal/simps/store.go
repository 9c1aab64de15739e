// Package simps holds the process-local relationship cache: one record per
// (guild, user), each carrying the users it simps for and the users simping
// for it. Both sides of an edge are always written together.
package simps

import (
	"slices"
	"sync"
)

// Store is a guild-scoped directory of relationship records.
// It never rejects a mutation; uniqueness is the durable store's job.
type Store struct {
	mu     sync.RWMutex
	guilds map[int64]map[int64]*Record
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		guilds: make(map[int64]map[int64]*Record),
	}
}

// GetOrCreate returns the record for (userID, guildID), registering an empty
// one on first lookup.
func (s *Store) GetOrCreate(userID, guildID int64) *Record {
	s.mu.RLock()
	rec, ok := s.lookupLocked(userID, guildID)
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID, guildID)
}

// Lookup returns the record for (userID, guildID) without registering one.
func (s *Store) Lookup(userID, guildID int64) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(userID, guildID)
}

// View returns the record for (userID, guildID), or a detached empty record
// when there is none. The store is not modified.
func (s *Store) View(userID, guildID int64) *Record {
	if rec, ok := s.Lookup(userID, guildID); ok {
		return rec
	}
	return newRecord(&s.mu, userID, guildID)
}

// AddEdge records that sourceID simps for targetID. Adding an existing edge
// is a no-op.
func (s *Store) AddEdge(sourceID, targetID, guildID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEdgeLocked(sourceID, targetID, guildID)
}

// RemoveEdge drops the edge from both records. Removing a missing edge is a
// no-op.
func (s *Store) RemoveEdge(sourceID, targetID, guildID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source, ok := s.lookupLocked(sourceID, guildID); ok {
		delete(source.simpingFor, targetID)
	}
	if target, ok := s.lookupLocked(targetID, guildID); ok {
		delete(target.simpedBy, sourceID)
	}
}

// BulkLoad replays persisted edges. Order does not matter.
func (s *Store) BulkLoad(edges []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		s.addEdgeLocked(e.UserID, e.TargetID, e.GuildID)
	}
}

// Users returns the IDs of every record registered in guildID, ascending.
func (s *Store) Users(guildID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]int64, 0, len(s.guilds[guildID]))
	for id := range s.guilds[guildID] {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

func (s *Store) addEdgeLocked(sourceID, targetID, guildID int64) {
	s.getOrCreateLocked(sourceID, guildID).simpingFor[targetID] = struct{}{}
	s.getOrCreateLocked(targetID, guildID).simpedBy[sourceID] = struct{}{}
}

func (s *Store) lookupLocked(userID, guildID int64) (*Record, bool) {
	rec, ok := s.guilds[guildID][userID]
	return rec, ok
}

func (s *Store) getOrCreateLocked(userID, guildID int64) *Record {
	users, ok := s.guilds[guildID]
	if !ok {
		users = make(map[int64]*Record)
		s.guilds[guildID] = users
	}
	rec, ok := users[userID]
	if !ok {
		rec = newRecord(&s.mu, userID, guildID)
		users[userID] = rec
	}
	return rec
}
