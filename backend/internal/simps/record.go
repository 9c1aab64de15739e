package simps

import (
	"slices"
	"sync"
	"time"
)

// Edge is a directed "UserID simps for TargetID" pair inside one guild.
// It is the durable row shape and the bulk-load input; the cache itself only
// keeps the record sets.
type Edge struct {
	GuildID   int64
	UserID    int64
	TargetID  int64
	CreatedAt time.Time
}

// Record is the relationship state of one user in one guild.
// Records are owned by a Store; callers only read them.
type Record struct {
	GuildID int64
	UserID  int64

	mu         *sync.RWMutex // the owning store's lock
	simpingFor map[int64]struct{}
	simpedBy   map[int64]struct{}
}

func newRecord(mu *sync.RWMutex, userID, guildID int64) *Record {
	return &Record{
		GuildID:    guildID,
		UserID:     userID,
		mu:         mu,
		simpingFor: make(map[int64]struct{}),
		simpedBy:   make(map[int64]struct{}),
	}
}

// SimpingForIDs returns the users this user targets, ascending.
func (r *Record) SimpingForIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.simpingFor)
}

// SimpedByIDs returns the users targeting this user, ascending.
func (r *Record) SimpedByIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.simpedBy)
}

// MutualIDs returns the users present in both sets, ascending.
func (r *Record) MutualIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mutual := make([]int64, 0)
	for id := range r.simpingFor {
		if _, ok := r.simpedBy[id]; ok {
			mutual = append(mutual, id)
		}
	}
	slices.Sort(mutual)
	return mutual
}

// SimpsFor reports whether this user targets userID.
func (r *Record) SimpsFor(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.simpingFor[userID]
	return ok
}

// SimpedBy reports whether userID targets this user.
func (r *Record) SimpedBy(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.simpedBy[userID]
	return ok
}

// Empty reports whether the record has no edges in either direction.
func (r *Record) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.simpingFor) == 0 && len(r.simpedBy) == 0
}

func sortedKeys(set map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(set))
	for id := range set {
		keys = append(keys, id)
	}
	slices.Sort(keys)
	return keys
}
