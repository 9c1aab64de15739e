package simps

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildA = int64(100)
	guildB = int64(200)
	alice  = int64(1)
	bob    = int64(2)
	carol  = int64(3)
)

func TestGetOrCreate_ReturnsSameRecord(t *testing.T) {
	store := NewStore()

	first := store.GetOrCreate(alice, guildA)
	second := store.GetOrCreate(alice, guildA)

	assert.Same(t, first, second)
	assert.Equal(t, alice, first.UserID)
	assert.Equal(t, guildA, first.GuildID)
	assert.True(t, first.Empty())
}

func TestLookup_DoesNotRegister(t *testing.T) {
	store := NewStore()

	_, ok := store.Lookup(alice, guildA)
	assert.False(t, ok)
	assert.Empty(t, store.Users(guildA))

	store.GetOrCreate(alice, guildA)
	rec, ok := store.Lookup(alice, guildA)
	require.True(t, ok)
	assert.Equal(t, alice, rec.UserID)
}

func TestView_ReturnsEmptyRecordWithoutRegistering(t *testing.T) {
	store := NewStore()
	store.AddEdge(alice, bob, guildA)

	missing := store.View(carol, guildA)
	assert.Equal(t, carol, missing.UserID)
	assert.True(t, missing.Empty())
	assert.Equal(t, []int64{alice, bob}, store.Users(guildA))

	existing := store.View(alice, guildA)
	assert.Same(t, store.GetOrCreate(alice, guildA), existing)
	assert.Equal(t, []int64{bob}, existing.SimpingForIDs())
}

func TestAddEdge_UpdatesBothSides(t *testing.T) {
	store := NewStore()

	store.AddEdge(alice, bob, guildA)

	assert.Equal(t, []int64{bob}, store.GetOrCreate(alice, guildA).SimpingForIDs())
	assert.Equal(t, []int64{alice}, store.GetOrCreate(bob, guildA).SimpedByIDs())
	assert.Empty(t, store.GetOrCreate(alice, guildA).SimpedByIDs())
	assert.Empty(t, store.GetOrCreate(bob, guildA).SimpingForIDs())
}

func TestAddEdge_Idempotent(t *testing.T) {
	store := NewStore()

	store.AddEdge(alice, bob, guildA)
	store.AddEdge(alice, bob, guildA)

	assert.Equal(t, []int64{bob}, store.GetOrCreate(alice, guildA).SimpingForIDs())
	assert.Equal(t, []int64{alice}, store.GetOrCreate(bob, guildA).SimpedByIDs())
}

func TestRemoveEdge(t *testing.T) {
	store := NewStore()
	store.AddEdge(alice, bob, guildA)

	store.RemoveEdge(alice, bob, guildA)

	assert.True(t, store.GetOrCreate(alice, guildA).Empty())
	assert.True(t, store.GetOrCreate(bob, guildA).Empty())
}

func TestRemoveEdge_MissingIsNoop(t *testing.T) {
	store := NewStore()
	store.AddEdge(alice, bob, guildA)

	store.RemoveEdge(bob, alice, guildA)
	store.RemoveEdge(alice, carol, guildA)
	store.RemoveEdge(carol, alice, guildB)

	assert.Equal(t, []int64{bob}, store.GetOrCreate(alice, guildA).SimpingForIDs())
	assert.Equal(t, []int64{alice}, store.GetOrCreate(bob, guildA).SimpedByIDs())
	assert.Empty(t, store.Users(guildB))
}

func TestGuildIsolation(t *testing.T) {
	store := NewStore()

	store.AddEdge(alice, bob, guildA)

	assert.True(t, store.GetOrCreate(alice, guildB).Empty())
	assert.True(t, store.GetOrCreate(bob, guildB).Empty())
}

func TestMutualIDs(t *testing.T) {
	store := NewStore()
	store.AddEdge(alice, bob, guildA)
	store.AddEdge(bob, alice, guildA)
	store.AddEdge(alice, carol, guildA)

	rec := store.GetOrCreate(alice, guildA)
	assert.Equal(t, []int64{bob}, rec.MutualIDs())
	assert.True(t, rec.SimpsFor(carol))
	assert.False(t, rec.SimpedBy(carol))
}

func TestBulkLoad_OrderIndependent(t *testing.T) {
	edges := []Edge{
		{GuildID: guildA, UserID: alice, TargetID: bob},
		{GuildID: guildA, UserID: bob, TargetID: carol},
		{GuildID: guildA, UserID: carol, TargetID: alice},
		{GuildID: guildB, UserID: alice, TargetID: carol},
	}
	reversed := []Edge{edges[3], edges[2], edges[1], edges[0]}

	forward := NewStore()
	forward.BulkLoad(edges)
	backward := NewStore()
	backward.BulkLoad(reversed)

	for _, guild := range []int64{guildA, guildB} {
		assert.Equal(t, forward.Users(guild), backward.Users(guild))
		for _, user := range forward.Users(guild) {
			assert.Equal(t, forward.GetOrCreate(user, guild).SimpingForIDs(), backward.GetOrCreate(user, guild).SimpingForIDs())
			assert.Equal(t, forward.GetOrCreate(user, guild).SimpedByIDs(), backward.GetOrCreate(user, guild).SimpedByIDs())
		}
	}
}

func TestSymmetryHoldsUnderRandomMutations(t *testing.T) {
	store := NewStore()
	rng := rand.New(rand.NewSource(42))
	users := []int64{1, 2, 3, 4, 5, 6}
	guilds := []int64{guildA, guildB}

	for i := 0; i < 500; i++ {
		source := users[rng.Intn(len(users))]
		target := users[rng.Intn(len(users))]
		guild := guilds[rng.Intn(len(guilds))]
		if rng.Intn(3) == 0 {
			store.RemoveEdge(source, target, guild)
		} else {
			store.AddEdge(source, target, guild)
		}
		assertSymmetric(t, store, guilds)
	}
}

func TestConcurrentMutationsKeepSymmetry(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for worker := int64(0); worker < 8; worker++ {
		wg.Add(1)
		go func(worker int64) {
			defer wg.Done()
			for i := int64(0); i < 200; i++ {
				source := (worker + i) % 5
				target := (worker * i) % 7
				store.AddEdge(source, target, guildA)
				if i%4 == 0 {
					store.RemoveEdge(source, target, guildA)
				}
				_ = store.GetOrCreate(target, guildA).MutualIDs()
			}
		}(worker)
	}
	wg.Wait()

	assertSymmetric(t, store, []int64{guildA})
}

func assertSymmetric(t *testing.T, store *Store, guilds []int64) {
	t.Helper()
	for _, guild := range guilds {
		for _, user := range store.Users(guild) {
			rec := store.GetOrCreate(user, guild)
			for _, target := range rec.SimpingForIDs() {
				require.True(t, store.GetOrCreate(target, guild).SimpedBy(user), "guild %d: %d -> %d missing reverse side", guild, user, target)
			}
			for _, source := range rec.SimpedByIDs() {
				require.True(t, store.GetOrCreate(source, guild).SimpsFor(user), "guild %d: %d <- %d missing forward side", guild, user, source)
			}
		}
	}
}
