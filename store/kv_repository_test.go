package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/store/storetest"
)

func TestKVRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.RecommendDataStore {
		repo := NewKVRepository(NewMemoryStore())
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestMemoryStoreCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	defer m.Close()

	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Commit(ctx, map[string][]byte{"b": []byte("2")}, []string{"a"}))

	_, err := m.Get(ctx, "a")
	assert.True(t, core.IsStoreNotFound(err))
	v, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	got, err := m.BatchGet(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"b": []byte("2")}, got)
}

func TestMemoryStoreCommitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemoryStore()
	defer m.Close()

	require.Error(t, m.Commit(ctx, map[string][]byte{"a": []byte("1")}, nil))
	_, err := m.Get(context.Background(), "a")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestKVRepositoryCommitFailureLeavesNoPartialWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := NewMemoryStore()
	defer mem.Close()
	repo := NewKVRepository(mem)

	err := repo.InTx(ctx, func(tx core.RecommendDataStore) error {
		if err := tx.UpsertRecommendations(ctx, 1, []int64{2}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.Error(t, err)

	_, err = repo.GetRecommendations(context.Background(), 1)
	assert.True(t, core.IsStoreNotFound(err))
}

func TestKVRepositoryFilterCandidatesSeededSample(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	defer mem.Close()
	repo := NewKVRepository(mem)

	requester, err := repo.SaveUser(ctx, storetest.User("requester"))
	require.NoError(t, err)
	var ids []int64
	for i := 0; i < 30; i++ {
		id, err := repo.SaveUser(ctx, storetest.User(fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sample := func(seed uint64) []core.Candidate {
		r := NewKVRepository(mem, WithKVRandSource(rand.New(rand.NewPCG(seed, seed))))
		got, err := r.FilterCandidates(ctx, storetest.Spec(), requester, 10)
		require.NoError(t, err)
		return got
	}

	first := sample(7)
	require.Len(t, first, 10)
	assert.Equal(t, first, sample(7))
	assert.IsIncreasing(t, candidateIDList(first))

	lowest := make([]core.Candidate, 0, 10)
	for _, id := range ids[:10] {
		lowest = append(lowest, core.Candidate{ID: id})
	}
	assert.NotEqual(t, lowest, first)
}

func TestKVRepositoryInsertMatchRepairsPartialWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	defer mem.Close()
	repo := NewKVRepository(mem)

	// 只有 2 的一侧存有配对
	data, err := json.Marshal([]core.Match{{UserA: 1, UserB: 2}})
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, matchesKey(2), data))

	inserted, err := repo.InsertMatch(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, inserted)

	for _, side := range []int64{1, 2} {
		ms, err := repo.matchesOf(ctx, side)
		require.NoError(t, err)
		assert.Len(t, ms, 1, "user %d", side)
	}

	inserted, err = repo.InsertMatch(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, inserted)
	ms, err := repo.matchesOf(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func candidateIDList(cs []core.Candidate) []int64 {
	out := make([]int64, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
