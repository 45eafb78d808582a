package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/metrics"
	"github.com/rushteam/roommatch/preference"
	"github.com/rushteam/roommatch/registry"
	"github.com/rushteam/roommatch/store"
	"github.com/rushteam/roommatch/store/sqlstore"
	"github.com/rushteam/roommatch/store/storetest"
)

const (
	dogLover = 2
	nightOwl = 7
)

func newRepo(t *testing.T) core.RecommendDataStore {
	t.Helper()
	repo := store.NewKVRepository(store.NewMemoryStore())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newService(t *testing.T, s core.RecommendDataStore, seed uint64) *Service {
	t.Helper()
	svc, err := NewService(s, registry.Default(),
		WithRandSource(rand.New(rand.NewPCG(seed, seed))),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	return svc
}

// seedPopulation 写入一个请求者与 n 个满足其筛选条件的候选人。
func seedPopulation(t *testing.T, s core.RecommendDataStore, n int) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	requester, err := s.SaveUser(ctx, storetest.User("requester"))
	require.NoError(t, err)

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.SaveUser(ctx, storetest.User(fmt.Sprintf("c%02d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return requester, ids
}

func assertUnique(t *testing.T, ids []int64) {
	t.Helper()
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d in %v", id, ids)
		seen[id] = struct{}{}
	}
}

func TestGenerateShortCircuit(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 30)
	svc := newService(t, s, 1)

	out, err := svc.Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathShortCircuit, out.Path)
	assert.ElementsMatch(t, pool, out.IDs)
	assert.Len(t, out.Profiles, len(pool))

	entry, err := s.GetRecommendations(ctx, requester)
	require.NoError(t, err)
	assert.ElementsMatch(t, pool, entry.IDs)
	assert.False(t, entry.LastUpdated.IsZero())
}

func TestGenerateShortCircuitSkipsInteracted(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 5)
	_, err := s.InsertInteraction(ctx, core.Interaction{ActorID: requester, TargetID: pool[0], Kind: core.InteractionDisliked})
	require.NoError(t, err)

	out, err := newService(t, s, 1).Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathShortCircuit, out.Path)
	assert.ElementsMatch(t, pool[1:], out.IDs)
}

func TestGenerateEmptyPool(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, _ := seedPopulation(t, s, 0)

	out, err := newService(t, s, 1).Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathShortCircuit, out.Path)
	assert.Empty(t, out.IDs)

	entry, err := s.GetRecommendations(ctx, requester)
	require.NoError(t, err)
	assert.Empty(t, entry.IDs)
}

func TestGenerateFreshUserBlended(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 40)

	out, err := newService(t, s, 7).Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathBlended, out.Path)
	require.Len(t, out.IDs, 10)
	assertUnique(t, out.IDs)
	assert.Subset(t, pool, out.IDs)
	assert.NotEmpty(t, out.RunID)
}

func TestGenerateFreshUserBlendedSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, sqlstore.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	requester, pool := seedPopulation(t, s, 40)

	out, err := newService(t, s, 7).Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathBlended, out.Path)
	require.Len(t, out.IDs, 10)
	assertUnique(t, out.IDs)
	assert.Subset(t, pool, out.IDs)

	entry, err := s.GetRecommendations(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, out.IDs, entry.IDs)
}

func TestGenerateStageOrder(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 40)

	neighbor, liked, contentMatch := pool[0], pool[1], pool[2]
	require.NoError(t, s.PutVector(ctx, requester, core.VectorPreference, core.Vector{dogLover: 1}))
	require.NoError(t, s.PutVector(ctx, neighbor, core.VectorPreference, core.Vector{dogLover: 1}))
	_, err := s.InsertInteraction(ctx, core.Interaction{ActorID: neighbor, TargetID: liked, Kind: core.InteractionSuperliked})
	require.NoError(t, err)
	require.NoError(t, s.PutVector(ctx, contentMatch, core.VectorFeature, core.FeatureVector([]int{dogLover, nightOwl})))

	svc := newService(t, s, 3)
	rctx := &core.RecommendContext{UserID: requester, N: 10, Filter: storetest.Spec()}
	res, err := svc.Composer.Run(ctx, rctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 10)
	assertUnique(t, res.IDs())

	assert.Equal(t, liked, res.Items[0].ID)
	assert.Equal(t, "collaborative", res.Items[0].Labels[core.LabelRecallSource].Value)
	assert.InDelta(t, 2.0, res.Items[0].Score, 1e-9)

	assert.Equal(t, contentMatch, res.Items[1].ID)
	assert.Equal(t, string(core.VectorFeature), res.Items[1].Labels[core.LabelRecallSource].Value)

	for _, it := range res.Items[2:] {
		assert.Equal(t, "random", it.Labels[core.LabelRecallSource].Value)
	}

	lbl, ok := rctx.GetLabel(LabelPath)
	require.True(t, ok)
	assert.Equal(t, metrics.PathBlended, lbl.Value)
}

func TestGenerateNoDuplicatesAcrossSeeds(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 45)
	require.NoError(t, s.PutVector(ctx, requester, core.VectorPreference, core.Vector{dogLover: 0.8, nightOwl: 0.6}))
	for i, id := range pool {
		if i%3 == 0 {
			require.NoError(t, s.PutVector(ctx, id, core.VectorFeature, core.FeatureVector([]int{dogLover})))
		}
		if i%4 == 0 {
			require.NoError(t, s.PutVector(ctx, id, core.VectorPreference, core.Vector{nightOwl: 1}))
			_, err := s.InsertInteraction(ctx, core.Interaction{ActorID: id, TargetID: pool[(i+5)%len(pool)], Kind: core.InteractionLiked})
			require.NoError(t, err)
		}
	}

	for seed := uint64(1); seed <= 20; seed++ {
		out, err := newService(t, s, seed).Generate(ctx, requester, 10)
		require.NoError(t, err)
		require.Len(t, out.IDs, 10, "seed %d", seed)
		assertUnique(t, out.IDs)
		assert.Subset(t, pool, out.IDs)
	}
}

func TestGenerateExcludesInteracted(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 40)
	seen := map[int64]bool{}
	for _, id := range pool[:8] {
		_, err := s.InsertInteraction(ctx, core.Interaction{ActorID: requester, TargetID: id, Kind: core.InteractionLiked})
		require.NoError(t, err)
		seen[id] = true
	}

	out, err := newService(t, s, 11).Generate(ctx, requester, 10)
	require.NoError(t, err)
	assert.Equal(t, metrics.PathBlended, out.Path)
	for _, id := range out.IDs {
		assert.False(t, seen[id], "interacted id %d recommended", id)
	}
}

func TestGenerateUnknownUser(t *testing.T) {
	out, err := newService(t, newRepo(t), 1).Generate(context.Background(), 404, 10)
	require.NoError(t, err)
	assert.Empty(t, out.IDs)
}

func TestGenerateRejectsNonPositiveN(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, _ := seedPopulation(t, s, 3)

	poolErrs := testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathCheckPoolSize, metrics.OutcomeError))
	blendedErrs := testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathBlended, metrics.OutcomeError))

	_, err := newService(t, s, 1).Generate(ctx, requester, 0)
	require.Error(t, err)
	assert.True(t, core.IsGenerationFailed(err))

	assert.Equal(t, poolErrs+1, testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathCheckPoolSize, metrics.OutcomeError)))
	assert.Equal(t, blendedErrs, testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathBlended, metrics.OutcomeError)))

	_, err = s.GetRecommendations(ctx, requester)
	assert.True(t, core.IsStoreNotFound(err))
}

// faultyStore 在指定的方法上注入错误。
type faultyStore struct {
	core.RecommendDataStore
	failVectors bool
	failUpsert  bool
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) GetVectors(ctx context.Context, ids []int64, kind core.VectorKind) (map[int64]core.Vector, error) {
	if f.failVectors {
		return nil, errInjected
	}
	return f.RecommendDataStore.GetVectors(ctx, ids, kind)
}

func (f *faultyStore) UpsertRecommendations(ctx context.Context, userID int64, ids []int64) error {
	if f.failUpsert {
		return errInjected
	}
	return f.RecommendDataStore.UpsertRecommendations(ctx, userID, ids)
}

func (f *faultyStore) InTx(ctx context.Context, fn func(core.RecommendDataStore) error) error {
	return f.RecommendDataStore.InTx(ctx, func(tx core.RecommendDataStore) error {
		return fn(&faultyStore{RecommendDataStore: tx, failVectors: f.failVectors, failUpsert: f.failUpsert})
	})
}

func TestGenerateFailureKeepsPreviousCache(t *testing.T) {
	ctx := context.Background()
	base := newRepo(t)
	requester, _ := seedPopulation(t, base, 40)
	require.NoError(t, base.PutVector(ctx, requester, core.VectorPreference, core.Vector{dogLover: 1}))

	first, err := newService(t, base, 1).Generate(ctx, requester, 10)
	require.NoError(t, err)

	tests := []struct {
		name  string
		store *faultyStore
		stage string
	}{
		{name: "scoring", store: &faultyStore{RecommendDataStore: base, failVectors: true}, stage: StageCollaborative},
		{name: "persist", store: &faultyStore{RecommendDataStore: base, failUpsert: true}, stage: StagePersist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blendedErrs := testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathBlended, metrics.OutcomeError))
			_, err := newService(t, tt.store, 2).Generate(ctx, requester, 10)
			require.Error(t, err)
			assert.Equal(t, blendedErrs+1, testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues(metrics.PathBlended, metrics.OutcomeError)))
			assert.True(t, core.IsGenerationFailed(err))
			assert.ErrorIs(t, err, errInjected)
			assert.Contains(t, err.Error(), tt.stage)

			entry, err := base.GetRecommendations(ctx, requester)
			require.NoError(t, err)
			assert.Equal(t, first.IDs, entry.IDs)
		})
	}
}

func TestCheckPrunesInteracted(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, _ := seedPopulation(t, s, 40)
	svc := newService(t, s, 5)

	gen, err := svc.Generate(ctx, requester, 10)
	require.NoError(t, err)
	before, err := s.GetRecommendations(ctx, requester)
	require.NoError(t, err)

	_, err = s.InsertInteraction(ctx, core.Interaction{ActorID: requester, TargetID: gen.IDs[3], Kind: core.InteractionDisliked})
	require.NoError(t, err)

	out, err := svc.Check(ctx, requester)
	require.NoError(t, err)
	want := append(append([]int64{}, gen.IDs[:3]...), gen.IDs[4:]...)
	assert.Equal(t, want, out.IDs)
	require.Len(t, out.Profiles, len(want))
	assert.Equal(t, want[0], out.Profiles[0].ID)

	// 只读路径不改写缓存
	after, err := s.GetRecommendations(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, before.IDs, after.IDs)
	assert.Equal(t, before.LastUpdated, after.LastUpdated)
}

func TestCheckWithoutCache(t *testing.T) {
	out, err := newService(t, newRepo(t), 1).Check(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, out.IDs)
	assert.Equal(t, metrics.PathCheck, out.Path)
}

func TestServeAppliesFeedbackThenGenerates(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 40)
	require.NoError(t, s.PutVector(ctx, pool[0], core.VectorFeature, core.FeatureVector([]int{nightOwl})))

	out, err := newService(t, s, 9).Serve(ctx, requester, []preference.Feedback{
		{TargetID: pool[0], Kind: core.InteractionLiked},
	})
	require.NoError(t, err)
	assert.Len(t, out.IDs, 10)
	assertUnique(t, out.IDs)

	pref, err := s.GetVector(ctx, requester, core.VectorPreference)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pref[nightOwl], 1e-9)
}

func TestServeUnknownUserWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	out, err := newService(t, s, 1).Serve(ctx, 404, []preference.Feedback{{TargetID: 1, Kind: core.InteractionLiked}})
	require.NoError(t, err)
	assert.Empty(t, out.IDs)

	raw, err := s.GetRawPreferences(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	s := newRepo(t)
	requester, pool := seedPopulation(t, s, 12)
	svc := newService(t, s, 1)

	users := append([]int64{requester}, pool[:3]...)
	require.NoError(t, svc.Refresh(ctx, users, 10, 2))
	for _, id := range users {
		entry, err := s.GetRecommendations(ctx, id)
		require.NoError(t, err, "user %d", id)
		assert.NotContains(t, entry.IDs, id)
	}
}

func TestUserLocks(t *testing.T) {
	l := newUserLocks()
	ctx := context.Background()

	release, err := l.acquire(ctx, 1)
	require.NoError(t, err)

	// 不同用户互不阻塞
	other, err := l.acquire(ctx, 2)
	require.NoError(t, err)
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(waitCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		r, err := l.acquire(ctx, 1)
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	<-acquired
	assert.Equal(t, 0, l.size())
}

func TestWithout(t *testing.T) {
	picked := []*core.Item{core.NewItem(2), core.NewItem(4)}
	assert.Equal(t, []int64{1, 3, 5}, without([]int64{1, 2, 3, 4, 5}, picked))
	assert.Equal(t, []int64{1, 2}, without([]int64{1, 2}, nil))
}
