package preference

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/registry"
	"github.com/rushteam/roommatch/store"
)

const (
	nonSmoker  = 1
	dogLover   = 2
	vegetarian = 4
	nightOwl   = 7
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

func newUpdater(t *testing.T) (*Updater, core.RecommendDataStore) {
	t.Helper()
	repo := store.NewKVRepository(store.NewMemoryStore())
	t.Cleanup(func() { _ = repo.Close() })
	u, err := NewUpdater(repo, registry.Default())
	require.NoError(t, err)
	return u, repo
}

func putFeatures(t *testing.T, s core.RecommendDataStore, id int64, features ...int) {
	t.Helper()
	require.NoError(t, s.PutVector(context.Background(), id, core.VectorFeature, core.FeatureVector(features)))
}

func sumSquares(v core.Vector) float64 {
	var s float64
	for _, w := range v {
		s += w * w
	}
	return s
}

func TestApplyAccumulatesAcrossBatch(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)
	putFeatures(t, s, 10, dogLover, nightOwl)
	putFeatures(t, s, 11, dogLover)
	putFeatures(t, s, 12, dogLover, nonSmoker)

	pref, err := u.Apply(ctx, 1, []Feedback{
		{TargetID: 10, Kind: core.InteractionLiked},
		{TargetID: 11, Kind: core.InteractionLiked},
		{TargetID: 12, Kind: core.InteractionDisliked},
	})
	require.NoError(t, err)

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	// dogLover: +1 +1 -1 = 1；nightOwl: +1；nonSmoker: -1 被去掉
	assert.Equal(t, core.Vector{dogLover: 1, nightOwl: 1}, raw)

	assert.Len(t, pref, 2)
	assert.InDelta(t, 1.0, sumSquares(pref), 1e-9)
	stored, err := s.GetVector(ctx, 1, core.VectorPreference)
	require.NoError(t, err)
	assert.InDeltaMapValues(t, map[int]float64(pref), map[int]float64(stored), 1e-9)
}

func TestApplySuperlikeCountsDouble(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)
	putFeatures(t, s, 10, dogLover)
	require.NoError(t, s.SaveRawPreferences(ctx, 1, core.Vector{dogLover: 3}, 3))

	_, err := u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: core.InteractionSuperliked}})
	require.NoError(t, err)

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{dogLover: 5}, raw)
}

func TestApplyMonotonicity(t *testing.T) {
	ctx := context.Background()
	start := core.Vector{dogLover: 5, nightOwl: 2, nonSmoker: 1}

	tests := []struct {
		name  string
		kind  core.InteractionKind
		check func(t *testing.T, before, after float64)
	}{
		{
			name: "liked never decreases",
			kind: core.InteractionLiked,
			check: func(t *testing.T, before, after float64) {
				assert.GreaterOrEqual(t, after, before)
			},
		},
		{
			name: "superliked never decreases",
			kind: core.InteractionSuperliked,
			check: func(t *testing.T, before, after float64) {
				assert.GreaterOrEqual(t, after, before)
			},
		},
		{
			name: "disliked never increases",
			kind: core.InteractionDisliked,
			check: func(t *testing.T, before, after float64) {
				assert.LessOrEqual(t, after, before)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, s := newUpdater(t)
			putFeatures(t, s, 10, dogLover, nightOwl)
			putFeatures(t, s, 11, nightOwl, nonSmoker)
			require.NoError(t, s.SaveRawPreferences(ctx, 1, start, start.Sum()))

			_, err := u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: tt.kind}, {TargetID: 11, Kind: tt.kind}})
			require.NoError(t, err)

			raw, err := s.GetRawPreferences(ctx, 1)
			require.NoError(t, err)
			for _, f := range []int{dogLover, nightOwl, nonSmoker} {
				tt.check(t, start[f], raw[f])
			}
		})
	}
}

func TestApplyFallsBackToDefaultFeature(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)
	putFeatures(t, s, 10, dogLover)
	require.NoError(t, s.SaveRawPreferences(ctx, 1, core.Vector{dogLover: 1}, 1))

	pref, err := u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: core.InteractionDisliked}})
	require.NoError(t, err)
	assert.Equal(t, core.Vector{vegetarian: 1}, pref)

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{vegetarian: 1}, raw)
}

func TestApplyCapsPreferenceVector(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)

	raw := core.Vector{}
	features := make([]int, 0, 15)
	for f := 1; f <= 15; f++ {
		raw[f] = float64(f)
		features = append(features, f)
	}
	require.NoError(t, s.SaveRawPreferences(ctx, 1, raw, raw.Sum()))
	putFeatures(t, s, 10, features...)

	pref, err := u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: core.InteractionLiked}})
	require.NoError(t, err)
	require.Len(t, pref, 10)
	assert.InDelta(t, 1.0, sumSquares(pref), 1e-9)
	for f := 6; f <= 15; f++ {
		assert.Contains(t, pref, f)
	}

	// 原始分保留全部维度
	stored, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 15)
}

func TestApplyNeverLeavesEmptyVector(t *testing.T) {
	ctx := context.Background()
	kinds := []core.InteractionKind{core.InteractionLiked, core.InteractionDisliked, core.InteractionSuperliked}
	for _, k := range kinds {
		u, s := newUpdater(t)
		// 目标没有任何特征
		pref, err := u.Apply(ctx, 1, []Feedback{{TargetID: 99, Kind: k}})
		require.NoError(t, err)
		assert.NotEmpty(t, pref, "kind %s", k)
		stored, err := s.GetVector(ctx, 1, core.VectorPreference)
		require.NoError(t, err)
		assert.NotEmpty(t, stored)
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)
	putFeatures(t, s, 10, dogLover)

	_, err := u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: core.InteractionLiked}, {TargetID: 10, Kind: "meh"}})
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestApplyEmptyBatchIsNoop(t *testing.T) {
	u, s := newUpdater(t)
	pref, err := u.Apply(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Nil(t, pref)

	v, err := s.GetVector(context.Background(), 1, core.VectorPreference)
	require.NoError(t, err)
	assert.Empty(t, v)
}

// failingPut 让偏好向量写入失败，用来验证原始分也一起回滚。
type failingPut struct {
	core.RecommendDataStore
}

func (f failingPut) PutVector(context.Context, int64, core.VectorKind, core.Vector) error {
	return errors.New("disk full")
}

func (f failingPut) InTx(ctx context.Context, fn func(core.RecommendDataStore) error) error {
	return f.RecommendDataStore.InTx(ctx, func(tx core.RecommendDataStore) error {
		return fn(failingPut{tx})
	})
}

func TestApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, s := newUpdater(t)
	putFeatures(t, s, 10, dogLover)
	require.NoError(t, s.SaveRawPreferences(ctx, 1, core.Vector{nightOwl: 2}, 2))

	u, err := NewUpdater(failingPut{s}, registry.Default())
	require.NoError(t, err)
	_, err = u.Apply(ctx, 1, []Feedback{{TargetID: 10, Kind: core.InteractionLiked}})
	require.Error(t, err)

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{nightOwl: 2}, raw)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	u, s := newUpdater(t)

	pref, err := u.Seed(ctx, 1, []int{dogLover, nightOwl})
	require.NoError(t, err)
	want := 1 / math.Sqrt2
	assert.InDelta(t, want, pref[dogLover], 1e-9)
	assert.InDelta(t, want, pref[nightOwl], 1e-9)

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{dogLover: 50, nightOwl: 50}, raw)

	pref, err = u.Seed(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{vegetarian: 1}, pref)
}

func TestPrune(t *testing.T) {
	assert.Equal(t, core.Vector{2: 1}, Prune(core.Vector{2: 1, 3: 0, 4: -2}, vegetarian))
	assert.Equal(t, core.Vector{vegetarian: 1}, Prune(core.Vector{3: 0}, vegetarian))
	assert.Equal(t, core.Vector{vegetarian: 1}, Prune(nil, vegetarian))
}
