package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
)

// mockStore 只实现过滤器用到的方法，其余方法调用会 panic。
type mockStore struct {
	core.RecommendDataStore
	mock.Mock
}

func (m *mockStore) FilterCandidates(ctx context.Context, spec core.FilterSpec, requester int64, limit int) ([]core.Candidate, error) {
	args := m.Called(ctx, spec, requester, limit)
	rows, _ := args.Get(0).([]core.Candidate)
	return rows, args.Error(1)
}

func (m *mockStore) ExcludeInteracted(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	args := m.Called(ctx, userID, ids)
	kept, _ := args.Get(0).([]int64)
	return kept, args.Error(1)
}

func validSpec() core.FilterSpec {
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	return core.FilterSpec{
		City:        "London",
		MoveInStart: start,
		MoveInEnd:   start.AddDate(0, 1, 0),
		AgeMin:      20,
		AgeMax:      30,
		RentMin:     500,
		RentMax:     900,
	}
}

func TestAttributeFilterPartitions(t *testing.T) {
	ctx := context.Background()
	spec := validSpec()
	store := &mockStore{}
	store.On("FilterCandidates", ctx, spec, int64(1), 1000).Return([]core.Candidate{
		{ID: 2},
		{ID: 3, Interacted: true},
		{ID: 1},
		{ID: 4},
		{ID: 4},
	}, nil)

	pool, err := NewAttributeFilter(store, 0).Candidates(ctx, spec, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, pool.AllUsers)
	assert.Equal(t, []int64{2, 4}, pool.NonInteracted)
	store.AssertExpectations(t)
}

func TestAttributeFilterEmpty(t *testing.T) {
	ctx := context.Background()
	spec := validSpec()
	store := &mockStore{}
	store.On("FilterCandidates", ctx, spec, int64(1), 1000).Return(nil, nil)

	pool, err := NewAttributeFilter(store, 0).Candidates(ctx, spec, 1)
	require.NoError(t, err)
	assert.Empty(t, pool.AllUsers)
	assert.Empty(t, pool.NonInteracted)
}

func TestAttributeFilterCap(t *testing.T) {
	ctx := context.Background()
	spec := validSpec()
	store := &mockStore{}
	store.On("FilterCandidates", ctx, spec, int64(1), 2).Return([]core.Candidate{{ID: 2}, {ID: 3}, {ID: 4}}, nil)

	pool, err := NewAttributeFilter(store, 2).Candidates(ctx, spec, 1)
	require.NoError(t, err)
	assert.Len(t, pool.AllUsers, 2)
}

func TestAttributeFilterRejectsInvalidSpec(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *core.FilterSpec)
	}{
		{name: "missing city", mutate: func(s *core.FilterSpec) { s.City = "" }},
		{name: "age band inverted", mutate: func(s *core.FilterSpec) { s.AgeMin, s.AgeMax = 30, 20 }},
		{name: "rent band inverted", mutate: func(s *core.FilterSpec) { s.RentMin, s.RentMax = 900, 500 }},
		{name: "window inverted", mutate: func(s *core.FilterSpec) { s.MoveInEnd = s.MoveInStart.AddDate(0, 0, -1) }},
		{name: "university gate without value", mutate: func(s *core.FilterSpec) { s.FilterUniversity = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			store := &mockStore{}
			_, err := NewAttributeFilter(store, 0).Candidates(context.Background(), spec, 1)
			require.Error(t, err)
			assert.True(t, core.IsInvalidInput(err))
			store.AssertNotCalled(t, "FilterCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAttributeFilterStoreError(t *testing.T) {
	ctx := context.Background()
	spec := validSpec()
	store := &mockStore{}
	boom := errors.New("boom")
	store.On("FilterCandidates", ctx, spec, int64(1), 1000).Return(nil, boom)

	_, err := NewAttributeFilter(store, 0).Candidates(ctx, spec, 1)
	assert.ErrorIs(t, err, boom)
}

func items(ids ...int64) []*core.Item {
	out := make([]*core.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.NewItem(id))
	}
	return out
}

func TestFilterNodeWithExposedFilter(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("ExcludeInteracted", ctx, int64(1), []int64{5, 6, 7}).Return([]int64{5, 7}, nil)

	node := &FilterNode{Filters: []Filter{NewExposedFilter(store)}}
	in := items(5, 6, 7)
	dropped := in[1]
	out, err := node.Process(ctx, &core.RecommendContext{UserID: 1}, in)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, core.ItemIDs(out))

	lbl, ok := dropped.Labels["filtered"]
	require.True(t, ok)
	assert.Equal(t, "filter.exposed", lbl.Source)
}

func TestFilterNodeError(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("ExcludeInteracted", ctx, int64(1), []int64{5}).Return(nil, errors.New("down"))

	node := &FilterNode{Filters: []Filter{NewExposedFilter(store)}}
	_, err := node.Process(ctx, &core.RecommendContext{UserID: 1}, items(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter.exposed")
}

func TestExposedFilterShouldFilter(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("ExcludeInteracted", ctx, int64(1), []int64{9}).Return([]int64{}, nil)
	store.On("ExcludeInteracted", ctx, int64(1), []int64{8}).Return([]int64{8}, nil)

	f := NewExposedFilter(store)
	rctx := &core.RecommendContext{UserID: 1}

	drop, err := f.ShouldFilter(ctx, rctx, core.NewItem(9))
	require.NoError(t, err)
	assert.True(t, drop)

	drop, err = f.ShouldFilter(ctx, rctx, core.NewItem(8))
	require.NoError(t, err)
	assert.False(t, drop)
}
