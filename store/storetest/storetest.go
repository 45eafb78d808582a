// Package storetest 是 core.RecommendDataStore 的一致性测试套件，
// KV 仓储与关系型仓储共用同一组用例。
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
)

// Factory 为每个用例创建一个全新的空仓储。
type Factory func(t *testing.T) core.RecommendDataStore

// Day 解析 2006-01-02 格式的日期（UTC）。
func Day(s string) time.Time {
	d, err := time.Parse(core.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// User 返回一个落在 London / 2024-09 / 25 岁 / 700 租金的用户。
func User(name string) core.UserRecord {
	return core.UserRecord{
		Name:        name,
		Age:         25,
		Rent:        700,
		City:        "London",
		Profession:  "Student",
		University:  "UCL",
		MoveInStart: Day("2024-09-10"),
		MoveInEnd:   Day("2024-10-10"),
		Features:    []string{"Dog Lover"},
		Filters:     Spec(),
		Bio:         "hi, I'm " + name,
		Duration:    "12 months",
	}
}

// Spec 返回与 User 匹配的筛选条件。
func Spec() core.FilterSpec {
	return core.FilterSpec{
		City:        "London",
		MoveInStart: Day("2024-09-01"),
		MoveInEnd:   Day("2024-09-30"),
		AgeMin:      20,
		AgeMax:      30,
		RentMin:     500,
		RentMax:     900,
	}
}

// Run 执行全部用例。
func Run(t *testing.T, newStore Factory) {
	t.Run("FilterCandidates", func(t *testing.T) { testFilterCandidates(t, newStore(t)) })
	t.Run("FilterCandidatesSampling", func(t *testing.T) { testFilterCandidatesSampling(t, newStore(t)) })
	t.Run("Vectors", func(t *testing.T) { testVectors(t, newStore(t)) })
	t.Run("RawPreferences", func(t *testing.T) { testRawPreferences(t, newStore(t)) })
	t.Run("Interactions", func(t *testing.T) { testInteractions(t, newStore(t)) })
	t.Run("Recommendations", func(t *testing.T) { testRecommendations(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Matches", func(t *testing.T) { testMatches(t, newStore(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
}

func save(t *testing.T, s core.RecommendDataStore, u core.UserRecord) int64 {
	t.Helper()
	id, err := s.SaveUser(context.Background(), u)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

func candidateIDs(cs []core.Candidate) map[int64]bool {
	out := make(map[int64]bool, len(cs))
	for _, c := range cs {
		out[c.ID] = c.Interacted
	}
	return out
}

// 命中数超过上限时按随机抽样返回，多次调用后每个命中用户都应出现过。
func testFilterCandidatesSampling(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()
	limit := core.DefaultRecommendConfig().CandidateCap
	requester := save(t, s, User("requester"))
	matching := make(map[int64]bool, limit+10)
	for i := 0; i < limit+10; i++ {
		matching[save(t, s, User(fmt.Sprintf("u%d", i)))] = true
	}

	returned := make(map[int64]bool, len(matching))
	for run := 0; run < 10; run++ {
		got, err := s.FilterCandidates(ctx, Spec(), requester, limit)
		require.NoError(t, err)
		require.Len(t, got, limit)
		ids := candidateIDs(got)
		require.Len(t, ids, limit, "duplicate candidates")
		for id := range ids {
			require.True(t, matching[id], "unexpected candidate %d", id)
			returned[id] = true
		}
	}
	assert.Len(t, returned, len(matching))
}

func testFilterCandidates(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()
	requester := save(t, s, User("requester"))
	a := save(t, s, User("a"))
	b := save(t, s, User("b"))

	leeds := User("leeds")
	leeds.City = "Leeds"
	save(t, s, leeds)

	old := User("old")
	old.Age = 31
	save(t, s, old)

	late := User("late")
	late.MoveInStart = Day("2024-10-01")
	save(t, s, late)

	pricey := User("pricey")
	pricey.Rent = 901
	save(t, s, pricey)

	edge := User("edge")
	edge.Age = 20
	edge.Rent = 900
	edge.MoveInStart = Day("2024-08-01")
	edge.MoveInEnd = Day("2024-09-01")
	e := save(t, s, edge)

	kcl := User("kcl")
	kcl.University = "KCL"
	k := save(t, s, kcl)

	_, err := s.InsertInteraction(ctx, core.Interaction{ActorID: requester, TargetID: b, Kind: core.InteractionDisliked})
	require.NoError(t, err)
	// 别人对请求者的交互不影响 Interacted
	_, err = s.InsertInteraction(ctx, core.Interaction{ActorID: a, TargetID: requester, Kind: core.InteractionLiked})
	require.NoError(t, err)

	got, err := s.FilterCandidates(ctx, Spec(), requester, 1000)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{a: false, b: true, e: false, k: false}, candidateIDs(got))

	spec := Spec()
	spec.University = "UCL"
	spec.FilterUniversity = true
	got, err = s.FilterCandidates(ctx, spec, requester, 1000)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{a: false, b: true, e: false}, candidateIDs(got))

	spec = Spec()
	spec.Profession = "Engineer"
	spec.FilterProfession = true
	got, err = s.FilterCandidates(ctx, spec, requester, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.FilterCandidates(ctx, Spec(), requester, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	spec = Spec()
	spec.City = "London' OR '1'='1"
	got, err = s.FilterCandidates(ctx, spec, requester, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testVectors(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	v, err := s.GetVector(ctx, 1, core.VectorPreference)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.PutVector(ctx, 1, core.VectorFeature, core.Vector{2: 0.6, 7: 0.8}))
	require.NoError(t, s.PutVector(ctx, 2, core.VectorFeature, core.Vector{3: 1}))
	require.NoError(t, s.PutVector(ctx, 1, core.VectorPreference, core.Vector{4: 1}))

	v, err = s.GetVector(ctx, 1, core.VectorFeature)
	require.NoError(t, err)
	assert.InDeltaMapValues(t, map[int]float64{2: 0.6, 7: 0.8}, map[int]float64(v), 1e-9)

	// 整体替换
	require.NoError(t, s.PutVector(ctx, 1, core.VectorFeature, core.Vector{9: 1}))
	v, err = s.GetVector(ctx, 1, core.VectorFeature)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{9: 1}, v)

	vs, err := s.GetVectors(ctx, []int64{1, 2, 3}, core.VectorFeature)
	require.NoError(t, err)
	assert.Equal(t, map[int64]core.Vector{1: {9: 1}, 2: {3: 1}}, vs)

	_, err = s.GetVector(ctx, 1, core.VectorKind("bogus"))
	assert.True(t, core.IsInvalidInput(err))
}

func testRawPreferences(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	raw, err := s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, raw)

	require.NoError(t, s.SaveRawPreferences(ctx, 1, core.Vector{2: 51, 4: 50}, 101))
	require.NoError(t, s.SaveRawPreferences(ctx, 1, core.Vector{2: 52}, 52))

	raw, err = s.GetRawPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Vector{2: 52}, raw)
}

func testInteractions(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	ok, err := s.InsertInteraction(ctx, core.Interaction{ActorID: 1, TargetID: 2, Kind: core.InteractionLiked})
	require.NoError(t, err)
	assert.True(t, ok)

	// 首次写入生效，重复写入是 no-op
	ok, err = s.InsertInteraction(ctx, core.Interaction{ActorID: 1, TargetID: 2, Kind: core.InteractionDisliked})
	require.NoError(t, err)
	assert.False(t, ok)

	for _, in := range []core.Interaction{
		{ActorID: 1, TargetID: 3, Kind: core.InteractionDisliked},
		{ActorID: 1, TargetID: 4, Kind: core.InteractionSuperliked},
		{ActorID: 5, TargetID: 2, Kind: core.InteractionSuperliked},
		{ActorID: 6, TargetID: 2, Kind: core.InteractionLiked},
	} {
		_, err := s.InsertInteraction(ctx, in)
		require.NoError(t, err)
	}

	got, err := s.GetInteractionsFrom(ctx, []int64{1, 5}, core.PositiveKinds, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][3]any{
		{int64(1), int64(2), core.InteractionLiked},
		{int64(1), int64(4), core.InteractionSuperliked},
		{int64(5), int64(2), core.InteractionSuperliked},
	}, triples(got))

	got, err = s.GetInteractionsFrom(ctx, []int64{1, 5, 6}, core.PositiveKinds, []int64{2})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.GetInteractionsFrom(ctx, []int64{1}, []core.InteractionKind{core.InteractionDisliked}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][3]any{{int64(1), int64(3), core.InteractionDisliked}}, triples(got))

	kept, err := s.ExcludeInteracted(ctx, 1, []int64{9, 4, 8, 2, 7, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8, 7}, kept)

	require.NoError(t, s.DeleteInteraction(ctx, 1, 2))
	kept, err = s.ExcludeInteracted(ctx, 1, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, kept)

	_, err = s.InsertInteraction(ctx, core.Interaction{ActorID: 1, TargetID: 9, Kind: core.InteractionKind("meh")})
	assert.True(t, core.IsInvalidInput(err))
}

func triples(in []core.Interaction) [][3]any {
	out := make([][3]any, 0, len(in))
	for _, i := range in {
		out = append(out, [3]any{i.ActorID, i.TargetID, i.Kind})
	}
	return out
}

func testRecommendations(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	_, err := s.GetRecommendations(ctx, 1)
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, s.UpsertRecommendations(ctx, 1, []int64{5, 3, 9}))
	first, err := s.GetRecommendations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 3, 9}, first.IDs)
	assert.False(t, first.LastUpdated.IsZero())

	require.NoError(t, s.UpsertRecommendations(ctx, 1, []int64{7}))
	second, err := s.GetRecommendations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, second.IDs)
	assert.False(t, second.LastUpdated.Before(first.LastUpdated))

	require.NoError(t, s.UpsertRecommendations(ctx, 2, nil))
	empty, err := s.GetRecommendations(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.IDs)
}

func testUsers(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, 42)
	assert.True(t, core.IsStoreNotFound(err))
	assert.True(t, errors.Is(err, core.ErrStoreNotFound))

	u := User("alice")
	u.Features = []string{"Dog Lover", "Night Owl"}
	u.Geo = `{"type":"Polygon"}`
	u.Filters.University = "UCL"
	alice := save(t, s, u)
	bob := save(t, s, User("bob"))
	assert.NotEqual(t, alice, bob)

	got, err := s.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, got.ID)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, []string{"Dog Lover", "Night Owl"}, got.Features)
	assert.True(t, got.MoveInStart.Equal(Day("2024-09-10")))
	assert.Equal(t, "London", got.Filters.City)

	got.Bio = "updated"
	id, err := s.SaveUser(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, alice, id)

	profiles, err := s.HydrateProfiles(ctx, []int64{bob, 999, alice})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, bob, profiles[0].ID)
	assert.Equal(t, alice, profiles[1].ID)
	assert.Equal(t, "updated", profiles[1].Bio)
	assert.Equal(t, [2]int{500, 900}, profiles[1].RentFilter)
	assert.Equal(t, [2]string{"2024-09-01", "2024-09-30"}, profiles[1].MovingFilter)
	assert.Equal(t, "UCL", profiles[1].University)
	assert.Equal(t, `{"type":"Polygon"}`, profiles[1].Geo)
}

func testMatches(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	ok, err := s.InsertMatch(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertMatch(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.InsertMatch(ctx, 1, 3)
	require.NoError(t, err)

	for _, pair := range [][2]int64{{1, 2}, {2, 1}, {3, 1}} {
		has, err := s.HasMatch(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, has, "pair %v", pair)
	}

	ms, err := s.ListMatches(ctx, 1)
	require.NoError(t, err)
	partners := make([]int64, 0, len(ms))
	for _, m := range ms {
		partners = append(partners, m.Other(1))
	}
	assert.ElementsMatch(t, []int64{2, 3}, partners)

	require.NoError(t, s.DeleteMatch(ctx, 2, 1))
	has, err := s.HasMatch(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, has)

	ms, err = s.ListMatches(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func testReports(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()

	ok, err := s.InsertReport(ctx, core.Report{ReporterID: 1, ReportedID: 2, Reason: "spam"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertReport(ctx, core.Report{ReporterID: 1, ReportedID: 2, Reason: "again"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.InsertReport(ctx, core.Report{ReporterID: 2, ReportedID: 1})
	require.NoError(t, err)
	assert.True(t, ok)
}

func testTransactions(t *testing.T, s core.RecommendDataStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx core.RecommendDataStore) error {
		require.NoError(t, tx.UpsertRecommendations(ctx, 1, []int64{1, 2}))
		require.NoError(t, tx.PutVector(ctx, 1, core.VectorPreference, core.Vector{4: 1}))

		// 事务内可以读到自己的写入
		entry, err := tx.GetRecommendations(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, entry.IDs)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetRecommendations(ctx, 1)
	assert.True(t, core.IsStoreNotFound(err), "rolled back write must not be visible")
	v, err := s.GetVector(ctx, 1, core.VectorPreference)
	require.NoError(t, err)
	assert.Empty(t, v)

	err = s.InTx(ctx, func(tx core.RecommendDataStore) error {
		if err := tx.UpsertRecommendations(ctx, 1, []int64{3}); err != nil {
			return err
		}
		// 嵌套调用加入外层事务
		return tx.InTx(ctx, func(inner core.RecommendDataStore) error {
			_, err := inner.InsertInteraction(ctx, core.Interaction{ActorID: 1, TargetID: 3, Kind: core.InteractionLiked})
			return err
		})
	})
	require.NoError(t, err)

	entry, err := s.GetRecommendations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, entry.IDs)
	kept, err := s.ExcludeInteracted(ctx, 1, []int64{3})
	require.NoError(t, err)
	assert.Empty(t, kept)

	err = s.InTx(ctx, func(tx core.RecommendDataStore) error {
		if err := tx.UpsertRecommendations(ctx, 1, []int64{4}); err != nil {
			return err
		}
		return tx.InTx(ctx, func(core.RecommendDataStore) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	entry, err = s.GetRecommendations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, entry.IDs)
}
