package roommatch_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch"
	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/registry"
	"github.com/rushteam/roommatch/store"
	"github.com/rushteam/roommatch/store/storetest"
)

func TestFacade(t *testing.T) {
	ctx := context.Background()
	var s roommatch.Store = store.NewKVRepository(store.NewMemoryStore())
	defer s.Close()

	me, err := s.SaveUser(ctx, storetest.User("me"))
	require.NoError(t, err)
	other, err := s.SaveUser(ctx, storetest.User("other"))
	require.NoError(t, err)
	require.NoError(t, s.PutVector(ctx, other, core.VectorFeature, core.FeatureVector([]int{2})))

	cfg := core.DefaultRecommendConfig()
	svc, err := roommatch.NewService(s, registry.Default(),
		roommatch.WithConfig(cfg),
		roommatch.WithRandSource(rand.New(rand.NewPCG(1, 1))),
		roommatch.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	var out *roommatch.Recommendations
	out, err = svc.Serve(ctx, me, []roommatch.Feedback{{TargetID: other, Kind: core.InteractionLiked}})
	require.NoError(t, err)
	assert.Equal(t, []int64{other}, out.IDs)
}
