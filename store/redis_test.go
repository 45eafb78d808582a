package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/store/storetest"
)

// 需要真实的 Redis：ROOMMATCH_TEST_REDIS_ADDR=localhost:6379，使用 15 号库并在每个用例前清空。
func TestRedisKVRepository(t *testing.T) {
	addr := os.Getenv("ROOMMATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMMATCH_TEST_REDIS_ADDR not set")
	}
	storetest.Run(t, func(t *testing.T) core.RecommendDataStore {
		rs, err := NewRedisStore(addr, "", 15)
		require.NoError(t, err)
		require.NoError(t, rs.client.FlushDB(context.Background()).Err())
		repo := NewKVRepository(rs)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	_, err := NewRedisStore("127.0.0.1:1", "", 0)
	require.Error(t, err)
	require.True(t, core.IsUnavailable(err))
}
