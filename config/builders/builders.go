// Package builders 注册内置的存储后端构建器。
package builders

import (
	"context"
	"fmt"

	"github.com/rushteam/roommatch/config"
	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pkg/conv"
	"github.com/rushteam/roommatch/store"
	"github.com/rushteam/roommatch/store/sqlstore"
)

func init() {
	config.Register("sqlite", BuildSQLite)
	config.Register("postgres", BuildPostgres)
	config.Register("memory", BuildMemory)
	config.Register("redis", BuildRedis)
}

// BuildSQLite 使用 dsn（数据目录或 :memory:）打开 sqlite 仓储。
func BuildSQLite(ctx context.Context, cfg map[string]any) (core.RecommendDataStore, error) {
	dsn := conv.ConfigGet(cfg, "dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	return sqlstore.Open(ctx, sqlstore.DialectSQLite, dsn)
}

// BuildPostgres 使用 pgx 连接串打开 postgres 仓储。
func BuildPostgres(ctx context.Context, cfg map[string]any) (core.RecommendDataStore, error) {
	dsn := conv.ConfigGet(cfg, "dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	return sqlstore.Open(ctx, sqlstore.DialectPostgres, dsn)
}

// BuildMemory 构建进程内的 KV 仓储，进程退出后数据丢失。
func BuildMemory(_ context.Context, _ map[string]any) (core.RecommendDataStore, error) {
	return store.NewKVRepository(store.NewMemoryStore()), nil
}

// BuildRedis 构建 Redis 上的 KV 仓储。
func BuildRedis(_ context.Context, cfg map[string]any) (core.RecommendDataStore, error) {
	addr := conv.ConfigGet(cfg, "addr", "")
	if addr == "" {
		return nil, fmt.Errorf("addr is required")
	}
	kv, err := store.NewRedisStore(addr, conv.ConfigGet(cfg, "password", ""), int(conv.ConfigGetInt64(cfg, "db", 0)))
	if err != nil {
		return nil, err
	}
	return store.NewKVRepository(kv), nil
}
