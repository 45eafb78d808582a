package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/roommatch/core"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/roommatch/config/builders"
// 以触发内置存储后端（sqlite、postgres、memory、redis）的 init 注册。

// StoreBuilder 根据后端配置构建数据存储。
// 各后端在 init 中调用 Register(name, builder) 即可被配置驱动。
type StoreBuilder func(ctx context.Context, cfg map[string]any) (core.RecommendDataStore, error)

var (
	defaultBuilders   = make(map[string]StoreBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种存储后端的构建逻辑。
func Register(name string, builder StoreBuilder) {
	if name == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[name] = builder
}

// SupportedBackends 返回当前已注册的后端名称（排序），用于错误提示与校验。
func SupportedBackends() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	names := make([]string, 0, len(defaultBuilders))
	for n := range defaultBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open 按名称构建存储；未注册的后端返回包含已支持列表的错误。
func Open(ctx context.Context, name string, cfg map[string]any) (core.RecommendDataStore, error) {
	defaultBuildersMu.RLock()
	builder, ok := defaultBuilders[name]
	defaultBuildersMu.RUnlock()
	if !ok {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported,
			fmt.Sprintf("unsupported store backend %q (supported: %v)", name, SupportedBackends()))
	}
	s, err := builder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build store %s: %w", name, err)
	}
	return s, nil
}

// OpenStore 按应用配置构建存储。
func OpenStore(ctx context.Context, cfg *AppConfig) (core.RecommendDataStore, error) {
	return Open(ctx, cfg.Backend, cfg.StoreOptions())
}
