package filter

import (
	"context"

	"github.com/rushteam/roommatch/core"
)

// Filter 是逐个候选判断的过滤器抽象接口。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// BatchFilter 是可以一次处理整批 ID 的过滤器（例如一次反连接查询）。
// FilterNode 优先使用批量接口，避免逐条访问存储。
type BatchFilter interface {
	Filter

	// Keep 返回需要保留的 ID，保持输入顺序
	Keep(ctx context.Context, rctx *core.RecommendContext, ids []int64) ([]int64, error)
}
