package filter

import (
	"context"

	"github.com/rushteam/roommatch/core"
)

// ExposedFilter 是已交互过滤器：去掉请求者已经表态过（liked / disliked / superliked）的候选。
//
// 用于只读推荐缓存的路径：不重新打分，只做一次反连接剔除过期的候选。
type ExposedFilter struct {
	Store core.RecommendDataStore
}

// NewExposedFilter 创建一个已交互过滤器。
func NewExposedFilter(store core.RecommendDataStore) *ExposedFilter {
	return &ExposedFilter{Store: store}
}

func (f *ExposedFilter) Name() string {
	return "filter.exposed"
}

func (f *ExposedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || f.Store == nil {
		return false, nil
	}
	kept, err := f.Keep(ctx, rctx, []int64{item.ID})
	if err != nil {
		return false, err
	}
	return len(kept) == 0, nil
}

func (f *ExposedFilter) Keep(
	ctx context.Context,
	rctx *core.RecommendContext,
	ids []int64,
) ([]int64, error) {
	if rctx == nil || f.Store == nil || len(ids) == 0 {
		return ids, nil
	}
	return f.Store.ExcludeInteracted(ctx, rctx.UserID, ids)
}

var _ BatchFilter = (*ExposedFilter)(nil)
