package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pipeline"
	"github.com/rushteam/roommatch/pkg/utils"
)

// FilterNode 组合多个过滤器。任何一个过滤器命中，候选就会被移除。
// 过滤器出错时中断并返回错误，不返回可能过期的结果。
type FilterNode struct {
	Filters []Filter
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}

	for _, f := range n.Filters {
		var err error
		if bf, ok := f.(BatchFilter); ok {
			out, err = n.processBatch(ctx, rctx, bf, out)
		} else {
			out, err = n.processEach(ctx, rctx, f, out)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
	}
	return out, nil
}

func (n *FilterNode) processBatch(
	ctx context.Context,
	rctx *core.RecommendContext,
	f BatchFilter,
	items []*core.Item,
) ([]*core.Item, error) {
	kept, err := f.Keep(ctx, rctx, core.ItemIDs(items))
	if err != nil {
		return nil, err
	}
	keep := make(map[int64]struct{}, len(kept))
	for _, id := range kept {
		keep[id] = struct{}{}
	}
	out := items[:0]
	for _, item := range items {
		if _, ok := keep[item.ID]; ok {
			out = append(out, item)
			continue
		}
		markFiltered(item, f.Name())
	}
	return out, nil
}

func (n *FilterNode) processEach(
	ctx context.Context,
	rctx *core.RecommendContext,
	f Filter,
	items []*core.Item,
) ([]*core.Item, error) {
	out := items[:0]
	for _, item := range items {
		drop, err := f.ShouldFilter(ctx, rctx, item)
		if err != nil {
			return nil, err
		}
		if drop {
			markFiltered(item, f.Name())
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// markFiltered 记录过滤原因（用于调试/观测）
func markFiltered(item *core.Item, reason string) {
	item.PutLabel("filtered", utils.Label{Value: "true", Source: reason})
}

var _ pipeline.Node = (*FilterNode)(nil)
