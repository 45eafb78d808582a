package pipeline

import (
	"context"

	"github.com/rushteam/roommatch/core"
)

// Kind 用于标记 Node 所属阶段，方便按阶段打点。
type Kind string

const (
	KindRecall      Kind = "recall"      // 召回：协同 / 内容 / 随机补位
	KindFilter      Kind = "filter"      // 过滤：剔除已交互等不可推荐的候选
)

// Node 是 Pipeline 的最小可扩展单元，统一采用 "输入 items -> 输出 items" 的形态。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
