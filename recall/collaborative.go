package recall

import (
	"context"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pkg/utils"
)

// CollaborativeAggregator 是基于邻居投票的协同召回。
//
// 核心思想："口味相近的人喜欢过的人，你大概率也会喜欢"
// 对每个候选统计邻居给出的正向交互：liked 计 1 分，superliked 计 2 分。
type CollaborativeAggregator struct {
	Store core.RecommendDataStore
}

func (a *CollaborativeAggregator) Name() string {
	return "recall.collaborative"
}

// Scores 返回每个候选的投票分；没有被任何邻居喜欢的候选分数为 0，但仍出现在结果中。
// 邻居为空时不访问存储，直接返回全 0。
func (a *CollaborativeAggregator) Scores(
	ctx context.Context,
	neighbors []int64,
	candidates []int64,
) (map[int64]float64, error) {
	scores := make(map[int64]float64, len(candidates))
	for _, id := range candidates {
		scores[id] = 0
	}
	if len(neighbors) == 0 || len(candidates) == 0 {
		return scores, nil
	}

	interactions, err := a.Store.GetInteractionsFrom(ctx, neighbors, core.PositiveKinds, candidates)
	if err != nil {
		return nil, err
	}
	for _, in := range interactions {
		if !in.Kind.Positive() {
			continue
		}
		if _, ok := scores[in.TargetID]; !ok {
			continue
		}
		scores[in.TargetID] += in.Kind.Weight()
	}
	return scores, nil
}

// TopN 选出投票分最高的最多 n 个候选（只选分数为正的），同分按 ID 升序。
func (a *CollaborativeAggregator) TopN(
	ctx context.Context,
	neighbors []int64,
	candidates []int64,
	n int,
) ([]*core.Item, error) {
	if n <= 0 || len(neighbors) == 0 {
		return nil, nil
	}
	scores, err := a.Scores(ctx, neighbors, candidates)
	if err != nil {
		return nil, err
	}

	top := topK(scores, n)
	out := make([]*core.Item, 0, len(top))
	for _, c := range top {
		it := core.NewItem(c.id)
		it.Score = c.score
		it.PutLabel(core.LabelRecallSource, utils.Label{Value: "collaborative", Source: a.Name()})
		out = append(out, it)
	}
	return out, nil
}
