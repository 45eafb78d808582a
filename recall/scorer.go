package recall

import (
	"context"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pkg/utils"
)

// WeightedScorer 是通用的加权点积打分器。
//
// score(c) = Σ candidate[kind][f] × target[preference][f]，f 为两者共有的特征。
// 同一个打分器使用两次：
//   - kind = preference：在 AllUsers 中找口味最相近的协同邻居
//   - kind = feature：按候选的特征与目标偏好的契合度做内容排序
//
// 只有分数为正的候选会被选中；同分按用户 ID 升序。
type WeightedScorer struct {
	Store core.RecommendDataStore
}

func (s *WeightedScorer) Name() string {
	return "recall.weighted"
}

// Scores 计算每个候选的得分，没有对应向量的候选得分为 0。
// 目标用户没有偏好向量时返回 nil。
func (s *WeightedScorer) Scores(
	ctx context.Context,
	target int64,
	candidates []int64,
	kind core.VectorKind,
) (map[int64]float64, error) {
	if !kind.Valid() {
		return nil, core.NewInvalidInput(core.ModuleRecommend, "recall: unknown vector kind "+string(kind))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	pref, err := s.Store.GetVector(ctx, target, core.VectorPreference)
	if err != nil {
		return nil, err
	}
	if len(pref) == 0 {
		return nil, nil
	}

	vectors, err := s.Store.GetVectors(ctx, candidates, kind)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(candidates))
	for _, id := range candidates {
		if id == target {
			continue
		}
		scores[id] = vectors[id].Dot(pref)
	}
	return scores, nil
}

// TopMatches 返回得分最高的最多 n 个候选，按得分降序。
func (s *WeightedScorer) TopMatches(
	ctx context.Context,
	target int64,
	candidates []int64,
	kind core.VectorKind,
	n int,
) ([]*core.Item, error) {
	if n <= 0 {
		return nil, nil
	}
	scores, err := s.Scores(ctx, target, candidates, kind)
	if err != nil {
		return nil, err
	}

	top := topK(scores, n)
	out := make([]*core.Item, 0, len(top))
	for _, c := range top {
		it := core.NewItem(c.id)
		it.Score = c.score
		it.PutLabel(core.LabelRecallSource, utils.Label{Value: string(kind), Source: s.Name()})
		out = append(out, it)
	}
	return out, nil
}
