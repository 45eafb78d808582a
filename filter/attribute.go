package filter

import (
	"context"

	"github.com/rushteam/roommatch/core"
)

// AttributeFilter 把全体用户收窄到满足硬约束的候选池：
// 城市、迁入窗口、年龄与租金区间，以及可选的大学/职业，排除请求者本人。
//
// 结果分成两部分：AllUsers（用于寻找协同邻居）与 NonInteracted（真正可推荐的候选）。
type AttributeFilter struct {
	Store core.RecommendDataStore

	// Cap 是单次过滤最多返回的候选数
	Cap int
}

// NewAttributeFilter 创建一个属性过滤器；limit <= 0 时使用默认上限。
func NewAttributeFilter(store core.RecommendDataStore, limit int) *AttributeFilter {
	if limit <= 0 {
		limit = core.DefaultRecommendConfig().CandidateCap
	}
	return &AttributeFilter{Store: store, Cap: limit}
}

func (f *AttributeFilter) Name() string {
	return "filter.attribute"
}

// Candidates 执行过滤。没有任何候选时返回空候选池，不是错误。
func (f *AttributeFilter) Candidates(
	ctx context.Context,
	spec core.FilterSpec,
	requester int64,
) (core.CandidatePool, error) {
	if err := core.Validate(core.ModuleFilter, spec); err != nil {
		return core.CandidatePool{}, err
	}

	rows, err := f.Store.FilterCandidates(ctx, spec, requester, f.Cap)
	if err != nil {
		return core.CandidatePool{}, err
	}

	pool := core.CandidatePool{
		AllUsers:      make([]int64, 0, len(rows)),
		NonInteracted: make([]int64, 0, len(rows)),
	}
	seen := make(map[int64]struct{}, len(rows))
	for _, c := range rows {
		if c.ID == requester {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		pool.AllUsers = append(pool.AllUsers, c.ID)
		if !c.Interacted {
			pool.NonInteracted = append(pool.NonInteracted, c.ID)
		}
		if len(pool.AllUsers) >= f.Cap {
			break
		}
	}
	return pool, nil
}
