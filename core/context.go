package core

import "github.com/rushteam/roommatch/pkg/utils"

// RecommendContext 承载一次推荐请求的用户与运行信息，贯穿整个生成流程透传。
type RecommendContext struct {
	UserID int64

	// RunID 是本次生成的唯一标识，用于日志关联
	RunID string

	// N 是请求的推荐条数
	N int

	// Filter 是请求者声明的筛选条件
	Filter FilterSpec

	// Labels 是请求级标签，记录走过的路径（short_circuit / blended）等
	Labels map[string]utils.Label

	// Params 请求级上下文参数（如 trigger=serve / trigger=generate）
	Params map[string]any
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// Param 读取请求参数，不存在时返回 nil。
func (rctx *RecommendContext) Param(key string) any {
	if rctx.Params == nil {
		return nil
	}
	return rctx.Params[key]
}
