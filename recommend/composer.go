// Package recommend 实现混合推荐：属性过滤 -> 协同 -> 内容 -> 随机补位 -> 持久化。
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/filter"
	"github.com/rushteam/roommatch/metrics"
	"github.com/rushteam/roommatch/pkg/utils"
	"github.com/rushteam/roommatch/recall"
)

// LabelPath 是请求级标签 key，记录本次生成走的路径（short_circuit / blended）。
const LabelPath = "path"

// 状态机各阶段名称，失败时写入 RECOMMENDATION_GENERATION_FAILED 的消息中。
const (
	StageCheckPoolSize = "check_pool_size"
	StageShortCircuit  = "short_circuit"
	StageCollaborative = "collaborative"
	StageContent       = "content"
	StageRandomFill    = "random_fill"
	StagePersist       = "persist"
)

// Result 是一次生成的结果。
type Result struct {
	RunID string
	Path  string
	Items []*core.Item
}

// IDs 按推荐顺序返回候选 ID。
func (r *Result) IDs() []int64 {
	if r == nil {
		return nil
	}
	return core.ItemIDs(r.Items)
}

// Composer 是混合推荐的状态机：
//
//	check_pool_size -> short_circuit
//	                -> collaborative -> content -> random_fill
//	                -> persist
//
// 每个阶段都只从上一阶段剩下的候选里选，因此最终列表中每个 ID 至多出现一次。
// 任一阶段失败都返回 RECOMMENDATION_GENERATION_FAILED，且不写入任何结果。
type Composer struct {
	Store         core.RecommendDataStore
	Filter        *filter.AttributeFilter
	Scorer        *recall.WeightedScorer
	Collaborative *recall.CollaborativeAggregator
	Random        *recall.RandomFill
	Config        core.RecommendConfig
	Logger        zerolog.Logger
}

// NewComposer 用同一个存储组装全部阶段；src 为 nil 时随机补位使用全局随机源。
func NewComposer(store core.RecommendDataStore, cfg core.RecommendConfig, src recall.RandSource) *Composer {
	return &Composer{
		Store:         store,
		Filter:        filter.NewAttributeFilter(store, cfg.CandidateCap),
		Scorer:        &recall.WeightedScorer{Store: store},
		Collaborative: &recall.CollaborativeAggregator{Store: store},
		Random:        recall.NewRandomFill(src),
		Config:        cfg,
		Logger:        log.Logger,
	}
}

func (c *Composer) Name() string {
	return "recommend.composer"
}

// Run 为 rctx.UserID 生成最多 rctx.N 条推荐（短路时为整个未交互候选池）并覆盖写入推荐缓存。
func (c *Composer) Run(ctx context.Context, rctx *core.RecommendContext) (*Result, error) {
	if rctx.RunID == "" {
		rctx.RunID = uuid.NewString()
	}
	logger := c.Logger.With().
		Str("run_id", rctx.RunID).
		Int64("user_id", rctx.UserID).
		Int("n", rctx.N).
		Logger()

	start := time.Now()
	res, err := c.compose(ctx, rctx, logger)
	if err == nil {
		err = c.persist(ctx, rctx.UserID, res.IDs())
	}

	path := metrics.PathCheckPoolSize
	if res != nil && res.Path != "" {
		path = res.Path
	}
	metrics.RecordGeneration(path, err, time.Since(start))
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("recommend: generation failed")
		return nil, err
	}

	rctx.PutLabel(LabelPath, utils.Label{Value: res.Path, Source: c.Name()})
	metrics.ObserveStage(metrics.StageFinal, len(res.Items))
	logger.Info().
		Str("path", res.Path).
		Int("count", len(res.Items)).
		Dur("took", time.Since(start)).
		Msg("recommend: generated")
	return res, nil
}

func (c *Composer) compose(ctx context.Context, rctx *core.RecommendContext, logger zerolog.Logger) (*Result, error) {
	n := rctx.N
	if n <= 0 {
		return nil, core.NewGenerationFailed(StageCheckPoolSize,
			core.NewInvalidInput(core.ModuleRecommend, fmt.Sprintf("recommend: n must be positive, got %d", n)))
	}

	pool, err := c.Filter.Candidates(ctx, rctx.Filter, rctx.UserID)
	if err != nil {
		return nil, core.NewGenerationFailed(StageCheckPoolSize, err)
	}
	metrics.ObserveStage(metrics.StagePool, len(pool.NonInteracted))
	logger.Debug().
		Int("all_users", len(pool.AllUsers)).
		Int("non_interacted", len(pool.NonInteracted)).
		Msg("recommend: candidate pool")

	res := &Result{RunID: rctx.RunID}
	if len(pool.NonInteracted) <= c.Config.ShortCircuitLimit(n) {
		res.Path = metrics.PathShortCircuit
		res.Items = make([]*core.Item, 0, len(pool.NonInteracted))
		for _, id := range pool.NonInteracted {
			it := core.NewItem(id)
			it.PutLabel(core.LabelRecallSource, utils.Label{Value: StageShortCircuit, Source: c.Name()})
			res.Items = append(res.Items, it)
		}
		return res, nil
	}
	res.Path = metrics.PathBlended

	neighbors, err := c.Scorer.TopMatches(ctx, rctx.UserID, pool.AllUsers, core.VectorPreference, c.Config.Neighbors)
	if err != nil {
		return res, core.NewGenerationFailed(StageCollaborative, err)
	}
	metrics.ObserveStage(metrics.StageNeighbors, len(neighbors))

	collab, err := c.Collaborative.TopN(ctx, core.ItemIDs(neighbors), pool.NonInteracted, n)
	if err != nil {
		return res, core.NewGenerationFailed(StageCollaborative, err)
	}
	metrics.ObserveStage(metrics.StageCollaborative, len(collab))
	remaining := without(pool.NonInteracted, collab)

	content, err := c.Scorer.TopMatches(ctx, rctx.UserID, remaining, core.VectorFeature, n-len(collab))
	if err != nil {
		return res, core.NewGenerationFailed(StageContent, err)
	}
	metrics.ObserveStage(metrics.StageContent, len(content))
	remaining = without(remaining, content)

	random := c.Random.Sample(remaining, n-len(collab)-len(content))
	metrics.ObserveStage(metrics.StageRandom, len(random))

	logger.Debug().
		Int("neighbors", len(neighbors)).
		Int("collaborative", len(collab)).
		Int("content", len(content)).
		Int("random", len(random)).
		Msg("recommend: blended")

	res.Items = make([]*core.Item, 0, len(collab)+len(content)+len(random))
	res.Items = append(res.Items, collab...)
	res.Items = append(res.Items, content...)
	res.Items = append(res.Items, random...)
	return res, nil
}

// persist 在一个事务里覆盖写入推荐缓存。
func (c *Composer) persist(ctx context.Context, userID int64, ids []int64) error {
	err := c.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		return tx.UpsertRecommendations(ctx, userID, ids)
	})
	if err != nil {
		return core.NewGenerationFailed(StagePersist, err)
	}
	return nil
}

// without 返回 pool 中不在 picked 里的 ID，保持 pool 的顺序。
func without(pool []int64, picked []*core.Item) []int64 {
	if len(picked) == 0 {
		return pool
	}
	drop := make(map[int64]struct{}, len(picked))
	for _, it := range picked {
		drop[it.ID] = struct{}{}
	}
	out := make([]int64, 0, len(pool))
	for _, id := range pool {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
