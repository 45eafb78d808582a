package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/filter"
	"github.com/rushteam/roommatch/metrics"
	"github.com/rushteam/roommatch/pipeline"
	"github.com/rushteam/roommatch/preference"
	"github.com/rushteam/roommatch/recall"
	"github.com/rushteam/roommatch/registry"
)

// 请求参数 trigger 的取值
const (
	TriggerGenerate = "generate"
	TriggerServe    = "serve"
	TriggerCheck    = "check"
)

// Recommendations 是返回给请求层的推荐结果：有序的候选 ID 与对应的展示记录。
type Recommendations struct {
	RunID    string         `json:"run_id,omitempty"`
	Path     string         `json:"path"`
	IDs      []int64        `json:"ids"`
	Profiles []core.Profile `json:"profiles"`
}

// Service 是推荐服务的入口：生成、只读缓存、线上 "十张新卡片"。
//
// 同一用户的生成与偏好更新串行执行（可被 ctx 取消），不同用户之间互不影响。
type Service struct {
	Store       core.RecommendDataStore
	Composer    *Composer
	Preferences *preference.Updater
	Config      core.RecommendConfig
	Logger      zerolog.Logger

	locks *userLocks
}

type options struct {
	config core.RecommendConfig
	rand   recall.RandSource
	logger zerolog.Logger
}

// Option 配置 Service。
type Option func(*options)

// WithConfig 替换推荐链路的策略常量（测试中用于缩小规模）。
func WithConfig(cfg core.RecommendConfig) Option {
	return func(o *options) { o.config = cfg }
}

// WithRandSource 指定随机补位的随机源；测试传入固定种子。
func WithRandSource(src recall.RandSource) Option {
	return func(o *options) { o.rand = src }
}

// WithLogger 指定日志输出。
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewService 创建推荐服务。
func NewService(store core.RecommendDataStore, reg *registry.Registry, opts ...Option) (*Service, error) {
	o := options{
		config: core.DefaultRecommendConfig(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	updater, err := preference.NewUpdater(store, reg)
	if err != nil {
		return nil, err
	}
	updater.Logger = o.logger

	composer := NewComposer(store, o.config, o.rand)
	composer.Logger = o.logger

	return &Service{
		Store:       store,
		Composer:    composer,
		Preferences: updater,
		Config:      o.config,
		Logger:      o.logger,
		locks:       newUserLocks(),
	}, nil
}

// Generate 重新生成 userID 的推荐（n 条），写入缓存并返回展示记录。未知用户返回空结果。
func (s *Service) Generate(ctx context.Context, userID int64, n int) (*Recommendations, error) {
	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.generate(ctx, userID, n, TriggerGenerate)
}

// Serve 是线上请求：先把本次带上来的交互折算进偏好，再生成 ServingRunN 条新推荐。
func (s *Service) Serve(ctx context.Context, userID int64, feedback []preference.Feedback) (*Recommendations, error) {
	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		if core.IsStoreNotFound(err) {
			return &Recommendations{}, nil
		}
		return nil, err
	}
	if _, err := s.Preferences.Apply(ctx, userID, feedback); err != nil {
		return nil, err
	}
	return s.generate(ctx, userID, s.Config.ServingRunN, TriggerServe)
}

// ApplyFeedback 只更新偏好，不重新生成推荐。
func (s *Service) ApplyFeedback(ctx context.Context, userID int64, feedback []preference.Feedback) (core.Vector, error) {
	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.Preferences.Apply(ctx, userID, feedback)
}

// Check 读取最近一次写入的推荐，剔除用户此后已交互过的候选后返回。不会重新打分。
// 没有缓存时返回空结果。
func (s *Service) Check(ctx context.Context, userID int64) (*Recommendations, error) {
	start := time.Now()
	out, err := s.check(ctx, userID)
	metrics.RecordGeneration(metrics.PathCheck, err, time.Since(start))
	return out, err
}

func (s *Service) check(ctx context.Context, userID int64) (*Recommendations, error) {
	entry, err := s.Store.GetRecommendations(ctx, userID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return &Recommendations{Path: metrics.PathCheck}, nil
		}
		return nil, err
	}

	items := make([]*core.Item, 0, len(entry.IDs))
	for _, id := range entry.IDs {
		items = append(items, core.NewItem(id))
	}
	rctx := &core.RecommendContext{
		UserID: userID,
		N:      len(entry.IDs),
		Params: map[string]any{"trigger": TriggerCheck},
	}
	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&filter.FilterNode{Filters: []filter.Filter{filter.NewExposedFilter(s.Store)}},
	}}
	items, err = p.Run(ctx, rctx, items)
	if err != nil {
		return nil, err
	}

	ids := core.ItemIDs(items)
	profiles, err := s.Store.HydrateProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate profiles: %w", err)
	}
	s.Logger.Debug().
		Int64("user_id", userID).
		Int("cached", len(entry.IDs)).
		Int("kept", len(ids)).
		Time("last_updated", entry.LastUpdated).
		Msg("recommend: checked cache")
	return &Recommendations{Path: metrics.PathCheck, IDs: ids, Profiles: profiles}, nil
}

// Refresh 为一批用户重新生成推荐，最多 concurrency 个用户并发；任一用户失败时停止并返回该错误。
func (s *Service) Refresh(ctx context.Context, userIDs []int64, n, concurrency int) error {
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, id := range userIDs {
		g.Go(func() error {
			if _, err := s.Generate(gctx, id, n); err != nil {
				return fmt.Errorf("user %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// generate 在已持有 userID 锁的前提下生成推荐。
func (s *Service) generate(ctx context.Context, userID int64, n int, trigger string) (*Recommendations, error) {
	rec, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return &Recommendations{}, nil
		}
		return nil, core.NewGenerationFailed(StageCheckPoolSize, err)
	}

	rctx := &core.RecommendContext{
		UserID: userID,
		N:      n,
		Filter: rec.Filters,
		Params: map[string]any{"trigger": trigger},
	}
	res, err := s.Composer.Run(ctx, rctx)
	if err != nil {
		return nil, err
	}

	ids := res.IDs()
	profiles, err := s.Store.HydrateProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate profiles: %w", err)
	}
	return &Recommendations{RunID: res.RunID, Path: res.Path, IDs: ids, Profiles: profiles}, nil
}
