// Package preference 维护用户的偏好向量。
//
// 原始偏好分（未归一化）按交互增量更新：liked +1，disliked -1，superliked +2，
// 作用于目标用户拥有的每个特征。打分器读取的偏好向量是原始分保留前 K 维后再做 L2 归一化的结果。
package preference

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/metrics"
	"github.com/rushteam/roommatch/registry"
)

// Feedback 是一条待折算进偏好的交互：请求者对 TargetID 的表态。
type Feedback struct {
	TargetID int64                `json:"target_id"`
	Kind     core.InteractionKind `json:"kind"`
}

// Updater 是偏好更新器。每次 Apply 在一个事务内完成：要么原始分与偏好向量都写入，要么都不写。
type Updater struct {
	Store  core.RecommendDataStore
	Config core.RecommendConfig
	Logger zerolog.Logger

	defaultFeature int
}

// NewUpdater 创建偏好更新器；默认特征必须存在于注册表中。
func NewUpdater(store core.RecommendDataStore, reg *registry.Registry) (*Updater, error) {
	cfg := core.DefaultRecommendConfig()
	id, ok := reg.ID(cfg.DefaultPreferenceFeature)
	if !ok {
		return nil, core.NewInvalidInput(core.ModulePreference,
			fmt.Sprintf("preference: default feature %q is not registered", cfg.DefaultPreferenceFeature))
	}
	return &Updater{
		Store:          store,
		Config:         cfg,
		Logger:         log.Logger,
		defaultFeature: id,
	}, nil
}

// WithStore 返回一个使用 store 的副本，用于在调用方已开启的事务内执行。
func (u *Updater) WithStore(store core.RecommendDataStore) *Updater {
	cp := *u
	cp.Store = store
	return &cp
}

// Apply 把一批交互折算进 userID 的偏好，返回写入打分器的偏好向量。空批次不做任何事。
func (u *Updater) Apply(ctx context.Context, userID int64, batch []Feedback) (core.Vector, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	for _, fb := range batch {
		if !fb.Kind.Valid() {
			return nil, core.NewInvalidInput(core.ModulePreference, "preference: unknown interaction kind "+string(fb.Kind))
		}
	}

	var pref core.Vector
	err := u.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		raw, err := tx.GetRawPreferences(ctx, userID)
		if err != nil {
			return err
		}

		targets := make([]int64, 0, len(batch))
		for _, fb := range batch {
			targets = append(targets, fb.TargetID)
		}
		features, err := tx.GetVectors(ctx, targets, core.VectorFeature)
		if err != nil {
			return err
		}

		raw = Accumulate(raw, batch, features)
		pref, err = u.persist(ctx, tx, userID, raw)
		return err
	})
	metrics.RecordPreferenceUpdate(err)
	if err != nil {
		u.Logger.Error().Err(err).Int64("user_id", userID).Int("batch", len(batch)).Msg("preference: update failed")
		return nil, err
	}
	u.Logger.Debug().Int64("user_id", userID).Int("batch", len(batch)).Int("dims", len(pref)).Msg("preference: updated")
	return pref, nil
}

// Seed 为新用户（或修改了特征的用户）写入初始偏好：每个自有特征的原始分为 InitialPreferenceWeight。
func (u *Updater) Seed(ctx context.Context, userID int64, featureIDs []int) (core.Vector, error) {
	var pref core.Vector
	err := u.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		raw := make(core.Vector, len(featureIDs))
		for _, f := range featureIDs {
			raw[f] = u.Config.InitialPreferenceWeight
		}
		var err error
		pref, err = u.persist(ctx, tx, userID, raw)
		return err
	})
	return pref, err
}

// persist 清理原始分、回填默认特征并写入原始分与偏好向量。
func (u *Updater) persist(ctx context.Context, tx core.RecommendDataStore, userID int64, raw core.Vector) (core.Vector, error) {
	raw = Prune(raw, u.defaultFeature)
	if err := tx.SaveRawPreferences(ctx, userID, raw, raw.Sum()); err != nil {
		return nil, err
	}
	pref := raw.TopN(u.Config.PreferenceTopK).Normalize()
	if err := tx.PutVector(ctx, userID, core.VectorPreference, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

// Accumulate 把整批交互的权重累加到原始分上：目标拥有的每个特征都加上该交互的权重。
// 返回新的向量，不修改 raw。
func Accumulate(raw core.Vector, batch []Feedback, features map[int64]core.Vector) core.Vector {
	out := raw.Clone()
	for _, fb := range batch {
		w := fb.Kind.Weight()
		for f, presence := range features[fb.TargetID] {
			if presence <= 0 {
				continue
			}
			out[f] += w
		}
	}
	return out
}

// Prune 去掉分数 <= 0 的特征；全部被去掉时回填 {defaultFeature: 1}，保证偏好永不为空。
func Prune(raw core.Vector, defaultFeature int) core.Vector {
	out := make(core.Vector, len(raw))
	for f, w := range raw {
		if w > 0 {
			out[f] = w
		}
	}
	if len(out) == 0 {
		out[defaultFeature] = 1
	}
	return out
}
