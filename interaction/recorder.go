// Package interaction 记录用户之间的表态，并由双向正向表态派生配对。
package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/metrics"
)

// Outcome 是一次 Record 的结果。
type Outcome struct {
	// Inserted 为 false 表示 (actor, target) 已有交互，本次写入被忽略
	Inserted bool `json:"inserted"`

	// Matched 表示写入后两人处于配对状态
	Matched bool `json:"matched"`

	// NewMatch 表示配对是本次写入新建的
	NewMatch bool `json:"new_match"`
}

// MatchView 是配对列表中的一项：配对本身与对方的展示记录。
type MatchView struct {
	Match   core.Match   `json:"match"`
	Partner core.Profile `json:"partner"`
}

// Recorder 负责交互、配对与举报的写入。每个操作在一个事务内完成。
type Recorder struct {
	Store  core.RecommendDataStore
	Logger zerolog.Logger
}

// NewRecorder 创建交互记录器。
func NewRecorder(store core.RecommendDataStore) *Recorder {
	return &Recorder{Store: store, Logger: log.Logger}
}

func validatePair(actor, target int64) error {
	if actor <= 0 || target <= 0 {
		return core.NewInvalidInput(core.ModuleInteraction, fmt.Sprintf("interaction: invalid user ids %d -> %d", actor, target))
	}
	if actor == target {
		return core.NewInvalidInput(core.ModuleInteraction, "interaction: cannot interact with oneself")
	}
	return nil
}

// Record 写入 actor 对 target 的一次表态。重复写入同一对用户时保留第一次，不报错。
// 正向表态（liked / superliked）且对方此前也正向表态过时，建立配对。
func (r *Recorder) Record(ctx context.Context, actor, target int64, kind core.InteractionKind) (Outcome, error) {
	if err := validatePair(actor, target); err != nil {
		return Outcome{}, err
	}
	if !kind.Valid() {
		return Outcome{}, core.NewInvalidInput(core.ModuleInteraction, "interaction: unknown kind "+string(kind))
	}

	var out Outcome
	err := r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		inserted, err := tx.InsertInteraction(ctx, core.Interaction{ActorID: actor, TargetID: target, Kind: kind})
		if err != nil {
			return err
		}
		out.Inserted = inserted

		// 重复写入时以已存的表态为准，不据此新建配对
		if !inserted || !kind.Positive() {
			out.Matched, err = tx.HasMatch(ctx, actor, target)
			return err
		}

		reverse, err := tx.GetInteractionsFrom(ctx, []int64{target}, core.PositiveKinds, []int64{actor})
		if err != nil {
			return err
		}
		if len(reverse) == 0 {
			out.Matched, err = tx.HasMatch(ctx, actor, target)
			return err
		}
		out.NewMatch, err = tx.InsertMatch(ctx, actor, target)
		out.Matched = err == nil
		return err
	})
	if err != nil {
		r.Logger.Error().Err(err).Int64("actor", actor).Int64("target", target).Str("kind", string(kind)).Msg("interaction: record failed")
		return Outcome{}, err
	}

	if out.Inserted {
		metrics.RecordInteraction(string(kind))
	}
	if out.NewMatch {
		metrics.RecordMatch()
		r.Logger.Info().Int64("user_a", actor).Int64("user_b", target).Msg("interaction: match created")
	}
	return out, nil
}

// Report 处理 reporter 对 reported 的举报：
// 若两人已配对，删除 reporter 的原表态与配对；随后记一次 disliked（已有表态时不覆盖），并保存举报。
// 同一对用户只保留第一条举报。
func (r *Recorder) Report(ctx context.Context, reporter, reported int64, reason string) error {
	if err := validatePair(reporter, reported); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)

	err := r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		matched, err := tx.HasMatch(ctx, reporter, reported)
		if err != nil {
			return err
		}
		if matched {
			if err := tx.DeleteInteraction(ctx, reporter, reported); err != nil {
				return err
			}
			if err := tx.DeleteMatch(ctx, reporter, reported); err != nil {
				return err
			}
		}
		if _, err := tx.InsertInteraction(ctx, core.Interaction{
			ActorID:  reporter,
			TargetID: reported,
			Kind:     core.InteractionDisliked,
		}); err != nil {
			return err
		}
		_, err = tx.InsertReport(ctx, core.Report{ReporterID: reporter, ReportedID: reported, Reason: reason})
		return err
	})
	if err != nil {
		r.Logger.Error().Err(err).Int64("reporter", reporter).Int64("reported", reported).Msg("interaction: report failed")
		return err
	}
	r.Logger.Info().Int64("reporter", reporter).Int64("reported", reported).Msg("interaction: reported")
	return nil
}

// RemoveMatch 删除两人之间的配对，交互记录保留。
func (r *Recorder) RemoveMatch(ctx context.Context, a, b int64) error {
	if err := validatePair(a, b); err != nil {
		return err
	}
	return r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		return tx.DeleteMatch(ctx, a, b)
	})
}

// Matches 返回 userID 的配对及对方的展示记录，按配对时间升序。对方资料缺失的配对被跳过。
func (r *Recorder) Matches(ctx context.Context, userID int64) ([]MatchView, error) {
	matches, err := r.Store.ListMatches(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	partners := make([]int64, 0, len(matches))
	for _, m := range matches {
		partners = append(partners, m.Other(userID))
	}
	profiles, err := r.Store.HydrateProfiles(ctx, partners)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]core.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	out := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		p, ok := byID[m.Other(userID)]
		if !ok {
			continue
		}
		out = append(out, MatchView{Match: m, Partner: p})
	}
	return out, nil
}
