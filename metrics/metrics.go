// Package metrics 提供推荐生成与偏好更新的 Prometheus 指标。
//
// 用法：
//
//	metrics.RecordGeneration(metrics.PathBlended, nil, time.Since(start))
//	metrics.ObserveStage(metrics.StageCollaborative, len(collab))
//	metrics.RecordPreferenceUpdate(err)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 生成路径
const (
	PathShortCircuit  = "short_circuit"
	PathBlended       = "blended"
	PathCheck         = "check"
	PathCheckPoolSize = "check_pool_size" // 选定路径之前（参数校验、属性过滤）就失败的生成
)

// 生成阶段
const (
	StagePool          = "pool"
	StageNeighbors     = "neighbors"
	StageCollaborative = "collaborative"
	StageContent       = "content"
	StageRandom        = "random"
	StageFinal         = "final"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// GenerationsTotal 按路径与结果统计推荐生成次数。
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roommatch_generations_total",
			Help: "Total number of recommendation runs by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	// GenerationDuration 统计一次生成的耗时。
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roommatch_generation_duration_seconds",
			Help:    "Duration of recommendation runs in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"path"},
	)

	// StageCandidates 统计各阶段产出的候选数。
	StageCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roommatch_stage_candidates",
			Help:    "Number of candidates produced per pipeline stage",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 125, 250, 500, 1000},
		},
		[]string{"stage"},
	)

	// PreferenceUpdatesTotal 按结果统计偏好更新次数。
	PreferenceUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roommatch_preference_updates_total",
			Help: "Total number of preference update batches by outcome",
		},
		[]string{"outcome"},
	)

	// InteractionsTotal 按类型统计新写入的交互。
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roommatch_interactions_total",
			Help: "Total number of recorded interactions by kind",
		},
		[]string{"kind"},
	)

	// MatchesTotal 统计新建的配对。
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roommatch_matches_total",
			Help: "Total number of matches created",
		},
	)
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordGeneration 记录一次生成的结果与耗时。
func RecordGeneration(path string, err error, d time.Duration) {
	GenerationsTotal.WithLabelValues(path, outcome(err)).Inc()
	GenerationDuration.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveStage 记录一个阶段产出的候选数。
func ObserveStage(stage string, n int) {
	StageCandidates.WithLabelValues(stage).Observe(float64(n))
}

// RecordPreferenceUpdate 记录一次偏好更新。
func RecordPreferenceUpdate(err error) {
	PreferenceUpdatesTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordInteraction 记录一次新写入的交互。
func RecordInteraction(kind string) {
	InteractionsTotal.WithLabelValues(kind).Inc()
}

// RecordMatch 记录一次新配对。
func RecordMatch() {
	MatchesTotal.Inc()
}
