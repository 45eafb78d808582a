// Package roommatch 是室友匹配的混合推荐核心。
//
// 设计要点：
// - Filter-first: 先用硬约束（城市、迁入窗口、年龄/租金区间、可选的大学/职业）收窄候选池
// - Blend: 协同（相似用户的投票）-> 内容（特征与偏好的加权点积）-> 随机补位，逐阶段去重
// - Labels: 每个候选都带 recall_source 标签，说明它来自哪个阶段
// - Store 可替换: sqlite / postgres / memory / redis 共用 core.RecommendDataStore
package roommatch

import (
	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/preference"
	"github.com/rushteam/roommatch/recommend"
)

// 轻量 facade：便于直接 import "roommatch" 使用核心入口。
type (
	Service         = recommend.Service
	Option          = recommend.Option
	Recommendations = recommend.Recommendations
	Feedback        = preference.Feedback
	Store           = core.RecommendDataStore
)

var (
	NewService     = recommend.NewService
	WithConfig     = recommend.WithConfig
	WithRandSource = recommend.WithRandSource
	WithLogger     = recommend.WithLogger
)
