package core

// RecommendConfig 汇总推荐链路的策略常量。
//
// 这些值是产品策略而不是可插拔模型；生产代码一律使用 DefaultRecommendConfig()，
// 测试可以缩小规模（例如 CandidateCap）。
type RecommendConfig struct {
	// Neighbors 协同过滤时选取的相似用户数
	Neighbors int

	// FullRunN 完整推荐的默认条数
	FullRunN int

	// ServingRunN 线上 "十张新卡片" 请求的条数
	ServingRunN int

	// ShortCircuitFactor 候选池 <= Factor*n 时直接返回候选池
	ShortCircuitFactor int

	// CandidateCap 属性过滤最多返回的候选数
	CandidateCap int

	// PreferenceTopK 偏好向量归一化后保留的维度数
	PreferenceTopK int

	// DefaultPreferenceFeature 偏好被清空时回填的特征名
	DefaultPreferenceFeature string

	// InitialPreferenceWeight 注册时每个自有特征的初始偏好分
	InitialPreferenceWeight float64
}

// DefaultRecommendConfig 返回线上使用的策略常量。
func DefaultRecommendConfig() RecommendConfig {
	return RecommendConfig{
		Neighbors:                5,
		FullRunN:                 125,
		ServingRunN:              10,
		ShortCircuitFactor:       3,
		CandidateCap:             1000,
		PreferenceTopK:           10,
		DefaultPreferenceFeature: "Vegetarian",
		InitialPreferenceWeight:  50,
	}
}

// ShortCircuitLimit 返回 n 对应的短路阈值。
func (c RecommendConfig) ShortCircuitLimit(n int) int {
	return c.ShortCircuitFactor * n
}
