package core

import "time"

// InteractionKind 是一次交互的类型。
type InteractionKind string

const (
	InteractionLiked      InteractionKind = "liked"
	InteractionDisliked   InteractionKind = "disliked"
	InteractionSuperliked InteractionKind = "superliked"
)

// PositiveKinds 是参与协同过滤与配对判定的交互类型。
var PositiveKinds = []InteractionKind{InteractionLiked, InteractionSuperliked}

// ParseInteractionKind 解析交互类型字符串。
func ParseInteractionKind(s string) (InteractionKind, error) {
	k := InteractionKind(s)
	if !k.Valid() {
		return "", NewInvalidInput(ModuleInteraction, "interaction: unknown kind "+s)
	}
	return k, nil
}

// Valid 检查交互类型是否合法。
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionLiked, InteractionDisliked, InteractionSuperliked:
		return true
	}
	return false
}

// Positive 表示 liked / superliked。
func (k InteractionKind) Positive() bool {
	return k == InteractionLiked || k == InteractionSuperliked
}

// Weight 是交互的权重：liked +1，disliked -1，superliked +2。
// 协同聚合只统计正向交互，因此同一张表也给出 like=1 / superlike=2 的计分。
func (k InteractionKind) Weight() float64 {
	switch k {
	case InteractionLiked:
		return 1
	case InteractionDisliked:
		return -1
	case InteractionSuperliked:
		return 2
	}
	return 0
}

// Interaction 是有向交互：Actor 对 Target 的一次表态。
// 每个 (Actor, Target) 只保留第一次写入。
type Interaction struct {
	ActorID   int64           `json:"actor_id"`
	TargetID  int64           `json:"target_id"`
	Kind      InteractionKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

// Match 是双向正向交互派生出的配对，A/B 无序。
type Match struct {
	UserA     int64     `json:"user_a"`
	UserB     int64     `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Other 返回配对中的另一方。
func (m Match) Other(userID int64) int64 {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// Report 是举报记录，每个 (Reporter, Reported) 只保留一条。
type Report struct {
	ReporterID int64     `json:"reporter_id"`
	ReportedID int64     `json:"reported_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
