package core

import "context"

// RecommendDataStore 是推荐核心使用的统一数据访问接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层实现
//   - 推荐、偏好更新、交互记录共用一个接口，避免接口爆炸
//   - 过滤值一律以参数绑定传入，实现方不得拼接查询字符串
//
// 实现：
//   - sqlstore.Store（sqlite / postgres）
//   - store.KVRepository（基于 core.Store，memory / redis）
type RecommendDataStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// ========== 属性过滤 ==========

	// FilterCandidates 返回满足硬约束的候选（不含 requester），最多 limit 条，顺序不保证。
	// Interacted 标记 requester 是否对该候选有过任何交互。
	FilterCandidates(ctx context.Context, spec FilterSpec, requester int64, limit int) ([]Candidate, error)

	// ========== 向量 ==========

	// GetVector 读取用户向量，不存在时返回空向量
	GetVector(ctx context.Context, userID int64, kind VectorKind) (Vector, error)

	// GetVectors 批量读取，没有向量的用户不出现在结果中
	GetVectors(ctx context.Context, userIDs []int64, kind VectorKind) (map[int64]Vector, error)

	// PutVector 整体替换用户向量
	PutVector(ctx context.Context, userID int64, kind VectorKind, v Vector) error

	// GetRawPreferences 读取归一化前的原始偏好分
	GetRawPreferences(ctx context.Context, userID int64) (Vector, error)

	// SaveRawPreferences 整体替换原始偏好分与 total_interactions
	SaveRawPreferences(ctx context.Context, userID int64, raw Vector, total float64) error

	// ========== 交互 ==========

	// GetInteractionsFrom 读取 actors 发出的、类型属于 kinds 的交互；targets 为 nil 时不限制目标
	GetInteractionsFrom(ctx context.Context, actors []int64, kinds []InteractionKind, targets []int64) ([]Interaction, error)

	// InsertInteraction 幂等写入，(actor, target) 已存在时返回 false
	InsertInteraction(ctx context.Context, i Interaction) (bool, error)

	// DeleteInteraction 删除 actor -> target 的交互
	DeleteInteraction(ctx context.Context, actor, target int64) error

	// ExcludeInteracted 去掉 userID 已交互过的 id，保持原顺序
	ExcludeInteracted(ctx context.Context, userID int64, ids []int64) ([]int64, error)

	// ========== 推荐缓存 ==========

	// UpsertRecommendations 覆盖写入推荐结果并刷新时间戳
	UpsertRecommendations(ctx context.Context, userID int64, ids []int64) error

	// GetRecommendations 读取推荐结果，不存在时返回 ErrStoreNotFound
	GetRecommendations(ctx context.Context, userID int64) (CacheEntry, error)

	// ========== 用户资料 ==========

	// GetUser 读取用户资料，不存在时返回 ErrStoreNotFound
	GetUser(ctx context.Context, userID int64) (UserRecord, error)

	// SaveUser 写入用户资料；ID 为 0 时分配新 ID
	SaveUser(ctx context.Context, rec UserRecord) (int64, error)

	// HydrateProfiles 按 ids 顺序返回展示记录，未知 id 跳过
	HydrateProfiles(ctx context.Context, ids []int64) ([]Profile, error)

	// ========== 配对与举报 ==========

	// InsertMatch 幂等写入配对，已存在时返回 false
	InsertMatch(ctx context.Context, a, b int64) (bool, error)

	// DeleteMatch 删除配对（无序）
	DeleteMatch(ctx context.Context, a, b int64) error

	// HasMatch 判断两人是否已配对
	HasMatch(ctx context.Context, a, b int64) (bool, error)

	// ListMatches 返回 userID 的全部配对，按建立时间升序
	ListMatches(ctx context.Context, userID int64) ([]Match, error)

	// InsertReport 幂等写入举报，已存在时返回 false
	InsertReport(ctx context.Context, r Report) (bool, error)

	// ========== 事务 ==========

	// InTx 在一个事务中执行 fn：fn 通过传入的 store 所做的写入要么全部提交，要么全部回滚。
	// 嵌套调用加入外层事务。
	InTx(ctx context.Context, fn func(RecommendDataStore) error) error

	// Close 关闭连接/释放资源
	Close() error
}
