package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pkg/dsl"
	"github.com/rushteam/roommatch/recall"
)

// KVRepository 在任意 core.Store 之上实现 core.RecommendDataStore。
//
// Key 布局：
//
//	users                 用户 ID 索引（JSON 数组，升序）
//	seq:user              用户 ID 分配计数器
//	user:{id}             UserRecord
//	vector:{kind}:{id}    特征 / 偏好向量
//	rawpref:{id}          原始偏好分与 total_interactions
//	interactions:{actor}  actor 发出的交互，target -> Interaction
//	reco:{id}             推荐缓存 CacheEntry
//	matches:{id}          配对列表（双方各存一份）
//	reports:{reporter}    举报，reported -> Report
//
// 所有写入都在事务中完成：事务内的写先暂存，读优先命中暂存，最后通过 Store.Commit 原子提交。
// 同一个 KVRepository 上的事务串行执行。属性过滤用预编译的 CEL 表达式逐个判断，过滤值只做变量绑定；
// 命中数超过 limit 时无放回随机抽取 limit 个。
type KVRepository struct {
	kv   core.Store
	mu   *sync.Mutex
	tx   *kvTx
	now  func() time.Time
	rand recall.RandSource
}

// KVOption 配置 KVRepository。
type KVOption func(*KVRepository)

// WithKVRandSource 设置候选抽样使用的随机源（非并发安全的 *rand.Rand 只应在测试中传入）。
func WithKVRandSource(src recall.RandSource) KVOption {
	return func(r *KVRepository) {
		if src != nil {
			r.rand = src
		}
	}
}

// kvTx 是事务内暂存的写集合。
type kvTx struct {
	sets    map[string][]byte
	deletes map[string]struct{}
}

// NewKVRepository 创建一个 KV 仓储。
func NewKVRepository(kv core.Store, opts ...KVOption) *KVRepository {
	r := &KVRepository{
		kv:   kv,
		mu:   &sync.Mutex{},
		now:  func() time.Time { return time.Now().UTC() },
		rand: recall.DefaultRandSource(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *KVRepository) Name() string { return "kv:" + r.kv.Name() }

// Close 关闭底层 Store；事务内调用无效。
func (r *KVRepository) Close() error {
	if r.tx != nil {
		return nil
	}
	return r.kv.Close()
}

// ========== 事务 ==========

func (r *KVRepository) InTx(ctx context.Context, fn func(core.RecommendDataStore) error) error {
	return r.inTx(ctx, func(tx *KVRepository) error { return fn(tx) })
}

func (r *KVRepository) inTx(ctx context.Context, fn func(*KVRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &KVRepository{
		kv:   r.kv,
		mu:   r.mu,
		now:  r.now,
		rand: r.rand,
		tx:   &kvTx{sets: make(map[string][]byte), deletes: make(map[string]struct{})},
	}
	if err := fn(tx); err != nil {
		return err
	}
	deletes := make([]string, 0, len(tx.tx.deletes))
	for k := range tx.tx.deletes {
		deletes = append(deletes, k)
	}
	sort.Strings(deletes)
	if err := r.kv.Commit(ctx, tx.tx.sets, deletes); err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError, "store: commit failed", err)
	}
	return nil
}

// ========== 底层读写 ==========

func (r *KVRepository) get(ctx context.Context, key string) ([]byte, error) {
	if r.tx != nil {
		if _, ok := r.tx.deletes[key]; ok {
			return nil, core.ErrStoreNotFound
		}
		if v, ok := r.tx.sets[key]; ok {
			return v, nil
		}
	}
	return r.kv.Get(ctx, key)
}

func (r *KVRepository) batchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if r.tx == nil {
		return r.kv.BatchGet(ctx, keys)
	}
	out := make(map[string][]byte, len(keys))
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := r.tx.deletes[k]; ok {
			continue
		}
		if v, ok := r.tx.sets[k]; ok {
			out[k] = v
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) > 0 {
		found, err := r.kv.BatchGet(ctx, missing)
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			out[k] = v
		}
	}
	return out, nil
}

// getJSON 读取并解码，key 不存在时返回 false。
func (r *KVRepository) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.get(ctx, key)
	if core.IsStoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// putJSON 只能在事务内调用。
func (r *KVRepository) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	delete(r.tx.deletes, key)
	r.tx.sets[key] = data
	return nil
}

// del 只能在事务内调用。
func (r *KVRepository) del(key string) {
	delete(r.tx.sets, key)
	r.tx.deletes[key] = struct{}{}
}

func userKey(id int64) string         { return "user:" + strconv.FormatInt(id, 10) }
func rawPrefKey(id int64) string      { return "rawpref:" + strconv.FormatInt(id, 10) }
func interactionsKey(id int64) string { return "interactions:" + strconv.FormatInt(id, 10) }
func recoKey(id int64) string         { return "reco:" + strconv.FormatInt(id, 10) }
func matchesKey(id int64) string      { return "matches:" + strconv.FormatInt(id, 10) }
func reportsKey(id int64) string      { return "reports:" + strconv.FormatInt(id, 10) }

func vectorKey(kind core.VectorKind, id int64) string {
	return "vector:" + string(kind) + ":" + strconv.FormatInt(id, 10)
}

const (
	usersIndexKey = "users"
	userSeqKey    = "seq:user"
)

// ========== 属性过滤 ==========

func (r *KVRepository) FilterCandidates(
	ctx context.Context,
	spec core.FilterSpec,
	requester int64,
	limit int,
) ([]core.Candidate, error) {
	pred, err := dsl.CandidatePredicate()
	if err != nil {
		return nil, err
	}

	var ids []int64
	if _, err := r.getJSON(ctx, usersIndexKey, &ids); err != nil {
		return nil, err
	}
	users, err := r.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	interacted, err := r.interactionsFrom(ctx, requester)
	if err != nil {
		return nil, err
	}

	out := make([]core.Candidate, 0)
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		match, err := pred.Eval(dsl.CandidateVars(u, spec, requester))
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		_, seen := interacted[id]
		out = append(out, core.Candidate{ID: id, Interacted: seen})
	}
	return r.sample(out, limit), nil
}

// sample 对 cs 做部分 Fisher–Yates，保留 limit 个并按 ID 升序返回。
func (r *KVRepository) sample(cs []core.Candidate, limit int) []core.Candidate {
	if limit <= 0 || len(cs) <= limit {
		return cs
	}
	for i := 0; i < limit; i++ {
		j := i + r.rand.IntN(len(cs)-i)
		cs[i], cs[j] = cs[j], cs[i]
	}
	cs = cs[:limit]
	slices.SortFunc(cs, func(a, b core.Candidate) int { return cmp.Compare(a.ID, b.ID) })
	return cs
}

// ========== 向量 ==========

func (r *KVRepository) GetVector(ctx context.Context, userID int64, kind core.VectorKind) (core.Vector, error) {
	if !kind.Valid() {
		return nil, core.NewInvalidInput(core.ModuleStore, "store: unknown vector kind "+string(kind))
	}
	v := core.Vector{}
	if _, err := r.getJSON(ctx, vectorKey(kind, userID), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *KVRepository) GetVectors(ctx context.Context, userIDs []int64, kind core.VectorKind) (map[int64]core.Vector, error) {
	if !kind.Valid() {
		return nil, core.NewInvalidInput(core.ModuleStore, "store: unknown vector kind "+string(kind))
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, vectorKey(kind, id))
	}
	raw, err := r.batchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]core.Vector, len(raw))
	for i, id := range userIDs {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		v := core.Vector{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", keys[i], err)
		}
		out[id] = v
	}
	return out, nil
}

func (r *KVRepository) PutVector(ctx context.Context, userID int64, kind core.VectorKind, v core.Vector) error {
	if !kind.Valid() {
		return core.NewInvalidInput(core.ModuleStore, "store: unknown vector kind "+string(kind))
	}
	return r.inTx(ctx, func(tx *KVRepository) error {
		if v == nil {
			v = core.Vector{}
		}
		return tx.putJSON(vectorKey(kind, userID), v)
	})
}

type rawPreferences struct {
	Raw   core.Vector `json:"raw"`
	Total float64     `json:"total_interactions"`
}

func (r *KVRepository) GetRawPreferences(ctx context.Context, userID int64) (core.Vector, error) {
	var doc rawPreferences
	if _, err := r.getJSON(ctx, rawPrefKey(userID), &doc); err != nil {
		return nil, err
	}
	if doc.Raw == nil {
		doc.Raw = core.Vector{}
	}
	return doc.Raw, nil
}

func (r *KVRepository) SaveRawPreferences(ctx context.Context, userID int64, raw core.Vector, total float64) error {
	return r.inTx(ctx, func(tx *KVRepository) error {
		if raw == nil {
			raw = core.Vector{}
		}
		return tx.putJSON(rawPrefKey(userID), rawPreferences{Raw: raw, Total: total})
	})
}

// ========== 交互 ==========

func (r *KVRepository) interactionsFrom(ctx context.Context, actor int64) (map[int64]core.Interaction, error) {
	m := make(map[int64]core.Interaction)
	if _, err := r.getJSON(ctx, interactionsKey(actor), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *KVRepository) GetInteractionsFrom(
	ctx context.Context,
	actors []int64,
	kinds []core.InteractionKind,
	targets []int64,
) ([]core.Interaction, error) {
	var targetSet map[int64]struct{}
	if targets != nil {
		targetSet = make(map[int64]struct{}, len(targets))
		for _, t := range targets {
			targetSet[t] = struct{}{}
		}
	}

	keys := make([]string, 0, len(actors))
	for _, a := range slices.Compact(slices.Sorted(slices.Values(actors))) {
		keys = append(keys, interactionsKey(a))
	}
	raw, err := r.batchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	var out []core.Interaction
	for _, key := range keys {
		data, ok := raw[key]
		if !ok {
			continue
		}
		m := make(map[int64]core.Interaction)
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", key, err)
		}
		batch := make([]core.Interaction, 0, len(m))
		for target, in := range m {
			if targetSet != nil {
				if _, ok := targetSet[target]; !ok {
					continue
				}
			}
			if len(kinds) > 0 && !slices.Contains(kinds, in.Kind) {
				continue
			}
			batch = append(batch, in)
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].TargetID < batch[j].TargetID })
		out = append(out, batch...)
	}
	return out, nil
}

func (r *KVRepository) InsertInteraction(ctx context.Context, in core.Interaction) (bool, error) {
	if !in.Kind.Valid() {
		return false, core.NewInvalidInput(core.ModuleStore, "store: unknown interaction kind "+string(in.Kind))
	}
	inserted := false
	err := r.inTx(ctx, func(tx *KVRepository) error {
		m, err := tx.interactionsFrom(ctx, in.ActorID)
		if err != nil {
			return err
		}
		if _, ok := m[in.TargetID]; ok {
			return nil
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = tx.now()
		}
		m[in.TargetID] = in
		inserted = true
		return tx.putJSON(interactionsKey(in.ActorID), m)
	})
	return inserted, err
}

func (r *KVRepository) DeleteInteraction(ctx context.Context, actor, target int64) error {
	return r.inTx(ctx, func(tx *KVRepository) error {
		m, err := tx.interactionsFrom(ctx, actor)
		if err != nil {
			return err
		}
		if _, ok := m[target]; !ok {
			return nil
		}
		delete(m, target)
		if len(m) == 0 {
			tx.del(interactionsKey(actor))
			return nil
		}
		return tx.putJSON(interactionsKey(actor), m)
	})
}

func (r *KVRepository) ExcludeInteracted(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	m, err := r.interactionsFrom(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := m[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ========== 推荐缓存 ==========

func (r *KVRepository) UpsertRecommendations(ctx context.Context, userID int64, ids []int64) error {
	return r.inTx(ctx, func(tx *KVRepository) error {
		return tx.putJSON(recoKey(userID), core.CacheEntry{
			UserID:      userID,
			IDs:         slices.Clone(ids),
			LastUpdated: tx.now(),
		})
	})
}

func (r *KVRepository) GetRecommendations(ctx context.Context, userID int64) (core.CacheEntry, error) {
	var entry core.CacheEntry
	ok, err := r.getJSON(ctx, recoKey(userID), &entry)
	if err != nil {
		return core.CacheEntry{}, err
	}
	if !ok {
		return core.CacheEntry{}, core.ErrStoreNotFound
	}
	return entry, nil
}

// ========== 用户资料 ==========

func (r *KVRepository) loadUsers(ctx context.Context, ids []int64) (map[int64]core.UserRecord, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, userKey(id))
	}
	raw, err := r.batchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]core.UserRecord, len(raw))
	for i, id := range ids {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		var u core.UserRecord
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", keys[i], err)
		}
		out[id] = u
	}
	return out, nil
}

func (r *KVRepository) GetUser(ctx context.Context, userID int64) (core.UserRecord, error) {
	var u core.UserRecord
	ok, err := r.getJSON(ctx, userKey(userID), &u)
	if err != nil {
		return core.UserRecord{}, err
	}
	if !ok {
		return core.UserRecord{}, core.ErrStoreNotFound
	}
	return u, nil
}

func (r *KVRepository) SaveUser(ctx context.Context, rec core.UserRecord) (int64, error) {
	err := r.inTx(ctx, func(tx *KVRepository) error {
		var ids []int64
		if _, err := tx.getJSON(ctx, usersIndexKey, &ids); err != nil {
			return err
		}
		if rec.ID == 0 {
			var seq int64
			if _, err := tx.getJSON(ctx, userSeqKey, &seq); err != nil {
				return err
			}
			seq++
			rec.ID = seq
			if err := tx.putJSON(userSeqKey, seq); err != nil {
				return err
			}
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = tx.now()
		}
		if i, found := slices.BinarySearch(ids, rec.ID); !found {
			ids = slices.Insert(ids, i, rec.ID)
			if err := tx.putJSON(usersIndexKey, ids); err != nil {
				return err
			}
		}
		return tx.putJSON(userKey(rec.ID), rec)
	})
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (r *KVRepository) HydrateProfiles(ctx context.Context, ids []int64) ([]core.Profile, error) {
	users, err := r.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]core.Profile, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, u.Profile())
		}
	}
	return out, nil
}

// ========== 配对与举报 ==========

func (r *KVRepository) matchesOf(ctx context.Context, userID int64) ([]core.Match, error) {
	var ms []core.Match
	if _, err := r.getJSON(ctx, matchesKey(userID), &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *KVRepository) InsertMatch(ctx context.Context, a, b int64) (bool, error) {
	inserted := false
	err := r.inTx(ctx, func(tx *KVRepository) error {
		lists := make(map[int64][]core.Match, 2)
		m := core.Match{UserA: a, UserB: b, CreatedAt: tx.now()}
		for _, side := range [][2]int64{{a, b}, {b, a}} {
			list, err := tx.matchesOf(ctx, side[0])
			if err != nil {
				return err
			}
			if existing, ok := findPartner(list, side[0], side[1]); ok {
				m = existing
			}
			lists[side[0]] = list
		}
		// 只补写缺少这条配对的一侧
		for _, side := range [][2]int64{{a, b}, {b, a}} {
			list := lists[side[0]]
			if _, ok := findPartner(list, side[0], side[1]); ok {
				continue
			}
			if err := tx.putJSON(matchesKey(side[0]), append(list, m)); err != nil {
				return err
			}
			inserted = true
		}
		return nil
	})
	return inserted, err
}

func (r *KVRepository) DeleteMatch(ctx context.Context, a, b int64) error {
	return r.inTx(ctx, func(tx *KVRepository) error {
		for _, side := range [][2]int64{{a, b}, {b, a}} {
			list, err := tx.matchesOf(ctx, side[0])
			if err != nil {
				return err
			}
			kept := slices.DeleteFunc(list, func(m core.Match) bool { return m.Other(side[0]) == side[1] })
			if len(kept) == 0 {
				tx.del(matchesKey(side[0]))
				continue
			}
			if err := tx.putJSON(matchesKey(side[0]), kept); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *KVRepository) HasMatch(ctx context.Context, a, b int64) (bool, error) {
	ms, err := r.matchesOf(ctx, a)
	if err != nil {
		return false, err
	}
	return containsPartner(ms, a, b), nil
}

func (r *KVRepository) ListMatches(ctx context.Context, userID int64) ([]core.Match, error) {
	ms, err := r.matchesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
	return ms, nil
}

func containsPartner(ms []core.Match, self, partner int64) bool {
	_, ok := findPartner(ms, self, partner)
	return ok
}

func findPartner(ms []core.Match, self, partner int64) (core.Match, bool) {
	for _, m := range ms {
		if m.Other(self) == partner {
			return m, true
		}
	}
	return core.Match{}, false
}

func (r *KVRepository) InsertReport(ctx context.Context, rep core.Report) (bool, error) {
	inserted := false
	err := r.inTx(ctx, func(tx *KVRepository) error {
		m := make(map[int64]core.Report)
		if _, err := tx.getJSON(ctx, reportsKey(rep.ReporterID), &m); err != nil {
			return err
		}
		if _, ok := m[rep.ReportedID]; ok {
			return nil
		}
		if rep.CreatedAt.IsZero() {
			rep.CreatedAt = tx.now()
		}
		m[rep.ReportedID] = rep
		inserted = true
		return tx.putJSON(reportsKey(rep.ReporterID), m)
	})
	return inserted, err
}

var _ core.RecommendDataStore = (*KVRepository)(nil)
