package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/roommatch/core"
)

func nowUTC() time.Time { return time.Now().UTC() }

// 时间统一以 unix 纳秒存储，零值存 0。
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func int64Args(ids []int64) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// ========== 属性过滤 ==========

const filterCandidatesQuery = `
SELECT u.id,
       EXISTS (SELECT 1 FROM interactions i WHERE i.actor_id = ? AND i.target_id = u.id) AS interacted
FROM users u
WHERE u.city = ?
  AND u.move_in_start <= ?
  AND u.move_in_end >= ?
  AND u.age BETWEEN ? AND ?
  AND u.rent BETWEEN ? AND ?
  AND (? = 0 OR u.university = ?)
  AND (? = 0 OR u.profession = ?)
  AND u.id <> ?
ORDER BY RANDOM()
LIMIT ?`

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) FilterCandidates(
	ctx context.Context,
	spec core.FilterSpec,
	requester int64,
	limit int,
) ([]core.Candidate, error) {
	if limit <= 0 {
		limit = core.DefaultRecommendConfig().CandidateCap
	}
	rows, err := s.query(ctx, filterCandidatesQuery,
		requester,
		spec.City,
		toNanos(spec.MoveInEnd),
		toNanos(spec.MoveInStart),
		spec.AgeMin, spec.AgeMax,
		spec.RentMin, spec.RentMax,
		boolArg(spec.FilterUniversity), spec.University,
		boolArg(spec.FilterProfession), spec.Profession,
		requester,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: filter candidates: %w", err)
	}
	defer rows.Close()

	var out []core.Candidate
	for rows.Next() {
		var c core.Candidate
		if err := rows.Scan(&c.ID, &c.Interacted); err != nil {
			return nil, fmt.Errorf("sqlstore: scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ========== 向量 ==========

func (s *Store) GetVector(ctx context.Context, userID int64, kind core.VectorKind) (core.Vector, error) {
	vs, err := s.GetVectors(ctx, []int64{userID}, kind)
	if err != nil {
		return nil, err
	}
	if v, ok := vs[userID]; ok {
		return v, nil
	}
	return core.Vector{}, nil
}

func (s *Store) GetVectors(ctx context.Context, userIDs []int64, kind core.VectorKind) (map[int64]core.Vector, error) {
	if !kind.Valid() {
		return nil, core.NewInvalidInput(core.ModuleStore, "sqlstore: unknown vector kind "+string(kind))
	}
	out := make(map[int64]core.Vector)
	if len(userIDs) == 0 {
		return out, nil
	}

	args := append([]any{string(kind)}, int64Args(userIDs)...)
	rows, err := s.query(ctx,
		`SELECT user_id, feature_id, value FROM user_vectors WHERE kind = ? AND user_id IN (`+placeholders(len(userIDs))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID    int64
			featureID int
			value     float64
		)
		if err := rows.Scan(&userID, &featureID, &value); err != nil {
			return nil, fmt.Errorf("sqlstore: scan vector: %w", err)
		}
		v, ok := out[userID]
		if !ok {
			v = core.Vector{}
			out[userID] = v
		}
		v[featureID] = value
	}
	return out, rows.Err()
}

func (s *Store) PutVector(ctx context.Context, userID int64, kind core.VectorKind, v core.Vector) error {
	if !kind.Valid() {
		return core.NewInvalidInput(core.ModuleStore, "sqlstore: unknown vector kind "+string(kind))
	}
	return s.inTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `DELETE FROM user_vectors WHERE user_id = ? AND kind = ?`, userID, string(kind)); err != nil {
			return fmt.Errorf("sqlstore: clear vector: %w", err)
		}
		for _, f := range v.IDs() {
			if _, err := tx.exec(ctx,
				`INSERT INTO user_vectors (user_id, kind, feature_id, value) VALUES (?, ?, ?, ?)`,
				userID, string(kind), f, v[f]); err != nil {
				return fmt.Errorf("sqlstore: put vector: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetRawPreferences(ctx context.Context, userID int64) (core.Vector, error) {
	rows, err := s.query(ctx, `SELECT feature_id, value FROM raw_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get raw preferences: %w", err)
	}
	defer rows.Close()

	raw := core.Vector{}
	for rows.Next() {
		var (
			featureID int
			value     float64
		)
		if err := rows.Scan(&featureID, &value); err != nil {
			return nil, fmt.Errorf("sqlstore: scan raw preference: %w", err)
		}
		raw[featureID] = value
	}
	return raw, rows.Err()
}

func (s *Store) SaveRawPreferences(ctx context.Context, userID int64, raw core.Vector, total float64) error {
	return s.inTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `DELETE FROM raw_preferences WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("sqlstore: clear raw preferences: %w", err)
		}
		for _, f := range raw.IDs() {
			if _, err := tx.exec(ctx,
				`INSERT INTO raw_preferences (user_id, feature_id, value) VALUES (?, ?, ?)`,
				userID, f, raw[f]); err != nil {
				return fmt.Errorf("sqlstore: save raw preference: %w", err)
			}
		}
		if _, err := tx.exec(ctx, `
INSERT INTO preference_totals (user_id, total_interactions) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET total_interactions = excluded.total_interactions`,
			userID, total); err != nil {
			return fmt.Errorf("sqlstore: save preference total: %w", err)
		}
		return nil
	})
}

// ========== 交互 ==========

func (s *Store) GetInteractionsFrom(
	ctx context.Context,
	actors []int64,
	kinds []core.InteractionKind,
	targets []int64,
) ([]core.Interaction, error) {
	if len(actors) == 0 || (targets != nil && len(targets) == 0) {
		return nil, nil
	}

	query := `SELECT actor_id, target_id, kind, created_at FROM interactions WHERE actor_id IN (` + placeholders(len(actors)) + `)`
	args := int64Args(actors)
	if len(kinds) > 0 {
		query += ` AND kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	if targets != nil {
		query += ` AND target_id IN (` + placeholders(len(targets)) + `)`
		args = append(args, int64Args(targets)...)
	}
	query += ` ORDER BY actor_id, target_id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get interactions: %w", err)
	}
	defer rows.Close()

	var out []core.Interaction
	for rows.Next() {
		var (
			in      core.Interaction
			kind    string
			created int64
		)
		if err := rows.Scan(&in.ActorID, &in.TargetID, &kind, &created); err != nil {
			return nil, fmt.Errorf("sqlstore: scan interaction: %w", err)
		}
		in.Kind = core.InteractionKind(kind)
		in.CreatedAt = fromNanos(created)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) InsertInteraction(ctx context.Context, in core.Interaction) (bool, error) {
	if !in.Kind.Valid() {
		return false, core.NewInvalidInput(core.ModuleStore, "sqlstore: unknown interaction kind "+string(in.Kind))
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = nowUTC()
	}
	res, err := s.exec(ctx, `
INSERT INTO interactions (actor_id, target_id, kind, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (actor_id, target_id) DO NOTHING`,
		in.ActorID, in.TargetID, string(in.Kind), toNanos(in.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("sqlstore: insert interaction: %w", err)
	}
	return affected(res)
}

func (s *Store) DeleteInteraction(ctx context.Context, actor, target int64) error {
	if _, err := s.exec(ctx, `DELETE FROM interactions WHERE actor_id = ? AND target_id = ?`, actor, target); err != nil {
		return fmt.Errorf("sqlstore: delete interaction: %w", err)
	}
	return nil
}

func (s *Store) ExcludeInteracted(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	args := append([]any{userID}, int64Args(ids)...)
	rows, err := s.query(ctx,
		`SELECT target_id FROM interactions WHERE actor_id = ? AND target_id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: exclude interacted: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: scan interacted: %w", err)
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// ========== 推荐缓存 ==========

func (s *Store) UpsertRecommendations(ctx context.Context, userID int64, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("sqlstore: encode recommendations: %w", err)
	}
	if _, err := s.exec(ctx, `
INSERT INTO recommendations (user_id, ids, last_updated) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET ids = excluded.ids, last_updated = excluded.last_updated`,
		userID, string(data), toNanos(nowUTC())); err != nil {
		return fmt.Errorf("sqlstore: upsert recommendations: %w", err)
	}
	return nil
}

func (s *Store) GetRecommendations(ctx context.Context, userID int64) (core.CacheEntry, error) {
	var (
		data    string
		updated int64
	)
	err := s.queryRow(ctx, `SELECT ids, last_updated FROM recommendations WHERE user_id = ?`, userID).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CacheEntry{}, core.ErrStoreNotFound
	}
	if err != nil {
		return core.CacheEntry{}, fmt.Errorf("sqlstore: get recommendations: %w", err)
	}
	entry := core.CacheEntry{UserID: userID, LastUpdated: fromNanos(updated)}
	if err := json.Unmarshal([]byte(data), &entry.IDs); err != nil {
		return core.CacheEntry{}, fmt.Errorf("sqlstore: decode recommendations: %w", err)
	}
	return entry, nil
}

// ========== 用户资料 ==========

const userColumns = `id, name, age, rent, city, profession, university, move_in_start, move_in_end,
features, filters, bio, duration, contact_info, geo, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (core.UserRecord, error) {
	var (
		u                    core.UserRecord
		start, end, created  int64
		features, filterJSON string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Age, &u.Rent, &u.City, &u.Profession, &u.University,
		&start, &end, &features, &filterJSON, &u.Bio, &u.Duration, &u.ContactInfo, &u.Geo, &created); err != nil {
		return core.UserRecord{}, err
	}
	u.MoveInStart = fromNanos(start)
	u.MoveInEnd = fromNanos(end)
	u.CreatedAt = fromNanos(created)
	if err := json.Unmarshal([]byte(features), &u.Features); err != nil {
		return core.UserRecord{}, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal([]byte(filterJSON), &u.Filters); err != nil {
		return core.UserRecord{}, fmt.Errorf("decode filters: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (core.UserRecord, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserRecord{}, core.ErrStoreNotFound
	}
	if err != nil {
		return core.UserRecord{}, fmt.Errorf("sqlstore: get user: %w", err)
	}
	return u, nil
}

func (s *Store) SaveUser(ctx context.Context, rec core.UserRecord) (int64, error) {
	if rec.Features == nil {
		rec.Features = []string{}
	}
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: encode features: %w", err)
	}
	filters, err := json.Marshal(rec.Filters)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: encode filters: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}

	args := []any{rec.Name, rec.Age, rec.Rent, rec.City, rec.Profession, rec.University,
		toNanos(rec.MoveInStart), toNanos(rec.MoveInEnd), string(features), string(filters),
		rec.Bio, rec.Duration, rec.ContactInfo, rec.Geo, toNanos(rec.CreatedAt)}

	if rec.ID == 0 {
		var id int64
		err := s.queryRow(ctx, `
INSERT INTO users (name, age, rent, city, profession, university, move_in_start, move_in_end,
                   features, filters, bio, duration, contact_info, geo, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`, args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: insert user: %w", err)
		}
		return id, nil
	}

	_, err = s.exec(ctx, `
INSERT INTO users (id, name, age, rent, city, profession, university, move_in_start, move_in_end,
                   features, filters, bio, duration, contact_info, geo, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name, age = excluded.age, rent = excluded.rent, city = excluded.city,
    profession = excluded.profession, university = excluded.university,
    move_in_start = excluded.move_in_start, move_in_end = excluded.move_in_end,
    features = excluded.features, filters = excluded.filters, bio = excluded.bio,
    duration = excluded.duration, contact_info = excluded.contact_info, geo = excluded.geo`,
		append([]any{rec.ID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: save user: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) HydrateProfiles(ctx context.Context, ids []int64) ([]core.Profile, error) {
	if len(ids) == 0 {
		return []core.Profile{}, nil
	}
	rows, err := s.query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: hydrate profiles: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]core.UserRecord, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan profile: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]core.Profile, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Profile())
		}
	}
	return out, nil
}

// ========== 配对与举报 ==========

// orderPair 让配对以 (小, 大) 的顺序存储。
func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (s *Store) InsertMatch(ctx context.Context, a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	res, err := s.exec(ctx, `
INSERT INTO matches (user_a, user_b, created_at) VALUES (?, ?, ?)
ON CONFLICT (user_a, user_b) DO NOTHING`, lo, hi, toNanos(nowUTC()))
	if err != nil {
		return false, fmt.Errorf("sqlstore: insert match: %w", err)
	}
	return affected(res)
}

func (s *Store) DeleteMatch(ctx context.Context, a, b int64) error {
	lo, hi := orderPair(a, b)
	if _, err := s.exec(ctx, `DELETE FROM matches WHERE user_a = ? AND user_b = ?`, lo, hi); err != nil {
		return fmt.Errorf("sqlstore: delete match: %w", err)
	}
	return nil
}

func (s *Store) HasMatch(ctx context.Context, a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM matches WHERE user_a = ? AND user_b = ?`, lo, hi).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlstore: has match: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListMatches(ctx context.Context, userID int64) ([]core.Match, error) {
	rows, err := s.query(ctx, `
SELECT user_a, user_b, created_at FROM matches
WHERE user_a = ? OR user_b = ?
ORDER BY created_at, user_a, user_b`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list matches: %w", err)
	}
	defer rows.Close()

	var out []core.Match
	for rows.Next() {
		var (
			m       core.Match
			created int64
		)
		if err := rows.Scan(&m.UserA, &m.UserB, &created); err != nil {
			return nil, fmt.Errorf("sqlstore: scan match: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertReport(ctx context.Context, r core.Report) (bool, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowUTC()
	}
	res, err := s.exec(ctx, `
INSERT INTO reports (reporter_id, reported_id, reason, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (reporter_id, reported_id) DO NOTHING`,
		r.ReporterID, r.ReportedID, r.Reason, toNanos(r.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("sqlstore: insert report: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ core.RecommendDataStore = (*Store)(nil)
