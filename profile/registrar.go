// Package profile 处理注册与资料修改：写入用户资料、特征向量与初始偏好。
package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/preference"
	"github.com/rushteam/roommatch/registry"
)

// Registration 是注册/修改资料时提交的表单。
//
// AgeRange / RentRange 形如 "My Age +/- 2 years"、"+/- £100"，以自身年龄/租金为中心展开成筛选区间。
type Registration struct {
	Name             string    `json:"name" yaml:"name" validate:"required"`
	Age              int       `json:"age" yaml:"age" validate:"gte=16,lte=120"`
	Rent             int       `json:"rent" yaml:"rent" validate:"gte=0"`
	AgeRange         string    `json:"age_range" yaml:"age_range" validate:"required"`
	RentRange        string    `json:"rent_range" yaml:"rent_range" validate:"required"`
	City             string    `json:"city" yaml:"city" validate:"required"`
	University       string    `json:"university" yaml:"university"`
	Profession       string    `json:"profession" yaml:"profession"`
	FilterUniversity bool      `json:"filter_university" yaml:"filter_university"`
	FilterProfession bool      `json:"filter_profession" yaml:"filter_profession"`
	MoveInStart      time.Time `json:"move_in_start" yaml:"move_in_start" validate:"required"`
	MoveInEnd        time.Time `json:"move_in_end" yaml:"move_in_end" validate:"required,gtefield=MoveInStart"`
	Features         []string  `json:"features" yaml:"features"`

	// Preferences 只在修改资料时使用：非空时按这些特征重新播种偏好
	Preferences []string `json:"preferences,omitempty" yaml:"preferences"`

	Bio         string `json:"bio" yaml:"bio"`
	Duration    string `json:"duration" yaml:"duration"`
	ContactInfo string `json:"contact_info" yaml:"contact_info"`
	Geo         string `json:"geo" yaml:"geo"`
}

// ParseRange 从 "+/- N" 形式的字符串里取出所有数字作为半宽，返回 [base-N, base+N]。
// 下界不小于 0。
func ParseRange(s string, base int) (int, int, error) {
	var digits strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, 0, core.NewInvalidInput(core.ModuleProfile, fmt.Sprintf("profile: range %q has no number", s))
	}
	width, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, 0, core.WrapDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput,
			fmt.Sprintf("profile: invalid range %q", s), err)
	}
	return max(base-width, 0), base + width, nil
}

// Registrar 是注册入口。
type Registrar struct {
	Store       core.RecommendDataStore
	Registry    *registry.Registry
	Preferences *preference.Updater
	Logger      zerolog.Logger
}

// NewRegistrar 创建注册入口。
func NewRegistrar(store core.RecommendDataStore, reg *registry.Registry) (*Registrar, error) {
	updater, err := preference.NewUpdater(store, reg)
	if err != nil {
		return nil, err
	}
	return &Registrar{
		Store:       store,
		Registry:    reg,
		Preferences: updater,
		Logger:      log.Logger,
	}, nil
}

// record 把表单转换成用户资料；未注册的特征名被忽略。
func (r *Registrar) record(in Registration) (core.UserRecord, []int, error) {
	if err := core.Validate(core.ModuleProfile, in); err != nil {
		return core.UserRecord{}, nil, err
	}
	ageMin, ageMax, err := ParseRange(in.AgeRange, in.Age)
	if err != nil {
		return core.UserRecord{}, nil, err
	}
	rentMin, rentMax, err := ParseRange(in.RentRange, in.Rent)
	if err != nil {
		return core.UserRecord{}, nil, err
	}

	ids := r.Registry.IDs(in.Features)
	rec := core.UserRecord{
		Name:        strings.TrimSpace(in.Name),
		Age:         in.Age,
		Rent:        in.Rent,
		City:        in.City,
		Profession:  in.Profession,
		University:  in.University,
		MoveInStart: in.MoveInStart,
		MoveInEnd:   in.MoveInEnd,
		Features:    r.Registry.Names(core.FeatureVector(ids)),
		Filters: core.FilterSpec{
			City:             in.City,
			MoveInStart:      in.MoveInStart,
			MoveInEnd:        in.MoveInEnd,
			AgeMin:           ageMin,
			AgeMax:           ageMax,
			RentMin:          rentMin,
			RentMax:          rentMax,
			University:       in.University,
			Profession:       in.Profession,
			FilterUniversity: in.FilterUniversity,
			FilterProfession: in.FilterProfession,
		},
		Bio:         in.Bio,
		Duration:    in.Duration,
		ContactInfo: in.ContactInfo,
		Geo:         in.Geo,
	}
	if err := core.Validate(core.ModuleProfile, rec.Filters); err != nil {
		return core.UserRecord{}, nil, err
	}
	return rec, ids, nil
}

// Register 创建新用户：资料、二值特征向量、初始偏好（每个自有特征 50 分）在一个事务内写入。
func (r *Registrar) Register(ctx context.Context, in Registration) (int64, error) {
	rec, ids, err := r.record(in)
	if err != nil {
		return 0, err
	}

	var userID int64
	err = r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		id, err := tx.SaveUser(ctx, rec)
		if err != nil {
			return err
		}
		if err := tx.PutVector(ctx, id, core.VectorFeature, core.FeatureVector(ids)); err != nil {
			return err
		}
		if _, err := r.Preferences.WithStore(tx).Seed(ctx, id, ids); err != nil {
			return err
		}
		userID = id
		return nil
	})
	if err != nil {
		r.Logger.Error().Err(err).Str("name", rec.Name).Msg("profile: register failed")
		return 0, err
	}
	r.Logger.Info().Int64("user_id", userID).Int("features", len(ids)).Msg("profile: registered")
	return userID, nil
}

// Update 修改已有用户的资料并重写特征向量；in.Preferences 非空时重新播种偏好，否则保留已学到的偏好。
func (r *Registrar) Update(ctx context.Context, userID int64, in Registration) error {
	rec, ids, err := r.record(in)
	if err != nil {
		return err
	}

	err = r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		old, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
		if _, err := tx.SaveUser(ctx, rec); err != nil {
			return err
		}
		if err := tx.PutVector(ctx, userID, core.VectorFeature, core.FeatureVector(ids)); err != nil {
			return err
		}
		if len(in.Preferences) == 0 {
			return nil
		}
		_, err = r.Preferences.WithStore(tx).Seed(ctx, userID, r.Registry.IDs(in.Preferences))
		return err
	})
	if err != nil {
		r.Logger.Error().Err(err).Int64("user_id", userID).Msg("profile: update failed")
		return err
	}
	r.Logger.Info().Int64("user_id", userID).Int("features", len(ids)).Msg("profile: updated")
	return nil
}

// UpdateTraits 只修改用户的特征：重写资料中的特征名与特征向量，返回登记后的特征名。
// 原始偏好与偏好向量保持不变。
func (r *Registrar) UpdateTraits(ctx context.Context, userID int64, features []string) ([]string, error) {
	ids := r.Registry.IDs(features)
	vec := core.FeatureVector(ids)
	names := r.Registry.Names(vec)
	err := r.Store.InTx(ctx, func(tx core.RecommendDataStore) error {
		rec, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		rec.Features = names
		if _, err := tx.SaveUser(ctx, rec); err != nil {
			return err
		}
		return tx.PutVector(ctx, userID, core.VectorFeature, vec)
	})
	if err != nil {
		r.Logger.Error().Err(err).Int64("user_id", userID).Msg("profile: update traits failed")
		return nil, err
	}
	r.Logger.Info().Int64("user_id", userID).Strs("features", names).Msg("profile: traits updated")
	return names, nil
}
