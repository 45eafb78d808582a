package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/roommatch/core"
)

// Predicate 是编译后的 CEL (Common Expression Language) 布尔表达式。
//
// 表达式只编译一次；取值全部通过变量绑定传入，不做任何字符串拼接。
// Predicate 线程安全，可并发 Eval。
type Predicate struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，vars 中的每个名字都声明为动态类型变量。
func Compile(expr string, vars ...string) (*Predicate, error) {
	opts := make([]cel.EnvOption, 0, len(vars))
	for _, v := range vars {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("dsl: env error: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program error: %w", err)
	}
	return &Predicate{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Predicate) String() string { return p.expr }

// Eval 执行表达式，结果必须是布尔值。
func (p *Predicate) Eval(vars map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("dsl: eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// CandidateExpr 是属性过滤的硬约束：
// 城市相同、迁入窗口有交集、年龄与租金在区间内（闭区间）、可选的大学/职业相同、排除请求者本人。
const CandidateExpr = `user.city == spec.city &&
	user.move_in_start <= spec.move_in_end &&
	user.move_in_end >= spec.move_in_start &&
	user.age >= spec.age_min && user.age <= spec.age_max &&
	user.rent >= spec.rent_min && user.rent <= spec.rent_max &&
	(!spec.filter_university || user.university == spec.university) &&
	(!spec.filter_profession || user.profession == spec.profession) &&
	user.id != requester`

var (
	candidatePredicate     *Predicate
	candidatePredicateErr  error
	candidatePredicateOnce sync.Once
)

// CandidatePredicate 返回编译好的属性过滤表达式（进程内只编译一次）。
func CandidatePredicate() (*Predicate, error) {
	candidatePredicateOnce.Do(func() {
		candidatePredicate, candidatePredicateErr = Compile(CandidateExpr, "user", "spec", "requester")
	})
	return candidatePredicate, candidatePredicateErr
}

// CandidateVars 构建属性过滤表达式的输入，时间统一转换为 unix 秒。
func CandidateVars(u core.UserRecord, spec core.FilterSpec, requester int64) map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":            u.ID,
			"city":          u.City,
			"age":           int64(u.Age),
			"rent":          int64(u.Rent),
			"university":    u.University,
			"profession":    u.Profession,
			"move_in_start": u.MoveInStart.Unix(),
			"move_in_end":   u.MoveInEnd.Unix(),
		},
		"spec": map[string]any{
			"city":              spec.City,
			"age_min":           int64(spec.AgeMin),
			"age_max":           int64(spec.AgeMax),
			"rent_min":          int64(spec.RentMin),
			"rent_max":          int64(spec.RentMax),
			"university":        spec.University,
			"profession":        spec.Profession,
			"filter_university": spec.FilterUniversity,
			"filter_profession": spec.FilterProfession,
			"move_in_start":     spec.MoveInStart.Unix(),
			"move_in_end":       spec.MoveInEnd.Unix(),
		},
		"requester": requester,
	}
}
