// Package registry 提供全局共享的生活习惯特征注册表（name <-> id）。
//
// 注册表在进程启动时从 YAML 加载，加载后只读；打分逻辑只认 feature-id，不关心特征含义。
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/roommatch/core"
)

//go:embed traits.yaml
var defaultTraits []byte

// Trait 是一个具名特征。
type Trait struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type document struct {
	Traits []Trait `yaml:"traits"`
}

// Registry 是不可变的特征注册表，可并发读。
type Registry struct {
	byName map[string]int
	byID   map[int]string
	ids    []int
}

// Default 返回内置的 117 个特征。
func Default() *Registry {
	r, err := Parse(defaultTraits)
	if err != nil {
		panic(fmt.Sprintf("registry: embedded traits are invalid: %v", err))
	}
	return r
}

// Load 从 YAML 文件加载注册表；path 为空时返回内置注册表。
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容。ID 必须为正整数，ID 与名称都不得重复。
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.WrapDomainError(core.ModuleRegistry, core.ErrorCodeInvalidInput,
			"registry: parse traits", err)
	}
	if len(doc.Traits) == 0 {
		return nil, core.NewInvalidInput(core.ModuleRegistry, "registry: no traits defined")
	}

	r := &Registry{
		byName: make(map[string]int, len(doc.Traits)),
		byID:   make(map[int]string, len(doc.Traits)),
		ids:    make([]int, 0, len(doc.Traits)),
	}
	for _, t := range doc.Traits {
		if t.ID <= 0 || t.Name == "" {
			return nil, core.NewInvalidInput(core.ModuleRegistry,
				fmt.Sprintf("registry: invalid trait %d %q", t.ID, t.Name))
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, core.NewInvalidInput(core.ModuleRegistry,
				fmt.Sprintf("registry: duplicate trait id %d", t.ID))
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, core.NewInvalidInput(core.ModuleRegistry,
				fmt.Sprintf("registry: duplicate trait name %q", t.Name))
		}
		r.byName[t.Name] = t.ID
		r.byID[t.ID] = t.Name
		r.ids = append(r.ids, t.ID)
	}
	sort.Ints(r.ids)
	return r, nil
}

// Len 返回特征数量。
func (r *Registry) Len() int { return len(r.ids) }

// ID 按名称查找特征 ID。
func (r *Registry) ID(name string) (int, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Name 按 ID 查找特征名称。
func (r *Registry) Name(id int) (string, bool) {
	name, ok := r.byID[id]
	return name, ok
}

// IDs 把特征名称转换为 ID，未知名称被忽略，重复名称只保留一次。
func (r *Registry) IDs(names []string) []int {
	seen := make(map[int]struct{}, len(names))
	ids := make([]int, 0, len(names))
	for _, n := range names {
		id, ok := r.byName[n]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Names 把向量的维度翻译成名称，按 ID 升序。
func (r *Registry) Names(v core.Vector) []string {
	names := make([]string, 0, len(v))
	for _, id := range v.IDs() {
		if name, ok := r.byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// All 返回全部特征，按 ID 升序。
func (r *Registry) All() []Trait {
	out := make([]Trait, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, Trait{ID: id, Name: r.byID[id]})
	}
	return out
}
