package utils

import (
	"slices"
	"strings"
)

const (
	valueSep  = "|"
	sourceSep = ","
)

// Label 记录候选或一次生成的来历，例如 recall_source=collaborative、path=blended。
// Value 是阶段给出的取值，Source 是写入它的组件名。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Values 返回累积的全部取值。
func (l Label) Values() []string {
	if l.Value == "" {
		return nil
	}
	return strings.Split(l.Value, valueSep)
}

// Has 判断 v 是否出现在累积的取值中。
func (l Label) Has(v string) bool {
	return slices.Contains(l.Values(), v)
}

// MergeLabel 合并同一个 key 上的两个 Label：Value 以 '|' 累积，Source 以 ',' 累积，
// 已出现过的取值或来源不再重复追加。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	return Label{
		Value:  appendUnique(existing.Value, incoming.Value, valueSep),
		Source: appendUnique(existing.Source, incoming.Source, sourceSep),
	}
}

func appendUnique(acc, v, sep string) string {
	switch {
	case v == "":
		return acc
	case acc == "":
		return v
	case slices.Contains(strings.Split(acc, sep), v):
		return acc
	}
	return acc + sep + v
}
