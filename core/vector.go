package core

import (
	"math"
	"sort"
)

// VectorKind 区分同一特征空间上的两类用户向量。
type VectorKind string

const (
	// VectorFeature 特征向量：用户自身声明的生活习惯（二值存在，L2 归一化）
	VectorFeature VectorKind = "feature"
	// VectorPreference 偏好向量：从交互历史学到的亲和度（L2 归一化，最多 TopK 维）
	VectorPreference VectorKind = "preference"
)

// Valid 检查向量类型是否合法。
func (k VectorKind) Valid() bool {
	return k == VectorFeature || k == VectorPreference
}

// Vector 是稀疏向量：feature-id -> weight。
// feature-id 来自全局共享的特征注册表。
type Vector map[int]float64

// FeatureVector 根据特征 ID 列表构建二值特征向量并做 L2 归一化。
func FeatureVector(featureIDs []int) Vector {
	v := make(Vector, len(featureIDs))
	for _, id := range featureIDs {
		v[id] = 1
	}
	return v.Normalize()
}

// Clone 返回一份拷贝。
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// Dot 计算两个稀疏向量在共享维度上的加权点积。
func (v Vector) Dot(o Vector) float64 {
	a, b := v, o
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for k, w := range a {
		if ow, ok := b[k]; ok {
			sum += w * ow
		}
	}
	return sum
}

// Norm 返回 L2 范数。
func (v Vector) Norm() float64 {
	var sq float64
	for _, w := range v {
		sq += w * w
	}
	return math.Sqrt(sq)
}

// Normalize 返回 L2 归一化后的新向量；空向量或全零向量返回空向量。
func (v Vector) Normalize() Vector {
	norm := v.Norm()
	if norm == 0 {
		return Vector{}
	}
	out := make(Vector, len(v))
	for k, w := range v {
		if w == 0 {
			continue
		}
		out[k] = w / norm
	}
	return out
}

// TopN 保留权重最高的 n 个维度，权重相同时保留 feature-id 更小的。
// n <= 0 或 len(v) <= n 时返回拷贝。
func (v Vector) TopN(n int) Vector {
	if n <= 0 || len(v) <= n {
		return v.Clone()
	}
	ids := v.IDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return v[ids[i]] > v[ids[j]]
	})
	out := make(Vector, n)
	for _, id := range ids[:n] {
		out[id] = v[id]
	}
	return out
}

// IDs 返回按升序排列的 feature-id。
func (v Vector) IDs() []int {
	ids := make([]int, 0, len(v))
	for k := range v {
		ids = append(ids, k)
	}
	sort.Ints(ids)
	return ids
}

// Sum 返回所有权重之和（用于原始偏好分的 total_interactions）。
func (v Vector) Sum() float64 {
	var sum float64
	for _, w := range v {
		sum += w
	}
	return sum
}
