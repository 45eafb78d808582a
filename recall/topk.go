package recall

import (
	"container/heap"
	"sort"
)

// scored 是带分数的候选。
type scored struct {
	id    int64
	score float64
}

// better 定义全序：分数高者优先，分数相同时 ID 小者优先。
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// worstHeap 是以 "最差" 为堆顶的小顶堆，用于有界 TopK。
type worstHeap []scored

func (h worstHeap) Len() int           { return len(h) }
func (h worstHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *worstHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK 从 scores 中选出最多 k 个分数为正的候选，按 better 排序。
// 使用大小为 k 的堆做部分选择，复杂度 O(m log k)；结果与 map 遍历顺序无关。
func topK(scores map[int64]float64, k int) []scored {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	h := make(worstHeap, 0, k)
	for id, s := range scores {
		if s <= 0 {
			continue
		}
		c := scored{id: id, score: s}
		if h.Len() < k {
			heap.Push(&h, c)
			continue
		}
		if better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	out := []scored(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
