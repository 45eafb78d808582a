package recall

import (
	"math/rand/v2"
	"slices"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/pkg/utils"
)

// RandSource 是随机数来源，*rand.Rand 满足此接口。
// 测试中传入固定种子的 rand.New(rand.NewPCG(seed, seed))。
type RandSource interface {
	IntN(n int) int
}

// globalRand 使用 math/rand/v2 的全局生成器（进程启动时自动随机播种）。
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRandSource 返回并发安全的全局随机源。
func DefaultRandSource() RandSource { return globalRand{} }

// RandomFill 是随机补位召回：从剩余候选中无放回地均匀抽样。
type RandomFill struct {
	Rand RandSource
}

// NewRandomFill 创建随机补位；src 为 nil 时使用全局随机源。
func NewRandomFill(src RandSource) *RandomFill {
	if src == nil {
		src = globalRand{}
	}
	return &RandomFill{Rand: src}
}

func (r *RandomFill) Name() string {
	return "recall.random"
}

// Sample 返回 min(len(pool), k) 个不重复的候选。
// 先把候选按 ID 排序，使同一种子下结果与输入顺序无关，再做部分 Fisher–Yates 洗牌。
func (r *RandomFill) Sample(pool []int64, k int) []*core.Item {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	ids := slices.Clone(pool)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if k > len(ids) {
		k = len(ids)
	}

	src := r.Rand
	if src == nil {
		src = globalRand{}
	}
	for i := 0; i < k; i++ {
		j := i + src.IntN(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}

	out := make([]*core.Item, 0, k)
	for _, id := range ids[:k] {
		it := core.NewItem(id)
		it.PutLabel(core.LabelRecallSource, utils.Label{Value: "random", Source: r.Name()})
		out = append(out, it)
	}
	return out
}
