package views

import (
	"math"
	"math/rand"
	"sort"
)

// rankByFrequency 按出现次数降序取前 n 个
// 次数相同的按首次出现顺序排列
func rankByFrequency(ids []string, n int) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, id := range ids {
		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}
		counts[id]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if n < len(order) {
		order = order[:n]
	}
	return order
}

// sampleIndices 无放回均匀抽取 min(n, population) 个下标
func sampleIndices(rng *rand.Rand, population, n int) []int {
	if n > population {
		n = population
	}
	if n <= 0 {
		return []int{}
	}
	return rng.Perm(population)[:n]
}

// clampUnit 截断到 1.0 以内（可视化强度）
func clampUnit(v float64) float64 {
	return math.Min(v, 1.0)
}

// mean 空集合返回 0；调用方负责在空组时省略该组
func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// firstSeen 按首次出现顺序去重
type firstSeen struct {
	index map[string]int
	order []string
}

func newFirstSeen() *firstSeen {
	return &firstSeen{index: make(map[string]int)}
}

// add 返回该值的序号
func (f *firstSeen) add(v string) int {
	if idx, ok := f.index[v]; ok {
		return idx
	}
	idx := len(f.order)
	f.index[v] = idx
	f.order = append(f.order, v)
	return idx
}
