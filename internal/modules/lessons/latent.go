package lessons

import (
	"sort"

	"github.com/helixtrade/curator/pkg/formulas"
)

// unionFind is a standard disjoint-set over slice indices
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// ClusterPatterns groups pattern keys whose outcome series correlate at
// or above the threshold. Correlation is computed over the aligned
// tails of the two series; pairs with fewer than minOverlap overlapping
// outcomes never merge. The representative of each cluster is the
// member with the most outcomes.
func ClusterPatterns(outcomes map[string][]float64, threshold float64, minOverlap int) []LatentFactor {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	uf := newUnionFind(len(keys))
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if correlated(outcomes[keys[i]], outcomes[keys[j]], threshold, minOverlap) {
				uf.union(i, j)
			}
		}
	}

	clusters := make(map[int][]string)
	for i, key := range keys {
		root := uf.find(i)
		clusters[root] = append(clusters[root], key)
	}

	var factors []LatentFactor
	for _, members := range clusters {
		if len(members) < 2 {
			continue // a singleton is not a factor
		}
		representative := members[0]
		for _, m := range members[1:] {
			if len(outcomes[m]) > len(outcomes[representative]) {
				representative = m
			}
		}
		factors = append(factors, LatentFactor{
			Representative: representative,
			Members:        members,
		})
	}

	sort.Slice(factors, func(i, j int) bool {
		return factors[i].Representative < factors[j].Representative
	})
	return factors
}

func correlated(a, b []float64, threshold float64, minOverlap int) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < minOverlap {
		return false
	}

	// Align on the most recent n outcomes.
	corr := formulas.Correlation(a[len(a)-n:], b[len(b)-n:])
	return corr >= threshold
}
