package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifySort asserts the defining property of a topological sort:
// every node comes strictly after all of its parents.
func verifySort(t *testing.T, sorted []int, nodeParents map[int][]int) {
	t.Helper()
	seen := make(map[int]struct{}, len(sorted))
	for _, node := range sorted {
		for _, parent := range nodeParents[node] {
			_, ok := seen[parent]
			assert.Truef(t, ok, "parent %d of %d not seen before it", parent, node)
		}
		seen[node] = struct{}{}
	}
	assert.Equal(t, len(nodeParents), len(sorted), "every key must appear exactly once")
}

func TestSort_CycleDetected(t *testing.T) {
	_, err := Sort(map[int][]int{1: {2}, 2: {3}, 3: {1}, 4: {}})
	require.Error(t, err)
	var cycleErr *CycleError[int]
	require.ErrorAs(t, err, &cycleErr)
}

// permute generates every permutation of the given key order, used to
// confirm the result is independent of map/slice iteration order.
func permute(keys []int) [][]int {
	if len(keys) <= 1 {
		return [][]int{append([]int(nil), keys...)}
	}
	var out [][]int
	for i := range keys {
		rest := make([]int, 0, len(keys)-1)
		rest = append(rest, keys[:i]...)
		rest = append(rest, keys[i+1:]...)
		for _, p := range permute(rest) {
			out = append(out, append([]int{keys[i]}, p...))
		}
	}
	return out
}

func TestSort_IndependentOfInputOrder(t *testing.T) {
	dags := []map[int][]int{
		{1: {}, 2: {1}, 3: {1}, 4: {2}, 5: {3}},
		{1: {}, 2: {1}, 3: {1}, 4: {2, 3}, 5: {3, 6}, 6: {4}},
	}

	for _, dag := range dags {
		keys := make([]int, 0, len(dag))
		for k := range dag {
			keys = append(keys, k)
		}
		for _, order := range permute(keys) {
			ordered := make(map[int][]int, len(dag))
			for _, k := range order {
				ordered[k] = dag[k]
			}
			sorted, err := Sort(ordered)
			require.NoError(t, err)
			verifySort(t, sorted, dag)
		}
	}
}

func TestSort_EmptyGraph(t *testing.T) {
	sorted, err := Sort[int](nil)
	require.NoError(t, err)
	assert.Empty(t, sorted)
}
