package vectors

import (
	"sort"

	"github.com/boshu2/driftwatch/internal/types"
)

// fallback orders vectors by the curated priority queue (high, medium, low)
// and pads with the highest-weight remaining vectors.
func fallback(candidates []types.GrowthVector, pq PriorityQueue, limit int) []Ranked {
	byID := make(map[string]types.GrowthVector, len(candidates))
	for _, v := range candidates {
		byID[v.ID] = v
	}

	used := make(map[string]bool)
	var out []Ranked
	for _, tier := range [][]string{pq.High, pq.Medium, pq.Low} {
		for _, id := range tier {
			if len(out) >= limit {
				return out
			}
			v, ok := byID[id]
			if !ok || used[id] {
				continue
			}
			used[id] = true
			out = append(out, Ranked{Vector: v, Score: v.Weight, Fallback: true})
		}
	}

	rest := make([]types.GrowthVector, 0, len(candidates))
	for _, v := range candidates {
		if !used[v.ID] {
			rest = append(rest, v)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Weight > rest[j].Weight })
	for _, v := range rest {
		if len(out) >= limit {
			break
		}
		out = append(out, Ranked{Vector: v, Score: v.Weight, Fallback: true})
	}
	return out
}
