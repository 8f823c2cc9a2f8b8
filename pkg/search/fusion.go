package search

import "sort"

// rrfK dampens the weight gap between adjacent ranks; 60 is the value from
// the original reciprocal-rank fusion paper and what everyone uses.
const rrfK = 60

// Fuse merges ranked ID lists into one ranking. Each ID scores the sum of
// 1/(k+rank+1) over the lists it appears in (0-based ranks); absent lists
// contribute nothing. Ties break by first appearance across the input lists,
// folding them in order, so the result is deterministic.
func Fuse(lists [][]string, limit int) []string {
	type fused struct {
		id    string
		score float64
		seen  int
	}

	scores := make(map[string]*fused)
	order := 0

	for _, list := range lists {
		for rank, id := range list {
			f, ok := scores[id]
			if !ok {
				f = &fused{id: id, seen: order}
				order++
				scores[id] = f
			}
			f.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	ranked := make([]*fused, 0, len(scores))
	for _, f := range scores {
		ranked = append(ranked, f)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].seen < ranked[j].seen
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ids := make([]string, len(ranked))
	for i, f := range ranked {
		ids[i] = f.id
	}
	return ids
}
