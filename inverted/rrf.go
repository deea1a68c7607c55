package inverted

import "sort"

// rrfK is the Reciprocal Rank Fusion constant.
const rrfK = 60

// ranked is a document id with its retrieval payload, in ranking order.
type ranked struct {
	id  string
	doc SearchHit
}

// fuseRRF merges any number of rankings by Reciprocal Rank Fusion:
//
//	score(d) = Σ over rankings of 1/(k + rank(d))
//
// with rank starting at 1. A document absent from a ranking simply
// contributes nothing from it. The result is sorted by fused score,
// descending, truncated to size.
func fuseRRF(size int, rankings ...[]ranked) []SearchHit {
	type fused struct {
		doc   SearchHit
		score float64
	}
	byID := make(map[string]*fused)
	var order []string

	for _, ranking := range rankings {
		for i, r := range ranking {
			f, seen := byID[r.id]
			if !seen {
				f = &fused{doc: r.doc}
				byID[r.id] = f
				order = append(order, r.id)
			}
			f.score += 1.0 / float64(rrfK+i+1)
		}
	}

	results := make([]SearchHit, 0, len(order))
	for _, id := range order {
		f := byID[id]
		f.doc.Score = f.score
		results = append(results, f.doc)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if size > 0 && len(results) > size {
		results = results[:size]
	}
	return results
}
