package retrieval

import (
	"sort"

	"github.com/thornxyz/revera/internal/vectordb"
)

// RRFConstant is the default K used by Reciprocal Rank Fusion (spec §4.4
// step 5).
const RRFConstant = 60

// fused accumulates a candidate's RRF score and which rank lists it
// contributed to, before the final cut to top_k.
type fused struct {
	point       vectordb.ScoredPoint
	rrfScore    float64
	denseScore  *float64
	sparseScore *float64
}

// Fuse combines a dense and a sparse ranked list with Reciprocal Rank
// Fusion: for each document at rank r (0-based) in a list, accumulate
// 1/(k+r+1). Ties break by (rrf_score desc, chunk_id asc) per spec §4.4's
// tie-breaking rule.
func Fuse(dense, sparse []vectordb.ScoredPoint, k int, topK int) []FusedResult {
	if k <= 0 {
		k = RRFConstant
	}
	byID := map[string]*fused{}
	order := make([]string, 0, len(dense)+len(sparse))

	addRank := func(list []vectordb.ScoredPoint, assign func(f *fused, score float64)) {
		for rank, p := range list {
			f, ok := byID[p.ID]
			if !ok {
				f = &fused{point: p}
				byID[p.ID] = f
				order = append(order, p.ID)
			}
			f.rrfScore += 1.0 / float64(k+rank+1)
			score := p.Score
			assign(f, score)
		}
	}
	addRank(dense, func(f *fused, score float64) { f.denseScore = &score })
	addRank(sparse, func(f *fused, score float64) { f.sparseScore = &score })

	results := make([]FusedResult, 0, len(order))
	for _, id := range order {
		f := byID[id]
		results = append(results, FusedResult{
			Point:       f.point,
			RRFScore:    f.rrfScore,
			DenseScore:  f.denseScore,
			SparseScore: f.sparseScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return results[i].Point.ID < results[j].Point.ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// FusedResult is one post-fusion candidate, carrying the component scores
// that contributed to it (spec §4.4 step 6).
type FusedResult struct {
	Point       vectordb.ScoredPoint
	RRFScore    float64
	DenseScore  *float64
	SparseScore *float64
}
