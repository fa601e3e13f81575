package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thornxyz/revera/internal/vectordb"
)

func TestFuseRanksByReciprocalRank(t *testing.T) {
	dense := []vectordb.ScoredPoint{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.8},
	}
	sparse := []vectordb.ScoredPoint{
		{ID: "b", Score: 5.0},
		{ID: "c", Score: 4.0},
	}

	results := Fuse(dense, sparse, 60, 10)

	assert.Equal(t, "b", results[0].Point.ID, "b appears in both lists so should rank first")
	assert.NotNil(t, results[0].DenseScore)
	assert.NotNil(t, results[0].SparseScore)

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.Point.ID] = true
	}
	assert.True(t, ids["a"] && ids["b"] && ids["c"])
}

func TestFuseTieBreaksByChunkID(t *testing.T) {
	dense := []vectordb.ScoredPoint{{ID: "z", Score: 1}, {ID: "a", Score: 1}}
	sparse := []vectordb.ScoredPoint{{ID: "a", Score: 1}, {ID: "z", Score: 1}}
	results := Fuse(dense, sparse, 60, 10)
	assert.Equal(t, "a", results[0].Point.ID)
	assert.Equal(t, "z", results[1].Point.ID)
}

func TestFuseRespectsTopK(t *testing.T) {
	dense := []vectordb.ScoredPoint{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	results := Fuse(dense, nil, 60, 2)
	assert.Len(t, results, 2)
}

func TestEncodeSparseIsDeterministic(t *testing.T) {
	v1 := EncodeSparse("machine learning retrieval")
	v2 := EncodeSparse("machine learning retrieval")
	assert.Equal(t, v1, v2)
	assert.NotEmpty(t, v1.Indices)
}

func TestMaxSimRewardsSharedTokens(t *testing.T) {
	q := EncodeLateInteraction("retrieval augmented generation")
	same := EncodeLateInteraction("retrieval augmented generation")
	other := EncodeLateInteraction("completely unrelated topic")

	simSame := MaxSim(q, same)
	simOther := MaxSim(q, other)
	assert.Greater(t, simSame, simOther)
}
