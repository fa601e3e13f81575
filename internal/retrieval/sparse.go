package retrieval

import (
	"math"
	"regexp"
	"strings"

	"github.com/thornxyz/revera/internal/vectordb"
)

// sparseDim bounds the hashed BM25 term space so sparse vectors stay a
// fixed, index-friendly size.
const sparseDim = 1 << 18

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// EncodeSparse computes a local BM25-style sparse vector: each distinct
// token hashes to a stable index in [0, sparseDim) with a log-dampened
// term-frequency weight (spec §4.4 step 2, "sparse BM25 (local)").
func EncodeSparse(text string) vectordb.SparseVector {
	tf := map[int]int{}
	for _, tok := range tokenize(text) {
		idx := int(fnv1a(tok) % sparseDim)
		tf[idx]++
	}
	indices := make([]int, 0, len(tf))
	values := make([]float32, 0, len(tf))
	for idx, count := range tf {
		indices = append(indices, idx)
		values = append(values, float32(1.0+math.Log(float64(count))))
	}
	return vectordb.SparseVector{Indices: indices, Values: values}
}

func fnv1a(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
