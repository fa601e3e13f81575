package retrieval

import (
	"math"

	"github.com/thornxyz/revera/internal/vectordb"
)

const (
	lateInteractionDim       = 128
	lateInteractionMaxTokens = 32
)

// EncodeLateInteraction produces a local, deterministic token-level
// multi-vector representation rescored at query time with MAX_SIM (spec
// §4.4 step 2 / GLOSSARY "Late interaction"). Each retained token gets a
// a 128-d pseudo-embedding derived from a stable hash of the token text, so
// identical tokens in query and document always cosine-align — enough to
// exercise the colbert reranking path without depending on an external
// late-interaction model.
func EncodeLateInteraction(text string) vectordb.LateInteractionVector {
	tokens := tokenize(text)
	if len(tokens) > lateInteractionMaxTokens {
		tokens = tokens[:lateInteractionMaxTokens]
	}
	out := make(vectordb.LateInteractionVector, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tokenVector(tok))
	}
	return out
}

func tokenVector(tok string) []float32 {
	vec := make([]float32, lateInteractionDim)
	h := fnv1a(tok)
	for i := 0; i < lateInteractionDim; i++ {
		h ^= h >> 33
		h *= 0xff51afd7ed558ccd
		h ^= h >> 33
		vec[i] = float32(math.Sin(float64(h%1000000)))
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// MaxSim scores a query multi-vector against a document multi-vector using
// the MAX_SIM comparator: sum over query tokens of the max cosine
// similarity to any document token. A query token whose best similarity is
// zero or negative adds nothing.
func MaxSim(query, doc vectordb.LateInteractionVector) float64 {
	var total float64
	for _, q := range query {
		best := -1.0
		for _, d := range doc {
			if s := dot(q, d); s > best {
				best = s
			}
		}
		if best > 0 {
			total += best
		}
	}
	return total
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
