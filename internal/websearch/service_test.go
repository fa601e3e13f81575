package websearch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToWebSourceAppliesRecencyBoostOnlyForTemporal(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	r := rawResult{URL: "https://a", Content: "short", Score: 0.5, PublishedDate: &recent}

	temporal := toWebSource(r, QueryTemporal)
	factual := toWebSource(r, QueryFactual)

	assert.Greater(t, temporal.RelevanceScore, factual.RelevanceScore)
}

func TestToWebSourceCapsContentLengthBoost(t *testing.T) {
	longContent := make([]byte, 10000)
	for i := range longContent {
		longContent[i] = 'a'
	}
	r := rawResult{URL: "https://a", Content: string(longContent), Score: 0.0}
	ws := toWebSource(r, QueryFactual)
	assert.InDelta(t, 0.1, ws.RelevanceScore, 1e-9)
}

func TestDefaultExpansionNeverEmpty(t *testing.T) {
	e := DefaultExpansion("what is RRF")
	assert.Equal(t, "what is RRF", e.PrimaryQuery)
	assert.Equal(t, QueryFactual, e.QueryType)
	assert.Empty(t, e.AlternativeQueries)
}
