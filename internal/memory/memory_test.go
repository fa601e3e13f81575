package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thornxyz/revera/internal/state"
)

func TestNamespaceKeyDistinguishesEpisodicFromSemantic(t *testing.T) {
	ep := EpisodicNamespace("u1", "c1", "Planner")
	sem := SemanticNamespace("u1", "c1")
	assert.NotEqual(t, ep.Key(), sem.Key())
	assert.Contains(t, ep.Key(), "planner")
}

func TestFormattersReturnEmptyStringForNoMemory(t *testing.T) {
	assert.Equal(t, "", FormatForPlanner(nil))
	assert.Equal(t, "", FormatForRetrieval(nil))
	assert.Equal(t, "", FormatForSynthesis(nil))
	assert.Equal(t, "", FormatForCritic(nil))
}

func TestFormatForCriticAveragesConfidence(t *testing.T) {
	items := []state.Memory{
		{Value: map[string]interface{}{"confidence_score": 0.8}},
		{Value: map[string]interface{}{"confidence_score": 0.4}},
	}
	out := FormatForCritic(items)
	assert.Contains(t, out, "0.60")
}
