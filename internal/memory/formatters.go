package memory

import (
	"fmt"
	"strings"

	"github.com/thornxyz/revera/internal/state"
)

// FormatForPlanner renders recent plans as short prompt context. Empty
// memory yields an empty string (spec §4.9).
func FormatForPlanner(items []state.Memory) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent plans:\n")
	for _, m := range items {
		if subtasks, ok := m.Value["subtasks"]; ok {
			fmt.Fprintf(&b, "- %v\n", subtasks)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatForRetrieval renders previously relevant documents as short prompt
// context.
func FormatForRetrieval(items []state.Memory) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previously relevant documents:\n")
	for _, m := range items {
		if docID, ok := m.Value["document_id"]; ok {
			fmt.Fprintf(&b, "- %v\n", docID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatForSynthesis renders recent answer snippets as short prompt
// context.
func FormatForSynthesis(items []state.Memory) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent answer snippets:\n")
	for _, m := range items {
		if snippet, ok := m.Value["answer_snippet"]; ok {
			fmt.Fprintf(&b, "- %v\n", snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatForCritic renders verification-history averages as short prompt
// context.
func FormatForCritic(items []state.Memory) string {
	if len(items) == 0 {
		return ""
	}
	var sum float64
	var n int
	for _, m := range items {
		if score, ok := m.Value["confidence_score"].(float64); ok {
			sum += score
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("Average historical verification confidence: %.2f", sum/float64(n))
}
