// Package planner implements the Planner Agent (spec C6): turns a query
// into an Plan the rest of the graph executes.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/thornxyz/revera/internal/jsonrecovery"
	"github.com/thornxyz/revera/internal/state"
)

// Generator is the subset of llmgateway.Gateway the planner needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, system string, temperature float64, maxTokens int, timeout time.Duration) (string, error)
}

// Activities wraps the planner's Temporal activity methods.
type Activities struct {
	LLM Generator
}

// Input is the planner's contract input (spec §4.3).
type Input struct {
	Query             string `json:"query"`
	MemorySnippet     string `json:"memory_snippet"`
	UseWeb            bool   `json:"use_web"`
	CitationsRequired bool   `json:"citations_required"`
}

// planJSON is the shape requested from the LLM; it is distinct from
// state.Plan only in that the LLM is asked for fields directly, mirroring
// the wire contract before jsonrecovery decodes it into the domain type.
type planJSON struct {
	Subtasks []string `json:"subtasks"`
	Steps    []struct {
		Tool        string                 `json:"tool"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"steps"`
	Constraints map[string]interface{} `json:"constraints"`
}

var imageRequestPattern = regexp.MustCompile(`(?i)\b(draw|generate|create)\b.{0,20}\b(image|picture|diagram|illustration)\b`)

// Plan produces a Plan from the query, applying the default-plan fallback
// on any parse failure and enforcing the synthesis-step invariant
// regardless of what the model returned.
func (a *Activities) Plan(ctx context.Context, input Input) (state.Plan, error) {
	logger := activity.GetLogger(ctx)

	prompt := buildPrompt(input)
	raw, err := a.LLM.GenerateJSON(ctx, prompt, systemPrompt, 0.2, 1024, 30*time.Second)
	if err != nil {
		logger.Warn("planner: generation failed, using default plan", "error", err)
		return state.DefaultPlan(), nil
	}

	var parsed planJSON
	if err := jsonrecovery.Parse(raw, &parsed); err != nil {
		logger.Warn("planner: malformed output, using default plan", "error", err)
		return state.DefaultPlan(), nil
	}
	if len(parsed.Steps) == 0 {
		logger.Warn("planner: empty step list, using default plan")
		return state.DefaultPlan(), nil
	}

	plan := state.Plan{Subtasks: parsed.Subtasks, Constraints: parsed.Constraints}
	for _, s := range parsed.Steps {
		plan.Steps = append(plan.Steps, state.PlanStep{
			Tool:        state.PlanStepTool(s.Tool),
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}

	applyInvariants(&plan, input)
	return plan, nil
}

// applyInvariants enforces the plan contract that does not depend on the
// model having gotten it right: synthesis is always present, verification
// is present whenever the plan makes a factual claim (i.e. whenever rag or
// web is present), web is forced in whenever the caller's use_web
// preference is set (whatever the query), and image_gen only survives when the query
// explicitly asked for a visual.
func applyInvariants(plan *state.Plan, input Input) {
	if !plan.HasTool(state.ToolSynthesis) {
		plan.Steps = append(plan.Steps, state.PlanStep{
			Tool:        state.ToolSynthesis,
			Description: "synthesize a grounded answer",
		})
	}
	if (plan.HasTool(state.ToolRAG) || plan.HasTool(state.ToolWeb)) && !plan.HasTool(state.ToolVerification) {
		plan.Steps = append(plan.Steps, state.PlanStep{
			Tool:        state.ToolVerification,
			Description: "verify claims against cited sources",
		})
	}
	if input.UseWeb && !plan.HasTool(state.ToolWeb) {
		plan.Steps = append(plan.Steps, state.PlanStep{
			Tool:        state.ToolWeb,
			Description: "search the web for supporting evidence",
		})
	}
	if plan.HasTool(state.ToolImageGen) && !imageRequestPattern.MatchString(input.Query) {
		plan.Steps = filterOutTool(plan.Steps, state.ToolImageGen)
	}
}

func filterOutTool(steps []state.PlanStep, tool state.PlanStepTool) []state.PlanStep {
	out := steps[:0:0]
	for _, s := range steps {
		if s.Tool != tool {
			out = append(out, s)
		}
	}
	return out
}

const systemPrompt = `You are the planning stage of a research assistant. Given a user query, ` +
	`produce a JSON execution plan with fields: subtasks (list of strings), ` +
	`steps (list of {tool, description, parameters} where tool is one of ` +
	`rag, web, synthesis, verification, image_gen), and constraints (object). ` +
	`Always include a synthesis step. Include verification whenever the plan ` +
	`makes a factual claim. Include web only when internal context is likely ` +
	`insufficient or the query is temporal/external. Include image_gen only ` +
	`when the query explicitly requests a visual. Respond with JSON only.`

func buildPrompt(input Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", input.Query)
	fmt.Fprintf(&b, "use_web preference: %v\n", input.UseWeb)
	fmt.Fprintf(&b, "citations_required: %v\n", input.CitationsRequired)
	if input.MemorySnippet != "" {
		fmt.Fprintf(&b, "\n%s\n", input.MemorySnippet)
	}
	return b.String()
}
