package orchestrator

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"

	"github.com/thornxyz/revera/internal/agents/critic"
	"github.com/thornxyz/revera/internal/agents/imagegen"
	"github.com/thornxyz/revera/internal/agents/planner"
	"github.com/thornxyz/revera/internal/agents/synthesis"
)

// Activity name constants, registered explicitly via RegisterOptions so
// workflow code can reference them as stable strings (the teacher's own
// idiom, e.g. "EmitTaskUpdate") instead of depending on reflection-derived
// method names, which change whenever the bound receiver is refactored.
const (
	ActivityPlannerPlan         = "PlannerPlan"
	ActivityRetrieveInternal    = "RetrieveInternal"
	ActivitySearchWeb           = "SearchWeb"
	ActivityImageGenGenerate    = "ImageGenGenerate"
	ActivitySynthesisSynthesize = "SynthesisSynthesize"
	ActivityCriticCritique      = "CriticCritique"

	ActivityScopeDocuments  = "ScopeDocuments"
	ActivityLoadMemory      = "LoadMemory"
	ActivityStartSession    = "StartSession"
	ActivityPublishStatus   = "PublishStatus"
	ActivityFinalizeSuccess = "FinalizeSuccess"
	ActivityFailSession     = "FailSession"
)

// Deps bundles every agent-package Activities struct plus the
// orchestrator's own bookkeeping Activities, the unit Register needs to
// wire a worker.Worker.
type Deps struct {
	Orchestrator *Activities
	Planner      *planner.Activities
	Synthesis    *synthesis.Activities
	Critic       *critic.Activities
	ImageGen     *imagegen.Activities
}

// Register registers ResearchWorkflow and every activity this package and
// the agent packages expose onto w (called once from cmd/worker at
// startup).
func Register(w worker.Worker, deps Deps) {
	w.RegisterWorkflow(ResearchWorkflow)

	w.RegisterActivityWithOptions(deps.Planner.Plan, activity.RegisterOptions{Name: ActivityPlannerPlan})
	w.RegisterActivityWithOptions(deps.Synthesis.Synthesize, activity.RegisterOptions{Name: ActivitySynthesisSynthesize})
	w.RegisterActivityWithOptions(deps.Critic.Critique, activity.RegisterOptions{Name: ActivityCriticCritique})
	w.RegisterActivityWithOptions(deps.ImageGen.Generate, activity.RegisterOptions{Name: ActivityImageGenGenerate})

	w.RegisterActivityWithOptions(deps.Orchestrator.RetrieveInternal, activity.RegisterOptions{Name: ActivityRetrieveInternal})
	w.RegisterActivityWithOptions(deps.Orchestrator.SearchWeb, activity.RegisterOptions{Name: ActivitySearchWeb})
	w.RegisterActivityWithOptions(deps.Orchestrator.ScopeDocuments, activity.RegisterOptions{Name: ActivityScopeDocuments})
	w.RegisterActivityWithOptions(deps.Orchestrator.LoadMemory, activity.RegisterOptions{Name: ActivityLoadMemory})
	w.RegisterActivityWithOptions(deps.Orchestrator.StartSession, activity.RegisterOptions{Name: ActivityStartSession})
	w.RegisterActivityWithOptions(deps.Orchestrator.PublishStatus, activity.RegisterOptions{Name: ActivityPublishStatus})
	w.RegisterActivityWithOptions(deps.Orchestrator.FinalizeSuccess, activity.RegisterOptions{Name: ActivityFinalizeSuccess})
	w.RegisterActivityWithOptions(deps.Orchestrator.FailSession, activity.RegisterOptions{Name: ActivityFailSession})
}
