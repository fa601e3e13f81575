// Package policy enforces tenant-isolation document scoping (spec §8
// invariant 4) via an embedded OPA/rego evaluation, adapted from the
// teacher's policy engine pattern: compiled rego query, fail-open/
// fail-closed default decision, structured logging of every evaluation.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/metrics"
)

// OwnedDocument is one document the requesting user/chat actually owns, as
// looked up from internal/relational before policy evaluation.
type OwnedDocument struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

// DocumentScopeInput is evaluated against the document-scoping policy.
type DocumentScopeInput struct {
	UserID             string          `json:"user_id"`
	ChatID             string          `json:"chat_id"`
	RequestedDocuments []string        `json:"requested_document_ids"`
	OwnedDocuments     []OwnedDocument `json:"owned_documents"`
}

// Decision is the policy verdict.
type Decision struct {
	Allow              bool     `json:"allow"`
	AllowedDocumentIDs []string `json:"allowed_document_ids"`
	Reason             string   `json:"reason"`
}

// Engine is the document-scoping policy evaluator.
type Engine struct {
	cfg      Config
	log      *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
}

// New constructs the engine and compiles the policies at cfg.Path. If
// compilation fails and FailClosed is false, the engine degrades to
// fail-open (every request allowed with whatever document_ids it
// requested) rather than blocking the whole service — matching the
// teacher's "dry-run until ready" posture.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log, _ = zap.NewProduction()
	}
	e := &Engine{cfg: cfg, log: log, enabled: cfg.Enabled && cfg.Mode != ModeOff}
	if e.enabled {
		if err := e.loadPolicies(); err != nil {
			if cfg.FailClosed {
				return nil, fmt.Errorf("policy: failed to load policies in fail-closed mode: %w", err)
			}
			log.Warn("policy: failed to load policies, degrading to fail-open", zap.Error(err))
			e.enabled = false
		}
	}
	return e, nil
}

func (e *Engine) loadPolicies() error {
	modules := map[string]string{}
	err := filepath.Walk(e.cfg.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(e.cfg.Path, path)
		modules[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk policy dir: %w", err)
	}
	if len(modules) == 0 {
		return fmt.Errorf("no .rego policies found under %s", e.cfg.Path)
	}

	opts := []func(*rego.Rego){rego.Query("data.revera.documents.decision")}
	for name, content := range modules {
		opts = append(opts, rego.Module(name, content))
	}
	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}
	e.compiled = &compiled
	e.log.Info("policy: loaded and compiled", zap.Int("modules", len(modules)))
	return nil
}

// Evaluate scopes a retrieval request's requested document IDs to only
// those the user/chat actually owns (spec §8 invariant 4). When the
// engine is disabled or degraded, it denies only if Mode is enforce and
// FailClosed is set; in every other case it allows the request through
// unscoped.
func (e *Engine) Evaluate(ctx context.Context, input DocumentScopeInput) (*Decision, error) {
	if !e.enabled || e.compiled == nil {
		if e.cfg.Mode == ModeEnforce && e.cfg.FailClosed {
			metrics.PolicyDecisions.WithLabelValues("deny").Inc()
			return &Decision{Allow: false, Reason: "policy engine unavailable in enforce/fail-closed mode"}, nil
		}
		metrics.PolicyDecisions.WithLabelValues("allow").Inc()
		return &Decision{Allow: true, AllowedDocumentIDs: input.RequestedDocuments, Reason: "policy engine disabled"}, nil
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"user_id":                input.UserID,
		"chat_id":                input.ChatID,
		"requested_document_ids": input.RequestedDocuments,
		"owned_documents":        input.OwnedDocuments,
	}))
	if err != nil {
		metrics.PolicyDecisions.WithLabelValues("error").Inc()
		if e.cfg.FailClosed {
			return &Decision{Allow: false, Reason: "policy evaluation error"}, err
		}
		return &Decision{Allow: true, AllowedDocumentIDs: input.RequestedDocuments, Reason: "policy evaluation error, fail-open"}, nil
	}

	decision := parseDecision(results)
	if e.cfg.Mode == ModeDryRun && !decision.Allow {
		// Dry-run never blocks; it only logs what would have been denied.
		e.log.Info("policy: dry-run would have denied", zap.String("reason", decision.Reason))
		decision.Allow = true
		decision.AllowedDocumentIDs = input.RequestedDocuments
	}
	if decision.Allow {
		metrics.PolicyDecisions.WithLabelValues("allow").Inc()
	} else {
		metrics.PolicyDecisions.WithLabelValues("deny").Inc()
	}
	return decision, nil
}

func parseDecision(results rego.ResultSet) *Decision {
	d := &Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return d
	}
	value, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return d
	}
	if allow, ok := value["allow"].(bool); ok {
		d.Allow = allow
	}
	if reason, ok := value["reason"].(string); ok {
		d.Reason = reason
	}
	if ids, ok := value["allowed_document_ids"].([]interface{}); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				d.AllowedDocumentIDs = append(d.AllowedDocumentIDs, s)
			}
		}
	}
	return d
}
