// Package imagegen implements the Image Gen Agent (spec C9/§4.8): a
// best-effort graph step that generates one image, stores it, and
// degrades gracefully on failure rather than failing the node.
package imagegen

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/thornxyz/revera/internal/llmgateway"
	"github.com/thornxyz/revera/internal/state"
)

var errNoImageReturned = errors.New("imagegen: provider returned no images")

// Generator is the subset of llmgateway.Gateway the image-gen agent needs.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string, n int) ([]llmgateway.Image, error)
}

// ImageStore is the subset of storage.Store the image-gen agent needs.
type ImageStore interface {
	PutGeneratedImage(ctx context.Context, userID string, data []byte) (string, error)
}

// Activities wraps the image-gen agent's Temporal activity methods.
type Activities struct {
	LLM     Generator
	Storage ImageStore
}

// Input is the image-gen agent's contract input (spec §4.8). Description
// is the plan step's description, preferred over Query when present.
type Input struct {
	UserID      string
	Query       string
	Description string
}

// Result is the image-gen agent's output: URL is empty on failure.
type Result struct {
	URL      string
	Timeline state.TimelineEntry
}

// Generate produces one image and stores it. It never returns a non-nil
// error for a failed generation or upload — spec §4.8's "on failure
// records a timeline entry with the error and returns no URL" means
// failure is represented in the Result, not propagated as a node error.
func (a *Activities) Generate(ctx context.Context, input Input) (Result, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	prompt := input.Description
	if prompt == "" {
		prompt = input.Query
	}

	images, err := a.LLM.GenerateImage(ctx, prompt, 1)
	if err != nil {
		logger.Warn("imagegen: generation failed", "error", err)
		return failureResult(start, err), nil
	}
	if len(images) == 0 {
		return failureResult(start, errNoImageReturned), nil
	}

	url, err := a.Storage.PutGeneratedImage(ctx, input.UserID, images[0].Data)
	if err != nil {
		logger.Warn("imagegen: storage failed", "error", err)
		return failureResult(start, err), nil
	}

	return Result{
		URL: url,
		Timeline: state.TimelineEntry{
			AgentName:     "image_gen",
			ResultSummary: "generated and stored one image",
			Metadata:      map[string]interface{}{"url": url},
			LatencyMs:     time.Since(start).Milliseconds(),
			Timestamp:     time.Now(),
		},
	}, nil
}

func failureResult(start time.Time, err error) Result {
	return Result{
		Timeline: state.TimelineEntry{
			AgentName:     "image_gen",
			ResultSummary: "image generation failed",
			Metadata:      map[string]interface{}{"error": err.Error()},
			LatencyMs:     time.Since(start).Milliseconds(),
			Timestamp:     time.Now(),
		},
	}
}
