package websearch

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thornxyz/revera/internal/jsonrecovery"
	"github.com/thornxyz/revera/internal/state"
)

// QueryExpander asks an LLM to expand a query (spec §4.5 step 1). Satisfied
// by internal/orchestrator's QueryExpander adapter over internal/llmgateway.
type QueryExpander interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service is the Web Search agent's retrieval logic (spec C4, §4.5).
type Service struct {
	client   *Client
	expander QueryExpander
	log      *zap.Logger
}

func New(client *Client, expander QueryExpander, log *zap.Logger) *Service {
	if log == nil {
		log, _ = zap.NewProduction()
	}
	return &Service{client: client, expander: expander, log: log}
}

// Result bundles the ranked sources and optional quick answer returned by
// Search (spec §4.5 contract).
type Result struct {
	Sources     []state.WebSource
	QuickAnswer string
}

// Search runs the full web search algorithm: query expansion, parallel
// primary+alternative search, URL dedup, relevance re-ranking, and
// truncation to maxResults (spec §4.5 steps 1-5).
func (s *Service) Search(ctx context.Context, query string, maxResults int) (*Result, error) {
	expansion := s.expand(ctx, query)

	queries := append([]string{expansion.PrimaryQuery}, expansion.AlternativeQueries...)
	responses := make([]*searchResponse, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		includeAnswer := i == 0
		g.Go(func() error {
			resp, err := s.client.search(gctx, q, includeAnswer)
			if err != nil {
				// Step 2: individual search failures are captured and do not
				// cancel the others.
				s.log.Warn("web search query failed", zap.String("query", q), zap.Error(err))
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait() // errors are already absorbed per-query above

	seen := map[string]bool{}
	var all []rawResult
	var quickAnswer string
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		if i == 0 {
			quickAnswer = resp.Answer
		}
		for _, r := range resp.Results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			all = append(all, r)
		}
	}

	ranked := make([]state.WebSource, 0, len(all))
	for _, r := range all {
		ranked = append(ranked, toWebSource(r, expansion.QueryType))
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].RelevanceScore > ranked[j].RelevanceScore })

	if maxResults <= 0 {
		maxResults = 5
	}
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	return &Result{Sources: ranked, QuickAnswer: quickAnswer}, nil
}

func (s *Service) expand(ctx context.Context, query string) Expansion {
	fallback := DefaultExpansion(query)
	if s.expander == nil {
		return fallback
	}
	prompt := expansionPrompt(query)
	raw, err := s.expander.Complete(ctx, prompt)
	if err != nil {
		s.log.Warn("query expansion call failed, using fallback", zap.Error(err))
		return fallback
	}
	var expansion Expansion
	if err := jsonrecovery.Parse(raw, &expansion); err != nil || expansion.PrimaryQuery == "" {
		s.log.Warn("query expansion parse failed, using fallback", zap.Error(err))
		return fallback
	}
	if expansion.QueryType == "" {
		expansion.QueryType = QueryFactual
	}
	return expansion
}

func expansionPrompt(query string) string {
	return "Expand this search query into {primary_query, alternative_queries (0-2), query_type in " +
		"[factual, conceptual, comparative, temporal]} as JSON only. Query: " + query
}

// toWebSource applies the relevance_score formula from spec §4.5 step 4.
func toWebSource(r rawResult, qt QueryType) state.WebSource {
	recencyBoost := 0.0
	if qt == QueryTemporal && r.PublishedDate != nil && time.Since(*r.PublishedDate) <= 30*24*time.Hour {
		recencyBoost = 0.1
	}
	contentLengthBoost := math.Min(float64(len(r.Content))/2000.0, 0.1)

	return state.WebSource{
		URL:            r.URL,
		Title:          r.Title,
		Content:        r.Content,
		RawContent:     r.RawContent,
		PublishedDate:  r.PublishedDate,
		Score:          r.Score,
		RelevanceScore: r.Score + recencyBoost + contentLengthBoost,
	}
}
