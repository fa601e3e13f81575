// Package websearch implements the Web Search agent's provider client
// (spec C4): query expansion, parallel primary+alternative search, dedup,
// and relevance re-ranking. Grounded on internal/vectordb's raw-HTTP
// client pattern (circuit breaker + tracing wrapped net/http), the same
// shape the teacher uses for every external HTTP dependency.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/circuitbreaker"
	"github.com/thornxyz/revera/internal/interceptors"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/tracing"
)

// Client wraps the search provider's HTTP API.
type Client struct {
	cfg   Config
	http  *http.Client
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

var global *Client

func Initialize(cfg Config, logger *zap.Logger) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: interceptors.NewWorkflowHTTPRoundTripper(nil),
	}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "websearch", "websearch", logger)
	global = &Client{cfg: cfg, http: httpClient, httpw: httpw, log: logger}
}

func Get() *Client { return global }

func (c *Client) GetConfig() Config {
	if c == nil {
		return Config{MaxResults: 5}
	}
	return c.cfg
}

// search issues one provider query (spec §4.5 step 2: advanced depth,
// include_answer for the primary query).
func (c *Client) search(ctx context.Context, query string, includeAnswer bool) (*searchResponse, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("websearch: client disabled")
	}
	start := time.Now()
	url := c.cfg.BaseURL + "/search"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := map[string]interface{}{
		"api_key":        c.cfg.APIKey,
		"query":          query,
		"search_depth":   "advanced",
		"include_answer": includeAnswer,
		"max_results":    c.cfg.MaxResults,
	}
	buf, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	result := "ok"
	defer func() {
		metrics.WebSearchRequests.WithLabelValues("search", result).Inc()
	}()
	if err != nil {
		result = "error"
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		result = "error"
		return nil, fmt.Errorf("websearch: provider status %d", resp.StatusCode)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		result = "error"
		return nil, err
	}
	metrics.WebSearchResults.Observe(float64(len(sr.Results)))
	metrics.WebSearchLatency.Observe(time.Since(start).Seconds())
	return &sr, nil
}
