// Package config loads features.yaml and exposes env-overridable runtime
// settings for every component of the research service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ObservabilityConfig controls metrics/logging/tracing emission.
type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level    string `mapstructure:"level"`
		Format   string `mapstructure:"format"`
		FilePath string `mapstructure:"file_path"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

// RetrievalConfig holds the triple-hybrid retrieval invariants from spec §5.
type RetrievalConfig struct {
	TopK              int `mapstructure:"top_k"`
	PrefetchMultiplier int `mapstructure:"prefetch_multiplier"`
	RRFConstant       int `mapstructure:"rrf_constant"`
	EmbeddingBatch    int `mapstructure:"embedding_batch"`
	UpsertBatch       int `mapstructure:"upsert_batch"`
}

// MemoryConfig controls the memory store window size.
type MemoryConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

// SynthesisConfig controls refinement and verification behavior.
type SynthesisConfig struct {
	MaxIterations       int `mapstructure:"max_iterations"`
	CriticTimeoutSeconds int `mapstructure:"critic_timeout_seconds"`
}

// WebSearchConfig controls query expansion and ranking.
type WebSearchConfig struct {
	MaxResults    int `mapstructure:"max_results"`
	RecencyDays   int `mapstructure:"recency_days"`
}

// TimeoutsConfig captures the per-operation timeouts from spec §5.
type TimeoutsConfig struct {
	Embedding time.Duration `mapstructure:"embedding"`
	LLMText   time.Duration `mapstructure:"llm_text"`
	Critic    time.Duration `mapstructure:"critic"`
}

// Features is the top-level unmarshal target for features.yaml.
type Features struct {
	Observability ObservabilityConfig `mapstructure:"observability"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Memory        MemoryConfig        `mapstructure:"memory"`
	Synthesis     SynthesisConfig     `mapstructure:"synthesis"`
	WebSearch     WebSearchConfig     `mapstructure:"web_search"`
	Timeouts      TimeoutsConfig      `mapstructure:"timeouts"`
}

// Load reads features.yaml from CONFIG_PATH, /app/config/features.yaml, or
// config/features.yaml, in that order.
func Load() (*Features, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("/app/config/features.yaml"); err == nil {
			cfgPath = "/app/config/features.yaml"
		} else {
			cfgPath = "config/features.yaml"
		}
	}

	if info, err := os.Stat(cfgPath); err == nil && info.IsDir() {
		cfgPath = filepath.Join(cfgPath, "features.yaml")
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	applyDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			// Fall back to defaults-only config when no file is mounted.
			var f Features
			if derr := v.Unmarshal(&f); derr != nil {
				return nil, fmt.Errorf("unmarshal default config: %w", derr)
			}
			return &f, nil
		}
		return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
	}
	var f Features
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &f, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.service_name", "revera-research")

	v.SetDefault("retrieval.top_k", 10)
	v.SetDefault("retrieval.prefetch_multiplier", 3)
	v.SetDefault("retrieval.rrf_constant", 60)
	v.SetDefault("retrieval.embedding_batch", 100)
	v.SetDefault("retrieval.upsert_batch", 50)

	v.SetDefault("memory.window_size", 10)

	v.SetDefault("synthesis.max_iterations", 2)
	v.SetDefault("synthesis.critic_timeout_seconds", 25)

	v.SetDefault("web_search.max_results", 5)
	v.SetDefault("web_search.recency_days", 30)

	v.SetDefault("timeouts.embedding", "5m")
	v.SetDefault("timeouts.llm_text", "5m")
	v.SetDefault("timeouts.critic", "25s")
}

// MetricsPort returns the port from config or an env override METRICS_PORT.
func MetricsPort(defaultPort int) int {
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var v int
		_, _ = fmt.Sscanf(p, "%d", &v)
		if v > 0 {
			return v
		}
	}
	if f, err := Load(); err == nil {
		if f.Observability.Metrics.Port > 0 {
			return f.Observability.Metrics.Port
		}
	}
	return defaultPort
}

// MaxIterations resolves max_iterations from env, config, or the spec's
// default of 2.
func MaxIterations(f *Features) int {
	if v := os.Getenv("MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	if f != nil && f.Synthesis.MaxIterations > 0 {
		return f.Synthesis.MaxIterations
	}
	return 2
}

// ParseBool converts common string representations to bool.
func ParseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n != 0
		}
	}
	return false
}
