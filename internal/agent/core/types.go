package core

import (
	"context"
	"time"
)

// SearchItem is a single planned web search.
type SearchItem struct {
	Query    string `json:"query"`    // the search term to use
	Reason   string `json:"reason"`   // why this search matters to the query
	Priority int    `json:"priority"` // 1-10, 1 is highest
}

// SearchPlan is the planner's output for a research query.
type SearchPlan struct {
	MainTopics []string     `json:"main_topics"`
	Searches   []SearchItem `json:"searches"`
}

// ResearchGap is a specific area the evaluator found lacking.
type ResearchGap struct {
	Topic            string   `json:"topic"`
	Reason           string   `json:"reason"`
	SuggestedQueries []string `json:"suggested_queries"`
}

// Evaluation is the evaluator's assessment of accumulated research.
type Evaluation struct {
	CompletenessScore int           `json:"completeness_score"` // 1-10
	QualityScore      int           `json:"quality_score"`      // 1-10
	StrengthAnalysis  string        `json:"strength_analysis"`
	GapAnalysis       string        `json:"gap_analysis"`
	Gaps              []ResearchGap `json:"identified_gaps"`
	NeedsMore         bool          `json:"needs_additional_research"`
}

// Report is the final synthesized output of a run.
type Report struct {
	ShortSummary      string   `json:"short_summary"`
	Outline           string   `json:"outline"`
	MarkdownReport    string   `json:"markdown_report"`
	Limitations       []string `json:"limitations"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// RunState tracks a single research run. Results is append-only: summaries
// accumulate across the initial fan-out and every refinement round.
type RunState struct {
	RunID         string
	Query         string
	Iteration     int
	MaxIterations int
	Results       []string
	StartedAt     time.Time
}

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GenerateStream generates text over a streaming connection, blocking
	// until the stream completes, and returns the accumulated text plus
	// token usage.
	GenerateStream(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	MaxTokens       int      `json:"max_tokens"`
	CostPer1KInput  float64  `json:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output"`
	Capabilities    []string `json:"capabilities"`
	Description     string   `json:"description"`
}

// SearchProvider executes one planned search and returns a textual summary
// of what it found.
type SearchProvider interface {
	Search(ctx context.Context, item SearchItem) (string, error)
}
