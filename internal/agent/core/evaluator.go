package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// Evaluator scores accumulated research and decides whether another
// refinement round is worth running.
type Evaluator struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewEvaluator creates a new evaluator instance
func NewEvaluator(cfg *config.Config, llmProvider LLMProvider, telemetry *telemetry.Telemetry) *Evaluator {
	return &Evaluator{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   telemetry,
		logger:      log.New(log.Writer(), "[EVALUATOR] ", log.LstdFlags),
	}
}

// Evaluate assesses the research gathered so far against the original query
func (e *Evaluator) Evaluate(ctx context.Context, query string, results []string) (Evaluation, error) {
	startTime := time.Now()

	prompt := e.createEvaluationPrompt(query, results)

	model := e.config.LLM.Routing.Evaluation
	if model == "" {
		model = e.config.LLM.Routing.Fallback
	}

	response, err := e.llmProvider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  2000,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to generate evaluation: %w", err)
	}

	eval, err := e.parseEvaluationResponse(response)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to parse evaluation response: %w", err)
	}

	e.logger.Printf("Evaluation completed in %v: completeness=%d quality=%d gaps=%d needs_more=%t",
		time.Since(startTime), eval.CompletenessScore, eval.QualityScore, len(eval.Gaps), eval.NeedsMore)

	return eval, nil
}

// createEvaluationPrompt creates the prompt for research evaluation
func (e *Evaluator) createEvaluationPrompt(query string, results []string) string {
	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("Search Result %d:\n%s\n\n", i+1, r))
	}

	return fmt.Sprintf(`You are a critical research evaluator. Assess whether the collected research findings comprehensively answer the original query.

Evaluate the research on:
1. Completeness: are all key aspects of the query covered?
2. Quality: are the findings substantive, specific and well sourced?
3. Balance: are multiple perspectives represented where relevant?
4. Currency: is the information recent enough for the query?

For each gap you identify, suggest up to 3 concrete follow-up search queries that would close it. Only flag additional research when the gaps materially weaken the answer.

ORIGINAL QUERY: %s

RESEARCH FINDINGS:
%s

OUTPUT FORMAT (JSON):
{
  "completeness_score": 7,
  "quality_score": 7,
  "strength_analysis": "what the research covers well",
  "gap_analysis": "what is missing or weak",
  "identified_gaps": [
    {
      "topic": "the missing area",
      "reason": "why it matters to the query",
      "suggested_queries": ["follow-up search 1", "follow-up search 2"]
    }
  ],
  "needs_additional_research": true
}

Scores are integers from 1 to 10. Return ONLY the JSON object.`, query, sb.String())
}

// parseEvaluationResponse parses the LLM response into an Evaluation
func (e *Evaluator) parseEvaluationResponse(response string) (Evaluation, error) {
	jsonStr := extractFirstJSON(response)
	if jsonStr == "" {
		return Evaluation{}, fmt.Errorf("no JSON found in response")
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("unmarshal evaluation: %w", err)
	}

	eval.CompletenessScore = clampScore(eval.CompletenessScore)
	eval.QualityScore = clampScore(eval.QualityScore)
	return eval, nil
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}
