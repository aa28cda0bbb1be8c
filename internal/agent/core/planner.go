package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// Planner turns a research query into a prioritized search plan
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, telemetry *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   telemetry,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan creates a search plan for a research query
func (p *Planner) Plan(ctx context.Context, query string) (SearchPlan, error) {
	startTime := time.Now()

	prompt := p.createPlanningPrompt(query)

	model := p.config.LLM.Routing.Planning
	if model == "" {
		model = p.config.LLM.Routing.Fallback
	}

	response, err := p.llmProvider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3, // Lower temperature for more consistent planning
		"max_tokens":  2000,
	})
	if err != nil {
		return SearchPlan{}, fmt.Errorf("failed to generate plan: %w", err)
	}

	plan, err := p.parsePlanningResponse(response)
	if err != nil {
		return SearchPlan{}, fmt.Errorf("failed to parse planning response: %w", err)
	}

	p.logger.Printf("Planning completed in %v with %d searches across %d main topics",
		time.Since(startTime), len(plan.Searches), len(plan.MainTopics))

	return plan, nil
}

// createPlanningPrompt creates the prompt for search planning
func (p *Planner) createPlanningPrompt(query string) string {
	return fmt.Sprintf(`You are a research strategist tasked with creating a comprehensive research plan. Given a query, develop an in-depth search strategy that will thoroughly explore the topic.

Your research plan should:
1. Break down the topic into key aspects and subtopics that need exploration
2. Consider different perspectives, counterarguments, and potential biases
3. Include both broad search terms for general understanding and specific targeted queries
4. Prioritize searches by importance to answering the core question
5. Include search terms for background context, current developments, expert opinions, statistical data, and case studies when relevant

Output between 8 and 20 search queries, ensuring comprehensive coverage of the topic.

QUERY: %s

OUTPUT FORMAT (JSON):
{
  "main_topics": ["subtopic or aspect of the query", ...],
  "searches": [
    {
      "query": "the search term to use",
      "reason": "why this search is important to the query",
      "priority": 1
    }
  ]
}

Priority is an integer from 1 to 10, where 1 is highest. Return ONLY the JSON object.`, query)
}

// parsePlanningResponse parses the LLM response into a SearchPlan
func (p *Planner) parsePlanningResponse(response string) (SearchPlan, error) {
	jsonStr := extractFirstJSON(response)
	if jsonStr == "" {
		return SearchPlan{}, fmt.Errorf("no JSON found in response")
	}

	var plan SearchPlan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return SearchPlan{}, fmt.Errorf("unmarshal plan: %w", err)
	}

	for i := range plan.Searches {
		if plan.Searches[i].Query == "" {
			return SearchPlan{}, fmt.Errorf("search item %d has empty query", i)
		}
		if plan.Searches[i].Priority <= 0 {
			plan.Searches[i].Priority = 5
		}
	}
	return plan, nil
}
