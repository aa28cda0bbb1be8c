package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// Manager orchestrates a full research run: plan, fan out searches,
// evaluate, refine up to the iteration cap, then synthesize the report.
type Manager struct {
	config    *config.Config
	telemetry *telemetry.Telemetry
	progress  progress.Sink
	planner   *Planner
	executor  *Executor
	evaluator *Evaluator
	writer    *Writer
	logger    *log.Logger
}

// NewManager wires the pipeline stages around the given providers.
func NewManager(cfg *config.Config, llmProvider LLMProvider, search SearchProvider, sink progress.Sink, tele *telemetry.Telemetry) *Manager {
	return &Manager{
		config:    cfg,
		telemetry: tele,
		progress:  sink,
		planner:   NewPlanner(cfg, llmProvider, tele),
		executor:  NewExecutor(search, sink, tele),
		evaluator: NewEvaluator(cfg, llmProvider, tele),
		writer:    NewWriter(cfg, llmProvider, sink, tele),
		logger:    log.New(log.Writer(), "[MANAGER] ", log.LstdFlags),
	}
}

// Run executes the research pipeline for a query and returns the final
// report. Stage failures abort the run; individual search failures do not.
func (m *Manager) Run(ctx context.Context, query string) (Report, error) {
	runID := uuid.New().String()
	startTime := time.Now()
	m.logger.Printf("Starting research for query: %s (run %s)", query, runID)

	m.progress.Upsert("trace_id", fmt.Sprintf("Run ID: %s", runID), true, true)
	m.progress.Upsert("starting", "Starting research...", true, true)

	report, state, err := m.research(ctx, runID, query)
	event := telemetry.RunEvent{
		RunID:     runID,
		Query:     query,
		StartTime: startTime,
		EndTime:   time.Now(),
		Duration:  time.Since(startTime),
	}
	if state != nil {
		event.Iterations = state.Iteration
		event.Results = len(state.Results)
	}
	if err != nil {
		m.progress.Upsert("error", fmt.Sprintf("Error occurred during research: %v", err), true, false)
		m.progress.End()
		event.Success = false
		event.Error = err.Error()
		m.telemetry.RecordRunEvent(ctx, event)
		return Report{}, err
	}

	m.progress.Upsert("final_report", fmt.Sprintf("Report summary\n\n%s", report.ShortSummary), true, false)
	m.progress.End()
	event.Success = true
	m.telemetry.RecordRunEvent(ctx, event)
	m.logger.Printf("Research process completed in %v", time.Since(startTime))

	return report, nil
}

func (m *Manager) research(ctx context.Context, runID, query string) (Report, *RunState, error) {
	state := &RunState{
		RunID:         runID,
		Query:         query,
		Iteration:     1,
		MaxIterations: m.config.Research.MaxIterations,
		StartedAt:     time.Now(),
	}

	m.progress.Upsert("planning", "Planning comprehensive research strategy...", false, false)
	plan, err := runStage(ctx, m.telemetry, runID, "planning", func(ctx context.Context) (SearchPlan, error) {
		return m.planner.Plan(ctx, query)
	})
	if err != nil {
		return Report{}, state, err
	}
	m.progress.Upsert("planning",
		fmt.Sprintf("Research plan created with %d searches across %d main topics", len(plan.Searches), len(plan.MainTopics)),
		true, false)

	m.progress.Upsert("searching", "Executing search plan...", false, false)
	initial, _ := runStage(ctx, m.telemetry, runID, "searching", func(ctx context.Context) ([]string, error) {
		return m.executor.Run(ctx, runID, "searching", "Searching... %d/%d completed", plan.Searches), nil
	})
	state.Results = initial

	for state.Iteration <= state.MaxIterations {
		m.progress.Upsert("evaluation",
			fmt.Sprintf("Evaluating research quality (iteration %d/%d)...", state.Iteration, state.MaxIterations),
			false, false)

		evaluation, err := runStage(ctx, m.telemetry, runID, "evaluation", func(ctx context.Context) (Evaluation, error) {
			return m.evaluator.Evaluate(ctx, query, state.Results)
		})
		if err != nil {
			return Report{}, state, err
		}

		if !evaluation.NeedsMore {
			m.logger.Printf("Research complete. Quality: %d/10, Completeness: %d/10",
				evaluation.QualityScore, evaluation.CompletenessScore)
			m.progress.Upsert("evaluation",
				fmt.Sprintf("Research evaluation complete: Quality score %d/10, Completeness score %d/10",
					evaluation.QualityScore, evaluation.CompletenessScore),
				true, false)
			break
		}

		m.progress.Upsert("evaluation",
			fmt.Sprintf("Identified %d research gaps (iteration %d/%d)", len(evaluation.Gaps), state.Iteration, state.MaxIterations),
			true, false)

		items := followUpItems(evaluation.Gaps)
		m.progress.Upsert("follow_up", "Conducting follow-up research to fill gaps...", false, false)
		additional, _ := runStage(ctx, m.telemetry, runID, "follow_up", func(ctx context.Context) ([]string, error) {
			return m.executor.Run(ctx, runID, "follow_up", "Follow-up research... %d/%d completed", items), nil
		})
		state.Results = append(state.Results, additional...)

		state.Iteration++
		if state.Iteration > state.MaxIterations {
			m.logger.Printf("Reached maximum research iterations (%d)", state.MaxIterations)
			m.progress.Upsert("max_iterations",
				fmt.Sprintf("Reached maximum research iterations (%d)", state.MaxIterations),
				true, false)
		}
	}

	report, err := runStage(ctx, m.telemetry, runID, "writing", func(ctx context.Context) (Report, error) {
		return m.writer.Write(ctx, query, state.Results)
	})
	if err != nil {
		return Report{}, state, err
	}
	return report, state, nil
}

// followUpItems converts evaluator gaps into a new round of search items.
// Within each gap the earlier suggested queries get the higher priority.
func followUpItems(gaps []ResearchGap) []SearchItem {
	var items []SearchItem
	for _, gap := range gaps {
		for i, q := range gap.SuggestedQueries {
			items = append(items, SearchItem{
				Query:    q,
				Reason:   fmt.Sprintf("To address gap: %s. %s", gap.Topic, gap.Reason),
				Priority: i + 1,
			})
		}
	}
	return items
}
