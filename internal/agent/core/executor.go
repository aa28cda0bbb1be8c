package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// Executor fans planned searches out to the search capability and collects
// the summaries that succeeded.
type Executor struct {
	search    SearchProvider
	progress  progress.Sink
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewExecutor creates a new search executor
func NewExecutor(search SearchProvider, sink progress.Sink, telemetry *telemetry.Telemetry) *Executor {
	return &Executor{
		search:    search,
		progress:  sink,
		telemetry: telemetry,
		logger:    log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// searchOutcome carries a summary or an error across the fan-out boundary,
// never both.
type searchOutcome struct {
	query   string
	summary string
	err     error
	elapsed time.Duration
}

// Run executes every item concurrently. An item failure is logged and
// dropped; the remaining summaries are returned in completion order. key is
// the progress board entry to update and format is the per-completion
// message with completed/total placeholders.
func (e *Executor) Run(ctx context.Context, runID, key, format string, items []SearchItem) []string {
	sorted := make([]SearchItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	if len(sorted) == 0 {
		e.progress.Upsert(key, fmt.Sprintf(format, 0, 0), false, false)
		e.progress.MarkDone(key)
		return nil
	}

	outcomes := make(chan searchOutcome, len(sorted))
	for _, item := range sorted {
		go func(it SearchItem) {
			start := time.Now()
			summary, err := e.search.Search(ctx, it)
			outcomes <- searchOutcome{query: it.Query, summary: summary, err: err, elapsed: time.Since(start)}
		}(item)
	}

	var results []string
	for completed := 1; completed <= len(sorted); completed++ {
		out := <-outcomes
		if out.err != nil {
			e.logger.Printf("search %q failed after %v: %v", out.query, out.elapsed, out.err)
			e.telemetry.RecordSearchEvent(ctx, telemetry.SearchEvent{
				RunID: runID, Query: out.query, Duration: out.elapsed, Success: false, Error: out.err.Error(),
			})
		} else {
			results = append(results, out.summary)
			e.telemetry.RecordSearchEvent(ctx, telemetry.SearchEvent{
				RunID: runID, Query: out.query, Duration: out.elapsed, Success: true,
			})
		}
		e.progress.Upsert(key, fmt.Sprintf(format, completed, len(sorted)), false, false)
	}
	e.progress.MarkDone(key)

	e.logger.Printf("search execution complete: %d/%d results", len(results), len(sorted))
	return results
}
