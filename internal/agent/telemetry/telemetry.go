package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry provides monitoring and cost tracking for research runs
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex

	registry       *prometheus.Registry
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	stageDuration  *prometheus.HistogramVec
	searchesTotal  *prometheus.CounterVec
	llmTokensTotal *prometheus.CounterVec
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	// Stage metrics
	StageExecutions   map[string]int64
	StageAverageTimes map[string]time.Duration

	// Search metrics
	SearchesCompleted int64
	SearchesFailed    int64

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// CostTracker tracks costs across models and stages
type CostTracker struct {
	ModelCosts  map[string]float64
	StageCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// RunEvent represents a complete research run
type RunEvent struct {
	RunID      string
	Query      string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Iterations int
	Results    int
	Cost       float64
	TokensUsed int64
}

// StageEvent represents a single pipeline stage execution
type StageEvent struct {
	RunID      string
	Stage      string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// SearchEvent represents a single search item execution
type SearchEvent struct {
	RunID    string
	Query    string
	Duration time.Duration
	Success  bool
	Error    string
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StageExecutions:   make(map[string]int64),
			StageAverageTimes: make(map[string]time.Duration),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
		},
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
			StageCosts: make(map[string]float64),
		},
		registry: prometheus.NewRegistry(),
	}

	t.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "research_runs_total",
		Help: "Research runs by terminal status",
	}, []string{"status"})
	t.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_run_duration_seconds",
		Help:    "Wall time of complete research runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	t.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
	t.searchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "research_searches_total",
		Help: "Search item executions by outcome",
	}, []string{"status"})
	t.llmTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "research_llm_tokens_total",
		Help: "LLM tokens consumed per model",
	}, []string{"model"})
	t.registry.MustRegister(t.runsTotal, t.runDuration, t.stageDuration, t.searchesTotal, t.llmTokensTotal)

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// Registry exposes the prometheus registry for the HTTP metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// RecordRunEvent records a complete research run
func (t *Telemetry) RecordRunEvent(ctx context.Context, event RunEvent) {
	status := "success"
	if !event.Success {
		status = "failure"
	}
	t.runsTotal.WithLabelValues(status).Inc()
	t.runDuration.Observe(event.Duration.Seconds())

	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Run Event: ID=%s, Success=%t, Duration=%v, Iterations=%d, Results=%d, Cost=$%.4f",
		event.RunID, event.Success, event.Duration, event.Iterations, event.Results, event.Cost)
}

// RecordStageEvent records a pipeline stage execution
func (t *Telemetry) RecordStageEvent(ctx context.Context, event StageEvent) {
	t.stageDuration.WithLabelValues(event.Stage).Observe(event.Duration.Seconds())
	if event.ModelUsed != "" && event.TokensUsed > 0 {
		t.llmTokensTotal.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
	}

	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StageExecutions[event.Stage]++
	executions := t.metrics.StageExecutions[event.Stage]

	currentAvg := t.metrics.StageAverageTimes[event.Stage]
	if executions == 1 {
		t.metrics.StageAverageTimes[event.Stage] = event.Duration
	} else {
		total := currentAvg * time.Duration(executions-1)
		t.metrics.StageAverageTimes[event.Stage] = (total + event.Duration) / time.Duration(executions)
	}

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
	}
	t.costTracker.StageCosts[event.Stage] += event.Cost
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Stage Event: Stage=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.Stage, event.Success, event.Duration, event.Cost)
}

// RecordSearchEvent records a single search item execution
func (t *Telemetry) RecordSearchEvent(ctx context.Context, event SearchEvent) {
	status := "success"
	if !event.Success {
		status = "failure"
	}
	t.searchesTotal.WithLabelValues(status).Inc()

	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Success {
		t.metrics.SearchesCompleted++
	} else {
		t.metrics.SearchesFailed++
	}
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.StageExecutions = make(map[string]int64)
	metrics.StageAverageTimes = make(map[string]time.Duration)
	metrics.LLMRequests = make(map[string]int64)
	metrics.LLMTokensUsed = make(map[string]int64)
	for k, v := range t.metrics.StageExecutions {
		metrics.StageExecutions[k] = v
	}
	for k, v := range t.metrics.StageAverageTimes {
		metrics.StageAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}
	return metrics
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
	StageCosts  map[string]float64
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  make(map[string]float64),
		StageCosts:  make(map[string]float64),
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.StageCosts {
		summary.StageCosts[k] = v
	}
	return summary
}

// startMetricsCollection starts periodic metrics logging
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()
		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, Searches=%d ok/%d failed, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns, metrics.AverageRunTime,
			metrics.SearchesCompleted, metrics.SearchesFailed, costs.TotalCost, costs.TotalTokens)
	}
}

// Shutdown emits a final report
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()
	if metrics.TotalRuns == 0 {
		return
	}
	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Runs: %d", metrics.TotalRuns)
	t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulRuns)/float64(metrics.TotalRuns)*100)
	t.logger.Printf("  Average Run Time: %v", metrics.AverageRunTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Runs: %d
  Successful: %d
  Failed: %d
  Average Run Time: %v
  Searches: %d completed, %d failed
  Total Cost: $%.4f
  Total Tokens: %d

Stage Performance:
`, metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns,
		metrics.AverageRunTime, metrics.SearchesCompleted, metrics.SearchesFailed,
		costs.TotalCost, costs.TotalTokens)

	for stage, executions := range metrics.StageExecutions {
		avgTime := metrics.StageAverageTimes[stage]
		cost := costs.StageCosts[stage]
		report += fmt.Sprintf("  %s: %d executions, %v avg time, $%.4f\n", stage, executions, avgTime, cost)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n", model, requests, tokens, cost)
	}

	return report
}
