package core

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// runStage wraps one pipeline stage with timing and telemetry. The stage's
// own result and error pass through untouched.
func runStage[T any](ctx context.Context, tele *telemetry.Telemetry, runID, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := fn(ctx)
	event := telemetry.StageEvent{
		RunID:    runID,
		Stage:    stage,
		Duration: time.Since(start),
		Success:  err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	tele.RecordStageEvent(ctx, event)
	return result, err
}
