package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func newTestManager(llm *stubLLM, search SearchProvider, sink *recordingSink) *Manager {
	return NewManager(testConfig(), llm, search, sink, testTelemetry())
}

func TestRunCompletesWithoutRefinement(t *testing.T) {
	llm := &stubLLM{
		responses:      []string{planJSON, evalDoneJSON},
		streamResponse: reportJSON,
	}
	search := &stubSearch{}
	sink := &recordingSink{}
	mgr := newTestManager(llm, search, sink)

	report, err := mgr.Run(context.Background(), "what happened")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ShortSummary != "Key findings in brief." {
		t.Fatalf("unexpected report: %+v", report)
	}
	if search.callCount() != 2 {
		t.Fatalf("expected 2 initial searches, got %d", search.callCount())
	}

	for _, key := range []string{"trace_id", "starting", "planning", "searching", "evaluation", "writing", "final_report"} {
		if !sink.hasKey(key) {
			t.Fatalf("missing progress key %q", key)
		}
	}
	if sink.hasKey("follow_up") || sink.hasKey("max_iterations") {
		t.Fatalf("unexpected refinement progress entries")
	}
	if !sink.ended {
		t.Fatalf("expected progress board to be ended")
	}

	msgs := sink.messagesFor("evaluation")
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1], "Research evaluation complete") {
		t.Fatalf("unexpected evaluation messages: %v", msgs)
	}
}

func TestRunRefinementLoopStopsAtCap(t *testing.T) {
	// The evaluator always asks for more: the loop must stop after exactly
	// three follow-up rounds and post the cap notice.
	gapEval := `{
  "completeness_score": 4,
  "quality_score": 4,
  "identified_gaps": [
    {"topic": "depth", "reason": "too shallow", "suggested_queries": ["deeper one", "deeper two"]}
  ],
  "needs_additional_research": true
}`
	llm := &stubLLM{
		responses:      []string{planJSON, gapEval, gapEval, gapEval},
		streamResponse: reportJSON,
	}
	search := &stubSearch{}
	sink := &recordingSink{}
	mgr := newTestManager(llm, search, sink)

	if _, err := mgr.Run(context.Background(), "query"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 initial searches plus 3 rounds of 2 follow-ups each.
	if search.callCount() != 8 {
		t.Fatalf("expected 8 searches total, got %d", search.callCount())
	}
	if !sink.hasKey("max_iterations") {
		t.Fatalf("expected max_iterations progress entry")
	}
	msgs := sink.messagesFor("max_iterations")
	if len(msgs) != 1 || msgs[0] != "Reached maximum research iterations (3)" {
		t.Fatalf("unexpected cap messages: %v", msgs)
	}
	// All evaluator responses were consumed, so the writer prompt saw every
	// accumulated result.
	writerPrompt := llm.prompts[len(llm.prompts)-1]
	if !strings.Contains(writerPrompt, "Search Result 8:") {
		t.Fatalf("writer prompt missing accumulated results")
	}
}

func TestRunPlannerFailurePostsError(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("llm down")}
	sink := &recordingSink{}
	mgr := newTestManager(llm, &stubSearch{}, sink)

	if _, err := mgr.Run(context.Background(), "query"); err == nil {
		t.Fatalf("expected planner failure to propagate")
	}
	msgs := sink.messagesFor("error")
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Error occurred during research") {
		t.Fatalf("unexpected error messages: %v", msgs)
	}
	if !sink.ended {
		t.Fatalf("expected progress board to be ended after failure")
	}
	if sink.hasKey("final_report") {
		t.Fatalf("final report should not be posted on failure")
	}
}

func TestRunSearchFailuresAreNotFatal(t *testing.T) {
	llm := &stubLLM{
		responses:      []string{planJSON, evalDoneJSON},
		streamResponse: reportJSON,
	}
	search := &stubSearch{failQueries: map[string]bool{"first query": true}}
	sink := &recordingSink{}
	mgr := newTestManager(llm, search, sink)

	report, err := mgr.Run(context.Background(), "query")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.MarkdownReport == "" {
		t.Fatalf("expected a report despite a failed search")
	}
	// Only the surviving summary reaches the evaluator.
	evalPrompt := llm.prompts[1]
	if strings.Contains(evalPrompt, "summary of first query") {
		t.Fatalf("failed search leaked into evaluation")
	}
	if !strings.Contains(evalPrompt, "summary of second query") {
		t.Fatalf("surviving search missing from evaluation")
	}
}

func TestFollowUpItemsRestartPriorityPerGap(t *testing.T) {
	gaps := []ResearchGap{
		{Topic: "alpha", Reason: "first reason", SuggestedQueries: []string{"a1", "a2", "a3"}},
		{Topic: "beta", Reason: "second reason", SuggestedQueries: []string{"b1", "b2", "b3"}},
	}
	items := followUpItems(gaps)
	if len(items) != 6 {
		t.Fatalf("expected 6 items, got %d", len(items))
	}
	wantPriorities := []int{1, 2, 3, 1, 2, 3}
	for i, item := range items {
		if item.Priority != wantPriorities[i] {
			t.Fatalf("priority %d at index %d, want %d", item.Priority, i, wantPriorities[i])
		}
	}
	if items[0].Reason != "To address gap: alpha. first reason" {
		t.Fatalf("unexpected reason: %q", items[0].Reason)
	}
	if items[3].Query != "b1" {
		t.Fatalf("unexpected query order: %+v", items)
	}
}
