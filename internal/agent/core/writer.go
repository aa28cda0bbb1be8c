package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

// narrationLabels are posted one at a time while report generation streams.
// Once exhausted the board entry simply stops changing.
var narrationLabels = []string{
	"Thinking about report...",
	"Planning report structure...",
	"Creating detailed outline...",
	"Synthesizing research findings...",
	"Writing main sections...",
	"Adding supporting evidence...",
	"Refining arguments and conclusions...",
	"Finalizing report...",
}

// Writer synthesizes accumulated search results into the final report.
type Writer struct {
	config            *config.Config
	llmProvider       LLMProvider
	telemetry         *telemetry.Telemetry
	progress          progress.Sink
	narrationInterval time.Duration
	logger            *log.Logger
}

// NewWriter creates a new report writer
func NewWriter(cfg *config.Config, llmProvider LLMProvider, sink progress.Sink, telemetry *telemetry.Telemetry) *Writer {
	return &Writer{
		config:            cfg,
		llmProvider:       llmProvider,
		telemetry:         telemetry,
		progress:          sink,
		narrationInterval: cfg.Research.NarrationInterval,
		logger:            log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// Write generates the report while narrating progress on the board. The
// narration goroutine is independent of the stream: labels advance on a
// timer, not on chunk arrival, so a stalled stream still shows liveness.
func (w *Writer) Write(ctx context.Context, query string, results []string) (Report, error) {
	startTime := time.Now()
	w.progress.Upsert("writing", narrationLabels[0], false, false)

	done := make(chan struct{})
	go w.narrate(done)

	model := w.config.LLM.Routing.Writing
	if model == "" {
		model = w.config.LLM.Routing.Fallback
	}

	prompt := w.createWritingPrompt(query, results)
	response, inputTokens, outputTokens, err := w.llmProvider.GenerateStream(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.4,
	})
	close(done)
	if err != nil {
		return Report{}, fmt.Errorf("failed to generate report: %w", err)
	}

	report, err := w.parseReportResponse(response)
	if err != nil {
		return Report{}, fmt.Errorf("failed to parse report response: %w", err)
	}

	w.progress.MarkDone("writing")
	w.logger.Printf("Report writing completed in %v (%d input tokens, %d output tokens)",
		time.Since(startTime), inputTokens, outputTokens)

	return report, nil
}

// narrate advances the writing board entry through the fixed labels until
// generation finishes or the labels run out.
func (w *Writer) narrate(done <-chan struct{}) {
	interval := w.narrationInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 1
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if next >= len(narrationLabels) {
				return
			}
			w.progress.Upsert("writing", narrationLabels[next], false, false)
			next++
		}
	}
}

// createWritingPrompt creates the prompt for report synthesis
func (w *Writer) createWritingPrompt(query string, results []string) string {
	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("Search Result %d:\n%s\n\n", i+1, r))
	}

	return fmt.Sprintf(`You are a senior research analyst tasked with creating a comprehensive, high-quality report based on a thorough research process. You have been provided with the original research query and the results of multiple web searches on various aspects of the topic.

Your report writing process should follow these steps:

1. ANALYSIS PHASE:
   - Carefully analyze all the research findings to identify key themes, patterns, and insights
   - Note areas where sources agree and disagree
   - Identify the strongest evidence and most credible information
   - Look for gaps or limitations in the research

2. PLANNING PHASE:
   - Create a detailed, logical outline for the report
   - Organize content from broad context to specific details
   - Ensure the structure flows naturally and builds understanding progressively
   - Plan sections that address different perspectives and potential counterarguments

3. WRITING PHASE:
   - Write a clear, comprehensive report based on your outline
   - Begin with an executive summary that concisely captures the key findings
   - Include relevant evidence, examples, and data points from the research
   - Critically analyze the information rather than simply reporting it
   - Address limitations and uncertainties in the research
   - Conclude with implications and next steps

The markdown_report should be well-structured with appropriate headings and subheadings. Aim for 1500-2500 words of detailed, substantive content that thoroughly addresses the research query. After completing the report, identify 3-5 specific follow-up questions or areas for further research that would build upon your findings.

ORIGINAL QUERY: %s

RESEARCH FINDINGS:
%s

OUTPUT FORMAT (JSON):
{
  "short_summary": "concise executive summary (3-5 sentences) of the key findings and implications",
  "outline": "the logical structure and organization of the report",
  "markdown_report": "the complete report in markdown format",
  "limitations": ["limitation or area of uncertainty", ...],
  "follow_up_questions": ["specific question for further research", ...]
}

Return ONLY the JSON object.`, query, sb.String())
}

// parseReportResponse parses the LLM response into a Report
func (w *Writer) parseReportResponse(response string) (Report, error) {
	jsonStr := extractFirstJSON(response)
	if jsonStr == "" {
		return Report{}, fmt.Errorf("no JSON found in response")
	}

	var report Report
	if err := json.Unmarshal([]byte(jsonStr), &report); err != nil {
		return Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	if report.MarkdownReport == "" {
		return Report{}, fmt.Errorf("report body is empty")
	}
	return report, nil
}
