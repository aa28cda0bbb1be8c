package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
)

type stubRunner struct {
	sink   progress.Sink
	report core.Report
	err    error
}

func (r *stubRunner) Run(ctx context.Context, query string) (core.Report, error) {
	r.sink.Upsert("starting", "Starting research...", true, true)
	if r.err != nil {
		r.sink.Upsert("error", "Error occurred during research: "+r.err.Error(), true, false)
		r.sink.End()
		return core.Report{}, r.err
	}
	r.sink.Upsert("final_report", "Report summary\n\n"+r.report.ShortSummary, true, false)
	r.sink.End()
	return r.report, nil
}

func newTestServer(report core.Report, runErr error) *Server {
	cfg := &config.Config{}
	tele := telemetry.NewTelemetry(config.TelemetryConfig{})
	factory := func(sink progress.Sink) (Runner, error) {
		return &stubRunner{sink: sink, report: report, err: runErr}, nil
	}
	return New(cfg, tele, nil, factory)
}

func postResearch(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/research", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func waitForStatus(t *testing.T, s *Server, runID, want string) runResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET run: status %d", rec.Code)
		}
		var resp runResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode run: %v", err)
		}
		if resp.Status == want {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %q", runID, want)
	return runResponse{}
}

func TestResearchEndpointRunsToCompletion(t *testing.T) {
	report := core.Report{ShortSummary: "brief", MarkdownReport: "# Report"}
	s := newTestServer(report, nil)

	rec := postResearch(t, s, `{"query":"what happened"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status %d, body %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	runID := out["run_id"]
	if runID == "" {
		t.Fatalf("missing run_id in response")
	}

	resp := waitForStatus(t, s, runID, StatusCompleted)
	if resp.Report == nil || resp.Report.ShortSummary != "brief" {
		t.Fatalf("unexpected report: %+v", resp.Report)
	}
	if len(resp.Progress) == 0 {
		t.Fatalf("expected progress entries")
	}
	last := resp.Progress[len(resp.Progress)-1]
	if last.Key != "final_report" {
		t.Fatalf("unexpected final progress entry: %+v", last)
	}
}

func TestResearchEndpointReportsFailure(t *testing.T) {
	s := newTestServer(core.Report{}, fmt.Errorf("planner blew up"))

	rec := postResearch(t, s, `{"query":"doomed"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status %d", rec.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)

	resp := waitForStatus(t, s, out["run_id"], StatusFailed)
	if resp.Error == "" {
		t.Fatalf("expected error in run response")
	}
	if resp.Report != nil {
		t.Fatalf("failed run should not carry a report")
	}
}

func TestResearchEndpointRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(core.Report{}, nil)

	rec := postResearch(t, s, `{"query":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	s := newTestServer(core.Report{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReportsEndpointWithoutArchive(t *testing.T) {
	s := newTestServer(core.Report{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(core.Report{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}
