// Package server exposes the research engine over HTTP: submit a query,
// poll the run's progress board, fetch the finished report.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// Runner executes one research query end to end.
type Runner interface {
	Run(ctx context.Context, query string) (core.Report, error)
}

// RunnerFactory builds a Runner posting progress to the given sink. The
// server calls it once per submitted query.
type RunnerFactory func(sink progress.Sink) (Runner, error)

// DefaultRunnerFactory wires the full pipeline from configuration.
func DefaultRunnerFactory(cfg *config.Config, tele *telemetry.Telemetry) RunnerFactory {
	return func(sink progress.Sink) (Runner, error) {
		llmProvider, err := core.NewLLMProvider(cfg.LLM)
		if err != nil {
			return nil, err
		}
		search, err := core.NewSearchProvider(cfg, llmProvider)
		if err != nil {
			return nil, err
		}
		return core.NewManager(cfg, llmProvider, search, sink, tele), nil
	}
}

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one tracked research run.
type Run struct {
	ID        string
	Query     string
	Status    string
	Report    core.Report
	Err       string
	Board     *progress.Board
	CreatedAt time.Time
}

// Server serves the research API.
type Server struct {
	config    *config.Config
	echo      *echo.Echo
	telemetry *telemetry.Telemetry
	archive   store.Archive // nil when no archive backend is configured
	newRunner RunnerFactory
	logger    *log.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// New creates the server. archive may be nil.
func New(cfg *config.Config, tele *telemetry.Telemetry, archive store.Archive, factory RunnerFactory) *Server {
	s := &Server{
		config:    cfg,
		telemetry: tele,
		archive:   archive,
		newRunner: factory,
		logger:    log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
		runs:      make(map[string]*Run),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tele.Registry(), promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/research", s.startRun)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)

	s.echo = e
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.Server.Address
	}
	if addr == "" {
		addr = ":10001"
	}
	if !strings.HasPrefix(addr, ":") && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type researchRequest struct {
	Query string `json:"query"`
}

func (s *Server) startRun(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	board := progress.NewBoard()
	runner, err := s.newRunner(board)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	run := &Run{
		ID:        uuid.New().String(),
		Query:     req.Query,
		Status:    StatusRunning,
		Board:     board,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	go s.execute(run, runner)

	return c.JSON(http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (s *Server) execute(run *Run, runner Runner) {
	report, err := runner.Run(context.Background(), run.Query)

	s.mu.Lock()
	if err != nil {
		run.Status = StatusFailed
		run.Err = err.Error()
	} else {
		run.Status = StatusCompleted
		run.Report = report
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("run %s failed: %v", run.ID, err)
		return
	}
	if s.archive == nil {
		return
	}
	rec := store.ReportRecord{
		RunID:             run.ID,
		Query:             run.Query,
		ShortSummary:      report.ShortSummary,
		Outline:           report.Outline,
		MarkdownReport:    report.MarkdownReport,
		Limitations:       report.Limitations,
		FollowUpQuestions: report.FollowUpQuestions,
		CreatedAt:         time.Now(),
	}
	if err := s.archive.SaveReport(context.Background(), rec); err != nil {
		s.logger.Printf("archiving run %s failed: %v", run.ID, err)
	}
}

type runResponse struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Status    string          `json:"status"`
	Progress  []progress.Item `json:"progress"`
	Report    *core.Report    `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) runResponse(run *Run) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Query:     run.Query,
		Status:    run.Status,
		Progress:  run.Board.Snapshot(),
		Error:     run.Err,
		CreatedAt: run.CreatedAt,
	}
	if run.Status == StatusCompleted {
		report := run.Report
		resp.Report = &report
	}
	return resp
}

func (s *Server) getRun(c echo.Context) error {
	s.mu.RLock()
	run, ok := s.runs[c.Param("id")]
	var resp runResponse
	if ok {
		resp = s.runResponse(run)
	}
	s.mu.RUnlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listRuns(c echo.Context) error {
	s.mu.RLock()
	out := make([]runResponse, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, s.runResponse(run))
	}
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listReports(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report archive not configured")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := s.archive.ListReports(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) getReport(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report archive not configured")
	}
	rec, err := s.archive.GetReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == store.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
