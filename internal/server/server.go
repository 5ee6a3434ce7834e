// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes search and retrieval over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/internal/search"
	"github.com/pdiddy/source-retriever/internal/workflow"
	"github.com/pdiddy/source-retriever/pkg/types"
)

const (
	defaultCount     = 10
	maxCount         = 50
	connectivityShow = 4

	// DefaultProbeQuery is searched by /api/connectivity when no q is given.
	DefaultProbeQuery = "人工智能发展趋势"
)

// Retriever runs a retrieval. *workflow.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, oracle workflow.Oracle) workflow.Outcome
}

// Server wires the HTTP routes to the search and retrieval services.
type Server struct {
	Aggregator *search.Aggregator
	Retriever  Retriever
	Oracle     workflow.Oracle
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SearchResponse is the body returned by POST /api/search.
type SearchResponse struct {
	Results           []types.CandidateResult `json:"results"`
	DuplicatesRemoved int                     `json:"duplicates_removed"`
	PerBackend        map[string]int          `json:"per_backend"`
	Errors            []string                `json:"errors,omitempty"`
}

// RetrieveRequest is the body of POST /api/retrieve.
type RetrieveRequest struct {
	Queries []string `json:"queries"`
}

// ConnectivityResponse is the body returned by GET /api/connectivity.
type ConnectivityResponse struct {
	Status  string                  `json:"status"`
	Query   string                  `json:"query"`
	Summary map[string]int          `json:"summary"`
	Results []types.CandidateResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Echo builds the router.
func (s *Server) Echo() *echo.Echo {
	logger := logging.OrNop(s.Logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Error("request_failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request_completed", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	e.POST("/api/search", s.handleSearch)
	e.POST("/api/retrieve", s.handleRetrieve)
	e.GET("/api/connectivity", s.handleConnectivity)
	if s.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	e := s.Echo()
	logger := logging.OrNop(s.Logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
	}
	if req.Count <= 0 {
		req.Count = defaultCount
	}
	req.Count = min(req.Count, maxCount)

	agg := *s.Aggregator
	agg.Count = req.Count
	report := agg.SearchReport(c.Request().Context(), req.Query)

	resp := SearchResponse{
		Results:           report.Results,
		DuplicatesRemoved: report.DupsRemoved,
		PerBackend:        report.PerBackend,
	}
	if report.Err != nil {
		resp.Errors = splitErrors(report.Err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	queries := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "at least one query is required"})
	}
	out := s.Retriever.Retrieve(c.Request().Context(), queries, s.Oracle)
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleConnectivity(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		query = DefaultProbeQuery
	}
	report := s.Aggregator.SearchReport(c.Request().Context(), query)

	summary := map[string]int{"total": len(report.Results)}
	for _, r := range report.Results {
		summary[string(r.Source)]++
	}
	status := "success"
	if len(report.Results) == 0 && report.Err != nil {
		status = "error"
	}
	return c.JSON(http.StatusOK, ConnectivityResponse{
		Status:  status,
		Query:   query,
		Summary: summary,
		Results: report.Results[:min(connectivityShow, len(report.Results))],
	})
}

// splitErrors flattens a multierror into its messages.
func splitErrors(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		msgs := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
