package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DefensEye/cmmc12/analysis"
	"github.com/DefensEye/cmmc12/api"
	"github.com/DefensEye/cmmc12/chatbot"
	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/distributor/factory"
	"github.com/DefensEye/cmmc12/finding"
	"github.com/DefensEye/cmmc12/history"
	"github.com/DefensEye/cmmc12/internal/metrics"
	"github.com/DefensEye/cmmc12/internal/middleware"
	"github.com/DefensEye/cmmc12/source"
)

// ErrNoFindings is returned when no source produced any findings.
var ErrNoFindings = errors.New("no security findings available for analysis")

// Response messages.
const (
	msgNoFindings       = "No security findings available for analysis"
	msgNoFindingsDetail = "Please ensure security findings are loaded in the database or provide valid CSV data."
	msgInternal         = "Internal server error"
	msgInvalidBody      = "Invalid request body"
	msgMessageRequired  = "Message is required"
	msgNoDatabase       = "Database client not initialized"
	msgFetchFailed      = "Failed to fetch security findings"
	msgHistoryDisabled  = "Analysis history is not enabled"
	msgAnalysisNotFound = "Analysis not found"
)

// Service struct to hold dependencies if needed
type Service struct {
	chain     *source.Chain
	composer  *analysis.Composer
	responder chatbot.Responder
	history   *history.Store
	observer  *metrics.AnalysisObserver
	document  *openapi3.T
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithHistory stores every successful analysis in h.
func WithHistory(h *history.Store) Option {
	return func(s *Service) { s.history = h }
}

// WithObserver records analysis metrics through o.
func WithObserver(o *metrics.AnalysisObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithDocument serves doc from GET /api/openapi.json.
func WithDocument(doc *openapi3.T) Option {
	return func(s *Service) { s.document = doc }
}

// NewService initializes a new Service instance.
func NewService(chain *source.Chain, composer *analysis.Composer, responder chatbot.Responder, opts ...Option) *Service {
	if responder == nil {
		responder = chatbot.NewCanned()
	}
	s := &Service{
		chain:     chain,
		composer:  composer,
		responder: responder,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ api.ServerInterface = (*Service)(nil)

// Result is a finished analysis.
type Result struct {
	Report   analysis.Report
	Source   string
	Findings int
}

// Analyze collects findings, falling back to payload, and composes a
// report with the distributor named by mode. An empty mode uses the
// composer's default. It returns ErrNoFindings when nothing was collected.
func (s *Service) Analyze(ctx context.Context, payload string, mode distributor.ID) (Result, error) {
	logger := slog.Default().With(slog.String("request_id", middleware.RequestIDFromContext(ctx)))

	records, name, err := s.chain.Collect(ctx, payload)
	if err != nil {
		logger.DebugContext(ctx, "no database findings", slog.Any("error", err))
	}
	if len(records) == 0 {
		s.failed(ctx, metrics.OutcomeNoInput)
		return Result{}, ErrNoFindings
	}

	d := s.composer.Distributor()
	if mode != "" {
		d = factory.DistributorByID(mode)
	}

	findings := finding.NormalizeAll(records)
	report, err := s.composer.ComposeWith(d, findings)
	if err != nil {
		s.failed(ctx, metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("composing report: %w", err)
	}

	if s.observer != nil {
		s.observer.Analyzed(ctx, len(findings),
			attribute.String(metrics.AttrSource, name),
			attribute.String(metrics.AttrMode, string(d.PluginName())),
		)
	}
	logger.InfoContext(ctx, "analysis complete",
		slog.String("source", name),
		slog.Int("findings", len(findings)),
		slog.Int("overall_score", report.OverallScore),
	)

	if s.history != nil {
		_, err := s.history.Save(ctx, history.Record{
			Source:       name,
			FindingCount: len(findings),
			OverallScore: report.OverallScore,
			Summary:      report.Summary,
			Report:       &report,
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to store analysis", slog.Any("error", err))
		}
	}

	return Result{Report: report, Source: name, Findings: len(findings)}, nil
}

// PostAnalyzeRag handles the POST /api/analyze-rag endpoint.
func (s *Service) PostAnalyzeRag(c *gin.Context, params api.PostAnalyzeRagParams) {
	ctx := c.Request.Context()

	var req api.AnalyzeRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.failed(ctx, metrics.OutcomeMalformed)
		sendError(c, http.StatusBadRequest, msgInvalidBody, err.Error())
		return
	}

	var mode distributor.ID
	if params.Mode != nil {
		mode = distributor.ID(*params.Mode)
	}

	result, err := s.Analyze(ctx, req.SecurityDataCsv, mode)
	switch {
	case errors.Is(err, ErrNoFindings):
		sendError(c, http.StatusBadRequest, msgNoFindings, msgNoFindingsDetail)
		return
	case err != nil:
		middleware.Logger(c).ErrorContext(ctx, "analysis failed", slog.Any("error", err))
		sendError(c, http.StatusInternalServerError, msgInternal, err.Error())
		return
	}

	c.JSON(http.StatusOK, result.Report)
}

// PostChatbot handles the POST /api/chatbot endpoint.
func (s *Service) PostChatbot(c *gin.Context) {
	var req api.ChatRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil || req.Message == "" {
		sendError(c, http.StatusBadRequest, msgMessageRequired, "")
		return
	}

	answer, err := s.responder.Respond(c.Request.Context(), req.Message)
	if err != nil {
		middleware.Logger(c).ErrorContext(c.Request.Context(), "chatbot failed", slog.Any("error", err))
		sendError(c, http.StatusInternalServerError, msgInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, api.ChatResponse{Answer: answer})
}

// GetSecurityFindings handles the GET /api/security-findings endpoint.
func (s *Service) GetSecurityFindings(c *gin.Context) {
	records, _, err := s.chain.Collect(c.Request.Context(), "")
	switch {
	case errors.Is(err, source.ErrNotConfigured):
		sendError(c, http.StatusInternalServerError, msgNoDatabase, "")
		return
	case err != nil:
		middleware.Logger(c).ErrorContext(c.Request.Context(), "fetching findings failed", slog.Any("error", err))
		sendError(c, http.StatusInternalServerError, msgFetchFailed, err.Error())
		return
	}
	c.JSON(http.StatusOK, finding.NormalizeAll(records))
}

// GetAnalyses handles the GET /api/analyses endpoint.
func (s *Service) GetAnalyses(c *gin.Context, params api.GetAnalysesParams) {
	if s.history == nil {
		sendError(c, http.StatusServiceUnavailable, msgHistoryDisabled, "")
		return
	}

	limit := 0
	if params.Limit != nil {
		limit = *params.Limit
	}
	records, err := s.history.List(limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, msgInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetAnalysis handles the GET /api/analyses/{id} endpoint.
func (s *Service) GetAnalysis(c *gin.Context, id string) {
	if s.history == nil {
		sendError(c, http.StatusServiceUnavailable, msgHistoryDisabled, "")
		return
	}

	rec, err := s.history.Get(id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		sendError(c, http.StatusNotFound, msgAnalysisNotFound, id)
		return
	case err != nil:
		sendError(c, http.StatusInternalServerError, msgInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetOpenAPI handles the GET /api/openapi.json endpoint.
func (s *Service) GetOpenAPI(c *gin.Context) {
	if s.document == nil {
		sendError(c, http.StatusNotFound, "OpenAPI document not loaded", "")
		return
	}
	c.JSON(http.StatusOK, s.document)
}

// HandleParamError sends parameter binding failures in the Error format.
func HandleParamError(c *gin.Context, err error, code int) {
	sendError(c, code, http.StatusText(code), err.Error())
}

// Recover converts a panic into a 500 in the Error format.
func Recover(c *gin.Context, recovered any) {
	detail := "unexpected failure"
	if err, ok := recovered.(error); ok {
		detail = err.Error()
	} else if msg, ok := recovered.(string); ok {
		detail = msg
	}
	middleware.Logger(c).ErrorContext(c.Request.Context(), "panic recovered", slog.String("detail", detail))
	sendError(c, http.StatusInternalServerError, msgInternal, detail)
}

func (s *Service) failed(ctx context.Context, outcome string) {
	if s.observer != nil {
		s.observer.Failed(ctx, outcome)
	}
}

// sendError wraps sending of an error in the Error format.
func sendError(c *gin.Context, code int, message, detail string) {
	c.AbortWithStatusJSON(code, api.Error{
		Error:  message,
		Detail: detail,
	})
}
