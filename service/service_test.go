package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/DefensEye/cmmc12/analysis"
	"github.com/DefensEye/cmmc12/api"
	"github.com/DefensEye/cmmc12/chatbot"
	"github.com/DefensEye/cmmc12/finding"
	"github.com/DefensEye/cmmc12/history"
	"github.com/DefensEye/cmmc12/internal/metrics"
	"github.com/DefensEye/cmmc12/internal/middleware"
	"github.com/DefensEye/cmmc12/source"
)

const sampleCSV = `id,category,resource,severity,state,description,cmmc_domain
f-1,OPEN_FIREWALL,vm-1,CRITICAL,ACTIVE,Port 22 open,AC
f-2,OPEN_FIREWALL,vm-2,CRITICAL,ACTIVE,Port 3389 open,SC
f-3,WEAK_PASSWORD,iam,HIGH,ACTIVE,Weak policy,IA
f-4,WEAK_PASSWORD,iam,HIGH,ACTIVE,Weak policy,IA
f-5,LOGGING,bucket,HIGH,ACTIVE,No audit log,AU
f-6,CONFIG,vm-3,MEDIUM,ACTIVE,Drift,CM
f-7,CONFIG,vm-4,MEDIUM,ACTIVE,Drift,CM
f-8,CONFIG,vm-5,MEDIUM,ACTIVE,Drift,CM
f-9,INFO,vm-6,LOW,ACTIVE,Banner,SC
f-10,INFO,vm-7,LOW,ACTIVE,Banner,AC`

var fixedNow = func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) }

type testDeps struct {
	primary   source.Source
	alternate source.Source
	history   *history.Store
	responder chatbot.Responder
}

func newTestService(t *testing.T, deps testDeps) *Service {
	t.Helper()
	fixture, err := analysis.DefaultFixture()
	require.NoError(t, err)
	observer, err := metrics.NewAnalysisObserver(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	doc, err := api.LoadDocument(context.Background())
	require.NoError(t, err)

	chain := &source.Chain{
		Primary:   deps.primary,
		Alternate: deps.alternate,
		Parser:    finding.NewParser(finding.WithClock(fixedNow)),
		Observer:  observer,
	}
	opts := []Option{WithObserver(observer), WithDocument(doc)}
	if deps.history != nil {
		opts = append(opts, WithHistory(deps.history))
	}
	return NewService(chain, analysis.NewComposer(fixture, analysis.WithClock(fixedNow)), deps.responder, opts...)
}

func newTestRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), gin.CustomRecovery(Recover))
	api.RegisterHandlersWithOptions(r, s, api.GinServerOptions{ErrorHandler: HandleParamError})
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func csvBody(t *testing.T, csv string) string {
	t.Helper()
	b, err := json.Marshal(api.AnalyzeRequest{SecurityDataCsv: csv})
	require.NoError(t, err)
	return string(b)
}

func postgrestServer(t *testing.T, tableStatus int, tableBody, rpcBody string) *source.PostgREST {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/rest/v1/rpc/") {
			_, _ = w.Write([]byte(rpcBody))
			return
		}
		w.WriteHeader(tableStatus)
		_, _ = w.Write([]byte(tableBody))
	}))
	t.Cleanup(srv.Close)
	return source.NewPostgREST(srv.URL, "key", source.WithHTTPClient(srv.Client()))
}

func TestPostAnalyzeRag_FromCSV(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{}))

	w := do(t, r, http.MethodPost, "/api/analyze-rag", csvBody(t, sampleCSV))

	require.Equal(t, http.StatusOK, w.Code)
	var report analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 55, report.OverallScore)
	assert.Equal(t, 5, report.CompliantCount)
	assert.Equal(t, 2, report.PartialCount)
	assert.Equal(t, 3, report.NonCompliantCount)
	assert.Equal(t, "2025-06-30", report.AssessmentDate)
	assert.True(t, strings.HasPrefix(report.Summary, "Based on the analysis of 10 security findings, your system shows partial compliance"))
	require.Len(t, report.DomainDistribution, 5)
	assert.Equal(t, 1, report.DomainDistribution[0].CompliantCount)
	assert.Equal(t, 1, report.DomainDistribution[0].NonCompliantCount)
	assert.Len(t, report.NonCompliantControls, 14)
}

func TestPostAnalyzeRag_TaggedMode(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{}))

	w := do(t, r, http.MethodPost, "/api/analyze-rag?mode=tagged", csvBody(t, sampleCSV))

	require.Equal(t, http.StatusOK, w.Code)
	var report analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	// AC: one CRITICAL, one LOW. CM: three MEDIUM.
	assert.Equal(t, "AC", report.DomainDistribution[0].DomainID)
	assert.Equal(t, 1, report.DomainDistribution[0].NonCompliantCount)
	assert.Equal(t, 1, report.DomainDistribution[0].CompliantCount)
	assert.Equal(t, 3, report.DomainDistribution[2].PartialCount)
	assert.Equal(t, 2, report.DomainDistribution[3].NonCompliantCount)
	// Gaps come from the five CRITICAL and HIGH rows.
	require.Len(t, report.PriorityGaps, 5)
	assert.Equal(t, "f-1", report.PriorityGaps[0].ControlID)
	assert.Equal(t, "CRITICAL", report.PriorityGaps[0].Priority)
	assert.Equal(t, "Port 22 open", report.PriorityGaps[0].Recommendation)
}

func TestPostAnalyzeRag_NoFindings(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "empty object", body: "{}"},
		{name: "header only csv", body: `{"securityDataCsv":"id,severity"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(newTestService(t, testDeps{}))

			w := do(t, r, http.MethodPost, "/api/analyze-rag", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"No security findings available for analysis","detail":"Please ensure security findings are loaded in the database or provide valid CSV data."}`, w.Body.String())
		})
	}
}

func TestPostAnalyzeRag_InvalidBody(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{}))

	w := do(t, r, http.MethodPost, "/api/analyze-rag", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request body", body.Error)
}

func TestPostAnalyzeRag_DatabaseFirst(t *testing.T) {
	client := postgrestServer(t, http.StatusOK,
		`[{"finding_id": 1, "severity": "HIGH", "source_properties": "{\"summary_message\":{\"stringValue\":\"db\"}}"}]`, `[]`)
	s := newTestService(t, testDeps{
		primary:   client.Table(source.DefaultTable, source.DefaultOrderBy, source.DefaultLimit),
		alternate: client.RPC(source.DefaultFunction, source.DefaultLimit),
	})

	result, err := s.Analyze(context.Background(), sampleCSV, "")

	require.NoError(t, err)
	assert.Equal(t, source.NamePrimary, result.Source)
	assert.Equal(t, 1, result.Findings)
	assert.Equal(t, 85, result.Report.OverallScore)
}

func TestPostAnalyzeRag_AlternateOnPrimaryFailure(t *testing.T) {
	client := postgrestServer(t, http.StatusBadRequest, `{"message":"permission denied"}`,
		`[{"finding_id": "r-1", "severity": "LOW"}, {"finding_id": "r-2", "severity": "LOW"}]`)
	s := newTestService(t, testDeps{
		primary:   client.Table(source.DefaultTable, source.DefaultOrderBy, source.DefaultLimit),
		alternate: client.RPC(source.DefaultFunction, source.DefaultLimit),
	})

	result, err := s.Analyze(context.Background(), "", "")

	require.NoError(t, err)
	assert.Equal(t, source.NameAlternate, result.Source)
	assert.Equal(t, 2, result.Findings)
}

func TestPostAnalyzeRag_StoresHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	r := newTestRouter(newTestService(t, testDeps{history: store}))

	w := do(t, r, http.MethodPost, "/api/analyze-rag", csvBody(t, sampleCSV))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/analyses", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []history.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, source.NameText, list[0].Source)
	assert.Equal(t, 10, list[0].FindingCount)
	assert.Nil(t, list[0].Report)

	w = do(t, r, http.MethodGet, "/api/analyses/"+list[0].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec history.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.NotNil(t, rec.Report)
	assert.Equal(t, 55, rec.Report.OverallScore)

	w = do(t, r, http.MethodGet, "/api/analyses/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyses_HistoryDisabled(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{}))

	for _, path := range []string{"/api/analyses", "/api/analyses/01ABC"} {
		w := do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestPostChatbot(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "level 2 question",
			body:         `{"message":"What is Level 2?"}`,
			expectedCode: http.StatusOK,
			expectedBody: `{"answer":"` + chatbot.AnswerLevel2 + `"}`,
		},
		{
			name:         "greeting",
			body:         `{"message":"hello"}`,
			expectedCode: http.StatusOK,
			expectedBody: `{"answer":"` + chatbot.AnswerGreeting + `"}`,
		},
		{
			name:         "missing message",
			body:         `{}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Message is required"}`,
		},
		{
			name:         "no body",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Message is required"}`,
		},
	}

	r := newTestRouter(newTestService(t, testDeps{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/chatbot", tt.body)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestGetSecurityFindings(t *testing.T) {
	t.Run("no database configured", func(t *testing.T) {
		r := newTestRouter(newTestService(t, testDeps{}))

		w := do(t, r, http.MethodGet, "/api/security-findings", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Database client not initialized"}`, w.Body.String())
	})

	t.Run("normalized findings", func(t *testing.T) {
		client := postgrestServer(t, http.StatusOK, `[{"finding_id": "db-1", "severity": "HIGH"}]`, `[]`)
		s := newTestService(t, testDeps{primary: client.Table(source.DefaultTable, source.DefaultOrderBy, 0)})
		r := newTestRouter(s)

		w := do(t, r, http.MethodGet, "/api/security-findings", "")

		require.Equal(t, http.StatusOK, w.Code)
		var findings []finding.Finding
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &findings))
		require.Len(t, findings, 1)
		assert.Equal(t, "db-1", findings[0].ID)
		assert.Equal(t, "N/A", findings[0].Resource)
		assert.Equal(t, "No description available", findings[0].Description)
	})

	t.Run("database failure", func(t *testing.T) {
		client := postgrestServer(t, http.StatusInternalServerError, `oops`, `[]`)
		s := newTestService(t, testDeps{primary: client.Table(source.DefaultTable, source.DefaultOrderBy, 0)})
		r := newTestRouter(s)

		w := do(t, r, http.MethodGet, "/api/security-findings", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body api.Error
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Failed to fetch security findings", body.Error)
	})
}

func TestGetOpenAPI(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{}))

	w := do(t, r, http.MethodGet, "/api/openapi.json", "")

	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
}

type panickingResponder struct{}

func (panickingResponder) Respond(context.Context, string) (string, error) {
	panic("responder exploded")
}

func TestRecover(t *testing.T) {
	r := newTestRouter(newTestService(t, testDeps{responder: panickingResponder{}}))

	w := do(t, r, http.MethodPost, "/api/chatbot", `{"message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error","detail":"responder exploded"}`, w.Body.String())
}
