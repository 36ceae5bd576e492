package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/monitoring"
	"github.com/sells-group/osint-investigator/internal/report"
)

type mockJobs struct{ mock.Mock }

func (m *mockJobs) StartJob(ctx context.Context, req model.SearchRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockJobs) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Progress), args.Error(1)
}

func (m *mockJobs) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(map[model.JobStatus]int)
	return stats, args.Error(1)
}

type fixture struct {
	jobs    *mockJobs
	reports *report.FileBuilder
	srv     *Server
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jobs := &mockJobs{}
	t.Cleanup(func() { jobs.AssertExpectations(t) })

	reports, err := report.NewFileBuilder(config.ReportConfig{Dir: t.TempDir(), Format: "json"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv, err := New(Config{
		Jobs:      jobs,
		Reports:   reports,
		Readiness: Readiness{StoreDriver: "memory", SearchProvider: "google", NLPLoaded: true, GoogleKeys: 2},
		Gatherer:  reg,
	})
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return &fixture{jobs: jobs, reports: reports, srv: srv, reg: reg}
}

func (f *fixture) do(method, path string, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, r)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "jobs is required")

	_, err = New(Config{Jobs: &mockJobs{}})
	assert.ErrorContains(t, err, "reports is required")
}

func TestIndex(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "OSINT Investigator API", body["service"])
	assert.Equal(t, Version, body["version"])
	assert.Contains(t, body["endpoints"], "POST /osint")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("Stats", mock.Anything).Return(map[model.JobStatus]int{
		model.JobStatusRunning: 2, model.JobStatusCompleted: 4,
	}, nil)

	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	body := decode(t, rr)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(2), body["active_searches"])
	assert.Equal(t, "memory", body["store"])
	assert.Equal(t, true, body["nlp_loaded"])
	assert.Equal(t, float64(2), body["google_keys"])
	assert.Equal(t, "2024-01-02T03:04:05Z", body["timestamp"])
}

func TestHealth_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("Stats", mock.Anything).Return(nil, assert.AnError)

	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "degraded", decode(t, rr)["status"])
}

func TestStartSearch(t *testing.T) {
	f := newFixture(t)
	want := model.SearchRequest{Name: "  Jane   Doe ", City: "Austin", ExtraTerms: "CFO"}
	f.jobs.On("StartJob", mock.Anything, want).Return("job-1", nil)

	rr := f.do(http.MethodPost, "/osint", `{"name":"  Jane   Doe ","city":"Austin","extraTerms":"CFO"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "job-1", body["searchId"])
	assert.Equal(t, "Search initiated for 'Jane Doe'. Poll /progress/job-1 for updates.", body["message"])
}

func TestStartSearch_BadBody(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{"", "not json", `["list"]`} {
		rr := f.do(http.MethodPost, "/osint", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "Request body must be JSON.", decode(t, rr)["error"])
	}
	f.jobs.AssertNotCalled(t, "StartJob", mock.Anything, mock.Anything)
}

func TestStartSearch_Validation(t *testing.T) {
	f := newFixture(t)
	verr := &model.ValidationError{Fields: []model.FieldError{{Field: "name", Message: "is a required field"}}}
	f.jobs.On("StartJob", mock.Anything, mock.Anything).Return("", verr)

	rr := f.do(http.MethodPost, "/osint", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Name is a required field.", body["error"])
	assert.Len(t, body["fields"], 1)
}

func TestStartSearch_TooMany(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("StartJob", mock.Anything, mock.Anything).Return("", model.ErrTooManyJobs)

	rr := f.do(http.MethodPost, "/osint", `{"name":"Jane Doe"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many concurrent searches. Please wait and try again.", decode(t, rr)["error"])
}

func TestStartSearch_InternalError(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("StartJob", mock.Anything, mock.Anything).Return("", assert.AnError)

	rr := f.do(http.MethodPost, "/osint", `{"name":"Jane Doe"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("GetProgress", mock.Anything, "job-1").Return(model.Progress{
		ID: "job-1", Status: model.JobStatusRunning, Stage: "Extracting entities...", Percentage: 50,
	}, nil)

	rr := f.do(http.MethodGet, "/progress/job-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(50), body["percentage"])
	assert.Equal(t, "Extracting entities...", body["stage"])
	assert.NotContains(t, body, "result")
	assert.NotContains(t, body, "error")
}

func TestProgress_NotFound(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("GetProgress", mock.Anything, "nope").Return(model.Progress{}, model.ErrNotFound)

	rr := f.do(http.MethodGet, "/progress/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Search ID not found. It may have expired.", decode(t, rr)["error"])
}

func TestGenerateAndDownloadReport(t *testing.T) {
	f := newFixture(t)

	payload, err := json.Marshal(map[string]any{
		"personData": model.PersonProfile{Name: "Jane Doe", ShortSummary: "CFO at Acme."},
	})
	require.NoError(t, err)

	rr := f.do(http.MethodPost, "/generate-report", string(payload))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, "Report generated successfully.", body["message"])
	filename := body["filename"].(string)
	assert.True(t, strings.HasPrefix(filename, "Jane_Doe_report_"))
	assert.True(t, strings.HasSuffix(filename, ".json"))

	dl := f.do(http.MethodGet, "/download-report/"+filename, "")
	assert.Equal(t, http.StatusOK, dl.Code)
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, dl.Body.String(), `"executiveSummary": "CFO at Acme."`)
}

func TestGenerateReport_Format(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/generate-report", `{"personData":{"name":"Jane Doe"},"format":"yaml"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasSuffix(decode(t, rr)["filename"].(string), ".yaml"))

	rr = f.do(http.MethodPost, "/generate-report", `{"personData":{"name":"Jane Doe"},"format":"pdf"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGenerateReport_MissingProfile(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/generate-report", `{"other":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing personData in request body.", decode(t, rr)["error"])
}

func TestDownloadReport_NotFound(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/download-report/missing.json", "/download-report/..%2F..%2Fetc%2Fpasswd"} {
		rr := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	m := monitoring.New(f.reg)
	m.JobStarted()

	rr := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "osint_jobs_started_total 1")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodOptions, "/osint", bytes.NewReader(nil))
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, r)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidationMessage(t *testing.T) {
	assert.Equal(t, "Name is too long (max 200 characters).", validationMessage(&model.ValidationError{
		Fields: []model.FieldError{{Field: "name", Message: "is too long (max 200 characters)"}},
	}))
	assert.Equal(t, "validation failed: ", validationMessage(&model.ValidationError{}))
}
