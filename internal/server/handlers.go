package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/report"
)

// Client-facing messages.
const (
	msgBodyNotJSON       = "Request body must be JSON."
	msgTooManySearches   = "Too many concurrent searches. Please wait and try again."
	msgSearchNotFound    = "Search ID not found. It may have expired."
	msgMissingProfile    = "Missing personData in request body."
	msgReportNotFound    = "Report file not found."
	msgReportGenerated   = "Report generated successfully."
	msgInternalError     = "Internal server error."
	msgUnsupportedFormat = "Unsupported report format."
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "online",
		"service": "OSINT Investigator API",
		"version": Version,
		"endpoints": map[string]string{
			"POST /osint":                     "Start an OSINT search",
			"GET /progress/{id}":              "Poll search progress",
			"POST /generate-report":           "Generate a report",
			"GET /download-report/{filename}": "Download a generated report",
			"GET /health":                     "Health check",
			"GET /metrics":                    "Prometheus metrics",
		},
	})
}

type healthResponse struct {
	Status         string                  `json:"status"`
	Version        string                  `json:"version"`
	ActiveSearches int                     `json:"active_searches"`
	Jobs           map[model.JobStatus]int `json:"jobs"`
	Timestamp      time.Time               `json:"timestamp"`
	Readiness
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: s.now().UTC(),
		Readiness: s.readiness,
	}
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		zap.L().Warn("server: job stats", zap.Error(err))
		resp.Status = "degraded"
	} else {
		resp.Jobs = stats
		resp.ActiveSearches = stats[model.JobStatusRunning]
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.jobs.StartJob(r.Context(), req)
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  validationMessage(verr),
			"fields": verr.Fields,
		})
		return
	case errors.Is(err, model.ErrTooManyJobs):
		errorResponse(w, http.StatusTooManyRequests, msgTooManySearches)
		return
	case err != nil:
		zap.L().Error("server: start search", zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	name := req.Normalize().Name
	jsonResponse(w, http.StatusOK, map[string]string{
		"searchId": id,
		"message":  fmt.Sprintf("Search initiated for '%s'. Poll /progress/%s for updates.", name, id),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.jobs.GetProgress(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, msgSearchNotFound)
		return
	}
	if err != nil {
		zap.L().Error("server: get progress", zap.String("job_id", id), zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

type reportRequest struct {
	PersonData *model.PersonProfile `json:"personData"`
	Format     string               `json:"format,omitempty"`
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PersonData == nil {
		errorResponse(w, http.StatusBadRequest, msgMissingProfile)
		return
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, msgUnsupportedFormat)
		return
	}

	art, err := s.reports.BuildAs(r.Context(), req.PersonData, format)
	if err != nil {
		zap.L().Error("server: generate report", zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "Failed to generate report.")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"reportPath": art.Path,
		"filename":   art.Filename,
		"message":    msgReportGenerated,
	})
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := s.reports.Open(name)
	if errors.Is(err, report.ErrNotFound) || errors.Is(err, report.ErrInvalidName) {
		errorResponse(w, http.StatusNotFound, msgReportNotFound)
		return
	}
	if err != nil {
		zap.L().Error("server: open report", zap.String("filename", name), zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// decodeBody reads a JSON object into dst, writing the 400 response itself
// when the body is missing or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) {
			zap.L().Debug("server: decode body", zap.Error(err))
		}
		errorResponse(w, http.StatusBadRequest, msgBodyNotJSON)
		return false
	}
	return true
}

// validationMessage renders the first field error as a sentence, e.g.
// "Name is a required field."
func validationMessage(verr *model.ValidationError) string {
	if len(verr.Fields) == 0 {
		return verr.Error()
	}
	f := verr.Fields[0]
	return capitalize(f.Field) + " " + strings.TrimSuffix(f.Message, ".") + "."
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
