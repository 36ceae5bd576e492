package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned for an unknown or expired job id.
	ErrNotFound = eris.New("job not found")

	// ErrTooManyJobs is returned when the running-job limit has been reached.
	ErrTooManyJobs = eris.New("too many concurrent searches")
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a SearchRequest is rejected before a job
// is created.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
