package model

import "time"

// JobStatus represents the lifecycle state of a search job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// SearchJob is one investigation request and its asynchronous lifecycle.
type SearchJob struct {
	ID           string         `json:"id"`
	Status       JobStatus      `json:"status"`
	Stage        string         `json:"stage"`
	Percentage   int            `json:"percentage"`
	Request      SearchRequest  `json:"request"`
	Result       *PersonProfile `json:"result,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// Progress is the externally observable snapshot of a job.
type Progress struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Stage       string         `json:"stage"`
	Percentage  int            `json:"percentage"`
	Result      *PersonProfile `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Snapshot builds the poll view of a job. Result is only exposed once the job
// completed and the error only once it failed.
func (j SearchJob) Snapshot() Progress {
	p := Progress{
		ID:          j.ID,
		Status:      j.Status,
		Stage:       j.Stage,
		Percentage:  j.Percentage,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
	switch j.Status {
	case JobStatusCompleted:
		p.Result = j.Result
	case JobStatusError:
		p.Error = j.ErrorMessage
		if p.Error == "" {
			p.Error = "Unknown error"
		}
	}
	return p
}
