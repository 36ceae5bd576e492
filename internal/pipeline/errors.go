package pipeline

import "github.com/rotisserie/eris"

var (
	// ErrSourceUnavailable marks a query source that failed or timed out. It
	// is logged and never fails the job.
	ErrSourceUnavailable = eris.New("pipeline: source unavailable")

	// ErrExtractionDegraded is logged when entity extraction produced nothing
	// usable. The job continues with empty entity lists.
	ErrExtractionDegraded = eris.New("pipeline: entity extraction degraded")

	// ErrEnrichmentFailed fails the job when the generative provider errors,
	// times out or returns no JSON object.
	ErrEnrichmentFailed = eris.New("pipeline: enrichment failed")
)
