package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   JobStatus
		want     string
		terminal bool
	}{
		{JobStatusIdle, "idle", false},
		{JobStatusRunning, "running", false},
		{JobStatusCompleted, "completed", true},
		{JobStatusError, "error", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, SearchRequest{Name: "Jane Doe"}.Validate())

	err := SearchRequest{Name: ""}.Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "name", ve.Fields[0].Field)
	assert.Contains(t, err.Error(), "required")

	err = SearchRequest{Name: strings.Repeat("a", MaxNameLength+1)}.Validate()
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields[0].Message, "too long")
}

func TestSearchRequest_Normalize(t *testing.T) {
	t.Parallel()

	req := SearchRequest{Name: "  Jane   Doe ", City: " Austin ", ExtraTerms: " CFO, "}.Normalize()
	assert.Equal(t, "Jane Doe", req.Name)
	assert.Equal(t, "Austin", req.City)
	assert.Equal(t, "CFO,", req.ExtraTerms)

	blank := SearchRequest{Name: "   "}.Normalize()
	assert.Error(t, blank.Validate())
}

func TestSearchRequest_Terms(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"CFO", "board member"}, SearchRequest{ExtraTerms: "CFO, , board member ,"}.Terms())
	assert.Empty(t, SearchRequest{}.Terms())
}

func TestSearchJob_Snapshot(t *testing.T) {
	t.Parallel()

	profile := &PersonProfile{Name: "Jane Doe"}
	done := time.Now()

	running := SearchJob{ID: "j1", Status: JobStatusRunning, Percentage: 40, Result: profile, ErrorMessage: "stale"}
	snap := running.Snapshot()
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 40, snap.Percentage)

	completed := SearchJob{ID: "j1", Status: JobStatusCompleted, Percentage: 100, Result: profile, CompletedAt: &done}
	snap = completed.Snapshot()
	assert.Same(t, profile, snap.Result)
	assert.Empty(t, snap.Error)

	failed := SearchJob{ID: "j1", Status: JobStatusError, Result: profile}
	snap = failed.Snapshot()
	assert.Nil(t, snap.Result)
	assert.Equal(t, "Unknown error", snap.Error)
}

func TestRawHit_Text(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Title. Snippet", RawHit{Title: "Title", Snippet: "Snippet"}.Text())
	assert.Equal(t, "Title", RawHit{Title: "Title"}.Text())
	assert.Equal(t, "Snippet", RawHit{Snippet: "Snippet"}.Text())
}

func TestSourceCategory_Label(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LinkedIn", SourceProfessional.Label())
	assert.Equal(t, "Case/News", SourceNewsLegal.Label())
	assert.Equal(t, "custom", SourceCategory("custom").Label())
}
