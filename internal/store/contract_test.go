package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/osint-investigator/internal/model"
)

func newJob(id string, status model.JobStatus) *model.SearchJob {
	return &model.SearchJob{
		ID:        id,
		Status:    status,
		Stage:     "Initializing...",
		Request:   model.SearchRequest{Name: "Jane Doe", City: "Austin"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func finish(status model.JobStatus, at time.Time) UpdateFunc {
	return func(j *model.SearchJob) error {
		j.Status = status
		j.CompletedAt = &at
		return nil
	}
}

// runStoreContract exercises the behavior every driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusIdle)))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", got.Request.Name)
		assert.Equal(t, model.JobStatusIdle, got.Status)

		assert.ErrorIs(t, s.Create(ctx, newJob("a", model.JobStatusIdle)), ErrExists)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = s.Update(ctx, "missing", func(*model.SearchJob) error { return nil })
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusIdle)))

		got, err := s.Update(ctx, "a", func(j *model.SearchJob) error {
			j.Status = model.JobStatusRunning
			j.Percentage = 40
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 40, got.Percentage)

		stored, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, stored.Status)
		assert.Equal(t, 40, stored.Percentage)
	})

	t.Run("update aborted by fn", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusRunning)))

		boom := errors.New("boom")
		_, err := s.Update(ctx, "a", func(j *model.SearchJob) error {
			j.Percentage = 99
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 0, stored.Percentage)
	})

	t.Run("concurrent updates are atomic", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusRunning)))

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, "a", func(j *model.SearchJob) error {
					j.Percentage++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		stored, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 10, stored.Percentage)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusIdle)))
		require.NoError(t, s.Delete(ctx, "a"))
		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "a"))
	})

	t.Run("delete finished before", func(t *testing.T) {
		s := newStore(t)
		cutoff := time.Now().UTC()
		for _, id := range []string{"old-done", "old-err", "new-done", "running"} {
			require.NoError(t, s.Create(ctx, newJob(id, model.JobStatusRunning)))
		}
		_, err := s.Update(ctx, "old-done", finish(model.JobStatusCompleted, cutoff.Add(-time.Minute)))
		require.NoError(t, err)
		_, err = s.Update(ctx, "old-err", finish(model.JobStatusError, cutoff.Add(-time.Second)))
		require.NoError(t, err)
		_, err = s.Update(ctx, "new-done", finish(model.JobStatusCompleted, cutoff.Add(time.Minute)))
		require.NoError(t, err)

		n, err := s.DeleteFinishedBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.Get(ctx, "old-done")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = s.Get(ctx, "new-done")
		assert.NoError(t, err)
		_, err = s.Get(ctx, "running")
		assert.NoError(t, err)
	})

	t.Run("count by status", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusRunning)))
		require.NoError(t, s.Create(ctx, newJob("b", model.JobStatusRunning)))
		require.NoError(t, s.Create(ctx, newJob("c", model.JobStatusIdle)))

		n, err := s.CountByStatus(ctx, model.JobStatusRunning)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountByStatus(ctx, model.JobStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
