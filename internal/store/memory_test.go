package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/osint-investigator/internal/model"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Create(ctx, newJob("a", model.JobStatusRunning)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Percentage = 90

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Percentage)
}
