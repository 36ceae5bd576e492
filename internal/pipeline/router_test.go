package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/resilience"
)

var testReq = model.SearchRequest{Name: "Jane Doe", City: "Austin", ExtraTerms: "CFO"}

func TestRouterDispatch_PriorityOrder(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, "Jane Doe Austin CFO", model.SourceGeneral, 5).
		Return([]model.RawHit{hit("", "g1", "", "https://g/1"), hit("", "g2", "", "https://g/2")}, nil)
	s.On("Search", mock.Anything, "site:linkedin.com/in Jane Doe Austin CFO", model.SourceProfessional, 5).
		Return([]model.RawHit{hit("", "l1", "", "https://l/1")}, nil)

	sources := []Source{
		{Category: model.SourceGeneral, Template: "{name} {city} {terms}", Limit: 5},
		{Category: model.SourceProfessional, Template: "site:linkedin.com/in {name} {city} {terms}", Limit: 5},
	}
	r := NewRouter(s, sources)

	res := r.Dispatch(context.Background(), testReq, nil)

	require.Len(t, res.Hits, 3)
	assert.Equal(t, "l1", res.Hits[0].Title)
	assert.Equal(t, model.SourceProfessional, res.Hits[0].SourceCategory)
	assert.Equal(t, "g1", res.Hits[1].Title)
	assert.Equal(t, "g2", res.Hits[2].Title)
	assert.Equal(t, model.SourceGeneral, res.Hits[2].SourceCategory)
	assert.Equal(t, 2, res.Queried)
	assert.Equal(t, 0, res.Failed)
	s.AssertExpectations(t)
}

func TestRouterDispatch_FailingSourceIsSkipped(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, model.SourceGeneral, mock.Anything).
		Return([]model.RawHit{hit("", "g1", "", "https://g/1")}, nil)
	s.On("Search", mock.Anything, mock.Anything, model.SourceNewsLegal, mock.Anything).
		Return(nil, errors.New("boom"))

	sources := []Source{
		{Category: model.SourceNewsLegal, Template: "{name}", Limit: 5},
		{Category: model.SourceGeneral, Template: "{name}", Limit: 5},
	}

	var mu sync.Mutex
	var calls []int
	res := NewRouter(s, sources).Dispatch(context.Background(), testReq, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, total)
		calls = append(calls, done)
	})

	require.Len(t, res.Hits, 1)
	assert.Equal(t, 2, res.Queried)
	assert.Equal(t, 1, res.Failed)
	assert.ElementsMatch(t, []int{1, 2}, calls)
}

func TestRouterDispatch_AllFail(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	res := NewRouter(s, DefaultSources()).Dispatch(context.Background(), testReq, nil)

	assert.Empty(t, res.Hits)
	assert.Equal(t, 7, res.Queried)
	assert.Equal(t, 7, res.Failed)
}

func TestRouterDispatch_Timeout(t *testing.T) {
	slow := searcherFunc(func(ctx context.Context, _ string, _ model.SourceCategory, _ int) ([]model.RawHit, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	sources := []Source{{Category: model.SourceGeneral, Template: "{name}", Limit: 5}}

	start := time.Now()
	res := NewRouter(slow, sources, WithSearchTimeout(20*time.Millisecond)).
		Dispatch(context.Background(), testReq, nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, res.Failed)
}

func TestRouterDispatch_BreakerOpens(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, model.SourceGeneral, mock.Anything).Return(nil, errors.New("down"))

	guard := &resilience.Guard{
		Breakers: resilience.NewBreakers(resilience.BreakerSettings{FailureThreshold: 1, ResetTimeout: time.Hour}),
	}
	sources := []Source{{Category: model.SourceGeneral, Template: "{name}", Limit: 5}}
	r := NewRouter(s, sources, WithGuard(guard))

	first := r.Dispatch(context.Background(), testReq, nil)
	second := r.Dispatch(context.Background(), testReq, nil)

	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 1, second.Failed)
	s.AssertNumberOfCalls(t, "Search", 1)
	assert.Equal(t, resilience.Open, guard.Breakers.States()["general"])
}

func TestRouterDispatch_RetriesTransientFailures(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, model.SourceGeneral, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("429"), 429)).Once()
	s.On("Search", mock.Anything, mock.Anything, model.SourceGeneral, mock.Anything).
		Return([]model.RawHit{hit("", "g1", "", "https://g/1")}, nil).Once()

	guard := &resilience.Guard{Policy: resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}}
	sources := []Source{{Category: model.SourceGeneral, Template: "{name}", Limit: 5}}

	res := NewRouter(s, sources, WithGuard(guard), WithLimiter(rate.NewLimiter(rate.Inf, 1))).
		Dispatch(context.Background(), testReq, nil)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, 0, res.Failed)
	s.AssertNumberOfCalls(t, "Search", 2)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://WWW.Example.com/a"))
	assert.Equal(t, "", hostOf("::bad"))
}
