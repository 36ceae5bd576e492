// Package resilience guards calls to external search and generation
// providers with per-source circuit breakers and an optional retry policy.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/config"
)

// State is the position of a circuit breaker.
type State int

const (
	// Closed lets calls through.
	Closed State = iota
	// Open rejects calls until the reset timeout passes.
	Open
	// HalfOpen lets one trial call through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned when a breaker rejects a call without running it.
var ErrOpen = eris.New("resilience: circuit open")

// BreakerSettings tune a Breaker.
type BreakerSettings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// OnChange observes state transitions. It runs with the breaker locked.
	OnChange func(name string, from, to State)
}

// SettingsFromConfig builds breaker settings from the search config.
func SettingsFromConfig(cfg config.CircuitConfig) BreakerSettings {
	return BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.ResetTimeoutSecs) * time.Second,
	}
}

// Breaker trips after FailureThreshold consecutive failures. Context
// cancellation by the caller never counts as a failure.
type Breaker struct {
	name     string
	settings BreakerSettings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, s BreakerSettings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = time.Minute
	}
	return &Breaker{name: name, settings: s, now: time.Now}
}

// State reports the current state, accounting for an expired open period.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		b.setState(HalfOpen)
		return nil
	}
	return eris.Wrapf(ErrOpen, "source %s", b.name)
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != Closed {
			b.setState(Closed)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	b.failures++
	switch {
	case b.state == HalfOpen:
		b.openedAt = b.now()
		b.setState(Open)
	case b.state == Closed && b.failures >= b.settings.FailureThreshold:
		b.openedAt = b.now()
		b.setState(Open)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: breaker state change",
		zap.String("source", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if b.settings.OnChange != nil {
		b.settings.OnChange(b.name, from, to)
	}
}

// Call runs fn through the breaker.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(ctx, err)
	return val, err
}

// Breakers is a lazily populated registry of named breakers sharing one set
// of settings. Breakers outlive individual jobs so a failing provider stays
// tripped across searches.
type Breakers struct {
	settings BreakerSettings

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(s BreakerSettings) *Breakers {
	return &Breakers{settings: s, m: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it on first use.
func (r *Breakers) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[name]
	if !ok {
		b = NewBreaker(name, r.settings)
		r.m[name] = b
	}
	return b
}

// States snapshots every known breaker.
func (r *Breakers) States() map[string]State {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.m))
	for _, b := range r.m {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(list))
	for _, b := range list {
		out[b.name] = b.State()
	}
	return out
}

// Guard pairs a breaker registry with a retry policy. Retries run inside the
// breaker so one exhausted attempt sequence counts as a single failure.
type Guard struct {
	Breakers *Breakers
	Policy   Policy
}

// Run executes fn for the named source under the breaker and retry policy.
func Run[T any](ctx context.Context, g *Guard, source string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	p := g.Policy
	if p.OnRetry == nil {
		p.OnRetry = LogRetries(source, "search")
	}
	call := func(ctx context.Context) (T, error) { return Do(ctx, p, fn) }
	if g.Breakers == nil {
		return call(ctx)
	}
	return Call(ctx, g.Breakers.Get(source), call)
}
