// Package store persists search jobs. Drivers share one contract so the job
// manager can run against memory, SQLite, Postgres or Redis.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/model"
)

// ErrExists is returned by Create for a duplicate job id.
var ErrExists = eris.New("store: job already exists")

// UpdateFunc mutates a job in place. Returning an error aborts the update
// and leaves the stored job unchanged.
type UpdateFunc func(job *model.SearchJob) error

// Store is the job persistence contract. Get and Update return
// model.ErrNotFound for unknown ids. Update is an atomic read-modify-write.
type Store interface {
	Create(ctx context.Context, job *model.SearchJob) error
	Get(ctx context.Context, id string) (*model.SearchJob, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.SearchJob, error)
	Delete(ctx context.Context, id string) error
	// DeleteFinishedBefore removes terminal jobs completed before cutoff and
	// returns how many were removed.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountByStatus(ctx context.Context, status model.JobStatus) (int, error)
	Close() error
}

// Open creates the driver selected by jobs.store and prepares its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Jobs.Store {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	case "redis":
		return NewRedis(ctx, RedisOptions{
			Addr:      cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			Retention: cfg.Jobs.Retention(),
		})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Jobs.Store)
	}
}

// notFound wraps model.ErrNotFound with the job id.
func notFound(id string) error {
	return eris.Wrapf(model.ErrNotFound, "job %s", id)
}

func completedAt(job *model.SearchJob) *time.Time {
	if job.CompletedAt == nil || !job.Status.Terminal() {
		return nil
	}
	t := job.CompletedAt.UTC()
	return &t
}
