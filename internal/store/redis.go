package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/internal/model"
)

const (
	redisKeyPrefix = "osint:job:"
	redisTxRetries = 32
	redisScanBatch = 100
)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Retention is the key TTL given to terminal jobs. Zero keeps them until
	// DeleteFinishedBefore removes them.
	Retention time.Duration
}

// RedisStore implements Store with one JSON value per job key. Updates use
// optimistic WATCH/MULTI transactions.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return NewRedisWithClient(client, opts.Retention), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention, now: time.Now}
}

func jobKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Create(ctx context.Context, job *model.SearchJob) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "redis: marshal job")
	}
	ok, err := s.client.SetNX(ctx, jobKey(job.ID), doc, s.ttl(job)).Result()
	if err != nil {
		return eris.Wrapf(err, "redis: create job %s", job.ID)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.SearchJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get job %s", id)
	}
	return decodeJob(data)
}

// Update retries when another writer touches the key between read and
// write, so fn may run more than once.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.SearchJob, error) {
	key := jobKey(id)
	for range redisTxRetries {
		var out *model.SearchJob
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return notFound(id)
			}
			if err != nil {
				return eris.Wrapf(err, "redis: get job %s", id)
			}
			job, err := decodeJob(data)
			if err != nil {
				return err
			}
			if err := fn(job); err != nil {
				return err
			}
			job.ID = id

			doc, err := json.Marshal(job)
			if err != nil {
				return eris.Wrap(err, "redis: marshal job")
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, doc, s.ttl(job))
				return nil
			})
			out = job
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, eris.Errorf("redis: update job %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return eris.Wrapf(s.client.Del(ctx, jobKey(id)).Err(), "redis: delete job %s", id)
}

func (s *RedisStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := s.scanJobs(ctx, func(job *model.SearchJob) error {
		if at := completedAt(job); at != nil && at.Before(cutoff) {
			if err := s.client.Del(ctx, jobKey(job.ID)).Err(); err != nil {
				return eris.Wrapf(err, "redis: delete job %s", job.ID)
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *RedisStore) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	n := 0
	err := s.scanJobs(ctx, func(job *model.SearchJob) error {
		if job.Status == status {
			n++
		}
		return nil
	})
	return n, err
}

// scanJobs visits every stored job. Keys that expire mid-scan are skipped.
func (s *RedisStore) scanJobs(ctx context.Context, visit func(*model.SearchJob) error) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", redisScanBatch).Iterator()
	var keys []string
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		keys = keys[:0]
		if err != nil {
			return eris.Wrap(err, "redis: mget jobs")
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			job, err := decodeJob([]byte(str))
			if err != nil {
				return err
			}
			if err := visit(job); err != nil {
				return err
			}
		}
		return nil
	}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= redisScanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "redis: scan jobs")
	}
	return flush()
}

// ttl returns the key expiry for job: the time left in its retention
// window once terminal, and none while it may still change.
func (s *RedisStore) ttl(job *model.SearchJob) time.Duration {
	at := completedAt(job)
	if at == nil || s.retention <= 0 {
		return 0
	}
	left := s.retention - s.now().Sub(*at)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return left
}

func decodeJob(data []byte) (*model.SearchJob, error) {
	var job model.SearchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrap(err, "redis: unmarshal job")
	}
	return &job, nil
}
