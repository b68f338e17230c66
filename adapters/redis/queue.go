// Package redis implements websub.JobQueue on Redis.
//
// Each queue uses three keys under "<namespace>:<queue>": a sorted set of job
// ids scored by the time they become visible, a hash of bodies and a hash of
// current lease tokens. Leasing and deleting run as Lua scripts so a job is
// never handed to two consumers with the same receipt.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/coregx/websub"
)

// DefaultVisibilityTimeout is how long a fetched job stays hidden.
const DefaultVisibilityTimeout = 30 * time.Second

// DefaultNamespace prefixes every key.
const DefaultNamespace = "websub"

var _ websub.JobQueue = (*JobQueue)(nil)

// leaseScript moves the first visible job to now+visibility and records the
// new lease token. It returns {id, body} or nil.
var leaseScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZADD', KEYS[1], ARGV[2], id)
redis.call('HSET', KEYS[3], id, ARGV[3])
return {id, redis.call('HGET', KEYS[2], id)}
`)

// deleteScript removes a job only while ARGV[2] is its current lease token.
var deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// JobQueue is a lease-based queue stored in Redis.
type JobQueue struct {
	client     redis.UniversalClient
	namespace  string
	keys       []string
	visibility time.Duration
	now        func() time.Time
}

// Option configures a JobQueue.
type Option func(*JobQueue)

// WithVisibilityTimeout sets the lease duration of fetched jobs.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *JobQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// WithNamespace replaces DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(q *JobQueue) {
		if ns != "" {
			q.namespace = ns
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *JobQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewJobQueue returns the queue called name.
func NewJobQueue(client redis.UniversalClient, name string, opts ...Option) *JobQueue {
	q := &JobQueue{
		client:     client,
		namespace:  DefaultNamespace,
		visibility: DefaultVisibilityTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.keys = queueKeys(q.namespace, name)
	return q
}

func queueKeys(ns, name string) []string {
	base := ns + ":" + name
	return []string{base + ":visible", base + ":bodies", base + ":leases"}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// GetJob implements websub.JobQueue. The receipt is "<job id>.<lease token>".
func (q *JobQueue) GetJob(ctx context.Context) (*websub.Job, error) {
	now := q.now()
	token := uuid.NewString()

	values, err := leaseScript.Run(ctx, q.client, q.keys,
		score(now), score(now.Add(q.visibility)), token,
	).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to lease job", err)
	}
	if len(values) != 2 {
		return nil, websub.NewError(websub.ErrCodeQueue, fmt.Sprintf("unexpected lease reply of %d values", len(values)))
	}

	id, _ := values[0].(string)
	body, _ := values[1].(string)
	return &websub.Job{ID: id + "." + token, Body: []byte(body)}, nil
}

// PostJob implements websub.JobQueue.
func (q *JobQueue) PostJob(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	id := uuid.NewString()
	visibleAt := score(q.now().Add(delay))

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.keys[1], id, body)
		pipe.ZAdd(ctx, q.keys[0], &redis.Z{Score: visibleAt, Member: id})
		return nil
	})
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to post job", err)
	}
	return nil
}

// DeleteJob implements websub.JobQueue.
func (q *JobQueue) DeleteJob(ctx context.Context, receipt string) (bool, error) {
	id, token, ok := strings.Cut(receipt, ".")
	if !ok || id == "" || token == "" {
		return false, nil
	}

	n, err := deleteScript.Run(ctx, q.client, q.keys, id, token).Int64()
	if err != nil {
		return false, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to delete job", err)
	}
	return n == 1, nil
}

// Len returns the number of jobs in the queue, leased or not.
func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.keys[0]).Result()
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to count jobs", err)
	}
	return n, nil
}
