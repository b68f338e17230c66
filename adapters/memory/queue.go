package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/websub"
)

var _ websub.JobQueue = (*JobQueue)(nil)

// DefaultVisibilityTimeout is how long a fetched job stays hidden.
const DefaultVisibilityTimeout = 30 * time.Second

type entry struct {
	seq       int64
	body      []byte
	visibleAt time.Time
	receipt   string
}

// JobQueue is an in-process queue with lease semantics: a fetched job is
// hidden for the visibility timeout and reappears unless deleted with the
// receipt returned by GetJob. Every fetch issues a fresh receipt.
type JobQueue struct {
	mu         sync.Mutex
	entries    []*entry
	seq        int64
	visibility time.Duration
	now        func() time.Time
}

// QueueOption configures a JobQueue.
type QueueOption func(*JobQueue)

// WithVisibilityTimeout sets the lease duration of fetched jobs.
func WithVisibilityTimeout(d time.Duration) QueueOption {
	return func(q *JobQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *JobQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewJobQueue creates an empty queue.
func NewJobQueue(opts ...QueueOption) *JobQueue {
	q := &JobQueue{
		visibility: DefaultVisibilityTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetJob implements websub.JobQueue. Visible jobs are served in order of
// visibility, then insertion.
func (q *JobQueue) GetJob(ctx context.Context) (*websub.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var next *entry
	for _, e := range q.entries {
		if e.visibleAt.After(now) {
			continue
		}
		if next == nil || e.visibleAt.Before(next.visibleAt) ||
			(e.visibleAt.Equal(next.visibleAt) && e.seq < next.seq) {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}

	next.receipt = uuid.NewString()
	next.visibleAt = now.Add(q.visibility)

	return &websub.Job{
		ID:   next.receipt,
		Body: append([]byte(nil), next.body...),
	}, nil
}

// PostJob implements websub.JobQueue.
func (q *JobQueue) PostJob(ctx context.Context, body []byte, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	q.entries = append(q.entries, &entry{
		seq:       q.seq,
		body:      append([]byte(nil), body...),
		visibleAt: q.now().Add(delay),
	})
	return nil
}

// DeleteJob implements websub.JobQueue. A receipt that was superseded by a
// later fetch, or already used, returns false.
func (q *JobQueue) DeleteJob(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.receipt == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of jobs in the queue, leased or not.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending is a queued job as seen by Snapshot.
type Pending struct {
	Body      []byte
	VisibleAt time.Time
	Leased    bool
}

// Snapshot returns every queued job in insertion order.
func (q *JobQueue) Snapshot() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Pending, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, Pending{
			Body:      append([]byte(nil), e.body...),
			VisibleAt: e.visibleAt,
			Leased:    e.receipt != "",
		})
	}
	return out
}
