package websub_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

var errBroker = errors.New("broker unavailable")

func ctx() context.Context { return context.Background() }

type postedJob struct {
	body  []byte
	delay time.Duration
}

// scriptedQueue serves a fixed list of jobs and records every call.
type scriptedQueue struct {
	mu         sync.Mutex
	jobs       []*websub.Job
	getErr     error
	postErr    func(body []byte) error
	deleteErr  error
	deleteMiss bool

	posted  []postedJob
	deleted []string
}

func newScriptedQueue(bodies ...string) *scriptedQueue {
	q := &scriptedQueue{}
	for i, b := range bodies {
		q.jobs = append(q.jobs, &websub.Job{ID: "job-" + string(rune('a'+i)), Body: []byte(b)})
	}
	return q
}

func (q *scriptedQueue) GetJob(_ context.Context) (*websub.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.getErr != nil {
		return nil, q.getErr
	}
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *scriptedQueue) PostJob(_ context.Context, body []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.postErr != nil {
		if err := q.postErr(body); err != nil {
			return err
		}
	}
	q.posted = append(q.posted, postedJob{body: append([]byte(nil), body...), delay: delay})
	return nil
}

func (q *scriptedQueue) DeleteJob(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return false, q.deleteErr
	}
	q.deleted = append(q.deleted, id)
	return !q.deleteMiss, nil
}

// fixedStore returns the same search result for every query.
type fixedStore struct {
	subs      []model.Subscription
	searchErr error
	searched  []model.Target
	layered   []bool

	deleteCount int
	bulkDeleted []string
	posted      []string
}

func subscriptionsFor(urls ...string) *fixedStore {
	s := &fixedStore{}
	for _, u := range urls {
		s.subs = append(s.subs, model.Subscription{Key: "K/" + model.URLDigest(u), CallbackURL: u, IsValid: true})
	}
	return s
}

func (s *fixedStore) Post(_ context.Context, url string, _ model.Target, _ time.Duration) error {
	s.posted = append(s.posted, url)
	return nil
}

func (s *fixedStore) Search(_ context.Context, target model.Target, layered bool) ([]model.Subscription, error) {
	s.searched = append(s.searched, target)
	s.layered = append(s.layered, layered)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.subs, nil
}

func (s *fixedStore) Delete(_ context.Context, _ string, _ model.Target) (int, error) {
	return s.deleteCount, nil
}

func (s *fixedStore) BulkDelete(_ context.Context, keys []string) error {
	s.bulkDeleted = append(s.bulkDeleted, keys...)
	return nil
}

// stubGateway answers every delivery with the same status or error.
type stubGateway struct {
	status int
	err    error
	panic  bool
	calls  []string
}

func (g *stubGateway) Deliver(_ context.Context, url string, _ []byte) (int, error) {
	g.calls = append(g.calls, url)
	if g.panic {
		panic("gateway exploded")
	}
	return g.status, g.err
}

// recordingHooks records delivery states and fan-out summaries.
type recordingHooks struct {
	websub.NoOpNotificationService
	states   []model.DeliveryState
	failures int
	fanOuts  []int
	created  []string
	removed  []string
}

func (h *recordingHooks) NotifyDeliveryCompleted(_ context.Context, _ model.OutboxJob, state model.DeliveryState) error {
	h.states = append(h.states, state)
	return nil
}

func (h *recordingHooks) NotifyDeliveryFailure(_ context.Context, _ model.OutboxJob, _ int, _ error) error {
	h.failures++
	return nil
}

func (h *recordingHooks) NotifyFanOut(_ context.Context, _ string, subscribers, _ int) error {
	h.fanOuts = append(h.fanOuts, subscribers)
	return nil
}

func (h *recordingHooks) NotifySubscriptionCreated(_ context.Context, key, _ string) error {
	h.created = append(h.created, key)
	return nil
}

func (h *recordingHooks) NotifySubscriptionRemoved(_ context.Context, keys []string) error {
	h.removed = append(h.removed, keys...)
	return nil
}
