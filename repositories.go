package websub

import (
	"context"
	"time"

	"github.com/coregx/websub/model"
)

// Job is a leased queue entry. ID is the receipt used to delete it.
type Job struct {
	ID   string
	Body []byte
}

// JobQueue defines the lease-based job queue used for both the notification
// queue and the delivery outbox.
//
// A fetched job stays invisible to other consumers for the queue's visibility
// timeout. If it is not deleted within that time it becomes visible again and
// will be redelivered (at-least-once). Implementations must be safe for
// concurrent use.
type JobQueue interface {
	// GetJob leases the next visible job. Returns nil, nil when the queue is empty.
	GetJob(ctx context.Context) (*Job, error)

	// PostJob enqueues body, visible after delay (0 = immediately).
	PostJob(ctx context.Context, body []byte, delay time.Duration) error

	// DeleteJob removes a leased job by its receipt. Returns false when the
	// receipt is unknown or stale (the lease expired and someone else holds it).
	DeleteJob(ctx context.Context, id string) (bool, error)
}

// SubscriptionStore defines the persistence interface for subscription records.
// Records live under the keys produced by model.Target.
type SubscriptionStore interface {
	// Post creates or replaces the record of url under target. A zero
	// expiration means the record never expires.
	Post(ctx context.Context, url string, target model.Target, expiration time.Duration) error

	// Search lists the records directly under the target prefix. With layered
	// set it lists every layer of the target and merges the results. Invalid
	// and expired records are returned too; results are de-duplicated by key.
	Search(ctx context.Context, target model.Target, layered bool) ([]model.Subscription, error)

	// Delete removes the record of url under target and returns how many
	// records were removed (0 = not found).
	Delete(ctx context.Context, url string, target model.Target) (int, error)

	// BulkDelete removes the given keys. An empty list is a no-op.
	BulkDelete(ctx context.Context, keys []string) error
}

// CallbackGateway performs one delivery attempt to a subscriber callback.
type CallbackGateway interface {
	// Deliver posts payload to url and returns the response status code.
	// A transport failure is returned as an error.
	Deliver(ctx context.Context, url string, payload []byte) (int, error)
}
