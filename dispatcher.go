package websub

import (
	"context"
	"sort"

	"github.com/coregx/websub/model"
)

// Dispatcher is the fan-out engine. Each Execute takes one notification from
// the notification queue, looks up every subscription whose pattern is a
// prefix of the notification predicate and posts one outbox job per callback.
//
// The notification is deleted only when every outbox post succeeded. If any
// post fails the notification is left leased and the queue redelivers it
// after its visibility timeout, re-posting outbox jobs that already went
// through. The Dispatcher therefore prefers duplicate deliveries over lost
// ones; subscribers must tolerate duplicates.
type Dispatcher struct {
	notifications JobQueue
	outbox        JobQueue
	store         SubscriptionStore
	settings
}

// NewDispatcher creates a fan-out engine reading the notifications queue and
// writing the outbox queue.
//
// Optional options: WithLogger, WithNotifications.
func NewDispatcher(notifications, outbox JobQueue, store SubscriptionStore, opts ...Option) (*Dispatcher, error) {
	if notifications == nil {
		return nil, NewError(ErrCodeConfiguration, "notification JobQueue is required")
	}
	if outbox == nil {
		return nil, NewError(ErrCodeConfiguration, "outbox JobQueue is required")
	}
	if store == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionStore is required")
	}

	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		notifications: notifications,
		outbox:        outbox,
		store:         store,
		settings:      s,
	}, nil
}

// Execute processes at most one notification.
//
// Returns ResultNoJob when the queue is empty, ResultSuccess when every
// subscriber got an outbox job and the notification was deleted, and
// ResultFailure otherwise. Malformed notifications yield an error matching
// ErrContractViolation; queue and store failures are returned as-is.
func (d *Dispatcher) Execute(ctx context.Context) (Result, error) {
	job, err := d.notifications.GetJob(ctx)
	if err != nil {
		return ResultFailure, NewErrorWithCause(ErrCodeQueue, "failed to fetch notification", err)
	}
	if job == nil {
		return ResultNoJob, nil
	}

	notification, err := model.DecodeNotificationJob(job.Body)
	if err != nil {
		return ResultFailure, contractViolation("undecodable notification "+job.ID, err)
	}
	predicate, err := notification.EffectivePredicate()
	if err != nil {
		return ResultFailure, contractViolation("notification "+job.ID+" has no predicate", err)
	}
	if err := predicate.Validate(); err != nil {
		return ResultFailure, contractViolation("notification "+job.ID+" has an invalid predicate", err)
	}

	subscriptions, err := d.store.Search(ctx, predicate, true)
	if err != nil {
		return ResultFailure, NewErrorWithCause(ErrCodeStore, "failed to search subscriptions", err)
	}

	urls := deliverableURLs(subscriptions)
	if len(urls) == 0 {
		d.logger.Infof("Nobody to notify about the message %s", predicate)
	}

	payload, err := model.NewEnvelope(predicate, notification.Message).Encode()
	if err != nil {
		return ResultFailure, contractViolation("notification "+job.ID+" has an unencodable message", err)
	}

	failed := 0
	for _, url := range urls {
		if err := d.post(ctx, url, payload); err != nil {
			d.logger.Errorf("Failed to schedule notification of %s about %s: %v", url, predicate, err)
			failed++
			continue
		}
		d.logger.Debugf("Scheduled notification of %s about %s", url, predicate)
	}

	if err := d.hooks.NotifyFanOut(ctx, predicate.String(), len(urls), failed); err != nil {
		d.logger.Warnf("Failed to send fan-out notification: %v", err)
	}

	if failed > 0 {
		d.logger.Warnf("Notification %s left for redelivery: %d of %d posts failed", job.ID, failed, len(urls))
		return ResultFailure, nil
	}

	deleted, err := d.notifications.DeleteJob(ctx, job.ID)
	if err != nil {
		return ResultFailure, NewErrorWithCause(ErrCodeQueue, "failed to delete notification", err)
	}
	if !deleted {
		d.logger.Warnf("Notification %s was not deleted, its lease may have expired", job.ID)
	}

	return ResultSuccess, nil
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte) error {
	body, err := model.NewOutboxJob(url, payload).Encode()
	if err != nil {
		return err
	}
	return d.outbox.PostJob(ctx, body, 0)
}

// deliverableURLs returns the distinct callback URLs of the valid,
// non-expired subscriptions, sorted.
func deliverableURLs(subscriptions []model.Subscription) []string {
	seen := make(map[string]struct{}, len(subscriptions))
	urls := make([]string, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if !sub.Deliverable() || sub.CallbackURL == "" {
			continue
		}
		if _, ok := seen[sub.CallbackURL]; ok {
			continue
		}
		seen[sub.CallbackURL] = struct{}{}
		urls = append(urls, sub.CallbackURL)
	}
	sort.Strings(urls)
	return urls
}
