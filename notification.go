package websub

import (
	"context"
	"errors"

	"github.com/coregx/websub/model"
)

// NotificationService defines optional hooks for hub events.
//
// Implementations might record metrics, send alerts or write audit logs.
// Hook errors are logged by the caller and never change processing results.
type NotificationService interface {
	// NotifySubscriptionCreated is called after a subscription record is stored.
	NotifySubscriptionCreated(ctx context.Context, key, callbackURL string) error

	// NotifySubscriptionRemoved is called after subscription records are deleted.
	NotifySubscriptionRemoved(ctx context.Context, keys []string) error

	// NotifyFanOut is called after a notification was fanned out to its
	// subscribers. failed counts the outbox posts that did not succeed.
	NotifyFanOut(ctx context.Context, predicate string, subscribers, failed int) error

	// NotifyDeliveryFailure is called after every failed delivery attempt.
	NotifyDeliveryFailure(ctx context.Context, job model.OutboxJob, statusCode int, err error) error

	// NotifyDeliveryCompleted is called with the terminal state of every
	// processed outbox job.
	NotifyDeliveryCompleted(ctx context.Context, job model.OutboxJob, state model.DeliveryState) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifySubscriptionCreated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionCreated(_ context.Context, _, _ string) error {
	return nil
}

// NotifySubscriptionRemoved does nothing.
func (n *NoOpNotificationService) NotifySubscriptionRemoved(_ context.Context, _ []string) error {
	return nil
}

// NotifyFanOut does nothing.
func (n *NoOpNotificationService) NotifyFanOut(_ context.Context, _ string, _, _ int) error {
	return nil
}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ model.OutboxJob, _ int, _ error) error {
	return nil
}

// NotifyDeliveryCompleted does nothing.
func (n *NoOpNotificationService) NotifyDeliveryCompleted(_ context.Context, _ model.OutboxJob, _ model.DeliveryState) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifySubscriptionCreated logs subscription creation.
func (n *LoggingNotificationService) NotifySubscriptionCreated(_ context.Context, key, callbackURL string) error {
	n.logger.Infof("Subscription stored: key=%s, callback=%s", key, callbackURL)
	return nil
}

// NotifySubscriptionRemoved logs subscription removal.
func (n *LoggingNotificationService) NotifySubscriptionRemoved(_ context.Context, keys []string) error {
	n.logger.Infof("Subscriptions removed: count=%d, keys=%v", len(keys), keys)
	return nil
}

// NotifyFanOut logs a fan-out summary.
func (n *LoggingNotificationService) NotifyFanOut(_ context.Context, predicate string, subscribers, failed int) error {
	if failed > 0 {
		n.logger.Warnf("Fan-out incomplete: predicate=%s, subscribers=%d, failed=%d", predicate, subscribers, failed)
		return nil
	}
	n.logger.Debugf("Fan-out done: predicate=%s, subscribers=%d", predicate, subscribers)
	return nil
}

// NotifyDeliveryFailure logs a failed delivery attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, job model.OutboxJob, statusCode int, err error) error {
	n.logger.Warnf("Delivery failed: url=%s, retry=%d, status=%d, error=%v",
		job.SubscriberURL, job.Retry, statusCode, err)
	return nil
}

// NotifyDeliveryCompleted logs dropped jobs; other states are logged at debug.
func (n *LoggingNotificationService) NotifyDeliveryCompleted(_ context.Context, job model.OutboxJob, state model.DeliveryState) error {
	if state == model.DeliveryStateDropped {
		n.logger.Warnf("Delivery dropped after %d retries: url=%s", job.Retry, job.SubscriberURL)
		return nil
	}
	n.logger.Debugf("Delivery %s: url=%s, retry=%d", state, job.SubscriberURL, job.Retry)
	return nil
}

// MultiNotificationService fans every hook out to several services.
// All services are called; their errors are joined.
type MultiNotificationService []NotificationService

// NotifySubscriptionCreated calls every service.
func (m MultiNotificationService) NotifySubscriptionCreated(ctx context.Context, key, callbackURL string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifySubscriptionCreated(ctx, key, callbackURL))
	}
	return errors.Join(errs...)
}

// NotifySubscriptionRemoved calls every service.
func (m MultiNotificationService) NotifySubscriptionRemoved(ctx context.Context, keys []string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifySubscriptionRemoved(ctx, keys))
	}
	return errors.Join(errs...)
}

// NotifyFanOut calls every service.
func (m MultiNotificationService) NotifyFanOut(ctx context.Context, predicate string, subscribers, failed int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyFanOut(ctx, predicate, subscribers, failed))
	}
	return errors.Join(errs...)
}

// NotifyDeliveryFailure calls every service.
func (m MultiNotificationService) NotifyDeliveryFailure(ctx context.Context, job model.OutboxJob, statusCode int, err error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyDeliveryFailure(ctx, job, statusCode, err))
	}
	return errors.Join(errs...)
}

// NotifyDeliveryCompleted calls every service.
func (m MultiNotificationService) NotifyDeliveryCompleted(ctx context.Context, job model.OutboxJob, state model.DeliveryState) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyDeliveryCompleted(ctx, job, state))
	}
	return errors.Join(errs...)
}
