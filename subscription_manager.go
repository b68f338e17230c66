package websub

import (
	"context"
	"time"

	"github.com/coregx/websub/model"
)

// SubscriptionManager handles the subscription lifecycle on top of a
// SubscriptionStore.
//
// Key operations:
//   - Subscribe: register a callback for a topic pattern (create or replace)
//   - SubscribeByID: register a callback under an opaque subscriber id
//   - Unsubscribe: remove a callback from a topic pattern
//   - UnsubscribeByID: remove the subscription stored under an id
//   - PurgeExpired: delete invalid and expired records under a pattern
//
// Thread safety: Safe for concurrent use if the store is.
type SubscriptionManager struct {
	store SubscriptionStore
	settings
}

// NewSubscriptionManager creates a new SubscriptionManager.
//
// Optional options: WithLogger, WithNotifications. Record expiry is evaluated
// by the store against its own clock.
func NewSubscriptionManager(store SubscriptionStore, opts ...Option) (*SubscriptionManager, error) {
	if store == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionStore is required")
	}

	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &SubscriptionManager{store: store, settings: s}, nil
}

// Subscribe stores a subscription of callbackURL to pattern. An existing
// subscription for the same pair is replaced, which renews its lease.
// A zero lease means the subscription never expires.
func (sm *SubscriptionManager) Subscribe(ctx context.Context, callbackURL string, pattern model.Pattern, lease time.Duration) error {
	return sm.subscribe(ctx, callbackURL, pattern, lease)
}

// SubscribeByID stores a subscription of callbackURL under an opaque id.
func (sm *SubscriptionManager) SubscribeByID(ctx context.Context, callbackURL string, id model.ID, lease time.Duration) error {
	return sm.subscribe(ctx, callbackURL, id, lease)
}

func (sm *SubscriptionManager) subscribe(ctx context.Context, callbackURL string, target model.Target, lease time.Duration) error {
	if callbackURL == "" {
		return NewError(ErrCodeValidation, "callback URL is required")
	}
	key, err := target.SubscriberKey(callbackURL)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid subscription target", err)
	}

	if err := sm.store.Post(ctx, callbackURL, target, lease); err != nil {
		return NewErrorWithCause(ErrCodeStore, "failed to post subscription", err)
	}

	sm.logger.Infof("Subscription stored: key=%s, callback=%s, lease=%v", key, callbackURL, lease)
	if err := sm.hooks.NotifySubscriptionCreated(ctx, key, callbackURL); err != nil {
		sm.logger.Warnf("Failed to send subscription notification: %v", err)
	}
	return nil
}

// Unsubscribe removes the subscription of callbackURL to pattern.
// Returns an error matching ErrNotFound when nothing was removed.
func (sm *SubscriptionManager) Unsubscribe(ctx context.Context, callbackURL string, pattern model.Pattern) error {
	return sm.unsubscribe(ctx, callbackURL, pattern)
}

// UnsubscribeByID removes the subscription stored under an opaque id.
func (sm *SubscriptionManager) UnsubscribeByID(ctx context.Context, callbackURL string, id model.ID) error {
	return sm.unsubscribe(ctx, callbackURL, id)
}

func (sm *SubscriptionManager) unsubscribe(ctx context.Context, callbackURL string, target model.Target) error {
	if callbackURL == "" {
		return NewError(ErrCodeValidation, "callback URL is required")
	}
	key, err := target.SubscriberKey(callbackURL)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid subscription target", err)
	}

	removed, err := sm.store.Delete(ctx, callbackURL, target)
	if err != nil {
		return NewErrorWithCause(ErrCodeStore, "failed to delete subscription", err)
	}
	if removed == 0 {
		return ErrNotFound
	}

	sm.logger.Infof("Subscription removed: key=%s", key)
	if err := sm.hooks.NotifySubscriptionRemoved(ctx, []string{key}); err != nil {
		sm.logger.Warnf("Failed to send subscription notification: %v", err)
	}
	return nil
}

// ListSubscriptions returns the records visible to a notification on pattern,
// i.e. a layered search. Invalid and expired records are included.
func (sm *SubscriptionManager) ListSubscriptions(ctx context.Context, pattern model.Pattern) ([]model.Subscription, error) {
	if err := pattern.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid pattern", err)
	}

	subscriptions, err := sm.store.Search(ctx, pattern, true)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeStore, "failed to search subscriptions", err)
	}
	return subscriptions, nil
}

// PurgeExpired deletes every invalid or expired record visible to pattern and
// returns the number of keys removed.
func (sm *SubscriptionManager) PurgeExpired(ctx context.Context, pattern model.Pattern) (int, error) {
	subscriptions, err := sm.ListSubscriptions(ctx, pattern)
	if err != nil {
		return 0, err
	}

	var keys []string
	for _, sub := range subscriptions {
		if !sub.Deliverable() {
			keys = append(keys, sub.Key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := sm.store.BulkDelete(ctx, keys); err != nil {
		return 0, NewErrorWithCause(ErrCodeStore, "failed to purge subscriptions", err)
	}

	sm.logger.Infof("Purged %d stale subscriptions under %s", len(keys), pattern)
	if err := sm.hooks.NotifySubscriptionRemoved(ctx, keys); err != nil {
		sm.logger.Warnf("Failed to send subscription notification: %v", err)
	}
	return len(keys), nil
}
