package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

var _ websub.SubscriptionStore = (*SubscriptionStore)(nil)

// SubscriptionStore keeps encoded subscription records in a map keyed by
// storage key.
type SubscriptionStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	now     func() time.Time
}

// NewSubscriptionStore creates an empty store using the wall clock.
func NewSubscriptionStore() *SubscriptionStore {
	return NewSubscriptionStoreWithClock(time.Now)
}

// NewSubscriptionStoreWithClock creates an empty store reading time from now.
func NewSubscriptionStoreWithClock(now func() time.Time) *SubscriptionStore {
	return &SubscriptionStore{
		objects: make(map[string][]byte),
		now:     now,
	}
}

// Post implements websub.SubscriptionStore.
func (s *SubscriptionStore) Post(_ context.Context, url string, target model.Target, expiration time.Duration) error {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}
	payload, err := model.EncodeSubscription(url, expiration, s.now())
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to encode subscription", err)
	}

	s.mu.Lock()
	s.objects[key] = payload
	s.mu.Unlock()
	return nil
}

// PutRaw stores payload under key as-is. It lets tests plant records
// written by other hubs, including malformed ones.
func (s *SubscriptionStore) PutRaw(key string, payload []byte) {
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), payload...)
	s.mu.Unlock()
}

// Search implements websub.SubscriptionStore.
func (s *SubscriptionStore) Search(_ context.Context, target model.Target, layered bool) ([]model.Subscription, error) {
	prefixes, err := model.SearchPrefixes(target, layered)
	if err != nil {
		return nil, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}

	now := s.now()
	seen := make(map[string]struct{})
	var result []model.Subscription

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, prefix := range prefixes {
		for _, key := range s.sortedKeys() {
			if _, ok := seen[key]; ok || !model.IsDirectChild(prefix, key) {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, model.DecodeSubscription(key, s.objects[key], now))
		}
	}
	return result, nil
}

// Delete implements websub.SubscriptionStore.
func (s *SubscriptionStore) Delete(_ context.Context, url string, target model.Target) (int, error) {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return 0, nil
	}
	delete(s.objects, key)
	return 1, nil
}

// BulkDelete implements websub.SubscriptionStore.
func (s *SubscriptionStore) BulkDelete(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *SubscriptionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// sortedKeys must be called with mu held.
func (s *SubscriptionStore) sortedKeys() []string {
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
