package websub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/websub"
	"github.com/coregx/websub/adapters/memory"
	"github.com/coregx/websub/model"
)

func newManager(t *testing.T, now *time.Time) (*websub.SubscriptionManager, *memory.SubscriptionStore, *recordingHooks) {
	t.Helper()
	store := memory.NewSubscriptionStoreWithClock(func() time.Time { return *now })
	hooks := &recordingHooks{}
	sm, err := websub.NewSubscriptionManager(store, websub.WithNotifications(hooks))
	require.NoError(t, err)
	return sm, store, hooks
}

func TestNewSubscriptionManager(t *testing.T) {
	_, err := websub.NewSubscriptionManager(nil)
	assert.Error(t, err)

	sm, err := websub.NewSubscriptionManager(memory.NewSubscriptionStore(),
		websub.WithLogger(&websub.NoopLogger{}),
		websub.WithNotifications(&websub.NoOpNotificationService{}),
	)
	require.NoError(t, err)
	assert.NotNil(t, sm)

	_, err = websub.NewSubscriptionManager(memory.NewSubscriptionStore(), websub.WithNotifications(nil))
	assert.Error(t, err)
}

func TestSubscriptionManager_SubscribeAndUnsubscribe(t *testing.T) {
	now := time.Date(2020, 5, 12, 12, 0, 1, 0, time.UTC)
	sm, store, hooks := newManager(t, &now)
	pattern := model.Pattern("aaa.bbb.ccc")

	require.NoError(t, sm.Subscribe(ctx(), "http://callback.url/1", pattern, 0))
	assert.Equal(t, []string{"AAA/BBB/CCC/ff0d1111f6636c354cf92c7137f1b5e6"}, hooks.created)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, sm.Unsubscribe(ctx(), "http://callback.url/1", pattern))
	assert.Equal(t, hooks.created, hooks.removed)
	assert.Equal(t, 0, store.Len())

	err := sm.Unsubscribe(ctx(), "http://callback.url/1", pattern)
	assert.True(t, websub.IsNotFound(err))
}

func TestSubscriptionManager_Validation(t *testing.T) {
	now := time.Now()
	sm, _, _ := newManager(t, &now)

	err := sm.Subscribe(ctx(), "", model.Pattern("a.b"), 0)
	assert.True(t, websub.IsValidation(err))

	err = sm.Subscribe(ctx(), "http://x", model.Pattern("a/b"), 0)
	assert.True(t, websub.IsValidation(err))

	err = sm.Unsubscribe(ctx(), "http://x", model.Pattern(""))
	assert.True(t, websub.IsValidation(err))

	err = sm.SubscribeByID(ctx(), "http://x", model.ID(""), 0)
	assert.True(t, websub.IsValidation(err))
}

func TestSubscriptionManager_SubscribeByID(t *testing.T) {
	now := time.Now()
	sm, store, hooks := newManager(t, &now)

	require.NoError(t, sm.SubscribeByID(ctx(), "http://callback.url/1", model.ID("some_ref"), 0))

	subs, err := store.Search(ctx(), model.ID("some_ref"), false)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "some_ref", subs[0].Key)

	require.NoError(t, sm.UnsubscribeByID(ctx(), "http://callback.url/1", model.ID("some_ref")))
	assert.Equal(t, []string{"some_ref"}, hooks.removed)
	assert.Equal(t, 0, store.Len())

	err = sm.UnsubscribeByID(ctx(), "http://callback.url/1", model.ID("some_ref"))
	assert.True(t, websub.IsNotFound(err))

	err = sm.UnsubscribeByID(ctx(), "http://callback.url/1", model.ID(""))
	assert.True(t, websub.IsValidation(err))
}

func TestSubscriptionManager_LeaseExpiryAndPurge(t *testing.T) {
	now := time.Date(2020, 5, 12, 12, 0, 1, 0, time.UTC)
	sm, store, hooks := newManager(t, &now)

	require.NoError(t, sm.Subscribe(ctx(), "http://a/short", model.Pattern("aa.bb"), 2*time.Hour))
	require.NoError(t, sm.Subscribe(ctx(), "http://a/forever", model.Pattern("aa.*"), 0))
	store.PutRaw("AA/BB/garbage", []byte("not json"))

	subs, err := sm.ListSubscriptions(ctx(), model.Pattern("aa.bb.cc"))
	require.NoError(t, err)
	assert.Len(t, subs, 3)

	n, err := sm.PurgeExpired(ctx(), model.Pattern("aa.bb.cc"))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the malformed record is stale before the lease ends")

	now = now.Add(3 * time.Hour)
	n, err = sm.PurgeExpired(ctx(), model.Pattern("aa.bb.cc"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
	assert.Len(t, hooks.removed, 2)

	n, err = sm.PurgeExpired(ctx(), model.Pattern("aa.bb.cc"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = sm.PurgeExpired(ctx(), model.Pattern("bad*"))
	assert.True(t, websub.IsValidation(err))
}
