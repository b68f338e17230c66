package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/websub"
	"github.com/coregx/websub/adapters/memory"
	"github.com/coregx/websub/model"
)

// brokenStore fails every write.
type brokenStore struct {
	*memory.SubscriptionStore
}

func (brokenStore) Post(context.Context, string, model.Target, time.Duration) error {
	return errors.New("bucket unavailable")
}

type testHub struct {
	store  *memory.SubscriptionStore
	queue  *memory.JobQueue
	router http.Handler
}

func newTestHub(t *testing.T, store websub.SubscriptionStore) *testHub {
	t.Helper()
	mem := memory.NewSubscriptionStore()
	if store == nil {
		store = mem
	}
	queue := memory.NewJobQueue()

	manager, err := websub.NewSubscriptionManager(store)
	require.NoError(t, err)
	publisher, err := websub.NewPublisher(queue)
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("websub_up 1\n"))
	})
	return &testHub{
		store:  mem,
		queue:  queue,
		router: NewHandler(manager, publisher, metrics, nil).Router(),
	}
}

var validSubscribe = url.Values{
	CallbackAttr: {"http://elvis.presley.com/call/me/tender"},
	TopicAttr:    {"SONGS.OLD.TRACK.created"},
	ModeAttr:     {ModeSubscribe},
}

func withValues(base url.Values, kv ...string) url.Values {
	out := url.Values{}
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			out.Del(kv[i])
			continue
		}
		out.Set(kv[i], kv[i+1])
	}
	return out
}

func (h *testHub) postForm(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", formContentType)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body struct {
		Errors []ErrorDetail `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.Len(t, body.Errors, 1)
	return body.Errors[0]
}

func TestValidateTopic(t *testing.T) {
	short := "Predicates shorter than 4 elements must include wildcard as the last element"
	tests := map[string]string{
		"CEFACT.TRADE.CO.CA.created": "",
		"CEFACT.TRADE.CO.created":    "",
		"CEFACT.TRADE.CO.*":          "",
		"CEFACT.TRADE.*":             "",
		"CEFACT.*":                   "",
		"UN.CEFACT.TRADE":            short,
		"UN.CEFACT":                  short,
		"CEFACT.*.*":                 "Predicate may contain only one wildcard and only as the last element",
		"CEFACT.TRADE.*.CO.created":  "Only last element of a predicate can be a wildcard",
		"":                           "Predicate must not be empty",
		"*":                          "* character is supported only after a dot",
		"AA/BB.CC.DD.EE":             "predicate should contain dots, not slashes",
	}
	for topic, expected := range tests {
		assert.Equal(t, expected, ValidateTopic(topic), "topic %q", topic)
	}
	assert.Equal(t, "Predicate must be string", topicRule(1).Error())
}

func TestValidateCallback(t *testing.T) {
	tests := map[string]string{
		"http://hello.com/callback":      "",
		"http://hello.com:8080/callback/": "",
		"https://hello.com":              "",
		"https://hello":                  "",
		"https://192.168.0.1":            "",
		"http://":                        "URL must contain domain or ip",
		"192.168.0.1":                    "URL must contain scheme",
		"/invalid/callback":              "URL must contain scheme",
		"file://192.168.0.1":             `Unsupported url scheme: "file". Must be one of: [http https].`,
	}
	for callback, expected := range tests {
		assert.Equal(t, expected, ValidateCallback(callback), "callback %q", callback)
	}
	assert.Equal(t, "URL must be string", callbackRule(1).Error())
}

func TestErrorBuilders(t *testing.T) {
	mode := UnknownModeError("dancewithme")
	assert.Equal(t, "Unknown Mode Error", mode.Title)
	assert.Equal(t, "unknown-mode-error", mode.Code)
	assert.Equal(t, "Bad Request", mode.Status)
	assert.Equal(t, `Unknown "hub.mode" attribute value: "dancewithme". Accepted:[subscribe unsubscribe].`, mode.Detail)

	topic := TopicValidationError("a")
	assert.Equal(t, "topic-validation-error", topic.Code)
	assert.Equal(t, `"hub.topic" attribute is invalid`, topic.Detail)
	assert.Equal(t, []string{"a"}, topic.Source)

	lease := LeaseSecondsValidationError("100")
	assert.Equal(t, `"hub.lease_seconds" attribute is invalid. Must be integer in range 60-864000`, lease.Detail)

	notFound := SubscriptionNotFoundError()
	assert.Equal(t, "Not Found", notFound.Title)
	assert.Equal(t, "generic-http-error", notFound.Code)
	assert.Equal(t, "Subscription with given parameters not found", notFound.Detail)

	internal := UnableToPostSubscriptionError()
	assert.Equal(t, "internal-server-error", internal.Code)
	assert.Equal(t, "Internal Server Error", internal.Status)
	assert.Equal(t, "Unable to post data to repository", internal.Detail)
	assert.Equal(t, []interface{}{}, internal.Source)
}

func TestSubscribe_Success(t *testing.T) {
	hub := newTestHub(t, nil)

	rec := hub.postForm(t, validSubscribe)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, hub.store.Len())

	subs, err := hub.store.Search(context.Background(), model.Pattern("SONGS.OLD.TRACK.created"), false)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].Expiration)
	assert.WithinDuration(t, time.Now().Add(LeaseSecondsDefault*time.Second), *subs[0].Expiration, time.Minute)
}

func TestSubscribe_ExplicitLease(t *testing.T) {
	hub := newTestHub(t, nil)

	rec := hub.postForm(t, withValues(validSubscribe, LeaseSecondsAttr, "864000"))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = hub.postForm(t, withValues(validSubscribe, LeaseSecondsAttr, "59"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "lease-seconds-validation-error", decodeError(t, rec).Code)

	for _, lease := range []string{"0", "864001"} {
		rec = hub.postForm(t, withValues(validSubscribe, LeaseSecondsAttr, lease))
		assert.Equal(t, http.StatusBadRequest, rec.Code, lease)
	}

	rec = hub.postForm(t, withValues(validSubscribe, LeaseSecondsAttr, "soon"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "lease-seconds-validation-error", decodeError(t, rec).Code)
}

func TestSubscribe_ResubscribeIsAccepted(t *testing.T) {
	hub := newTestHub(t, nil)
	assert.Equal(t, http.StatusAccepted, hub.postForm(t, validSubscribe).Code)
	assert.Equal(t, http.StatusAccepted, hub.postForm(t, validSubscribe).Code)
	assert.Equal(t, 1, hub.store.Len())
}

func TestSubscribe_UnsupportedMediaType(t *testing.T) {
	hub := newTestHub(t, nil)
	for _, contentType := range []string{"application/json", "multipart/form-data", ""} {
		req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(validSubscribe.Encode()))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		hub.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, contentType)
	}
}

func TestSubscribe_MissingAttributes(t *testing.T) {
	hub := newTestHub(t, nil)

	for _, key := range RequiredAttrs {
		rec := hub.postForm(t, withValues(validSubscribe, key, ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		detail := decodeError(t, rec)
		assert.Equal(t, "missing-attributes-error", detail.Code)
		assert.Equal(t, []interface{}{key}, detail.Source)
	}

	rec := hub.postForm(t, url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []interface{}{CallbackAttr, TopicAttr, ModeAttr}, decodeError(t, rec).Source)
}

func TestSubscribe_InvalidAttributes(t *testing.T) {
	hub := newTestHub(t, nil)

	tests := []struct {
		name   string
		form   url.Values
		code   string
		source interface{}
	}{
		{"topic", withValues(validSubscribe, TopicAttr, "UN.SONGS"), "topic-validation-error",
			[]interface{}{"Predicates shorter than 4 elements must include wildcard as the last element"}},
		{"root wildcard", withValues(validSubscribe, TopicAttr, ".*"), "topic-validation-error",
			[]interface{}{"predicate must contain at least one element"}},
		{"dotted root wildcard", withValues(validSubscribe, TopicAttr, "...*"), "topic-validation-error",
			[]interface{}{"predicate must contain at least one element"}},
		{"callback", withValues(validSubscribe, CallbackAttr, "/invalid/callback"), "callback-url-validation-error",
			[]interface{}{"URL must contain scheme"}},
		{"mode", withValues(validSubscribe, ModeAttr, "dancewithme"), "unknown-mode-error", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hub.postForm(t, tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.code, detail.Code)
			if tt.source != nil {
				assert.Equal(t, tt.source, detail.Source)
			}
		})
	}
	assert.Equal(t, 0, hub.store.Len())
}

func TestSubscribe_StoreFailure(t *testing.T) {
	hub := newTestHub(t, brokenStore{memory.NewSubscriptionStore()})

	rec := hub.postForm(t, validSubscribe)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "internal-server-error", detail.Code)
	assert.Equal(t, "Unable to post data to repository", detail.Detail)
}

func TestUnsubscribe(t *testing.T) {
	hub := newTestHub(t, nil)
	unsubscribe := withValues(validSubscribe, ModeAttr, ModeUnsubscribe)

	rec := hub.postForm(t, unsubscribe)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "generic-http-error", decodeError(t, rec).Code)

	require.Equal(t, http.StatusAccepted, hub.postForm(t, validSubscribe).Code)
	assert.Equal(t, http.StatusAccepted, hub.postForm(t, unsubscribe).Code)
	assert.Equal(t, 0, hub.store.Len())
}

func TestListSubscriptions(t *testing.T) {
	hub := newTestHub(t, nil)
	require.Equal(t, http.StatusAccepted, hub.postForm(t, withValues(validSubscribe, TopicAttr, "SONGS.*")).Code)
	require.Equal(t, http.StatusAccepted, hub.postForm(t, validSubscribe).Code)

	rec := httptest.NewRecorder()
	hub.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions?topic=songs.old.track.created", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []subscriptionView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Items, 2)
	for _, item := range body.Items {
		assert.True(t, item.Deliverable)
		assert.Equal(t, "http://elvis.presley.com/call/me/tender", item.CallbackURL)
	}

	rec = httptest.NewRecorder()
	hub.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublish(t *testing.T) {
	hub := newTestHub(t, nil)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/publish", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		hub.router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"predicate": "songs.old.track.created", "message": {"title": "Tender"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, 1, hub.queue.Len())

	job, err := model.DecodeNotificationJob(hub.queue.Snapshot()[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "songs.old.track.created", job.Predicate)
	assert.JSONEq(t, `{"title": "Tender"}`, string(job.Message))

	rec = post(`{"message": {"predicate": "a.b.c.d"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	for _, bad := range []string{`not json`, `{"predicate": "a.b.*"}`, `{"message": {"x": 1}}`} {
		rec = post(bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, "publish-validation-error", decodeError(t, rec).Code)
	}
	assert.Equal(t, 2, hub.queue.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	hub := newTestHub(t, nil)

	rec := httptest.NewRecorder()
	hub.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = httptest.NewRecorder()
	hub.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "websub_up 1")
}
