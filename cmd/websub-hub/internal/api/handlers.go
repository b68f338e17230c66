// Package api provides HTTP handlers for the WebSub hub server.
package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/julienschmidt/httprouter"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

// Version is reported by GET /health.
const Version = "0.1.0"

const formContentType = "application/x-www-form-urlencoded"

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	subscriptions *websub.SubscriptionManager
	publisher     *websub.Publisher
	metrics       http.Handler
	logger        websub.Logger
	now           func() time.Time
}

// NewHandler creates a new API handler. A nil metrics handler disables
// GET /metrics; a nil publisher disables POST /publish.
func NewHandler(
	subscriptions *websub.SubscriptionManager,
	publisher *websub.Publisher,
	metrics http.Handler,
	logger websub.Logger,
) *Handler {
	if logger == nil {
		logger = &websub.NoopLogger{}
	}
	return &Handler{
		subscriptions: subscriptions,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Router returns the routes of the hub.
func (h *Handler) Router() *httprouter.Router {
	router := httprouter.New()
	router.POST("/subscriptions", h.HandleSubscription)
	router.GET("/subscriptions", h.HandleListSubscriptions)
	if h.publisher != nil {
		router.POST("/publish", h.HandlePublish)
	}
	router.GET("/health", h.HandleHealth)
	if h.metrics != nil {
		router.Handler(http.MethodGet, "/metrics", h.metrics)
	}
	return router
}

// HandleSubscription handles POST /subscriptions (subscribe and unsubscribe).
func (h *Handler) HandleSubscription(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != formContentType {
		writeError(w, genericError(http.StatusUnsupportedMediaType,
			"Content-Type must be "+formContentType))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		writeError(w, genericError(http.StatusBadRequest, "Unable to parse form"))
		return
	}

	var missing []string
	for _, key := range RequiredAttrs {
		if strings.TrimSpace(r.PostForm.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		writeError(w, MissingAttributesError(missing))
		return
	}

	req := SubscriptionRequest{
		Callback:     r.PostForm.Get(CallbackAttr),
		Topic:        r.PostForm.Get(TopicAttr),
		Mode:         r.PostForm.Get(ModeAttr),
		LeaseSeconds: LeaseSecondsDefault,
	}
	if raw := r.PostForm.Get(LeaseSecondsAttr); raw != "" {
		lease, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, LeaseSecondsValidationError(raw))
			return
		}
		req.LeaseSeconds = lease
	}

	if detail, ok := requestError(req); ok {
		writeError(w, detail)
		return
	}

	ctx := r.Context()
	pattern := model.Pattern(req.Topic)

	switch req.Mode {
	case ModeSubscribe:
		err := h.subscriptions.Subscribe(ctx, req.Callback, pattern, time.Duration(req.LeaseSeconds)*time.Second)
		if websub.IsValidation(err) {
			writeError(w, TopicValidationError(validationReason(err)))
			return
		}
		if err != nil {
			h.logger.Errorf("Failed to subscribe %s to %s: %v", req.Callback, req.Topic, err)
			writeError(w, UnableToPostSubscriptionError())
			return
		}
	case ModeUnsubscribe:
		err := h.subscriptions.Unsubscribe(ctx, req.Callback, pattern)
		if websub.IsNotFound(err) {
			writeError(w, SubscriptionNotFoundError())
			return
		}
		if websub.IsValidation(err) {
			writeError(w, TopicValidationError(validationReason(err)))
			return
		}
		if err != nil {
			h.logger.Errorf("Failed to unsubscribe %s from %s: %v", req.Callback, req.Topic, err)
			writeError(w, UnableToPostSubscriptionError())
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// requestError maps the first failing attribute to its error response.
func requestError(req SubscriptionRequest) (ErrorDetail, bool) {
	err := req.Validate()
	if err == nil {
		return ErrorDetail{}, false
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return UnableToPostSubscriptionError(), true
	}
	if e, ok := errs[TopicAttr]; ok {
		return TopicValidationError(e.Error()), true
	}
	if e, ok := errs[CallbackAttr]; ok {
		return CallbackURLValidationError(e.Error()), true
	}
	if _, ok := errs[LeaseSecondsAttr]; ok {
		return LeaseSecondsValidationError(strconv.Itoa(req.LeaseSeconds)), true
	}
	return UnknownModeError(req.Mode), true
}

// validationReason returns the innermost domain reason of a validation error.
func validationReason(err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	var hubErr *websub.Error
	if errors.As(err, &hubErr) {
		return hubErr.Message
	}
	return err.Error()
}

// subscriptionView is one entry of GET /subscriptions.
type subscriptionView struct {
	Key         string     `json:"key"`
	CallbackURL string     `json:"callbackURL"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	Deliverable bool       `json:"deliverable"`
	Error       string     `json:"error,omitempty"`
}

// HandleListSubscriptions handles GET /subscriptions?topic=<predicate>.
// It lists every record a notification on topic would be matched against.
func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, MissingAttributesError([]string{"topic"}))
		return
	}

	subs, err := h.subscriptions.ListSubscriptions(r.Context(), model.Pattern(topic))
	if websub.IsValidation(err) {
		writeError(w, TopicValidationError(validationReason(err)))
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to list subscriptions for %s: %v", topic, err)
		writeError(w, genericError(http.StatusInternalServerError, "Unable to read data from repository"))
		return
	}

	items := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		items = append(items, subscriptionView{
			Key:         s.Key,
			CallbackURL: s.CallbackURL,
			Expiration:  s.Expiration,
			Deliverable: s.Deliverable(),
			Error:       s.Error,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// HandlePublish handles POST /publish.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req PublishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, PublishValidationError("body must be a JSON object"))
		return
	}

	err := h.publisher.Publish(r.Context(), websub.PublishRequest{
		Predicate: req.Predicate,
		Message:   req.Message,
	})
	if websub.IsValidation(err) {
		writeError(w, PublishValidationError(validationReason(err)))
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to publish notification: %v", err)
		writeError(w, UnableToPublishError())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"version":   Version,
	})
}
