package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Form attribute names of a subscription request.
const (
	CallbackAttr     = "hub.callback"
	TopicAttr        = "hub.topic"
	ModeAttr         = "hub.mode"
	LeaseSecondsAttr = "hub.lease_seconds"
)

// Subscription modes.
const (
	ModeSubscribe   = "subscribe"
	ModeUnsubscribe = "unsubscribe"
)

// Lease bounds in seconds.
const (
	LeaseSecondsDefault = 432000
	LeaseSecondsMin     = 60
	LeaseSecondsMax     = 864000
)

// RequiredAttrs must be present in every subscription request.
var RequiredAttrs = []string{CallbackAttr, TopicAttr, ModeAttr}

var knownModes = []string{ModeSubscribe, ModeUnsubscribe}

// ErrorDetail is one entry of an error response.
type ErrorDetail struct {
	Title  string      `json:"title"`
	Code   string      `json:"code"`
	Status string      `json:"status"`
	Detail string      `json:"detail"`
	Source interface{} `json:"source"`

	status int
}

// ErrorResponse is the body of every 4xx and 5xx response.
type ErrorResponse struct {
	Errors []ErrorDetail `json:"errors"`
}

func newErrorDetail(status int, title, code, detail string, source interface{}) ErrorDetail {
	if source == nil {
		source = []interface{}{}
	}
	return ErrorDetail{
		Title:  title,
		Code:   code,
		Status: http.StatusText(status),
		Detail: detail,
		Source: source,
		status: status,
	}
}

func genericError(status int, detail string) ErrorDetail {
	return newErrorDetail(status, http.StatusText(status), "generic-http-error", detail, nil)
}

// MissingAttributesError lists every required attribute absent from the form.
func MissingAttributesError(keys []string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Missing Attributes Error", "missing-attributes-error",
		"Missing required attributes", keys)
}

// TopicValidationError reports an invalid hub.topic.
func TopicValidationError(reason string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Topic Validation Error", "topic-validation-error",
		fmt.Sprintf("%q attribute is invalid", TopicAttr), []string{reason})
}

// CallbackURLValidationError reports an invalid hub.callback.
func CallbackURLValidationError(reason string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Callback URL Validation Error", "callback-url-validation-error",
		fmt.Sprintf("%q attribute is invalid", CallbackAttr), []string{reason})
}

// LeaseSecondsValidationError reports a hub.lease_seconds outside the allowed range.
func LeaseSecondsValidationError(value string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Lease Seconds Validation Error", "lease-seconds-validation-error",
		fmt.Sprintf("%q attribute is invalid. Must be integer in range %d-%d", LeaseSecondsAttr, LeaseSecondsMin, LeaseSecondsMax),
		[]map[string]interface{}{{"value": value, "max": LeaseSecondsMax, "min": LeaseSecondsMin}})
}

// UnknownModeError reports a hub.mode other than subscribe or unsubscribe.
func UnknownModeError(mode string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Unknown Mode Error", "unknown-mode-error",
		fmt.Sprintf("Unknown %q attribute value: %q. Accepted:%v.", ModeAttr, mode, knownModes),
		[]map[string]interface{}{{"key": ModeAttr, "value": mode, "expected": knownModes}})
}

// SubscriptionNotFoundError is returned when unsubscribing an unknown subscription.
func SubscriptionNotFoundError() ErrorDetail {
	return genericError(http.StatusNotFound, "Subscription with given parameters not found")
}

// UnableToPostSubscriptionError is returned when the store rejects a subscription.
func UnableToPostSubscriptionError() ErrorDetail {
	return newErrorDetail(http.StatusInternalServerError,
		"Internal Server Error", "internal-server-error",
		"Unable to post data to repository", nil)
}

// UnableToPublishError is returned when the notification queue rejects a job.
func UnableToPublishError() ErrorDetail {
	return newErrorDetail(http.StatusInternalServerError,
		"Internal Server Error", "internal-server-error",
		"Unable to post notification to queue", nil)
}

// PublishValidationError reports a malformed publish request.
func PublishValidationError(reason string) ErrorDetail {
	return newErrorDetail(http.StatusBadRequest,
		"Publish Validation Error", "publish-validation-error",
		"Notification is invalid", []string{reason})
}

func writeError(w http.ResponseWriter, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(detail.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Errors: []ErrorDetail{detail}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
