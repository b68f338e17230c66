// Package model contains the domain values of the WebSub hub: topic patterns and
// their storage keys, subscription records, and the job payloads exchanged
// through the notification and delivery outbox queues.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NotificationJob is a published notification as stored in the notification queue.
//
// Either Predicate or Message.predicate must be present. Message is opaque to the
// hub and is passed through to subscribers inside an Envelope.
type NotificationJob struct {
	Predicate string          `json:"predicate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// DecodeNotificationJob parses a notification queue payload.
func DecodeNotificationJob(body []byte) (NotificationJob, error) {
	var job NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode notification job: %w", err)
	}
	if isNull(job.Message) {
		job.Message = nil
	}
	return job, nil
}

// EffectivePredicate returns the explicit predicate, or the predicate attribute of
// the embedded message when no explicit one is set.
func (j NotificationJob) EffectivePredicate() (Pattern, error) {
	if j.Predicate != "" {
		return Pattern(j.Predicate), nil
	}
	if len(j.Message) > 0 {
		var attrs struct {
			Predicate string `json:"predicate"`
		}
		// A non-object message simply has no predicate attribute.
		if err := json.Unmarshal(j.Message, &attrs); err == nil && attrs.Predicate != "" {
			return Pattern(attrs.Predicate), nil
		}
	}
	return "", ErrMissingPredicate
}

// Envelope is the payload every subscriber of a notification receives.
type Envelope struct {
	Predicate string          `json:"predicate"`
	Message   json.RawMessage `json:"message"`
}

// NewEnvelope builds the envelope for a notification routed on predicate.
func NewEnvelope(predicate Pattern, message json.RawMessage) Envelope {
	return Envelope{Predicate: predicate.String(), Message: message}
}

// Encode serializes the envelope as compact JSON. An absent message encodes as null.
func (e Envelope) Encode() (json.RawMessage, error) {
	if len(e.Message) == 0 {
		e.Message = json.RawMessage("null")
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, e.Message); err != nil {
			return nil, fmt.Errorf("encode envelope: %w", err)
		}
		e.Message = buf.Bytes()
	}
	return json.Marshal(e)
}

// OutboxJob is one pending callback delivery in the delivery outbox queue.
// Retry counts re-posts: 0 on the first attempt, +1 per re-post.
type OutboxJob struct {
	SubscriberURL string          `json:"s"`
	Payload       json.RawMessage `json:"payload"`
	Retry         int             `json:"retry,omitempty"`
}

// NewOutboxJob creates a first-attempt outbox job.
func NewOutboxJob(subscriberURL string, payload json.RawMessage) OutboxJob {
	return OutboxJob{SubscriberURL: subscriberURL, Payload: payload}
}

// DecodeOutboxJob parses and checks an outbox queue payload.
func DecodeOutboxJob(body []byte) (OutboxJob, error) {
	var job OutboxJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode outbox job: %w", err)
	}
	if job.SubscriberURL == "" {
		return job, ErrMissingCallback
	}
	if job.Retry < 0 {
		return job, ErrNegativeRetry
	}
	return job, nil
}

// NextAttempt returns the job to re-post after a failed attempt.
func (j OutboxJob) NextAttempt() OutboxJob {
	return OutboxJob{
		SubscriberURL: j.SubscriberURL,
		Payload:       j.Payload,
		Retry:         j.Retry + 1,
	}
}

// Encode serializes the job for the outbox queue.
func (j OutboxJob) Encode() ([]byte, error) {
	if len(j.Payload) == 0 {
		j.Payload = json.RawMessage("null")
	}
	return json.Marshal(j)
}

// DeliveryState is the terminal state of processing one outbox job.
type DeliveryState string

const (
	// DeliveryStateSuccess means the callback returned 2xx and the job was deleted.
	DeliveryStateSuccess DeliveryState = "deleted_success"

	// DeliveryStateRetryScheduled means the attempt failed and a new job with
	// an incremented retry counter was posted.
	DeliveryStateRetryScheduled DeliveryState = "deleted_retry_scheduled"

	// DeliveryStateDropped means the job exhausted its retries and was discarded.
	DeliveryStateDropped DeliveryState = "deleted_dropped"

	// DeliveryStateDeleteFailed means the queue refused the delete (stale lease).
	DeliveryStateDeleteFailed DeliveryState = "delete_failed"
)

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
