package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Wire keys of a stored subscription record.
const (
	CallbackKey   = "c"
	ExpirationKey = "e"
)

// expirationLayouts are tried in order when reading a stored expiration.
// Records written by other hub implementations use ISO-8601 without a zone.
var expirationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Subscription is a decoded subscription record as read from a store.
//
// Validity and expiry are evaluated once, at decode time, against the supplied
// "now". A record that fails to decode is returned with IsValid=false and the
// reason in Error so callers can inspect it; filtering out invalid or expired
// records is the caller's job.
type Subscription struct {
	Key         string     `json:"key"`                  // Storage key the record was read from
	CallbackURL string     `json:"callbackURL"`          // Subscriber callback URL
	Expiration  *time.Time `json:"expiration,omitempty"` // nil = never expires
	IsValid     bool       `json:"isValid"`
	IsExpired   bool       `json:"isExpired"`
	Error       string     `json:"error,omitempty"`
}

// Deliverable reports whether the record should receive notifications.
func (s Subscription) Deliverable() bool {
	return s.IsValid && !s.IsExpired
}

// DecodeSubscription decodes a stored record read under key.
func DecodeSubscription(key string, payload []byte, now time.Time) Subscription {
	sub := Subscription{Key: key}

	if err := sub.decode(payload, now); err != nil {
		sub.IsValid = false
		sub.Error = err.Error()
		return sub
	}

	sub.IsValid = true
	return sub
}

func (s *Subscription) decode(payload []byte, now time.Time) error {
	if !utf8.Valid(payload) {
		return &ValidationError{Reason: "data is not UTF-8"}
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(payload, &data); err != nil {
		return &ValidationError{Reason: "data is not a valid JSON"}
	}

	rawCallback, ok := data[CallbackKey]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("data missing required key:'%s'", CallbackKey)}
	}
	if err := json.Unmarshal(rawCallback, &s.CallbackURL); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("callback invalid format:%s", string(rawCallback))}
	}

	rawExpiration, ok := data[ExpirationKey]
	if !ok || string(rawExpiration) == "null" {
		return nil
	}

	var value string
	if err := json.Unmarshal(rawExpiration, &value); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("expiration invalid format:%s", string(rawExpiration))}
	}
	if value == "" {
		return nil
	}

	expiration, err := ParseTimestamp(value)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("expiration invalid format:%s", value)}
	}
	s.Expiration = &expiration

	if expiration.Before(now) {
		s.IsExpired = true
		return &ValidationError{Reason: fmt.Sprintf("subscription expired at %s", expiration.Format(time.RFC3339))}
	}
	return nil
}

// ParseTimestamp reads an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	var lastErr error
	for _, layout := range expirationLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// subscriptionRecord is the on-the-wire shape {"c": "...", "e": "..."|null}.
type subscriptionRecord struct {
	Callback   string  `json:"c"`
	Expiration *string `json:"e"`
}

// EncodeSubscription encodes a record for callback. A positive expiration sets
// the expiry to now+expiration; zero or negative means the record never expires.
func EncodeSubscription(callback string, expiration time.Duration, now time.Time) ([]byte, error) {
	record := subscriptionRecord{Callback: callback}
	if expiration > 0 {
		e := now.Add(expiration).UTC().Format(time.RFC3339)
		record.Expiration = &e
	}
	return json.Marshal(record)
}
