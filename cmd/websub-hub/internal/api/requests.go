package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/websub/model"
)

var supportedSchemes = []string{"http", "https"}

// SubscriptionRequest is a decoded subscription form.
type SubscriptionRequest struct {
	Callback     string `json:"hub.callback"`
	Topic        string `json:"hub.topic"`
	Mode         string `json:"hub.mode"`
	LeaseSeconds int    `json:"hub.lease_seconds"`
}

// Validate checks the request. Failures are keyed by form attribute.
func (r SubscriptionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Topic, validation.By(topicRule)),
		validation.Field(&r.Callback, validation.By(callbackRule)),
		validation.Field(&r.LeaseSeconds, validation.Required, validation.Min(LeaseSecondsMin), validation.Max(LeaseSecondsMax)),
		validation.Field(&r.Mode, validation.In(ModeSubscribe, ModeUnsubscribe)),
	)
}

// ValidateTopic returns why topic cannot be subscribed to, or "".
func ValidateTopic(topic string) string {
	if err := topicRule(topic); err != nil {
		return err.Error()
	}
	return ""
}

// ValidateCallback returns why callback is not an acceptable URL, or "".
func ValidateCallback(callback string) string {
	if err := callbackRule(callback); err != nil {
		return err.Error()
	}
	return ""
}

// topicRule accepts dotted predicates with at least four elements, or
// shorter ones ending in a single "*" wildcard.
func topicRule(value interface{}) error {
	topic, ok := value.(string)
	if !ok {
		return errors.New("Predicate must be string")
	}
	if topic == "" {
		return errors.New("Predicate must not be empty")
	}

	parts := strings.Split(topic, ".")
	last := parts[len(parts)-1]

	wildcards := 0
	for _, part := range parts {
		if part == "*" {
			wildcards++
		}
	}
	switch {
	case wildcards > 1:
		return errors.New("Predicate may contain only one wildcard and only as the last element")
	case wildcards == 1 && last != "*":
		return errors.New("Only last element of a predicate can be a wildcard")
	case len(parts) < 4 && last != "*":
		return errors.New("Predicates shorter than 4 elements must include wildcard as the last element")
	}

	if err := model.Pattern(topic).Validate(); err != nil {
		return err
	}
	return nil
}

func callbackRule(value interface{}) error {
	callback, ok := value.(string)
	if !ok {
		return errors.New("URL must be string")
	}
	u, err := url.Parse(callback)
	if err != nil || u.Scheme == "" {
		return errors.New("URL must contain scheme")
	}
	if !contains(supportedSchemes, u.Scheme) {
		return fmt.Errorf("Unsupported url scheme: %q. Must be one of: %v.", u.Scheme, supportedSchemes)
	}
	if u.Hostname() == "" {
		return errors.New("URL must contain domain or ip")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// PublishRequest is the JSON body of POST /publish.
type PublishRequest struct {
	Predicate string          `json:"predicate"`
	Message   json.RawMessage `json:"message"`
}
