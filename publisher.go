package websub

import (
	"context"
	"encoding/json"

	"github.com/coregx/websub/model"
)

// Publisher posts notification jobs to the notification queue.
type Publisher struct {
	queue JobQueue
	settings
}

// PublishRequest represents a notification to publish.
type PublishRequest struct {
	Predicate string          // Topic predicate the notification is routed on
	Message   json.RawMessage // Opaque JSON passed through to subscribers (optional)
}

// NewPublisher creates a Publisher writing to queue.
//
// Optional options: WithLogger.
func NewPublisher(queue JobQueue, opts ...Option) (*Publisher, error) {
	if queue == nil {
		return nil, NewError(ErrCodeConfiguration, "notification JobQueue is required")
	}

	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Publisher{queue: queue, settings: s}, nil
}

// Publish validates the request and enqueues one notification job.
//
// The predicate may be omitted when Message is an object carrying its own
// "predicate" attribute. Wildcard predicates are rejected: notifications are
// published on concrete topics.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) error {
	if len(req.Message) > 0 && !json.Valid(req.Message) {
		return NewError(ErrCodeValidation, "message must be valid JSON")
	}

	job := model.NotificationJob{Predicate: req.Predicate, Message: req.Message}
	predicate, err := job.EffectivePredicate()
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "predicate is required", err)
	}
	if err := predicate.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid predicate", err)
	}
	if predicate.IsWildcard() {
		return NewError(ErrCodeValidation, "cannot publish on a wildcard predicate")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "failed to encode notification", err)
	}

	if err := p.queue.PostJob(ctx, body, 0); err != nil {
		return NewErrorWithCause(ErrCodeQueue, "failed to post notification", err)
	}

	p.logger.Infof("Published notification on %s", predicate)
	return nil
}
