package websub

import (
	"context"
	"fmt"

	"github.com/coregx/websub/model"
)

// Deliverer is the delivery engine. Each Execute takes one outbox job,
// attempts the callback once and settles the job:
//
//	FETCHED → DELIVERING → deleted_success
//	                     → deleted_retry_scheduled (re-posted with retry+1)
//	                     → deleted_dropped         (retry budget spent)
//	                     → delete_failed           (lease lost, nothing re-posted)
//
// The job is always deleted before a retry is posted, so a crash in between
// loses that retry. A job is attempted at most MaxRetries+1 times.
type Deliverer struct {
	outbox  JobQueue
	gateway CallbackGateway
	settings
}

// NewDeliverer creates a delivery engine reading the outbox queue.
//
// Optional options: WithLogger, WithNotifications, WithRetryStrategy, WithMaxRetries.
func NewDeliverer(outbox JobQueue, gateway CallbackGateway, opts ...Option) (*Deliverer, error) {
	if outbox == nil {
		return nil, NewError(ErrCodeConfiguration, "outbox JobQueue is required")
	}
	if gateway == nil {
		return nil, NewError(ErrCodeConfiguration, "CallbackGateway is required")
	}

	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Deliverer{
		outbox:   outbox,
		gateway:  gateway,
		settings: s,
	}, nil
}

// MaxRetries returns the retry budget of this deliverer.
func (d *Deliverer) MaxRetries() int {
	return d.strategy.MaxRetries
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
func (d *Deliverer) GetRetrySchedule() string {
	return d.strategy.GetRetrySchedule()
}

// Execute processes at most one outbox job.
//
// Returns ResultNoJob when the outbox is empty, ResultSuccess when the
// callback answered 2xx and the job was deleted, and ResultFailure otherwise.
// Delivery failures are not errors; only queue failures and malformed jobs
// (matching ErrContractViolation) are returned as errors.
func (d *Deliverer) Execute(ctx context.Context) (Result, error) {
	job, err := d.outbox.GetJob(ctx)
	if err != nil {
		return ResultFailure, NewErrorWithCause(ErrCodeQueue, "failed to fetch outbox job", err)
	}
	if job == nil {
		return ResultNoJob, nil
	}

	outboxJob, err := model.DecodeOutboxJob(job.Body)
	if err != nil {
		return ResultFailure, contractViolation("malformed outbox job "+job.ID, err)
	}

	if d.strategy.Exhausted(outboxJob.Retry) {
		d.logger.Errorf("Dropping notification of %s due to max retries reached (retry=%d)",
			outboxJob.SubscriberURL, outboxJob.Retry)
		deleted, err := d.outbox.DeleteJob(ctx, job.ID)
		if err != nil {
			return ResultFailure, NewErrorWithCause(ErrCodeQueue, "failed to delete exhausted outbox job", err)
		}
		if !deleted {
			d.logger.Errorf("Unable to delete message %s from the delivery outbox", job.ID)
			d.complete(ctx, outboxJob, model.DeliveryStateDeleteFailed)
			return ResultFailure, nil
		}
		d.complete(ctx, outboxJob, model.DeliveryStateDropped)
		return ResultFailure, nil
	}

	delivered := d.deliver(ctx, outboxJob)

	// The job is deleted in every case; a retry goes back as a new job.
	deleted, err := d.outbox.DeleteJob(ctx, job.ID)
	if err != nil {
		return ResultFailure, NewErrorWithCause(ErrCodeQueue, "failed to delete outbox job", err)
	}
	if !deleted {
		d.logger.Errorf("Unable to delete message %s from the delivery outbox", job.ID)
		d.complete(ctx, outboxJob, model.DeliveryStateDeleteFailed)
		return ResultFailure, nil
	}

	if delivered {
		d.complete(ctx, outboxJob, model.DeliveryStateSuccess)
		return ResultSuccess, nil
	}

	if !d.strategy.CanRetry(outboxJob.Retry) {
		d.logger.Errorf("Dropping notification of %s due to max retries reached (retry=%d)",
			outboxJob.SubscriberURL, outboxJob.Retry)
		d.complete(ctx, outboxJob, model.DeliveryStateDropped)
		return ResultFailure, nil
	}

	next := outboxJob.NextAttempt()
	if err := d.repost(ctx, next); err != nil {
		return ResultFailure, err
	}
	d.complete(ctx, outboxJob, model.DeliveryStateRetryScheduled)
	return ResultFailure, nil
}

// deliver performs one attempt. Every failure, including gateway errors and
// panics, is reported as false.
func (d *Deliverer) deliver(ctx context.Context, job model.OutboxJob) bool {
	d.logger.Infof("Sending WebSub payload to callback URL %s (retry=%d)", job.SubscriberURL, job.Retry)

	status, err := d.attempt(ctx, job)
	if err == nil && IsSuccessStatus(status) {
		return true
	}

	if err == nil {
		err = fmt.Errorf("callback returned status %d", status)
	}
	d.logger.Errorf("Subscription url %s seems to be invalid: %v", job.SubscriberURL, err)

	if hookErr := d.hooks.NotifyDeliveryFailure(ctx, job, status, err); hookErr != nil {
		d.logger.Warnf("Failed to send delivery failure notification: %v", hookErr)
	}
	return false
}

func (d *Deliverer) attempt(ctx context.Context, job model.OutboxJob) (status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = 0, fmt.Errorf("callback gateway panicked: %v", r)
		}
	}()
	return d.gateway.Deliver(ctx, job.SubscriberURL, job.Payload)
}

func (d *Deliverer) repost(ctx context.Context, next model.OutboxJob) error {
	body, err := next.Encode()
	if err != nil {
		return contractViolation("unencodable outbox job", err)
	}

	delay := d.strategy.NextDelay(next.Retry)
	if err := d.outbox.PostJob(ctx, body, delay); err != nil {
		return NewErrorWithCause(ErrCodeQueue, "failed to re-schedule outbox job", err)
	}

	d.logger.Infof("Delivery to %s failed, re-scheduled as retry %d in %v", next.SubscriberURL, next.Retry, delay)
	return nil
}

func (d *Deliverer) complete(ctx context.Context, job model.OutboxJob, state model.DeliveryState) {
	if err := d.hooks.NotifyDeliveryCompleted(ctx, job, state); err != nil {
		d.logger.Warnf("Failed to send delivery notification: %v", err)
	}
}
