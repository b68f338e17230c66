package websub

import (
	"fmt"
	"time"

	"github.com/coregx/websub/retry"
)

// settings holds the optional collaborators shared by the hub components.
// Each component reads only the fields it needs.
type settings struct {
	logger       Logger
	hooks        NotificationService
	strategy     retry.Strategy
	idleInterval time.Duration
	name         string
}

// DefaultIdleInterval is how long a Processor sleeps after an empty poll.
const DefaultIdleInterval = time.Second

func defaultSettings() settings {
	return settings{
		logger:       &NoopLogger{},
		hooks:        &NoOpNotificationService{},
		strategy:     retry.DefaultStrategy(),
		idleInterval: DefaultIdleInterval,
		name:         "engine",
	}
}

func applyOptions(opts []Option) (settings, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return s, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}
	return s, nil
}

// Option configures a hub component (Dispatcher, Deliverer, Processor,
// SubscriptionManager or Publisher). Options a component does not use are ignored.
//
// Example:
//
//	deliverer, err := websub.NewDeliverer(outbox, gateway,
//	    websub.WithLogger(logger),
//	    websub.WithMaxRetries(5), // optional
//	)
type Option func(*settings) error

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithNotifications sets the notification hooks. Defaults to NoOpNotificationService.
//
// Use this to feed metrics or alerting from subscription and delivery events.
func WithNotifications(service NotificationService) Option {
	return func(s *settings) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		s.hooks = service
		return nil
	}
}

// WithRetryStrategy sets the delivery retry strategy. Defaults to retry.DefaultStrategy():
// 2 retries, each delayed by a random 1s-10s.
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(s *settings) error {
		if strategy.MaxRetries < 0 {
			return fmt.Errorf("max retries must be >= 0, got %d", strategy.MaxRetries)
		}
		s.strategy = strategy
		return nil
	}
}

// WithMaxRetries overrides only the retry budget of the current strategy.
func WithMaxRetries(n int) Option {
	return func(s *settings) error {
		if n < 0 {
			return fmt.Errorf("max retries must be >= 0, got %d", n)
		}
		s.strategy.MaxRetries = n
		return nil
	}
}

// WithIdleInterval sets how long a Processor sleeps after an empty poll.
func WithIdleInterval(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return fmt.Errorf("idle interval must be >= 0, got %v", d)
		}
		s.idleInterval = d
		return nil
	}
}

// WithName labels a Processor in its log lines.
func WithName(name string) Option {
	return func(s *settings) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		s.name = name
		return nil
	}
}
