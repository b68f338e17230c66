// Package metrics exports hub activity as Prometheus metrics.
//
// Recorder implements websub.NotificationService, so it plugs into the
// engines through websub.WithNotifications. InstrumentEngine wraps an engine
// to count iteration results and time them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

var _ websub.NotificationService = (*Recorder)(nil)

// Recorder holds the hub collectors.
type Recorder struct {
	SubscriptionsCreated prometheus.Counter
	SubscriptionsRemoved prometheus.Counter
	FanOutSubscribers    prometheus.Histogram
	FanOutFailedPosts    prometheus.Counter
	DeliveryFailures     *prometheus.CounterVec
	DeliveriesCompleted  *prometheus.CounterVec
	EngineIterations     *prometheus.CounterVec
	EngineDuration       *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		SubscriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websub_subscriptions_created_total",
			Help: "Subscription records stored (including renewals)",
		}),
		SubscriptionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websub_subscriptions_removed_total",
			Help: "Subscription records deleted by unsubscribe or purge",
		}),
		FanOutSubscribers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "websub_fanout_subscribers",
			Help:    "Subscribers resolved per fanned-out notification",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		FanOutFailedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websub_fanout_failed_posts_total",
			Help: "Outbox posts that failed during fan-out",
		}),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websub_delivery_failures_total",
				Help: "Failed callback attempts by response class",
			},
			[]string{"class"},
		),
		DeliveriesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websub_deliveries_completed_total",
				Help: "Processed outbox jobs by terminal state",
			},
			[]string{"state"},
		),
		EngineIterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websub_engine_iterations_total",
				Help: "Engine iterations by engine and result",
			},
			[]string{"engine", "result"},
		),
		EngineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websub_engine_iteration_seconds",
				Help:    "Duration of engine iterations that processed a job",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
	}

	for _, c := range []prometheus.Collector{
		r.SubscriptionsCreated,
		r.SubscriptionsRemoved,
		r.FanOutSubscribers,
		r.FanOutFailedPosts,
		r.DeliveryFailures,
		r.DeliveriesCompleted,
		r.EngineIterations,
		r.EngineDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NotifySubscriptionCreated implements websub.NotificationService.
func (r *Recorder) NotifySubscriptionCreated(_ context.Context, _, _ string) error {
	r.SubscriptionsCreated.Inc()
	return nil
}

// NotifySubscriptionRemoved implements websub.NotificationService.
func (r *Recorder) NotifySubscriptionRemoved(_ context.Context, keys []string) error {
	r.SubscriptionsRemoved.Add(float64(len(keys)))
	return nil
}

// NotifyFanOut implements websub.NotificationService.
func (r *Recorder) NotifyFanOut(_ context.Context, _ string, subscribers, failed int) error {
	r.FanOutSubscribers.Observe(float64(subscribers))
	if failed > 0 {
		r.FanOutFailedPosts.Add(float64(failed))
	}
	return nil
}

// NotifyDeliveryFailure implements websub.NotificationService.
func (r *Recorder) NotifyDeliveryFailure(_ context.Context, _ model.OutboxJob, statusCode int, _ error) error {
	r.DeliveryFailures.WithLabelValues(statusClass(statusCode)).Inc()
	return nil
}

// NotifyDeliveryCompleted implements websub.NotificationService.
func (r *Recorder) NotifyDeliveryCompleted(_ context.Context, _ model.OutboxJob, state model.DeliveryState) error {
	r.DeliveriesCompleted.WithLabelValues(string(state)).Inc()
	return nil
}

// statusClass maps a status code to "2xx".."5xx", or "transport" when no
// response was received.
func statusClass(code int) string {
	switch {
	case code <= 0:
		return "transport"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

type instrumented struct {
	name   string
	engine websub.Engine
	r      *Recorder
}

// InstrumentEngine wraps engine so every iteration is counted by result and
// every non-empty iteration is timed.
func (r *Recorder) InstrumentEngine(name string, engine websub.Engine) websub.Engine {
	return &instrumented{name: name, engine: engine, r: r}
}

func (i *instrumented) Execute(ctx context.Context) (websub.Result, error) {
	start := time.Now()
	result, err := i.engine.Execute(ctx)

	label := result.String()
	if err != nil {
		label = "error"
	}
	i.r.EngineIterations.WithLabelValues(i.name, label).Inc()
	if result != websub.ResultNoJob {
		i.r.EngineDuration.WithLabelValues(i.name).Observe(time.Since(start).Seconds())
	}
	return result, err
}
