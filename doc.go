// Package websub provides a WebSub-style notification hub for Go applications.
//
// Subscribers register a callback URL against a hierarchical topic pattern. Publishers
// post notifications to a queue. Background engines fan each notification out to every
// matching subscriber and deliver the callbacks with bounded, jittered retries.
//
// # Features
//
//   - Hierarchical topic patterns with trailing ".*" wildcards (UN.CEFACT.TRADE.*)
//   - Layered matching: a notification reaches subscribers of every parent level
//   - Lease-based job queues with at-least-once delivery
//   - Bounded retry with random jitter (no dead letter queue)
//   - Pluggable storage: in-memory, SQL via Relica (MySQL/PostgreSQL/SQLite), MinIO/S3
//   - Pluggable queues: in-memory, SQL via Relica, Redis
//   - Prometheus metrics through the NotificationService hooks
//   - Standalone hub binary with an HTTP subscription API
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
//	import (
//	    "github.com/coregx/websub"
//	    "github.com/coregx/websub/adapters/relica"
//	    "github.com/coregx/websub/model"
//	)
//
//	repos := relica.NewRepositories(db, "mysql", 30*time.Second)
//
//	manager, _ := websub.NewSubscriptionManager(repos.Subscriptions,
//	    websub.WithLogger(myLogger),
//	)
//	_ = manager.Subscribe(ctx, "https://example.com/callback",
//	    model.Pattern("UN.CEFACT.TRADE.*"), 24*time.Hour)
//
//	publisher, _ := websub.NewPublisher(repos.Notifications)
//	_ = publisher.Publish(ctx, websub.PublishRequest{
//	    Predicate: "UN.CEFACT.TRADE.CO.created",
//	    Message:   json.RawMessage(`{"id": "CO-1"}`),
//	})
//
//	dispatcher, _ := websub.NewDispatcher(repos.Notifications, repos.Outbox, repos.Subscriptions)
//	deliverer, _ := websub.NewDeliverer(repos.Outbox, websub.NewHTTPCallbackGateway())
//
//	for _, engine := range []websub.Engine{dispatcher, deliverer} {
//	    p, _ := websub.NewProcessor(engine)
//	    go p.Run(ctx)
//	}
//
// # Option 2: As Standalone Service
//
//	go run ./cmd/websub-hub
//
//	# Configure via HUB_* environment variables or HUB_CONFIG_FILE
//	HUB_STORE_DRIVER=minio HUB_QUEUE_DRIVER=redis HUB_MODE=all ./websub-hub
//
// HUB_MODE selects the roles of the process: all, api, fanout or delivery.
//
// # Architecture
//
//	POST /subscriptions ──► SubscriptionManager ──► SubscriptionStore
//
//	POST /publish ──► Publisher ──► notification queue
//	                                     │
//	                                     ▼
//	                      Dispatcher (reads SubscriptionStore)
//	                                     │ one job per subscriber
//	                                     ▼
//	                               delivery outbox
//	                                     │
//	                                     ▼
//	                       Deliverer ──► CallbackGateway ──► subscriber
//
// Dispatcher and Deliverer implement Engine and process at most one job per
// Execute call. A Processor runs an Engine in a loop and sleeps for the idle
// interval when the queue is empty.
//
// # Topic Patterns and Storage Keys
//
// A pattern is upper-cased and its levels joined with "/", so "aa.bb.cc.*" is stored
// under "AA/BB/CC/". A subscription key is the pattern key followed by the MD5 digest
// of the callback URL. A notification on "AA.BB.CC.DD" is delivered to the direct
// children of "AA/", "AA/BB/", "AA/BB/CC/" and "AA/BB/CC/DD/". Subscriptions may also
// be stored under an opaque model.ID, which matches only itself.
//
// # Retry Strategy
//
// A failed callback (transport error or non-2xx status) is re-posted to the outbox
// with an incremented retry counter and a random delay:
//
//	Attempt 1: Immediate
//	Attempt 2: +1..10 seconds
//	Attempt 3: +1..10 seconds (dropped if this fails)
//
// The number of retries is set with WithMaxRetries (default 2).
//
// # Database Schema
//
// The SQL adapters use 2 tables, shipped as embedded migrations in MigrationFiles:
//
//	websub_subscriptions  - Subscription records keyed by storage key
//	websub_jobs           - Notification queue and delivery outbox jobs with leases
//
// Table prefix can be customized with the *WithPrefix constructors (default: "websub_").
//
// # Examples
//
// See examples/basic for a complete hub running on SQLite in one process.
package websub
