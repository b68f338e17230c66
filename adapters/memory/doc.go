// Package memory provides in-process implementations of the hub collaborators:
// a SubscriptionStore backed by a map and a lease-based JobQueue.
//
// They are used by tests, by the basic example and by the hub binary when
// HUB_STORE_DRIVER / HUB_QUEUE_DRIVER are set to "memory". State is lost on
// restart.
package memory
