package relica

import (
	"database/sql"
	"time"
)

// DefaultTablePrefix is prepended to every table name.
const DefaultTablePrefix = "websub_"

// Queue names stored in the shared jobs table.
const (
	NotificationQueue = "notifications"
	OutboxQueue       = "outbox"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Subscriptions *SubscriptionRepository
	Notifications *QueueRepository
	Outbox        *QueueRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "websub_" but can be customized.
func NewRepositories(db *sql.DB, driverName string, visibility time.Duration) *Repositories {
	return NewRepositoriesWithPrefix(db, driverName, DefaultTablePrefix, visibility)
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string, visibility time.Duration) *Repositories {
	return &Repositories{
		Subscriptions: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		Notifications: NewQueueRepositoryWithPrefix(db, driverName, prefix, NotificationQueue, visibility),
		Outbox:        NewQueueRepositoryWithPrefix(db, driverName, prefix, OutboxQueue, visibility),
	}
}
