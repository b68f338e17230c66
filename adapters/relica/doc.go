// Package relica provides SQL implementations of the hub storage interfaces
// using the Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides:
//   - SubscriptionRepository (websub.SubscriptionStore), one row per storage key
//   - QueueRepository (websub.JobQueue), a lease-based queue on a shared jobs table
//
// The schema is embedded in websub.MigrationFiles.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/websub"
//	    "github.com/coregx/websub/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/websub?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql", 30*time.Second)
//
//	dispatcher, err := websub.NewDispatcher(repos.Notifications, repos.Outbox, repos.Subscriptions,
//	    websub.WithLogger(logger),
//	)
package relica
