package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	goredis "github.com/go-redis/redis/v8"

	"github.com/coregx/websub"
	"github.com/coregx/websub/adapters/memory"
	"github.com/coregx/websub/adapters/minio"
	"github.com/coregx/websub/adapters/redis"
	"github.com/coregx/websub/adapters/relica"
	"github.com/coregx/websub/cmd/websub-hub/internal/config"
)

// backends holds the storage selected by configuration.
type backends struct {
	store         websub.SubscriptionStore
	notifications websub.JobQueue
	outbox        websub.JobQueue
	closers       []io.Closer
}

func (b *backends) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openBackends(ctx context.Context, cfg *config.Config, logger websub.Logger) (*backends, error) {
	b := &backends{}

	var repos *relica.Repositories
	if cfg.Store.Driver == "sql" || cfg.Queue.Driver == "sql" {
		db, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db)
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix, cfg.Queue.VisibilityTimeout)
	}

	switch cfg.Store.Driver {
	case "sql":
		b.store = repos.Subscriptions
	case "minio":
		store, err := minio.New(minio.Config{
			Endpoint:        cfg.Minio.Endpoint,
			AccessKeyID:     cfg.Minio.AccessKeyID,
			SecretAccessKey: cfg.Minio.SecretAccessKey,
			UseSSL:          cfg.Minio.UseSSL,
			Bucket:          cfg.Minio.Bucket,
		})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.store = store
	default:
		b.store = memory.NewSubscriptionStore()
	}

	switch cfg.Queue.Driver {
	case "sql":
		b.notifications = repos.Notifications
		b.outbox = repos.Outbox
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = b.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		b.closers = append(b.closers, client)
		opts := []redis.Option{
			redis.WithNamespace(cfg.Redis.Namespace),
			redis.WithVisibilityTimeout(cfg.Queue.VisibilityTimeout),
		}
		b.notifications = redis.NewJobQueue(client, relica.NotificationQueue, opts...)
		b.outbox = redis.NewJobQueue(client, relica.OutboxQueue, opts...)
	default:
		b.notifications = memory.NewJobQueue(memory.WithVisibilityTimeout(cfg.Queue.VisibilityTimeout))
		b.outbox = memory.NewJobQueue(memory.WithVisibilityTimeout(cfg.Queue.VisibilityTimeout))
	}

	if cfg.Mode != config.ModeAll && (cfg.Store.Driver == "memory" || cfg.Queue.Driver == "memory") {
		logger.Warnf("Mode %q with in-memory storage: state is not shared with other hub processes", cfg.Mode)
	}
	return b, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger websub.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Infof("Database connection established (%s)", cfg.Driver)

	if !cfg.Migrate {
		return db, nil
	}
	statements, err := websub.MigrationStatements(cfg.Driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	logger.Infof("Schema applied (%d statements)", len(statements))
	return db, nil
}
