package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/websub"
	"github.com/coregx/websub/model"
)

var _ websub.SubscriptionStore = (*SubscriptionRepository)(nil)

// subscriptionRow is one stored subscription record. ObjectKey is the storage
// key produced by model.Target and Body the encoded record.
type subscriptionRow struct {
	ID        int64     `db:"id"`
	ObjectKey string    `db:"object_key"`
	Body      string    `db:"body"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SubscriptionRepository implements websub.SubscriptionStore using Relica.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
	now         func() time.Time
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return NewSubscriptionRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
		now:         time.Now,
	}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscriptions"
}

// Post implements websub.SubscriptionStore. An existing record under the
// same key is replaced.
func (r *SubscriptionRepository) Post(ctx context.Context, url string, target model.Target, expiration time.Duration) error {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}
	now := r.now()
	payload, err := model.EncodeSubscription(url, expiration, now)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to encode subscription", err)
	}

	row, err := r.load(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return r.create(ctx, key, payload, now)
	}
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to load subscription", err)
	}
	return r.update(ctx, row, payload, now)
}

// create inserts a new record. When the insert fails because a concurrent
// Post created the same key first, that record is updated instead.
func (r *SubscriptionRepository) create(ctx context.Context, key string, payload []byte, now time.Time) error {
	row := subscriptionRow{ObjectKey: key, Body: string(payload), UpdatedAt: now}
	// Insert using Model() API - auto-populates row.ID
	insertErr := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert()
	if insertErr == nil {
		return nil
	}

	existing, err := r.load(ctx, key)
	if err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to insert subscription", insertErr)
	}
	return r.update(ctx, existing, payload, now)
}

func (r *SubscriptionRepository) update(ctx context.Context, row subscriptionRow, payload []byte, now time.Time) error {
	row.Body = string(payload)
	row.UpdatedAt = now
	// Update using Model() API - auto WHERE id = ?
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeStore, "failed to update subscription", err)
	}
	return nil
}

// Search implements websub.SubscriptionStore.
//
// Pattern prefixes are listed with LIKE, which treats "_" as a wildcard, so
// every row is re-checked with model.IsDirectChild before decoding.
func (r *SubscriptionRepository) Search(ctx context.Context, target model.Target, layered bool) ([]model.Subscription, error) {
	prefixes, err := model.SearchPrefixes(target, layered)
	if err != nil {
		return nil, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}

	now := r.now()
	seen := make(map[string]struct{})
	var result []model.Subscription

	for _, prefix := range prefixes {
		rows, err := r.list(ctx, prefix)
		if err != nil {
			return nil, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to search subscriptions", err)
		}
		for _, row := range rows {
			if _, ok := seen[row.ObjectKey]; ok || !model.IsDirectChild(prefix, row.ObjectKey) {
				continue
			}
			seen[row.ObjectKey] = struct{}{}
			result = append(result, model.DecodeSubscription(row.ObjectKey, []byte(row.Body), now))
		}
	}
	return result, nil
}

// Delete implements websub.SubscriptionStore.
func (r *SubscriptionRepository) Delete(ctx context.Context, url string, target model.Target) (int, error) {
	key, err := target.SubscriberKey(url)
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeValidation, "invalid subscription target", err)
	}
	return r.deleteKey(ctx, key)
}

// BulkDelete implements websub.SubscriptionStore. Missing keys are skipped.
func (r *SubscriptionRepository) BulkDelete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := r.deleteKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *SubscriptionRepository) deleteKey(ctx context.Context, key string) (int, error) {
	row, err := r.load(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to load subscription", err)
	}

	// Delete using Model() API - auto WHERE id = ?
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeStore, "failed to delete subscription", err)
	}
	return 1, nil
}

func (r *SubscriptionRepository) load(ctx context.Context, key string) (subscriptionRow, error) {
	var row subscriptionRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("object_key = ?", key).
		One(&row)
	return row, err
}

// list returns the rows stored under prefix. An id prefix (no trailing
// separator) is an exact key.
func (r *SubscriptionRepository) list(ctx context.Context, prefix string) ([]subscriptionRow, error) {
	var rows []subscriptionRow

	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if isKeyPrefix(prefix) {
		q = q.Where("object_key LIKE ?", prefix+"%")
	} else {
		q = q.Where("object_key = ?", prefix)
	}

	err := q.OrderBy("object_key ASC").All(&rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rows, err
}

func isKeyPrefix(prefix string) bool {
	return len(prefix) > 0 && prefix[len(prefix)-1:] == model.KeySeparator
}
