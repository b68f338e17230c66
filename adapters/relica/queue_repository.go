package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"
	"github.com/google/uuid"

	"github.com/coregx/websub"
)

var _ websub.JobQueue = (*QueueRepository)(nil)

// DefaultVisibilityTimeout is how long a fetched job stays hidden.
const DefaultVisibilityTimeout = 30 * time.Second

// claimAttempts bounds how often GetJob retries when another consumer wins
// the race for the same row.
const claimAttempts = 3

// jobRow is one queued job. VisibleAt is stored as Unix nanoseconds so the
// comparison is portable across MySQL, PostgreSQL and SQLite.
type jobRow struct {
	ID        int64     `db:"id"`
	Queue     string    `db:"queue"`
	Body      string    `db:"body"`
	Receipt   string    `db:"receipt"`
	VisibleAt int64     `db:"visible_at"`
	CreatedAt time.Time `db:"created_at"`
}

// QueueRepository implements websub.JobQueue on a SQL table. Several named
// queues (notifications, outbox) share one table.
type QueueRepository struct {
	db          *relica.DB
	tablePrefix string
	queue       string
	visibility  time.Duration
	now         func() time.Time
}

// NewQueueRepository creates the named queue with default table prefix.
func NewQueueRepository(sqlDB *sql.DB, driverName, queue string, visibility time.Duration) *QueueRepository {
	return NewQueueRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix, queue, visibility)
}

// NewQueueRepositoryWithPrefix creates the named queue with custom table prefix.
// A non-positive visibility selects DefaultVisibilityTimeout.
func NewQueueRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix, queue string, visibility time.Duration) *QueueRepository {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &QueueRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
		queue:       queue,
		visibility:  visibility,
		now:         time.Now,
	}
}

func (r *QueueRepository) tableName() string {
	return r.tablePrefix + "jobs"
}

// GetJob implements websub.JobQueue.
//
// The oldest visible row is claimed with a conditional update on its current
// receipt; if another consumer changed the receipt first the claim misses and
// the next candidate is tried.
func (r *QueueRepository) GetJob(ctx context.Context) (*websub.Job, error) {
	for i := 0; i < claimAttempts; i++ {
		now := r.now()

		var candidate jobRow
		err := r.db.WithContext(ctx).Select("*").
			From(r.tableName()).
			Where("queue = ? AND visible_at <= ?", r.queue, now.UnixNano()).
			OrderBy("visible_at ASC, id ASC").
			Limit(1).
			One(&candidate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to find visible job", err)
		}

		receipt := uuid.NewString()
		_, err = r.db.WithContext(ctx).Update(r.tableName()).
			Set(map[string]interface{}{
				"receipt":    receipt,
				"visible_at": now.Add(r.visibility).UnixNano(),
			}).
			Where("id = ? AND receipt = ?", candidate.ID, candidate.Receipt).
			Execute()
		if err != nil {
			return nil, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to lease job", err)
		}

		var claimed jobRow
		err = r.db.WithContext(ctx).Select("*").
			From(r.tableName()).
			Where("id = ? AND receipt = ?", candidate.ID, receipt).
			One(&claimed)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to read leased job", err)
		}

		return &websub.Job{ID: claimed.Receipt, Body: []byte(claimed.Body)}, nil
	}
	return nil, nil
}

// PostJob implements websub.JobQueue.
func (r *QueueRepository) PostJob(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	now := r.now()
	row := jobRow{
		Queue:     r.queue,
		Body:      string(body),
		VisibleAt: now.Add(delay).UnixNano(),
		CreatedAt: now,
	}

	// Insert using Model() API - auto-populates row.ID
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
		return websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to insert job", err)
	}
	return nil
}

// DeleteJob implements websub.JobQueue. A receipt superseded by a later
// lease no longer matches any row and returns false.
func (r *QueueRepository) DeleteJob(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	var row jobRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("queue = ? AND receipt = ?", r.queue, id).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to find leased job", err)
	}

	// Delete using Model() API - auto WHERE id = ?
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return false, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to delete job", err)
	}
	return true, nil
}

// Count returns the number of jobs in the queue, leased or not.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Select("COUNT(*)").
		From(r.tableName()).
		Where("queue = ?", r.queue).
		One(&count)
	if err != nil {
		return 0, websub.NewErrorWithCause(websub.ErrCodeQueue, "failed to count jobs", err)
	}
	return count, nil
}
