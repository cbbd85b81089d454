package db

import (
	"context"
	"time"

	"powerwatch/internal/types"
)

// DigestLockRepository guards a digest slot against double delivery when the
// same trigger fires more than once (for example a retried Lambda invocation).
type DigestLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewDigestLockRepository creates a DigestLockRepository.
func NewDigestLockRepository(db DBTX, clock types.Clock) *DigestLockRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &DigestLockRepository{db: db, clock: clock}
}

// Acquire inserts a lock row for lockID (e.g. "weekly:2025-03-10"). It
// returns false when an unexpired lock already exists. An expired lock is
// taken over.
func (r *DigestLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()

	tag, err := r.db.Exec(ctx,
		`INSERT INTO digest_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE digest_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeStoreWrite, "failed to acquire digest lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DigestRunRepository records each digest generation for operational visibility.
type DigestRunRepository struct {
	db DBTX
}

// NewDigestRunRepository creates a DigestRunRepository.
func NewDigestRunRepository(db DBTX) *DigestRunRepository {
	return &DigestRunRepository{db: db}
}

// Start inserts a running entry and returns its id.
func (r *DigestRunRepository) Start(ctx context.Context, kind types.DigestKind) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO digest_runs (kind, started_at, status)
		 VALUES ($1, NOW(), 'running')
		 RETURNING id`,
		string(kind),
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeStoreWrite, "failed to start digest run", err)
	}
	return id, nil
}

// Finish stores the outcome of a run. status is "success" or "failed".
func (r *DigestRunRepository) Finish(ctx context.Context, id int64, status string, runErr error) error {
	var errMsg *string
	if runErr != nil {
		s := runErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE digest_runs
		 SET finished_at = NOW(), status = $2, error = $3
		 WHERE id = $1`,
		id,
		status,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeStoreWrite, "failed to finish digest run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "digest run not found", nil)
	}
	return nil
}
