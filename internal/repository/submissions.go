package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubmissionsRepository is the caller-keyed idempotency store for purchase
// submissions. Keys are scoped by caller fingerprint.
type SubmissionsRepository interface {
	// Reserve records key as in flight. If the key already exists the stored
	// submission is returned and reserved is false.
	Reserve(ctx context.Context, caller, key string, rail model.Rail) (existing model.Submission, reserved bool, err error)
	Complete(ctx context.Context, caller, key string, result []byte) error
	// MarkUnknown flags a submission whose transport failed; its outcome
	// cannot be known locally.
	MarkUnknown(ctx context.Context, caller, key string) error
	// Release drops an in-flight reservation that never reached the remote.
	Release(ctx context.Context, caller, key string) error
}

type SubmissionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubmissionsRepository(db *sqlx.DB) *SubmissionsRepositoryImpl {
	return &SubmissionsRepositoryImpl{db: db}
}

func (r *SubmissionsRepositoryImpl) Reserve(ctx context.Context, caller, key string, rail model.Rail) (model.Submission, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_submissions (caller, idempotency_key, rail, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, UTC_TIMESTAMP(6), UTC_TIMESTAMP(6))
		ON DUPLICATE KEY UPDATE id = id
	`, caller, key, rail.String(), model.SubmissionInFlight)
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("reserve submission: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.Submission{}, false, err
	}
	if n == 1 {
		return model.Submission{}, true, nil
	}

	var s model.Submission
	err = r.db.GetContext(ctx, &s, `
		SELECT idempotency_key, caller, rail, state, result, created_at, updated_at
		FROM purchase_submissions
		WHERE caller = ? AND idempotency_key = ?
	`, caller, key)
	if errors.Is(err, sql.ErrNoRows) {
		// released between the insert and the read; the caller may try again
		return model.Submission{}, false, fmt.Errorf("submission %s vanished", key)
	}
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("load submission: %w", err)
	}
	return s, false, nil
}

func (r *SubmissionsRepositoryImpl) Complete(ctx context.Context, caller, key string, result []byte) error {
	return r.setState(ctx, caller, key, model.SubmissionCompleted, result)
}

func (r *SubmissionsRepositoryImpl) MarkUnknown(ctx context.Context, caller, key string) error {
	return r.setState(ctx, caller, key, model.SubmissionUnknown, nil)
}

func (r *SubmissionsRepositoryImpl) Release(ctx context.Context, caller, key string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM purchase_submissions
		WHERE caller = ? AND idempotency_key = ? AND state = ?
	`, caller, key, model.SubmissionInFlight)
	return err
}

func (r *SubmissionsRepositoryImpl) setState(ctx context.Context, caller, key string, st model.SubmissionState, result []byte) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE purchase_submissions
		SET state = ?, result = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE caller = ? AND idempotency_key = ?
	`, st, result, caller, key)
	if err != nil {
		return fmt.Errorf("update submission %s: %w", key, err)
	}
	return nil
}
