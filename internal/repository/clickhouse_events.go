package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHEventsRepository stores and lists purchase audit events in ClickHouse.
type CHEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.PurchaseEvent) error
	ListByCaller(ctx context.Context, caller string, rail model.Rail, status model.SettlementStatus, limit, offset int) ([]model.PurchaseEvent, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

const insertEvent = `
	INSERT INTO xlgw.purchase_events
		(id, caller, rail, operation, state, status, package_option_code, transaction_id, price, reason, error_kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertBatch writes events in one ClickHouse block: the driver buffers
// every Exec of a prepared insert until Commit.
func (r *chEventsRepository) InsertBatch(ctx context.Context, events []model.PurchaseEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Caller, e.Rail.String(), e.Operation, e.State.String(), e.Status.String(),
			e.PackageOptionCode, e.TransactionID, e.Price, e.Reason, e.ErrorKind, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("append event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (r *chEventsRepository) ListByCaller(ctx context.Context, caller string, rail model.Rail, status model.SettlementStatus, limit, offset int) ([]model.PurchaseEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, caller, rail, operation, state, status, package_option_code,
		       transaction_id, price, reason, error_kind, created_at
		FROM xlgw.purchase_events
		WHERE caller = ?
	`
	args := []any{caller}

	if rail != "" {
		q += " AND rail = ?"
		args = append(args, rail.String())
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.PurchaseEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
