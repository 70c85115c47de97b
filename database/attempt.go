package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/carebridge/settlement/cache"
	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

const attemptColumns = `attempt_id, payee_id, requested_amount, currency, entry_ids, idempotency_key, external_reference, outcome, reason, created_at`

const insertAttemptQuery = `INSERT INTO settlement_attempts(attempt_id,payee_id,requested_amount,currency,entry_ids,idempotency_key,external_reference,outcome,reason,created_at) VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''),$10)`

func scanSettlementAttempt(row interface{ Scan(...interface{}) error }) (*model.SettlementAttempt, error) {
	attempt := &model.SettlementAttempt{}
	var externalRef, reason sql.NullString
	err := row.Scan(
		&attempt.AttemptID,
		&attempt.PayeeID,
		&attempt.RequestedAmount,
		&attempt.Currency,
		pq.Array(&attempt.EntryIDs),
		&attempt.IdempotencyKey,
		&externalRef,
		&attempt.Outcome,
		&reason,
		&attempt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	attempt.ExternalReference = externalRef.String
	attempt.Reason = reason.String
	return attempt, nil
}

// RecordSettlementAttempt appends an audit record on the main connection.
// Used for outcomes recorded outside a ledger transaction: a rejected or
// in-doubt settlement appends its attempt after the ledger transaction has
// rolled back, so the audit row survives the rollback.
func (d Datasource) RecordSettlementAttempt(ctx context.Context, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error) {
	ctx, span := otel.Tracer("attempt.database").Start(ctx, "Recording settlement attempt")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, insertAttemptQuery,
		attempt.AttemptID, attempt.PayeeID, attempt.RequestedAmount, attempt.Currency, pq.Array(attempt.EntryIDs), attempt.IdempotencyKey, attempt.ExternalReference, attempt.Outcome, attempt.Reason, attempt.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record settlement attempt", err)
	}
	return attempt, nil
}

// RecordSettlementAttemptInTx appends an audit record inside the ledger
// transaction, so a confirmed settlement commits its paid transitions and
// its audit row atomically.
func (d Datasource) RecordSettlementAttemptInTx(ctx context.Context, tx *sql.Tx, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error) {
	_, err := tx.ExecContext(ctx, insertAttemptQuery,
		attempt.AttemptID, attempt.PayeeID, attempt.RequestedAmount, attempt.Currency, pq.Array(attempt.EntryIDs), attempt.IdempotencyKey, attempt.ExternalReference, attempt.Outcome, attempt.Reason, attempt.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record settlement attempt", err)
	}
	return attempt, nil
}

func (d Datasource) GetSettlementAttemptsByPayee(ctx context.Context, payeeID string, limit, offset int) ([]*model.SettlementAttempt, error) {
	ctx, span := otel.Tracer("attempt.database").Start(ctx, "Fetching settlement attempts by payee")
	defer span.End()

	cacheKey := cache.HistoryKey(payeeID, limit, offset)
	var attempts []*model.SettlementAttempt
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &attempts); err == nil && len(attempts) > 0 {
			return attempts, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM settlement_attempts
		WHERE payee_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, attemptColumns), payeeID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve settlement attempts", err)
	}
	defer rows.Close()

	attempts = []*model.SettlementAttempt{}
	for rows.Next() {
		attempt, err := scanSettlementAttempt(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan settlement attempt data", err)
		}
		attempts = append(attempts, attempt)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over settlement attempts", err)
	}

	if d.Cache != nil && len(attempts) > 0 {
		_ = d.Cache.Set(ctx, cacheKey, attempts, cache.HistoryTTL)
	}
	return attempts, nil
}

// GetSettlementAttemptsByIdempotencyKey returns the full history of a
// logical settlement, oldest first. Reconciliation reads this to decide
// whether an in-doubt attempt is still open.
func (d Datasource) GetSettlementAttemptsByIdempotencyKey(ctx context.Context, key string) ([]*model.SettlementAttempt, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM settlement_attempts
		WHERE idempotency_key = $1
		ORDER BY created_at ASC, id ASC
	`, attemptColumns), key)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve settlement attempts", err)
	}
	defer rows.Close()

	var attempts []*model.SettlementAttempt
	for rows.Next() {
		attempt, err := scanSettlementAttempt(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan settlement attempt data", err)
		}
		attempts = append(attempts, attempt)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over settlement attempts", err)
	}
	return attempts, nil
}

// HasResolvedAttempt reports whether the idempotency key already carries a
// definitive outcome: a synchronous success, or an appended resolution of an
// in-doubt attempt. Replayed processor events check this before acting.
func (d Datasource) HasResolvedAttempt(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM settlement_attempts
			WHERE idempotency_key = $1
			AND outcome IN ('success', 'resolved_success', 'resolved_failed')
		)
	`, key).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check settlement attempt resolution", err)
	}
	return exists, nil
}
