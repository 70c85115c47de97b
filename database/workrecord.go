package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

const workRecordColumns = `record_id, payee_id, payee_kind, client_id, work_date, hours_worked, service_kind, gross_client_charge, payee_earnings, marketing_commission, training_commission, platform_margin, currency, pricing_version, payment_status, paid_at, external_transfer_reference, failure_reason, created_at, meta_data`

func scanWorkRecord(row interface{ Scan(...interface{}) error }) (*model.WorkRecord, error) {
	record := &model.WorkRecord{}
	var metaDataJSON []byte
	var paidAt sql.NullTime
	var externalRef, failureReason sql.NullString
	err := row.Scan(
		&record.RecordID,
		&record.PayeeID,
		&record.PayeeKind,
		&record.ClientID,
		&record.WorkDate,
		&record.HoursWorked,
		&record.ServiceKind,
		&record.GrossClientCharge,
		&record.PayeeEarnings,
		&record.MarketingCommission,
		&record.TrainingCommission,
		&record.PlatformMargin,
		&record.Currency,
		&record.PricingVersion,
		&record.PaymentStatus,
		&paidAt,
		&externalRef,
		&failureReason,
		&record.CreatedAt,
		&metaDataJSON,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		record.PaidAt = &paidAt.Time
	}
	record.ExternalTransferReference = externalRef.String
	record.FailureReason = failureReason.String
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &record.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return record, nil
}

func (d Datasource) RecordWorkRecord(ctx context.Context, record *model.WorkRecord) (*model.WorkRecord, error) {
	ctx, span := otel.Tracer("workrecord.database").Start(ctx, "Saving work record to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(record.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO work_records(record_id,payee_id,payee_kind,client_id,work_date,hours_worked,service_kind,gross_client_charge,payee_earnings,marketing_commission,training_commission,platform_margin,currency,pricing_version,payment_status,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		record.RecordID, record.PayeeID, record.PayeeKind, record.ClientID, record.WorkDate, record.HoursWorked, record.ServiceKind, record.GrossClientCharge, record.PayeeEarnings, record.MarketingCommission, record.TrainingCommission, record.PlatformMargin, record.Currency, record.PricingVersion, record.PaymentStatus, record.CreatedAt, metaDataJSON,
	)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record work record", err)
	}

	return record, nil
}

func (d Datasource) GetWorkRecord(ctx context.Context, id string) (*model.WorkRecord, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM work_records
		WHERE record_id = $1
	`, workRecordColumns), id)

	record, err := scanWorkRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Work record with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve work record", err)
	}
	return record, nil
}

func (d Datasource) GetWorkRecordsByPayee(ctx context.Context, payeeID, status string) ([]*model.WorkRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM work_records
		WHERE payee_id = $1
	`, workRecordColumns)
	args := []interface{}{payeeID}
	if status != "" {
		query += ` AND payment_status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY work_date ASC, record_id ASC`

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve work records", err)
	}
	defer rows.Close()

	var records []*model.WorkRecord
	for rows.Next() {
		record, err := scanWorkRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan work record data", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over work records", err)
	}
	return records, nil
}

func (d Datasource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	return tx, nil
}

// LockPendingWorkRecords acquires a pessimistic row lock on every pending
// work record of the payee. A concurrent settlement for the same payee
// blocks here until the first transaction commits or rolls back, then reads
// the pending set as it stands afterwards. Ordering by work date then record
// ID keeps idempotency-key derivation stable across retries.
func (d Datasource) LockPendingWorkRecords(ctx context.Context, tx *sql.Tx, payeeID string) ([]*model.WorkRecord, error) {
	ctx, span := otel.Tracer("workrecord.database").Start(ctx, "Locking pending work records")
	defer span.End()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM work_records
		WHERE payee_id = $1 AND payment_status = 'pending'
		ORDER BY work_date ASC, record_id ASC
		FOR UPDATE
	`, workRecordColumns), payeeID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock pending work records", err)
	}
	defer rows.Close()

	var records []*model.WorkRecord
	for rows.Next() {
		record, err := scanWorkRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan work record data", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over work records", err)
	}
	return records, nil
}

// LockWorkRecordsByID locks an explicit record set. Used by reconciliation,
// which re-acquires the same lock path as settlement before touching records
// referenced by an in-doubt attempt.
func (d Datasource) LockWorkRecordsByID(ctx context.Context, tx *sql.Tx, ids []string) ([]*model.WorkRecord, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM work_records
		WHERE record_id = ANY($1)
		ORDER BY work_date ASC, record_id ASC
		FOR UPDATE
	`, workRecordColumns), pq.Array(ids))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock work records", err)
	}
	defer rows.Close()

	var records []*model.WorkRecord
	for rows.Next() {
		record, err := scanWorkRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan work record data", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over work records", err)
	}
	return records, nil
}

// MarkWorkRecordsPaid transitions records from pending to paid within the
// caller's transaction. Rows not currently pending are left untouched: if
// they were already paid with the same transfer reference the call is an
// idempotent success, otherwise it fails with ALREADY_SETTLED and the caller
// must roll back.
func (d Datasource) MarkWorkRecordsPaid(ctx context.Context, tx *sql.Tx, ids []string, externalReference string, paidAt time.Time) error {
	ctx, span := otel.Tracer("workrecord.database").Start(ctx, "Marking work records paid")
	defer span.End()

	result, err := tx.ExecContext(ctx, `
		UPDATE work_records
		SET payment_status = 'paid', paid_at = $2, external_transfer_reference = $3, failure_reason = NULL
		WHERE record_id = ANY($1) AND payment_status = 'pending'
	`, pq.Array(ids), paidAt, externalReference)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark work records paid", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == int64(len(ids)) {
		return nil
	}

	// The count runs in the caller's transaction, so it also sees the rows
	// the UPDATE above just transitioned. Every id paid under this reference
	// means the missing transitions were the same settlement replayed.
	var paidUnderReference int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM work_records
		WHERE record_id = ANY($1) AND payment_status = 'paid' AND external_transfer_reference = $2
	`, pq.Array(ids), externalReference).Scan(&paidUnderReference)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check settled work records", err)
	}

	if paidUnderReference == int64(len(ids)) {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrAlreadySettled,
		fmt.Sprintf("%d of %d work records were already settled under a different transfer reference", int64(len(ids))-paidUnderReference, len(ids)), nil)
}

// MarkWorkRecordsFailed transitions records from pending to failed. Paid
// records are never touched.
func (d Datasource) MarkWorkRecordsFailed(ctx context.Context, tx *sql.Tx, ids []string, reason string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE work_records
		SET payment_status = 'failed', failure_reason = $2
		WHERE record_id = ANY($1) AND payment_status = 'pending'
	`, pq.Array(ids), reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark work records failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected != int64(len(ids)) {
		return apierror.NewAPIError(apierror.ErrAlreadySettled,
			fmt.Sprintf("%d of %d work records were not in pending state", int64(len(ids))-rowsAffected, len(ids)), nil)
	}
	return nil
}
