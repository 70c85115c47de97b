/*
Copyright 2024 Carebridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

// WorkInput is what the time-tracking collaborator reports when a unit of
// work is confirmed complete. GrossClientCharge is optional; when zero the
// charge is computed from the configured billing rate for the service kind.
type WorkInput struct {
	PayeeID           string                 `json:"payee_id"`
	ClientID          string                 `json:"client_id"`
	WorkDate          time.Time              `json:"work_date"`
	HoursWorked       decimal.Decimal        `json:"hours_worked"`
	ServiceKind       string                 `json:"service_kind"`
	GrossClientCharge decimal.Decimal        `json:"gross_client_charge"`
	HasReferral       bool                   `json:"has_referral"`
	HasTrainingCenter bool                   `json:"has_training_center"`
	MetaData          map[string]interface{} `json:"meta_data,omitempty"`
}

// RecordWork prices a completed unit of work and appends it to the ledger as
// a pending entry. The split is computed once here, against the rate table in
// effect, and never recomputed; the record carries the pricing version that
// produced it.
func (e *Engine) RecordWork(ctx context.Context, input WorkInput) (*model.WorkRecord, error) {
	ctx, span := tracer.Start(ctx, "Recording completed work")
	defer span.End()

	if input.HoursWorked.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("hours worked cannot be negative, got %s", input.HoursWorked), nil)
	}

	payee, err := e.datasource.GetPayee(ctx, input.PayeeID)
	if err != nil {
		return nil, err
	}

	gross := input.GrossClientCharge
	if gross.IsZero() {
		gross, err = e.rules.GrossCharge(input.ServiceKind, input.HoursWorked)
		if err != nil {
			return nil, err
		}
	}

	split, err := e.rules.Split(gross, input.HoursWorked, input.ServiceKind, input.HasReferral, input.HasTrainingCenter)
	if err != nil {
		return nil, err
	}

	record := &model.WorkRecord{
		RecordID:            model.GenerateUUIDWithSuffix("wrk"),
		PayeeID:             payee.PayeeID,
		PayeeKind:           payee.Kind,
		ClientID:            input.ClientID,
		WorkDate:            input.WorkDate,
		HoursWorked:         input.HoursWorked,
		ServiceKind:         input.ServiceKind,
		GrossClientCharge:   gross,
		PayeeEarnings:       split.PayeeEarnings,
		MarketingCommission: split.MarketingCommission,
		TrainingCommission:  split.TrainingCommission,
		PlatformMargin:      split.PlatformMargin,
		Currency:            e.rules.Currency(),
		PricingVersion:      e.rules.Version(),
		PaymentStatus:       StatusPending,
		CreatedAt:           time.Now(),
		MetaData:            input.MetaData,
	}

	return e.datasource.RecordWorkRecord(ctx, record)
}

// GetWorkRecord retrieves a single ledger entry by ID.
func (e *Engine) GetWorkRecord(ctx context.Context, id string) (*model.WorkRecord, error) {
	return e.datasource.GetWorkRecord(ctx, id)
}

// GetWorkRecordsByPayee retrieves a payee's ledger entries, optionally
// filtered by payment status.
func (e *Engine) GetWorkRecordsByPayee(ctx context.Context, payeeID, status string) ([]*model.WorkRecord, error) {
	return e.datasource.GetWorkRecordsByPayee(ctx, payeeID, status)
}

// WriteOffWorkRecords is the operator path for pending earnings that will
// never be paid out, e.g. a disputed charge or a payee who left the
// platform. The records move from pending to failed with the reason on
// file; paid records are never touched.
func (e *Engine) WriteOffWorkRecords(ctx context.Context, ids []string, reason string) error {
	ctx, span := tracer.Start(ctx, "Writing off work records")
	defer span.End()

	if len(ids) == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "no work records given to write off", nil)
	}

	tx, err := e.datasource.BeginTx(ctx)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin write-off transaction", err)
	}

	records, err := e.datasource.LockWorkRecordsByID(ctx, tx, ids)
	if err != nil {
		e.rollback(tx)
		return err
	}
	if len(records) != len(ids) {
		e.rollback(tx)
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("%d of %d work records not found", len(ids)-len(records), len(ids)), nil)
	}

	if err := e.datasource.MarkWorkRecordsFailed(ctx, tx, ids, reason); err != nil {
		e.rollback(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit write-off transaction", err)
	}
	return nil
}

// PendingEarnings sums the payee earnings over a payee's pending ledger
// entries. This is the amount a caller should claim when requesting a
// settlement.
func (e *Engine) PendingEarnings(ctx context.Context, payeeID string) (decimal.Decimal, []*model.WorkRecord, error) {
	records, err := e.datasource.GetWorkRecordsByPayee(ctx, payeeID, StatusPending)
	if err != nil {
		return decimal.Zero, nil, err
	}
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.PayeeEarnings)
	}
	return total, records, nil
}
