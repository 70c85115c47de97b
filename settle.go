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
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
	"github.com/carebridge/settlement/transfer"
)

var tracer = otel.Tracer("settlement.engine")

// SettleResult is the caller-facing outcome of a settlement request.
type SettleResult struct {
	Status            string          `json:"status"`
	PayeeID           string          `json:"payee_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	EntryIDs          []string        `json:"entry_ids"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Reason            string          `json:"reason,omitempty"`
}

// Settle pays out a payee's pending earnings.
//
// The pending set is row-locked inside a database transaction, so two
// concurrent calls for the same payee serialize: the second blocks until the
// first commits, then finds nothing pending. The caller-claimed amount is a
// consistency check against stale state, never the authoritative figure. The
// transfer submission carries an idempotency key derived from the payee and
// the locked entry set, so a crash-and-retry of the same logical settlement
// collapses at the processor.
//
// Entries transition to paid only in the same transaction that observed a
// definitive success. A rejection or an in-doubt outcome rolls the ledger
// back untouched and appends its audit record on the main connection, so the
// audit row survives the rollback.
func (e *Engine) Settle(ctx context.Context, payeeID string, claimedAmount decimal.Decimal) (*SettleResult, error) {
	ctx, span := tracer.Start(ctx, "Settling payee earnings")
	defer span.End()

	payee, err := e.datasource.GetPayee(ctx, payeeID)
	if err != nil {
		return nil, err
	}

	tx, err := e.datasource.BeginTx(ctx)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin settlement transaction", err)
	}

	records, err := e.datasource.LockPendingWorkRecords(ctx, tx, payeeID)
	if err != nil {
		e.rollback(tx)
		return nil, err
	}

	if len(records) == 0 {
		e.rollback(tx)
		return nil, apierror.NewAPIError(apierror.ErrNoPendingEarnings,
			fmt.Sprintf("payee %s has no pending earnings to settle", payeeID), nil)
	}

	aggregate := decimal.Zero
	entryIDs := make([]string, 0, len(records))
	for _, record := range records {
		aggregate = aggregate.Add(record.PayeeEarnings)
		entryIDs = append(entryIDs, record.RecordID)
	}

	// Validation failures release the lock with no side effects: no transfer
	// is submitted and no audit record is written for a request that never
	// reached the processor.
	if aggregate.Sub(claimedAmount).Abs().GreaterThan(AmountTolerance) {
		e.rollback(tx)
		return nil, apierror.NewAPIError(apierror.ErrAmountMismatch,
			fmt.Sprintf("claimed amount %s does not match pending earnings %s", claimedAmount, aggregate), nil)
	}
	if aggregate.LessThanOrEqual(decimal.Zero) {
		e.rollback(tx)
		return nil, apierror.NewAPIError(apierror.ErrNonPositiveAmount,
			fmt.Sprintf("pending earnings for payee %s sum to %s, nothing to transfer", payeeID, aggregate), nil)
	}
	if !payee.PayoutReady() {
		e.rollback(tx)
		return nil, apierror.NewAPIError(apierror.ErrPayeeNotOnboarded,
			fmt.Sprintf("payee %s has no verified external account", payeeID), nil)
	}

	idempotencyKey := model.DeriveIdempotencyKey(payeeID, entryIDs)
	currency := e.rules.Currency()

	response, transferErr := e.transfer.CreateTransfer(ctx, transfer.Request{
		Amount:         aggregate,
		Currency:       currency,
		Destination:    payee.ExternalAccountReference,
		IdempotencyKey: idempotencyKey,
		MetaData: map[string]interface{}{
			"payee_id":    payeeID,
			"entry_count": len(entryIDs),
		},
	})

	result := &SettleResult{
		PayeeID:        payeeID,
		Amount:         aggregate,
		Currency:       currency,
		EntryIDs:       entryIDs,
		IdempotencyKey: idempotencyKey,
	}

	switch {
	case transferErr == nil:
		return e.confirmSettlement(ctx, tx, result, response)
	default:
		e.rollback(tx)
		var rejected transfer.RejectedError
		if errors.As(transferErr, &rejected) {
			return e.recordRejection(ctx, result, rejected)
		}
		// ErrInDoubt, or anything else the client could not classify. Treat
		// unknowns conservatively: the money may have moved.
		return e.recordInDoubt(ctx, result, transferErr)
	}
}

// confirmSettlement applies a definitive processor success: paid transitions
// and the success audit record commit atomically.
func (e *Engine) confirmSettlement(ctx context.Context, tx *sql.Tx, result *SettleResult, response *transfer.Response) (*SettleResult, error) {
	now := time.Now()
	if err := e.datasource.MarkWorkRecordsPaid(ctx, tx, result.EntryIDs, response.ID, now); err != nil {
		// The transfer succeeded but the ledger could not record it. Roll
		// back and leave an in-doubt attempt, so reconciliation replays the
		// paid transition instead of the money movement being lost.
		e.rollback(tx)
		return e.recordInDoubt(ctx, result, errors.Wrap(err, "transfer confirmed but ledger update failed"))
	}

	attempt := e.newAttempt(result, OutcomeSuccess, response.ID, "")
	if _, err := e.datasource.RecordSettlementAttemptInTx(ctx, tx, attempt); err != nil {
		e.rollback(tx)
		return e.recordInDoubt(ctx, result, errors.Wrap(err, "transfer confirmed but audit append failed"))
	}

	if err := tx.Commit(); err != nil {
		return e.recordInDoubt(ctx, result, errors.Wrap(err, "transfer confirmed but commit failed"))
	}

	result.Status = OutcomeSuccess
	result.ExternalReference = response.ID

	if err := SendWebhook(NewWebhook{Event: getEventFromOutcome(OutcomeSuccess), Payload: result}); err != nil {
		logrus.Errorf("failed to enqueue settlement webhook for %s: %v", result.PayeeID, err)
	}
	return result, nil
}

// recordRejection appends a failed attempt after the ledger rollback. The
// entries stay pending; a definitive refusal moved no money.
func (e *Engine) recordRejection(ctx context.Context, result *SettleResult, rejected transfer.RejectedError) (*SettleResult, error) {
	result.Status = OutcomeFailed
	result.Reason = rejected.Error()

	attempt := e.newAttempt(result, OutcomeFailed, "", rejected.Error())
	if _, err := e.datasource.RecordSettlementAttempt(ctx, attempt); err != nil {
		logrus.Errorf("failed to record rejected settlement attempt for %s: %v", result.PayeeID, err)
	}

	if err := SendWebhook(NewWebhook{Event: getEventFromOutcome(OutcomeFailed), Payload: result}); err != nil {
		logrus.Errorf("failed to enqueue settlement webhook for %s: %v", result.PayeeID, err)
	}
	return result, nil
}

// recordInDoubt appends an in-doubt attempt after the ledger rollback. The
// entries stay pending but must not be re-submitted under a different key
// until the outcome is resolved; the recorded idempotency key is the handle
// reconciliation resolves against.
func (e *Engine) recordInDoubt(ctx context.Context, result *SettleResult, cause error) (*SettleResult, error) {
	result.Status = OutcomeInDoubt
	result.Reason = cause.Error()

	attempt := e.newAttempt(result, OutcomeInDoubt, "", cause.Error())
	if _, err := e.datasource.RecordSettlementAttempt(ctx, attempt); err != nil {
		// Failing to durably record an in-doubt submission is the one state
		// this engine cannot recover from on its own.
		logrus.Errorf("CRITICAL: failed to record in-doubt settlement attempt for %s (key %s): %v", result.PayeeID, result.IdempotencyKey, err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record in-doubt settlement attempt", err)
	}

	if err := SendWebhook(NewWebhook{Event: getEventFromOutcome(OutcomeInDoubt), Payload: result}); err != nil {
		logrus.Errorf("failed to enqueue settlement webhook for %s: %v", result.PayeeID, err)
	}
	return result, nil
}

func (e *Engine) newAttempt(result *SettleResult, outcome, externalReference, reason string) *model.SettlementAttempt {
	return &model.SettlementAttempt{
		AttemptID:         model.GenerateUUIDWithSuffix("sat"),
		PayeeID:           result.PayeeID,
		RequestedAmount:   result.Amount,
		Currency:          result.Currency,
		EntryIDs:          result.EntryIDs,
		IdempotencyKey:    result.IdempotencyKey,
		ExternalReference: externalReference,
		Outcome:           outcome,
		Reason:            reason,
		CreatedAt:         time.Now(),
	}
}

func (e *Engine) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logrus.Errorf("settlement transaction rollback failed: %v", err)
	}
}

// SettlementHistory returns a payee's audit trail, newest first.
func (e *Engine) SettlementHistory(ctx context.Context, payeeID string, limit, offset int) ([]*model.SettlementAttempt, error) {
	return e.datasource.GetSettlementAttemptsByPayee(ctx, payeeID, limit, offset)
}

// GetAttemptsByIdempotencyKey returns the full history of one logical
// settlement, oldest first.
func (e *Engine) GetAttemptsByIdempotencyKey(ctx context.Context, key string) ([]*model.SettlementAttempt, error) {
	return e.datasource.GetSettlementAttemptsByIdempotencyKey(ctx, key)
}
