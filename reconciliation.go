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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/settlement/internal/apierror"
	redlock "github.com/carebridge/settlement/internal/lock"
	"github.com/carebridge/settlement/model"
)

// Transfer processor event types the reconciliation listener acts on.
const (
	EventTransferSucceeded = "transfer.succeeded"
	EventTransferFailed    = "transfer.failed"
)

// TransferEvent is a notification from the transfer processor about the final
// outcome of a submission. Delivery is at-least-once and unordered; the
// idempotency key ties the event back to the settlement attempt that
// submitted it.
type TransferEvent struct {
	Type              string          `json:"type"`
	IdempotencyKey    string          `json:"idempotency_key"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
}

// QueueTransferEvent hands a processor event to the reconciliation queue.
// The API layer calls this so webhook deliveries are acknowledged fast and
// processed off the request path.
func (e *Engine) QueueTransferEvent(ctx context.Context, event TransferEvent) error {
	return e.queue.EnqueueReconciliationEvent(ctx, event)
}

// ProcessTransferEvent is the asynq handler for queued processor events.
func (e *Engine) ProcessTransferEvent(ctx context.Context, task *asynq.Task) error {
	var event TransferEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		logrus.Errorf("Error unmarshaling transfer event payload: %v", err)
		return err
	}
	return e.ReconcileTransferEvent(ctx, event)
}

// ReconcileTransferEvent resolves an in-doubt settlement attempt against the
// processor's definitive outcome.
//
// The operation is idempotent: a key that already carries a definitive
// outcome is acknowledged without side effects, so replayed deliveries are
// harmless. On success, entries still pending from the attempt's snapshot are
// marked paid in the same transaction that appends the resolved_success
// record; a failure event appends resolved_failed and leaves the entries
// pending for a future settlement under a new key.
func (e *Engine) ReconcileTransferEvent(ctx context.Context, event TransferEvent) error {
	ctx, span := tracer.Start(ctx, "Reconciling transfer event")
	defer span.End()

	if event.Type != EventTransferSucceeded && event.Type != EventTransferFailed {
		logrus.Warnf("ignoring transfer event with unknown type %q (key %s)", event.Type, event.IdempotencyKey)
		return nil
	}
	if event.IdempotencyKey == "" {
		logrus.Warn("ignoring transfer event without an idempotency key")
		return nil
	}

	// Serialize concurrent replays of events for the same key. The row lock
	// inside the transaction below is the authoritative guard; this keeps
	// duplicate deliveries from burning transactions on conflict.
	locker := redlock.ForSettlement(e.redis, event.IdempotencyKey)
	if err := locker.WaitLock(ctx, redlock.SettlementLockTTL, redlock.SettlementLockWait); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release reconciliation lock for %s: %v", event.IdempotencyKey, err)
		}
	}()

	resolved, err := e.datasource.HasResolvedAttempt(ctx, event.IdempotencyKey)
	if err != nil {
		return err
	}
	if resolved {
		logrus.Infof("transfer event for %s already resolved, acknowledging replay", event.IdempotencyKey)
		return nil
	}

	attempt, err := e.openInDoubtAttempt(ctx, event.IdempotencyKey)
	if err != nil {
		return err
	}
	if attempt == nil {
		// Either the key is unknown or the synchronous path already recorded
		// a definitive outcome. Nothing to resolve.
		logrus.Infof("no open in-doubt attempt for key %s, ignoring event", event.IdempotencyKey)
		return nil
	}

	switch event.Type {
	case EventTransferSucceeded:
		return e.resolveSucceeded(ctx, attempt, event)
	default:
		return e.resolveFailed(ctx, attempt, event)
	}
}

// openInDoubtAttempt returns the latest in-doubt attempt for the key, or nil
// when the key has no attempt awaiting resolution.
func (e *Engine) openInDoubtAttempt(ctx context.Context, key string) (*model.SettlementAttempt, error) {
	attempts, err := e.datasource.GetSettlementAttemptsByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	var open *model.SettlementAttempt
	for _, attempt := range attempts {
		if attempt.Outcome == OutcomeInDoubt {
			open = attempt
		}
	}
	return open, nil
}

func (e *Engine) resolveSucceeded(ctx context.Context, attempt *model.SettlementAttempt, event TransferEvent) error {
	if !event.Amount.IsZero() && event.Amount.Sub(attempt.RequestedAmount).Abs().GreaterThan(AmountTolerance) {
		// The processor moved a different amount than the attempt submitted.
		// Do not touch the ledger; this needs an operator.
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("transfer event amount %s does not match attempt amount %s for key %s",
				event.Amount, attempt.RequestedAmount, attempt.IdempotencyKey), nil)
	}

	tx, err := e.datasource.BeginTx(ctx)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin reconciliation transaction", err)
	}

	records, err := e.datasource.LockWorkRecordsByID(ctx, tx, attempt.EntryIDs)
	if err != nil {
		e.rollback(tx)
		return err
	}

	pendingIDs := make([]string, 0, len(records))
	for _, record := range records {
		if record.PaymentStatus == StatusPending {
			pendingIDs = append(pendingIDs, record.RecordID)
		}
	}

	now := time.Now()
	if len(pendingIDs) > 0 {
		if err := e.datasource.MarkWorkRecordsPaid(ctx, tx, pendingIDs, event.ExternalReference, now); err != nil {
			e.rollback(tx)
			return err
		}
	}

	resolution := &model.SettlementAttempt{
		AttemptID:         model.GenerateUUIDWithSuffix("sat"),
		PayeeID:           attempt.PayeeID,
		RequestedAmount:   attempt.RequestedAmount,
		Currency:          attempt.Currency,
		EntryIDs:          attempt.EntryIDs,
		IdempotencyKey:    attempt.IdempotencyKey,
		ExternalReference: event.ExternalReference,
		Outcome:           OutcomeResolvedSuccess,
		CreatedAt:         now,
	}
	if _, err := e.datasource.RecordSettlementAttemptInTx(ctx, tx, resolution); err != nil {
		e.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reconciliation transaction", err)
	}

	logrus.Infof("resolved in-doubt settlement %s as succeeded (%d entries paid)", attempt.IdempotencyKey, len(pendingIDs))
	if err := SendWebhook(NewWebhook{Event: getEventFromOutcome(OutcomeResolvedSuccess), Payload: resolution}); err != nil {
		logrus.Errorf("failed to enqueue reconciliation webhook for %s: %v", attempt.PayeeID, err)
	}
	return nil
}

func (e *Engine) resolveFailed(ctx context.Context, attempt *model.SettlementAttempt, event TransferEvent) error {
	reason := fmt.Sprintf("transfer %s reported failed by processor", event.ExternalReference)
	if event.ExternalReference == "" {
		reason = "transfer reported failed by processor"
	}

	// The entries were never marked paid, so they stay pending and a future
	// settlement picks them up under a new key. Only the audit trail moves.
	resolution := &model.SettlementAttempt{
		AttemptID:         model.GenerateUUIDWithSuffix("sat"),
		PayeeID:           attempt.PayeeID,
		RequestedAmount:   attempt.RequestedAmount,
		Currency:          attempt.Currency,
		EntryIDs:          attempt.EntryIDs,
		IdempotencyKey:    attempt.IdempotencyKey,
		ExternalReference: event.ExternalReference,
		Outcome:           OutcomeResolvedFailed,
		Reason:            reason,
		CreatedAt:         time.Now(),
	}
	if _, err := e.datasource.RecordSettlementAttempt(ctx, resolution); err != nil {
		return err
	}

	logrus.Infof("resolved in-doubt settlement %s as failed, entries remain pending", attempt.IdempotencyKey)
	if err := SendWebhook(NewWebhook{Event: getEventFromOutcome(OutcomeResolvedFailed), Payload: resolution}); err != nil {
		logrus.Errorf("failed to enqueue reconciliation webhook for %s: %v", attempt.PayeeID, err)
	}
	return nil
}

// RecheckInDoubt asks the processor directly for the current status of an
// in-doubt settlement and resolves it when the answer is definitive. This is
// the operator path for when the processor's webhook never arrives.
func (e *Engine) RecheckInDoubt(ctx context.Context, idempotencyKey string) (string, error) {
	ctx, span := tracer.Start(ctx, "Re-checking in-doubt settlement")
	defer span.End()

	response, err := e.transfer.GetTransferByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return "", err
	}

	switch response.Status {
	case "succeeded", "paid":
		return response.Status, e.ReconcileTransferEvent(ctx, TransferEvent{
			Type:              EventTransferSucceeded,
			IdempotencyKey:    idempotencyKey,
			ExternalReference: response.ID,
		})
	case "failed", "not_found":
		// not_found means the submission never reached the processor, so
		// nothing moved and the entries are safe to settle again.
		return response.Status, e.ReconcileTransferEvent(ctx, TransferEvent{
			Type:              EventTransferFailed,
			IdempotencyKey:    idempotencyKey,
			ExternalReference: response.ID,
		})
	default:
		// Still processing remotely; stay in doubt.
		return response.Status, nil
	}
}
