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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
	"github.com/carebridge/settlement/transfer"
)

func withTestRedis(t *testing.T, engine *Engine) {
	t.Helper()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)
	engine.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func inDoubtAttempt(payeeID string, entryIDs []string, amount float64) *model.SettlementAttempt {
	return &model.SettlementAttempt{
		AttemptID:       "sat_doubt",
		PayeeID:         payeeID,
		RequestedAmount: decimal.NewFromFloat(amount),
		Currency:        "USD",
		EntryIDs:        entryIDs,
		IdempotencyKey:  model.DeriveIdempotencyKey(payeeID, entryIDs),
		Outcome:         OutcomeInDoubt,
		Reason:          "transfer outcome unknown, awaiting reconciliation",
		CreatedAt:       time.Now().Add(-time.Hour),
	}
}

func TestReconcileSucceededMarksSnapshotPaid(t *testing.T) {
	engine, mockDS, _, sqlMock, db := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	payeeID := "pye_recon"
	attempt := inDoubtAttempt(payeeID, []string{"wrk_1", "wrk_2"}, 200)

	paid := pendingRecord("wrk_1", payeeID, 120)
	paid.PaymentStatus = StatusPaid
	stillPending := pendingRecord("wrk_2", payeeID, 80)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mockDS.On("HasResolvedAttempt", mock.Anything, attempt.IdempotencyKey).Return(false, nil)
	mockDS.On("GetSettlementAttemptsByIdempotencyKey", mock.Anything, attempt.IdempotencyKey).
		Return([]*model.SettlementAttempt{attempt}, nil)
	mockDS.On("BeginTx", mock.Anything).Return(tx, nil)
	mockDS.On("LockWorkRecordsByID", mock.Anything, tx, attempt.EntryIDs).
		Return([]*model.WorkRecord{paid, stillPending}, nil)
	// Only the entry still pending transitions; the replayed half is skipped.
	mockDS.On("MarkWorkRecordsPaid", mock.Anything, tx, []string{"wrk_2"}, "trf_ext", mock.Anything).Return(nil)
	mockDS.On("RecordSettlementAttemptInTx", mock.Anything, tx, mock.MatchedBy(func(a *model.SettlementAttempt) bool {
		return a.Outcome == OutcomeResolvedSuccess && a.IdempotencyKey == attempt.IdempotencyKey
	})).Return(&model.SettlementAttempt{}, nil)

	err = engine.ReconcileTransferEvent(ctx, TransferEvent{
		Type:              EventTransferSucceeded,
		IdempotencyKey:    attempt.IdempotencyKey,
		ExternalReference: "trf_ext",
		Amount:            decimal.NewFromInt(200),
	})
	assert.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	mockDS.AssertExpectations(t)
}

func TestReconcileReplayOfResolvedKeyIsNoOp(t *testing.T) {
	engine, mockDS, _, _, _ := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	key := model.DeriveIdempotencyKey("pye_replay", []string{"wrk_1"})
	mockDS.On("HasResolvedAttempt", mock.Anything, key).Return(true, nil)

	err := engine.ReconcileTransferEvent(ctx, TransferEvent{
		Type:           EventTransferSucceeded,
		IdempotencyKey: key,
	})
	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "BeginTx", mock.Anything)
	mockDS.AssertNotCalled(t, "MarkWorkRecordsPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileFailedLeavesEntriesPending(t *testing.T) {
	engine, mockDS, _, _, _ := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	payeeID := "pye_failed"
	attempt := inDoubtAttempt(payeeID, []string{"wrk_1"}, 60)

	mockDS.On("HasResolvedAttempt", mock.Anything, attempt.IdempotencyKey).Return(false, nil)
	mockDS.On("GetSettlementAttemptsByIdempotencyKey", mock.Anything, attempt.IdempotencyKey).
		Return([]*model.SettlementAttempt{attempt}, nil)
	mockDS.On("RecordSettlementAttempt", mock.Anything, mock.MatchedBy(func(a *model.SettlementAttempt) bool {
		return a.Outcome == OutcomeResolvedFailed && a.IdempotencyKey == attempt.IdempotencyKey
	})).Return(&model.SettlementAttempt{}, nil)

	err := engine.ReconcileTransferEvent(ctx, TransferEvent{
		Type:              EventTransferFailed,
		IdempotencyKey:    attempt.IdempotencyKey,
		ExternalReference: "trf_ext",
	})
	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "BeginTx", mock.Anything)
	mockDS.AssertNotCalled(t, "MarkWorkRecordsPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestReconcileUnknownKeyIsIgnored(t *testing.T) {
	engine, mockDS, _, _, _ := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	key := model.DeriveIdempotencyKey("pye_unknown", []string{"wrk_x"})
	mockDS.On("HasResolvedAttempt", mock.Anything, key).Return(false, nil)
	mockDS.On("GetSettlementAttemptsByIdempotencyKey", mock.Anything, key).
		Return([]*model.SettlementAttempt{}, nil)

	err := engine.ReconcileTransferEvent(ctx, TransferEvent{
		Type:           EventTransferSucceeded,
		IdempotencyKey: key,
	})
	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconcileAmountMismatchNeedsOperator(t *testing.T) {
	engine, mockDS, _, _, _ := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	payeeID := "pye_drift"
	attempt := inDoubtAttempt(payeeID, []string{"wrk_1"}, 60)

	mockDS.On("HasResolvedAttempt", mock.Anything, attempt.IdempotencyKey).Return(false, nil)
	mockDS.On("GetSettlementAttemptsByIdempotencyKey", mock.Anything, attempt.IdempotencyKey).
		Return([]*model.SettlementAttempt{attempt}, nil)

	err := engine.ReconcileTransferEvent(ctx, TransferEvent{
		Type:              EventTransferSucceeded,
		IdempotencyKey:    attempt.IdempotencyKey,
		ExternalReference: "trf_ext",
		Amount:            decimal.NewFromInt(999),
	})
	assert.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
	mockDS.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconcileIgnoresUnknownEventType(t *testing.T) {
	engine, mockDS, _, _, _ := newTestEngine(t)
	withTestRedis(t, engine)

	err := engine.ReconcileTransferEvent(context.Background(), TransferEvent{
		Type:           "transfer.created",
		IdempotencyKey: "some-key",
	})
	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "HasResolvedAttempt", mock.Anything, mock.Anything)
}

func TestRecheckInDoubtResolvesNotFoundAsFailed(t *testing.T) {
	engine, mockDS, gateway, _, _ := newTestEngine(t)
	withTestRedis(t, engine)
	ctx := context.Background()

	payeeID := "pye_recheck"
	attempt := inDoubtAttempt(payeeID, []string{"wrk_1"}, 60)

	// The processor never saw the submission, so the entries are safe to
	// settle again under a fresh attempt.
	gateway.On("GetTransferByIdempotencyKey", mock.Anything, attempt.IdempotencyKey).
		Return(&transfer.Response{Status: "not_found"}, nil)
	mockDS.On("HasResolvedAttempt", mock.Anything, attempt.IdempotencyKey).Return(false, nil)
	mockDS.On("GetSettlementAttemptsByIdempotencyKey", mock.Anything, attempt.IdempotencyKey).
		Return([]*model.SettlementAttempt{attempt}, nil)
	mockDS.On("RecordSettlementAttempt", mock.Anything, mock.MatchedBy(func(a *model.SettlementAttempt) bool {
		return a.Outcome == OutcomeResolvedFailed
	})).Return(&model.SettlementAttempt{}, nil)

	status, err := engine.RecheckInDoubt(ctx, attempt.IdempotencyKey)
	assert.NoError(t, err)
	assert.Equal(t, "not_found", status)
	mockDS.AssertExpectations(t)
}

func TestRecheckInDoubtStillProcessingStaysInDoubt(t *testing.T) {
	engine, mockDS, gateway, _, _ := newTestEngine(t)
	withTestRedis(t, engine)

	key := model.DeriveIdempotencyKey("pye_wait", []string{"wrk_1"})
	gateway.On("GetTransferByIdempotencyKey", mock.Anything, key).
		Return(&transfer.Response{ID: "trf_w", Status: "processing"}, nil)

	status, err := engine.RecheckInDoubt(context.Background(), key)
	assert.NoError(t, err)
	assert.Equal(t, "processing", status)
	mockDS.AssertNotCalled(t, "HasResolvedAttempt", mock.Anything, mock.Anything)
}
