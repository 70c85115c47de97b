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

package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/carebridge/settlement/model"
)

func testAttempt(outcome string) *model.SettlementAttempt {
	entryIDs := []string{"wrk_1", "wrk_2"}
	payeeID := "pye_test"
	return &model.SettlementAttempt{
		AttemptID:       model.GenerateUUIDWithSuffix("sat"),
		PayeeID:         payeeID,
		RequestedAmount: decimal.NewFromInt(200),
		Currency:        "USD",
		EntryIDs:        entryIDs,
		IdempotencyKey:  model.DeriveIdempotencyKey(payeeID, entryIDs),
		Outcome:         outcome,
		CreatedAt:       time.Now(),
	}
}

func TestRecordSettlementAttemptOnMainConnection(t *testing.T) {
	ds, mock := newTestDataSource(t)
	attempt := testAttempt("in_doubt")
	attempt.Reason = "transfer outcome unknown"

	// No transaction expectations: in-doubt attempts are written outside the
	// settlement transaction so they survive its rollback.
	mock.ExpectExec("INSERT INTO settlement_attempts").
		WithArgs(
			attempt.AttemptID, attempt.PayeeID, attempt.RequestedAmount, attempt.Currency, sqlmock.AnyArg(), attempt.IdempotencyKey, "", attempt.Outcome, attempt.Reason, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	saved, err := ds.RecordSettlementAttempt(context.Background(), attempt)
	assert.NoError(t, err)
	assert.Equal(t, attempt.AttemptID, saved.AttemptID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSettlementAttemptInTx(t *testing.T) {
	ds, mock := newTestDataSource(t)
	attempt := testAttempt("success")
	attempt.ExternalReference = "trf_123"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settlement_attempts").
		WithArgs(
			attempt.AttemptID, attempt.PayeeID, attempt.RequestedAmount, attempt.Currency, sqlmock.AnyArg(), attempt.IdempotencyKey, "trf_123", attempt.Outcome, "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	_, err = ds.RecordSettlementAttemptInTx(context.Background(), tx, attempt)
	assert.NoError(t, err)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettlementAttemptsByIdempotencyKeyOldestFirst(t *testing.T) {
	ds, mock := newTestDataSource(t)
	key := model.DeriveIdempotencyKey("pye_test", []string{"wrk_1"})

	rows := sqlmock.NewRows([]string{
		"attempt_id", "payee_id", "requested_amount", "currency", "entry_ids",
		"idempotency_key", "external_reference", "outcome", "reason", "created_at",
	}).
		AddRow("sat_1", "pye_test", "60", "USD", "{wrk_1}", key, nil, "in_doubt", "timeout", time.Now().Add(-time.Hour)).
		AddRow("sat_2", "pye_test", "60", "USD", "{wrk_1}", key, "trf_9", "resolved_success", nil, time.Now())

	mock.ExpectQuery("SELECT .* FROM settlement_attempts WHERE idempotency_key = \\$1 ORDER BY created_at ASC, id ASC").
		WithArgs(key).
		WillReturnRows(rows)

	attempts, err := ds.GetSettlementAttemptsByIdempotencyKey(context.Background(), key)
	assert.NoError(t, err)
	assert.Len(t, attempts, 2)
	assert.Equal(t, "in_doubt", attempts[0].Outcome)
	assert.True(t, attempts[1].IsResolution())
	assert.Equal(t, []string{"wrk_1"}, attempts[0].EntryIDs)
}

func TestHasResolvedAttempt(t *testing.T) {
	ds, mock := newTestDataSource(t)
	key := model.DeriveIdempotencyKey("pye_test", []string{"wrk_1"})

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	resolved, err := ds.HasResolvedAttempt(context.Background(), key)
	assert.NoError(t, err)
	assert.True(t, resolved)
}
