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
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

func newTestDataSource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func testWorkRecord() *model.WorkRecord {
	return &model.WorkRecord{
		RecordID:            model.GenerateUUIDWithSuffix("wrk"),
		PayeeID:             gofakeit.UUID(),
		PayeeKind:           model.PayeeKindCaregiver,
		ClientID:            gofakeit.UUID(),
		WorkDate:            time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC),
		HoursWorked:         decimal.NewFromInt(4),
		ServiceKind:         "home_care",
		GrossClientCharge:   decimal.NewFromInt(160),
		PayeeEarnings:       decimal.NewFromInt(80),
		MarketingCommission: decimal.NewFromInt(8),
		TrainingCommission:  decimal.NewFromInt(4),
		PlatformMargin:      decimal.NewFromInt(68),
		Currency:            "USD",
		PricingVersion:      "v1",
		PaymentStatus:       "pending",
		CreatedAt:           time.Now(),
	}
}

func TestRecordWorkRecord(t *testing.T) {
	ds, mock := newTestDataSource(t)
	record := testWorkRecord()

	mock.ExpectExec("INSERT INTO work_records").
		WithArgs(
			record.RecordID, record.PayeeID, record.PayeeKind, record.ClientID, record.WorkDate, record.HoursWorked, record.ServiceKind, record.GrossClientCharge, record.PayeeEarnings, record.MarketingCommission, record.TrainingCommission, record.PlatformMargin, record.Currency, record.PricingVersion, record.PaymentStatus, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	saved, err := ds.RecordWorkRecord(context.Background(), record)
	assert.NoError(t, err)
	assert.Equal(t, record.RecordID, saved.RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkRecordNotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT .* FROM work_records WHERE record_id = \\$1").
		WithArgs("wrk_missing").
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}))

	_, err := ds.GetWorkRecord(context.Background(), "wrk_missing")
	assert.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestLockPendingWorkRecordsUsesForUpdate(t *testing.T) {
	ds, mock := newTestDataSource(t)
	record := testWorkRecord()

	rows := sqlmock.NewRows([]string{
		"record_id", "payee_id", "payee_kind", "client_id", "work_date", "hours_worked", "service_kind",
		"gross_client_charge", "payee_earnings", "marketing_commission", "training_commission", "platform_margin",
		"currency", "pricing_version", "payment_status", "paid_at", "external_transfer_reference", "failure_reason",
		"created_at", "meta_data",
	}).AddRow(
		record.RecordID, record.PayeeID, string(record.PayeeKind), record.ClientID, record.WorkDate, record.HoursWorked.String(), record.ServiceKind,
		record.GrossClientCharge.String(), record.PayeeEarnings.String(), record.MarketingCommission.String(), record.TrainingCommission.String(), record.PlatformMargin.String(),
		record.Currency, record.PricingVersion, record.PaymentStatus, nil, nil, nil,
		record.CreatedAt, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM work_records WHERE payee_id = \\$1 AND payment_status = 'pending' ORDER BY work_date ASC, record_id ASC FOR UPDATE").
		WithArgs(record.PayeeID).
		WillReturnRows(rows)

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	records, err := ds.LockPendingWorkRecords(context.Background(), tx, record.PayeeID)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, record.RecordID, records[0].RecordID)
	assert.Nil(t, records[0].PaidAt)
}

func TestMarkWorkRecordsPaid(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ids := []string{"wrk_1", "wrk_2"}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE work_records SET payment_status = 'paid'").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "trf_123").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	err = ds.MarkWorkRecordsPaid(context.Background(), tx, ids, "trf_123", time.Now())
	assert.NoError(t, err)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkWorkRecordsPaidIdempotentReplay(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ids := []string{"wrk_1", "wrk_2"}

	mock.ExpectBegin()
	// One row transitions; the other was already paid under the same
	// reference by an earlier replay of this settlement.
	mock.ExpectExec("UPDATE work_records SET payment_status = 'paid'").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "trf_123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The count runs in the same transaction, so it sees both the row the
	// UPDATE just transitioned and the row paid by the earlier replay.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM work_records").
		WithArgs(sqlmock.AnyArg(), "trf_123").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	err = ds.MarkWorkRecordsPaid(context.Background(), tx, ids, "trf_123", time.Now())
	assert.NoError(t, err)
}

func TestMarkWorkRecordsPaidConflictingReference(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ids := []string{"wrk_1", "wrk_2"}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE work_records SET payment_status = 'paid'").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "trf_new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only the row the UPDATE just transitioned carries trf_new; the
	// already-paid row holds a different transfer reference.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM work_records").
		WithArgs(sqlmock.AnyArg(), "trf_new").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	err = ds.MarkWorkRecordsPaid(context.Background(), tx, ids, "trf_new", time.Now())
	assert.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrAlreadySettled))
}

func TestMarkWorkRecordsFailedSkipsPaidRows(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ids := []string{"wrk_1", "wrk_2"}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE work_records SET payment_status = 'failed'").
		WithArgs(sqlmock.AnyArg(), "account closed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := ds.BeginTx(context.Background())
	assert.NoError(t, err)

	err = ds.MarkWorkRecordsFailed(context.Background(), tx, ids, "account closed")
	assert.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrAlreadySettled))
}
