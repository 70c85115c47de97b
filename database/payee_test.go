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
	"github.com/stretchr/testify/assert"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

func TestGetPayee(t *testing.T) {
	ds, mock := newTestDataSource(t)

	rows := sqlmock.NewRows([]string{
		"payee_id", "kind", "name", "external_account_reference", "account_verified", "created_at", "meta_data",
	}).AddRow("pye_1", "caregiver", "Ada", "acct_1", true, time.Now(), []byte(`{"region": "east"}`))

	mock.ExpectQuery("SELECT .* FROM payees WHERE payee_id = \\$1").
		WithArgs("pye_1").
		WillReturnRows(rows)

	payee, err := ds.GetPayee(context.Background(), "pye_1")
	assert.NoError(t, err)
	assert.Equal(t, "pye_1", payee.PayeeID)
	assert.Equal(t, model.PayeeKindCaregiver, payee.Kind)
	assert.True(t, payee.PayoutReady())
	assert.Equal(t, "east", payee.MetaData["region"])
}

func TestGetPayeeNotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT .* FROM payees WHERE payee_id = \\$1").
		WithArgs("pye_missing").
		WillReturnRows(sqlmock.NewRows([]string{"payee_id"}))

	_, err := ds.GetPayee(context.Background(), "pye_missing")
	assert.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestUpsertPayee(t *testing.T) {
	ds, mock := newTestDataSource(t)

	payee := &model.Payee{
		PayeeID:                  "pye_1",
		Kind:                     model.PayeeKindTrainingCenter,
		Name:                     "Bright Steps Academy",
		ExternalAccountReference: "acct_9",
		AccountVerified:          true,
		CreatedAt:                time.Now(),
	}

	mock.ExpectExec("INSERT INTO payees.*ON CONFLICT \\(payee_id\\) DO UPDATE").
		WithArgs(payee.PayeeID, payee.Kind, payee.Name, payee.ExternalAccountReference, payee.AccountVerified, payee.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	saved, err := ds.UpsertPayee(context.Background(), payee)
	assert.NoError(t, err)
	assert.Equal(t, payee.PayeeID, saved.PayeeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
