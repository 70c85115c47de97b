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
package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCreateWorkRecord(t *testing.T) {
	valid := CreateWorkRecord{
		PayeeID:     "pye_1",
		ClientID:    "clt_1",
		WorkDate:    "2024-04-22",
		HoursWorked: 4,
		ServiceKind: "home_care",
	}
	assert.NoError(t, valid.ValidateCreateWorkRecord())

	missingPayee := valid
	missingPayee.PayeeID = ""
	assert.Error(t, missingPayee.ValidateCreateWorkRecord())

	badDate := valid
	badDate.WorkDate = "22/04/2024"
	assert.Error(t, badDate.ValidateCreateWorkRecord())

	negativeHours := valid
	negativeHours.HoursWorked = -1
	assert.Error(t, negativeHours.ValidateCreateWorkRecord())
}

func TestValidateCreateSettlement(t *testing.T) {
	valid := CreateSettlement{PayeeID: "pye_1", Amount: 200}
	assert.NoError(t, valid.ValidateCreateSettlement())

	// A zero claim passes validation so the engine can answer it with
	// NO_PENDING_EARNINGS when the payee has nothing owed.
	zeroAmount := CreateSettlement{PayeeID: "pye_1", Amount: 0}
	assert.NoError(t, zeroAmount.ValidateCreateSettlement())

	negativeAmount := CreateSettlement{PayeeID: "pye_1", Amount: -50}
	assert.Error(t, negativeAmount.ValidateCreateSettlement())

	missingPayee := CreateSettlement{Amount: 200}
	assert.Error(t, missingPayee.ValidateCreateSettlement())
}

func TestValidateWriteOffWorkRecords(t *testing.T) {
	valid := WriteOffWorkRecords{RecordIDs: []string{"wrk_1"}, Reason: "disputed charge"}
	assert.NoError(t, valid.ValidateWriteOffWorkRecords())

	noRecords := WriteOffWorkRecords{Reason: "disputed charge"}
	assert.Error(t, noRecords.ValidateWriteOffWorkRecords())

	noReason := WriteOffWorkRecords{RecordIDs: []string{"wrk_1"}}
	assert.Error(t, noReason.ValidateWriteOffWorkRecords())
}

func TestValidateUpsertPayee(t *testing.T) {
	valid := UpsertPayee{Kind: "caregiver", Name: "Ada"}
	assert.NoError(t, valid.ValidateUpsertPayee())

	unknownKind := UpsertPayee{Kind: "plumber", Name: "Sam"}
	assert.Error(t, unknownKind.ValidateUpsertPayee())

	missingName := UpsertPayee{Kind: "caregiver"}
	assert.Error(t, missingName.ValidateUpsertPayee())
}

func TestValidateTransferWebhook(t *testing.T) {
	valid := TransferWebhook{Type: "transfer.succeeded", IdempotencyKey: "key-1"}
	assert.NoError(t, valid.ValidateTransferWebhook())

	missingKey := TransferWebhook{Type: "transfer.succeeded"}
	assert.Error(t, missingKey.ValidateTransferWebhook())
}

func TestToWorkInputParsesDateAndAmounts(t *testing.T) {
	body := CreateWorkRecord{
		PayeeID:           "pye_1",
		ClientID:          "clt_1",
		WorkDate:          "2024-04-22",
		HoursWorked:       4.5,
		ServiceKind:       "home_care",
		GrossClientCharge: 180,
		HasReferral:       true,
	}

	input := body.ToWorkInput()
	assert.Equal(t, "pye_1", input.PayeeID)
	assert.Equal(t, time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC), input.WorkDate)
	assert.True(t, input.HoursWorked.Equal(decimal.NewFromFloat(4.5)))
	assert.True(t, input.GrossClientCharge.Equal(decimal.NewFromInt(180)))
	assert.True(t, input.HasReferral)
}
