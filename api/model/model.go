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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/carebridge/settlement"
	"github.com/carebridge/settlement/model"
)

// CreateWorkRecord is the inbound shape the time-tracking collaborator posts
// when a unit of work is confirmed complete.
type CreateWorkRecord struct {
	PayeeID           string                 `json:"payee_id"`
	ClientID          string                 `json:"client_id"`
	WorkDate          string                 `json:"work_date"`
	HoursWorked       float64                `json:"hours_worked"`
	ServiceKind       string                 `json:"service_kind"`
	GrossClientCharge float64                `json:"gross_client_charge"`
	HasReferral       bool                   `json:"has_referral"`
	HasTrainingCenter bool                   `json:"has_training_center"`
	MetaData          map[string]interface{} `json:"meta_data"`
}

// CreateSettlement requests a payout of a payee's pending earnings. Amount is
// what the caller believes is owed; the engine verifies it against the
// ledger.
type CreateSettlement struct {
	PayeeID string  `json:"payee_id"`
	Amount  float64 `json:"amount"`
}

// WriteOffWorkRecords marks pending ledger entries that will never be
// settled. Operator action; the reason lands on every entry.
type WriteOffWorkRecords struct {
	RecordIDs []string `json:"record_ids"`
	Reason    string   `json:"reason"`
}

// UpsertPayee syncs payee state in from the onboarding collaborator.
type UpsertPayee struct {
	PayeeID                  string                 `json:"payee_id"`
	Kind                     string                 `json:"kind"`
	Name                     string                 `json:"name"`
	ExternalAccountReference string                 `json:"external_account_reference"`
	AccountVerified          bool                   `json:"account_verified"`
	MetaData                 map[string]interface{} `json:"meta_data"`
}

// TransferWebhook is the shape the transfer processor delivers to the
// reconciliation endpoint.
type TransferWebhook struct {
	Type              string  `json:"type"`
	IdempotencyKey    string  `json:"idempotency_key"`
	ExternalReference string  `json:"external_reference"`
	Amount            float64 `json:"amount"`
}

func validateDateFormat(format, value string) error {
	_, err := time.Parse(format, value)
	if err != nil {
		return errors.New("please format the work date as 'YYYY-MM-DD' (e.g., 2024-04-22)")
	}
	return nil
}

func (w *CreateWorkRecord) ValidateCreateWorkRecord() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.PayeeID, validation.Required),
		validation.Field(&w.ClientID, validation.Required),
		validation.Field(&w.ServiceKind, validation.Required),
		validation.Field(&w.HoursWorked, validation.Min(0.0)),
		validation.Field(&w.GrossClientCharge, validation.Min(0.0)),
		validation.Field(&w.WorkDate, validation.Required, validation.By(func(value interface{}) error {
			dateStr, ok := value.(string)
			if !ok {
				return errors.New("invalid type for work date")
			}
			return validateDateFormat("2006-01-02", dateStr)
		})),
	)
}

func (s *CreateSettlement) ValidateCreateSettlement() error {
	// A zero claim is allowed through: the engine answers it with its own
	// error for an empty pending set.
	return validation.ValidateStruct(s,
		validation.Field(&s.PayeeID, validation.Required),
		validation.Field(&s.Amount, validation.Min(0.0)),
	)
}

func (w *WriteOffWorkRecords) ValidateWriteOffWorkRecords() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.RecordIDs, validation.Required, validation.Length(1, 0)),
		validation.Field(&w.Reason, validation.Required),
	)
}

func (p *UpsertPayee) ValidateUpsertPayee() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Kind, validation.Required, validation.In("caregiver", "housekeeper", "marketing_partner", "training_center")),
	)
}

func (t *TransferWebhook) ValidateTransferWebhook() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Type, validation.Required),
		validation.Field(&t.IdempotencyKey, validation.Required),
	)
}

func (w *CreateWorkRecord) ToWorkInput() settlement.WorkInput {
	workDate, _ := time.Parse("2006-01-02", w.WorkDate)
	return settlement.WorkInput{
		PayeeID:           w.PayeeID,
		ClientID:          w.ClientID,
		WorkDate:          workDate,
		HoursWorked:       decimal.NewFromFloat(w.HoursWorked),
		ServiceKind:       w.ServiceKind,
		GrossClientCharge: decimal.NewFromFloat(w.GrossClientCharge),
		HasReferral:       w.HasReferral,
		HasTrainingCenter: w.HasTrainingCenter,
		MetaData:          w.MetaData,
	}
}

func (p *UpsertPayee) ToPayee() *model.Payee {
	return &model.Payee{
		PayeeID:                  p.PayeeID,
		Kind:                     model.PayeeKind(p.Kind),
		Name:                     p.Name,
		ExternalAccountReference: p.ExternalAccountReference,
		AccountVerified:          p.AccountVerified,
		MetaData:                 p.MetaData,
	}
}

func (t *TransferWebhook) ToTransferEvent() settlement.TransferEvent {
	return settlement.TransferEvent{
		Type:              t.Type,
		IdempotencyKey:    t.IdempotencyKey,
		ExternalReference: t.ExternalReference,
		Amount:            decimal.NewFromFloat(t.Amount),
	}
}
