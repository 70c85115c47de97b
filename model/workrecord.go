package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PayeeKind tags the party a work record accrues to. The ledger is
// polymorphic over payee kind: every kind shares the same table and the same
// settlement path.
type PayeeKind string

const (
	PayeeKindCaregiver        PayeeKind = "caregiver"
	PayeeKindHousekeeper      PayeeKind = "housekeeper"
	PayeeKindMarketingPartner PayeeKind = "marketing_partner"
	PayeeKindTrainingCenter   PayeeKind = "training_center"
)

// IsValid reports whether the kind is one of the known payee kinds.
func (k PayeeKind) IsValid() bool {
	switch k {
	case PayeeKindCaregiver, PayeeKindHousekeeper, PayeeKindMarketingPartner, PayeeKindTrainingCenter:
		return true
	}
	return false
}

// WorkRecord is one billable unit of completed work and its computed revenue
// split. The split amounts are set once at creation and never recomputed;
// PricingVersion records the rate table that produced them.
type WorkRecord struct {
	ID                        int64                  `json:"-"`
	RecordID                  string                 `json:"record_id"`
	PayeeID                   string                 `json:"payee_id"`
	PayeeKind                 PayeeKind              `json:"payee_kind"`
	ClientID                  string                 `json:"client_id"`
	WorkDate                  time.Time              `json:"work_date"`
	HoursWorked               decimal.Decimal        `json:"hours_worked"`
	ServiceKind               string                 `json:"service_kind"`
	GrossClientCharge         decimal.Decimal        `json:"gross_client_charge"`
	PayeeEarnings             decimal.Decimal        `json:"payee_earnings"`
	MarketingCommission       decimal.Decimal        `json:"marketing_commission"`
	TrainingCommission        decimal.Decimal        `json:"training_commission"`
	PlatformMargin            decimal.Decimal        `json:"platform_margin"`
	Currency                  string                 `json:"currency"`
	PricingVersion            string                 `json:"pricing_version"`
	PaymentStatus             string                 `json:"payment_status"`
	PaidAt                    *time.Time             `json:"paid_at,omitempty"`
	ExternalTransferReference string                 `json:"external_transfer_reference,omitempty"`
	FailureReason             string                 `json:"failure_reason,omitempty"`
	CreatedAt                 time.Time              `json:"created_at"`
	MetaData                  map[string]interface{} `json:"meta_data,omitempty"`
}

func (w *WorkRecord) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

// SplitBalances reports whether the stored split still sums to the gross
// client charge within the given tolerance.
func (w *WorkRecord) SplitBalances(tolerance decimal.Decimal) bool {
	sum := w.PayeeEarnings.Add(w.MarketingCommission).Add(w.TrainingCommission).Add(w.PlatformMargin)
	return sum.Sub(w.GrossClientCharge).Abs().LessThanOrEqual(tolerance)
}
