package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementAttempt is one row of the audit trail: a historical snapshot of a
// settlement request, the exact entry set it covered and what came of it.
// Attempts are append-only; an in-doubt attempt is resolved by appending a
// later record with the same idempotency key, never by editing history.
type SettlementAttempt struct {
	ID                int64           `json:"-"`
	AttemptID         string          `json:"attempt_id"`
	PayeeID           string          `json:"payee_id"`
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	Currency          string          `json:"currency"`
	EntryIDs          []string        `json:"entry_ids"`
	IdempotencyKey    string          `json:"idempotency_key"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Outcome           string          `json:"outcome"`
	Reason            string          `json:"reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsResolution reports whether the attempt closes out an earlier in-doubt
// attempt with the same idempotency key.
func (a *SettlementAttempt) IsResolution() bool {
	return a.Outcome == "resolved_success" || a.Outcome == "resolved_failed"
}
