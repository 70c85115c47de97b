package model

import "time"

// Payee is any party owed money from completed work: a caregiver, a
// housekeeper, a marketing partner or a training center. Payees are owned by
// the onboarding collaborator; the settlement core only reads them, plus an
// upsert used by the collaborator to sync state in.
type Payee struct {
	ID                       int64                  `json:"-"`
	PayeeID                  string                 `json:"payee_id"`
	Kind                     PayeeKind              `json:"kind"`
	Name                     string                 `json:"name"`
	ExternalAccountReference string                 `json:"external_account_reference,omitempty"`
	AccountVerified          bool                   `json:"account_verified"`
	CreatedAt                time.Time              `json:"created_at"`
	MetaData                 map[string]interface{} `json:"meta_data,omitempty"`
}

// PayoutReady reports whether money can be moved to this payee: an external
// account reference is present and the onboarding collaborator has verified
// it.
func (p *Payee) PayoutReady() bool {
	return p.ExternalAccountReference != "" && p.AccountVerified
}
