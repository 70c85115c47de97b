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

// Package pricing computes the revenue split for a unit of completed work.
// It is pure: no I/O, no clock, no state beyond the injected rate table.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/carebridge/settlement/internal/apierror"
)

// Config is the versioned rate table injected into the rules. A work record
// stores the version that priced it, so rate changes never silently alter
// historical records.
type Config struct {
	Version                 string             `json:"version"`
	Currency                string             `json:"currency"`
	HourlyRates             map[string]float64 `json:"hourly_rates"`
	BillingRates            map[string]float64 `json:"billing_rates"`
	MarketingCommissionRate float64            `json:"marketing_commission_rate"`
	TrainingCommissionRate  float64            `json:"training_commission_rate"`
}

// Split is the four-way division of a gross client charge. The parts always
// sum to the gross charge exactly; any rounding residual lands in
// PlatformMargin.
type Split struct {
	PayeeEarnings       decimal.Decimal
	MarketingCommission decimal.Decimal
	TrainingCommission  decimal.Decimal
	PlatformMargin      decimal.Decimal
}

// Rules applies a fixed rate table to work units.
type Rules struct {
	cfg Config
}

func NewRules(cfg Config) *Rules {
	return &Rules{cfg: cfg}
}

// Version returns the version string of the rate table in effect.
func (r *Rules) Version() string {
	return r.cfg.Version
}

// Currency returns the settlement currency of the rate table.
func (r *Rules) Currency() string {
	return r.cfg.Currency
}

// HourlyRate returns the fixed hourly rate for a service kind.
func (r *Rules) HourlyRate(serviceKind string) (decimal.Decimal, error) {
	rate, ok := r.cfg.HourlyRates[serviceKind]
	if !ok {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("no hourly rate configured for service kind '%s'", serviceKind), nil)
	}
	return decimal.NewFromFloat(rate), nil
}

// GrossCharge computes what the client is billed for a unit of work from the
// per-service billing rate. Callers that already hold the billed amount (e.g.
// an invoice total synced in from billing) pass it through instead.
func (r *Rules) GrossCharge(serviceKind string, hours decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := r.cfg.BillingRates[serviceKind]
	if !ok {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("no billing rate configured for service kind '%s'", serviceKind), nil)
	}
	return decimal.NewFromFloat(rate).Mul(hours).Round(2), nil
}

// Split divides a gross client charge between the payee, the marketing
// partner, the training center and the platform.
//
// The payee's hourly earnings are carved out first and never vary with
// referrals. The remainder is distributed: the marketing commission applies
// only when a referral code was attached to the originating booking, the
// training commission only when the payee has an approved training-center
// association. An absent training share folds into the platform margin, not
// into any other payee's share.
func (r *Rules) Split(gross decimal.Decimal, hours decimal.Decimal, serviceKind string, hasReferral, hasTrainingCenter bool) (Split, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return Split{}, apierror.NewAPIError(apierror.ErrInvalidCharge,
			fmt.Sprintf("gross client charge must be positive, got %s", gross), nil)
	}

	rate, err := r.HourlyRate(serviceKind)
	if err != nil {
		return Split{}, err
	}

	earnings := rate.Mul(hours).Round(2)
	if earnings.GreaterThan(gross) {
		return Split{}, apierror.NewAPIError(apierror.ErrInvalidCharge,
			fmt.Sprintf("gross client charge %s is below payee earnings %s", gross, earnings), nil)
	}

	remainder := gross.Sub(earnings)

	marketing := decimal.Zero
	if hasReferral {
		marketing = remainder.Mul(decimal.NewFromFloat(r.cfg.MarketingCommissionRate)).Round(2)
	}

	training := decimal.Zero
	if hasTrainingCenter {
		training = remainder.Mul(decimal.NewFromFloat(r.cfg.TrainingCommissionRate)).Round(2)
	}

	// The margin is computed by subtraction, so the rounding residual of the
	// commission shares accumulates here and the split sums to the gross
	// charge exactly.
	margin := remainder.Sub(marketing).Sub(training)

	return Split{
		PayeeEarnings:       earnings,
		MarketingCommission: marketing,
		TrainingCommission:  training,
		PlatformMargin:      margin,
	}, nil
}
