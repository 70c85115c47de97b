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
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveIdempotencyKeyIsDeterministic(t *testing.T) {
	key1 := DeriveIdempotencyKey("pye_1", []string{"wrk_a", "wrk_b", "wrk_c"})
	key2 := DeriveIdempotencyKey("pye_1", []string{"wrk_a", "wrk_b", "wrk_c"})
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64)
}

func TestDeriveIdempotencyKeyIgnoresEntryOrder(t *testing.T) {
	key1 := DeriveIdempotencyKey("pye_1", []string{"wrk_c", "wrk_a", "wrk_b"})
	key2 := DeriveIdempotencyKey("pye_1", []string{"wrk_a", "wrk_b", "wrk_c"})
	assert.Equal(t, key1, key2)
}

func TestDeriveIdempotencyKeyVariesByInput(t *testing.T) {
	base := DeriveIdempotencyKey("pye_1", []string{"wrk_a", "wrk_b"})

	assert.NotEqual(t, base, DeriveIdempotencyKey("pye_2", []string{"wrk_a", "wrk_b"}))
	assert.NotEqual(t, base, DeriveIdempotencyKey("pye_1", []string{"wrk_a"}))
	assert.NotEqual(t, base, DeriveIdempotencyKey("pye_1", []string{"wrk_a", "wrk_b", "wrk_c"}))
}

func TestDeriveIdempotencyKeyDoesNotMutateInput(t *testing.T) {
	ids := []string{"wrk_c", "wrk_a", "wrk_b"}
	DeriveIdempotencyKey("pye_1", ids)
	assert.Equal(t, []string{"wrk_c", "wrk_a", "wrk_b"}, ids)
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("wrk")
	assert.True(t, strings.HasPrefix(id, "wrk_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("wrk"))
}

func TestPayeeKindIsValid(t *testing.T) {
	assert.True(t, PayeeKindCaregiver.IsValid())
	assert.True(t, PayeeKindHousekeeper.IsValid())
	assert.True(t, PayeeKindMarketingPartner.IsValid())
	assert.True(t, PayeeKindTrainingCenter.IsValid())
	assert.False(t, PayeeKind("plumber").IsValid())
	assert.False(t, PayeeKind("").IsValid())
}

func TestPayoutReady(t *testing.T) {
	payee := &Payee{PayeeID: "pye_1", Kind: PayeeKindCaregiver}
	assert.False(t, payee.PayoutReady())

	payee.ExternalAccountReference = "acct_1"
	assert.False(t, payee.PayoutReady())

	payee.AccountVerified = true
	assert.True(t, payee.PayoutReady())
}

func TestSplitBalances(t *testing.T) {
	record := &WorkRecord{
		GrossClientCharge:   decimal.NewFromInt(200),
		PayeeEarnings:       decimal.NewFromInt(100),
		MarketingCommission: decimal.NewFromInt(10),
		TrainingCommission:  decimal.NewFromInt(5),
		PlatformMargin:      decimal.NewFromInt(85),
	}
	tolerance := decimal.New(1, -2)
	assert.True(t, record.SplitBalances(tolerance))

	record.PlatformMargin = decimal.NewFromInt(80)
	assert.False(t, record.SplitBalances(tolerance))
}
