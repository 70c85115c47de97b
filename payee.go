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

package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

// GetPayee retrieves a payee by ID.
func (e *Engine) GetPayee(ctx context.Context, id string) (*model.Payee, error) {
	return e.datasource.GetPayee(ctx, id)
}

// UpsertPayee syncs a payee in from the onboarding collaborator. The
// settlement core never mutates payees itself; this is the write path the
// collaborator uses to keep account state current.
func (e *Engine) UpsertPayee(ctx context.Context, payee *model.Payee) (*model.Payee, error) {
	ctx, span := tracer.Start(ctx, "Upserting payee")
	defer span.End()

	if !payee.Kind.IsValid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("unknown payee kind '%s'", payee.Kind), nil)
	}
	if payee.PayeeID == "" {
		payee.PayeeID = model.GenerateUUIDWithSuffix("pye")
	}
	if payee.CreatedAt.IsZero() {
		payee.CreatedAt = time.Now()
	}
	return e.datasource.UpsertPayee(ctx, payee)
}
