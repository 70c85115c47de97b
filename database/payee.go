package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/carebridge/settlement/cache"
	"github.com/carebridge/settlement/internal/apierror"
	"github.com/carebridge/settlement/model"
)

// GetPayee retrieves a payee, consulting the cache first. Payees are
// read-mostly here: onboarding owns them and syncs changes in via
// UpsertPayee, which invalidates the cached copy.
func (d Datasource) GetPayee(ctx context.Context, id string) (*model.Payee, error) {
	ctx, span := otel.Tracer("payee.database").Start(ctx, "Getting payee from db")
	defer span.End()

	cacheKey := cache.PayeeKey(id)
	if d.Cache != nil {
		payee := &model.Payee{}
		if err := d.Cache.Get(ctx, cacheKey, payee); err == nil && payee.PayeeID != "" {
			return payee, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT payee_id, kind, name, external_account_reference, account_verified, created_at, meta_data
		FROM payees
		WHERE payee_id = $1
	`, id)

	payee := &model.Payee{}
	var metaDataJSON []byte
	var externalRef sql.NullString
	err := row.Scan(&payee.PayeeID, &payee.Kind, &payee.Name, &externalRef, &payee.AccountVerified, &payee.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payee with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payee", err)
	}
	payee.ExternalAccountReference = externalRef.String
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &payee.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	if d.Cache != nil {
		_ = d.Cache.Set(ctx, cacheKey, payee, cache.PayeeTTL)
	}
	return payee, nil
}

// UpsertPayee inserts or refreshes a payee from the onboarding collaborator.
// Only onboarding-owned fields are written; the settlement core never
// mutates payees on its own.
func (d Datasource) UpsertPayee(ctx context.Context, p *model.Payee) (*model.Payee, error) {
	ctx, span := otel.Tracer("payee.database").Start(ctx, "Upserting payee")
	defer span.End()

	metaDataJSON, err := json.Marshal(p.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO payees(payee_id, kind, name, external_account_reference, account_verified, created_at, meta_data)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7)
		ON CONFLICT (payee_id) DO UPDATE
		SET name = EXCLUDED.name,
			external_account_reference = EXCLUDED.external_account_reference,
			account_verified = EXCLUDED.account_verified,
			meta_data = EXCLUDED.meta_data
	`, p.PayeeID, p.Kind, p.Name, p.ExternalAccountReference, p.AccountVerified, p.CreatedAt, metaDataJSON)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert payee", err)
	}

	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, cache.PayeeKey(p.PayeeID))
	}
	return p, nil
}
