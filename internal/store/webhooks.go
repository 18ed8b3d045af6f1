/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// CreateWebhook registers an admission webhook.
func (s *Store) CreateWebhook(ctx context.Context, wh *types.AdmissionWebhook) error {
	if wh.Operations == nil {
		wh.Operations = types.StringList{}
	}
	if wh.TimeoutSeconds == 0 {
		wh.TimeoutSeconds = 10
	}
	if wh.FailurePolicy == "" {
		wh.FailurePolicy = types.FailurePolicyFail
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO admission_webhooks (
			name, resource_type_name, resource_type_version,
			webhook_url, webhook_type, operations,
			timeout_seconds, failure_policy, ordering
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		wh.Name, wh.TypeName, wh.TypeVersion,
		wh.URL, wh.WebhookType, wh.Operations,
		wh.TimeoutSeconds, wh.FailurePolicy, wh.Ordering,
	).Scan(&wh.ID, &wh.CreatedAt, &wh.UpdatedAt)
	if isUniqueViolation(err) {
		return types.NewConflictError("admission webhook %s already exists", wh.Name)
	}
	if err != nil {
		return errors.Wrap(err, "error creating webhook")
	}
	s.log.Info("registered admission webhook", "name", wh.Name, "type", wh.WebhookType, "url", wh.URL)
	return nil
}

// GetWebhook returns a webhook by id.
func (s *Store) GetWebhook(ctx context.Context, id int64) (*types.AdmissionWebhook, error) {
	wh := &types.AdmissionWebhook{}
	err := s.db.GetContext(ctx, wh, `SELECT * FROM admission_webhooks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("admission webhook", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading webhook")
	}
	return wh, nil
}

// ListWebhooks returns all registered webhooks in evaluation order.
func (s *Store) ListWebhooks(ctx context.Context) ([]types.AdmissionWebhook, error) {
	webhooks := []types.AdmissionWebhook{}
	err := s.db.SelectContext(ctx, &webhooks,
		`SELECT * FROM admission_webhooks ORDER BY ordering ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "error listing webhooks")
	}
	return webhooks, nil
}

// DeleteWebhook removes a webhook registration.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admission_webhooks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "error deleting webhook")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error deleting webhook")
	}
	if n == 0 {
		return types.NewNotFoundError("admission webhook", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListWebhooksFor returns the webhooks applying to a write, ordered by
// ordering then id. A webhook with no type filter matches every type.
func (s *Store) ListWebhooksFor(ctx context.Context, typeName string, typeVersion string, op types.Operation, webhookType types.WebhookType) ([]types.AdmissionWebhook, error) {
	webhooks := []types.AdmissionWebhook{}
	err := s.db.SelectContext(ctx, &webhooks, `
		SELECT * FROM admission_webhooks
		WHERE (resource_type_name IS NULL OR resource_type_name = $1)
		  AND (resource_type_version IS NULL OR resource_type_version = $2)
		  AND operations @> to_jsonb($3::text)
		  AND webhook_type = $4
		ORDER BY ordering ASC, id ASC`,
		typeName, typeVersion, string(op), webhookType)
	if err != nil {
		return nil, errors.Wrap(err, "error listing webhooks for operation")
	}
	return webhooks, nil
}
