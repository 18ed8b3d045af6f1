/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// AppendHistory records one reconciliation attempt. The entry's generation
// is stamped with the resource's current generation when left at zero.
func (s *Store) AppendHistory(ctx context.Context, entry *types.HistoryEntry) error {
	if entry.Generation == 0 {
		if err := s.db.GetContext(ctx, &entry.Generation,
			`SELECT generation FROM resources WHERE id = $1`, entry.ResourceID); err != nil {
			return errors.Wrap(err, "error reading resource generation")
		}
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO reconciliation_history (
			resource_id, generation, success, phase,
			plan_output, apply_output, error_message,
			resources_created, resources_updated, resources_deleted,
			duration_seconds, trigger_reason, drift_detected
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, reconcile_time`,
		entry.ResourceID, entry.Generation, entry.Success, entry.Phase,
		entry.PlanOutput, entry.ApplyOutput, entry.ErrorMessage,
		entry.ResourcesCreated, entry.ResourcesUpdated, entry.ResourcesDeleted,
		entry.DurationSeconds, entry.TriggerReason, entry.DriftDetected,
	).Scan(&entry.ID, &entry.ReconcileTime)
	return errors.Wrap(err, "error appending history entry")
}

// ListHistory returns the reconciliation history of a resource, newest
// first.
func (s *Store) ListHistory(ctx context.Context, resourceID int64, limit int, offset int) ([]types.HistoryEntry, error) {
	entries := []types.HistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM reconciliation_history
		WHERE resource_id = $1
		ORDER BY reconcile_time DESC, id DESC
		LIMIT $2 OFFSET $3`, resourceID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "error listing history")
	}
	return entries, nil
}
