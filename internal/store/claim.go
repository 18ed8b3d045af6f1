/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// Claim is a resource atomically handed to the scheduler, together with the
// phase it was claimed out of.
type Claim struct {
	types.Resource
	PrevStatus types.Phase `db:"prev_status"`
}

// Trigger derives why the claimed resource became eligible. Deletion wins
// over retry, retry over a spec change, a spec change over drift; anything
// left is a manual trigger.
func (c *Claim) Trigger() types.TriggerReason {
	switch {
	case c.DeletedAt != nil:
		return types.TriggerDelete
	case c.PrevStatus == types.PhaseFailed:
		return types.TriggerRetry
	case c.Generation > c.ObservedGeneration:
		return types.TriggerSpecChange
	case c.PrevStatus == types.PhaseReady:
		return types.TriggerDrift
	default:
		return types.TriggerManual
	}
}

// eligiblePredicate selects resources needing work; the single parameter is
// the drift interval in seconds.
const eligiblePredicate = `
	status != 'reconciling'
	AND (
		(deleted_at IS NULL AND (
			status = 'pending'
			OR (status = 'failed' AND next_reconcile_time <= NOW())
			OR (status = 'ready' AND last_reconcile_time + (? * INTERVAL '1 second') <= NOW())
			OR generation > observed_generation
		))
		OR (deleted_at IS NOT NULL AND status = 'deleting')
	)`

const eligibleOrder = `
	CASE status
		WHEN 'deleting' THEN 0
		WHEN 'pending' THEN 1
		WHEN 'failed' THEN 2
		ELSE 3
	END,
	next_reconcile_time ASC NULLS FIRST`

// ClaimReconcileBatch atomically selects up to limit eligible resources and
// flips them to 'reconciling' (soft-deleted ones stay in 'deleting'). Locked
// rows are skipped, so concurrent claimers never hand out the same resource.
func (s *Store) ClaimReconcileBatch(ctx context.Context, limit int, driftInterval time.Duration) ([]Claim, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := s.db.Rebind(`
		WITH eligible AS (
			SELECT id, status AS prev_status
			FROM resources
			WHERE ` + eligiblePredicate + `
			ORDER BY ` + eligibleOrder + `
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE resources r
		SET status = CASE WHEN r.deleted_at IS NOT NULL THEN 'deleting' ELSE 'reconciling' END,
			updated_at = NOW()
		FROM eligible e
		WHERE r.id = e.id
		RETURNING r.*, e.prev_status`)

	claims := []Claim{}
	if err := s.db.SelectContext(ctx, &claims, query, int(driftInterval.Seconds()), limit); err != nil {
		return nil, errors.Wrap(err, "error claiming reconcile batch")
	}
	return claims, nil
}

// GetResourcesNeedingReconciliation returns snapshots of eligible resources
// of the given types without claiming them.
func (s *Store) GetResourcesNeedingReconciliation(ctx context.Context, resourceTypes []string, limit int, driftInterval time.Duration) ([]*types.Resource, error) {
	if len(resourceTypes) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT * FROM resources
		WHERE `+eligiblePredicate+`
		  AND resource_type_name IN (?)
		ORDER BY `+eligibleOrder+`
		LIMIT ?`,
		int(driftInterval.Seconds()), resourceTypes, limit)
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}
	query = s.db.Rebind(query)

	resources := []*types.Resource{}
	if err := s.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, errors.Wrap(err, "error selecting eligible resources")
	}
	return resources, nil
}
