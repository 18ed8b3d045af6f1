/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/no8s/no8s/internal/status"
	"github.com/no8s/no8s/pkg/types"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateResource inserts a new resource in phase 'pending' with generation 1
// and fills in the computed spec hash. Duplicate names are rejected.
func (s *Store) CreateResource(ctx context.Context, r *types.Resource) error {
	if r.Spec == nil {
		r.Spec = types.Document{}
	}
	r.SpecHash = SpecHash(r.Spec)
	r.Status = types.PhasePending
	r.Generation = 1

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO resources (
			name, resource_type_name, resource_type_version,
			spec, finalizers, status, spec_hash, next_reconcile_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, generation, observed_generation, retry_count, created_at, updated_at`,
		r.Name, r.TypeName, r.TypeVersion, r.Spec, r.Finalizers, r.Status, r.SpecHash,
	).Scan(&r.ID, &r.Generation, &r.ObservedGeneration, &r.RetryCount, &r.CreatedAt, &r.UpdatedAt)
	if isUniqueViolation(err) {
		return types.NewConflictError("resource %s already exists", r.Name)
	}
	if err != nil {
		return errors.Wrap(err, "error creating resource")
	}
	s.log.Info("created resource", "id", r.ID, "name", r.Name, "resourceType", r.TypeName, "version", r.TypeVersion)
	return nil
}

// GetResource returns a live resource by id.
func (s *Store) GetResource(ctx context.Context, id int64) (*types.Resource, error) {
	r := &types.Resource{}
	err := s.db.GetContext(ctx, r, `SELECT * FROM resources WHERE id = $1 AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading resource")
	}
	return r, nil
}

// GetResourceIncludingDeleted returns a resource regardless of its deletion
// state; used on the deletion path.
func (s *Store) GetResourceIncludingDeleted(ctx context.Context, id int64) (*types.Resource, error) {
	r := &types.Resource{}
	err := s.db.GetContext(ctx, r, `SELECT * FROM resources WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading resource")
	}
	return r, nil
}

// GetResourceByKey returns a live resource by its (type, version, name) key.
func (s *Store) GetResourceByKey(ctx context.Context, typeName string, typeVersion string, name string) (*types.Resource, error) {
	r := &types.Resource{}
	err := s.db.GetContext(ctx, r, `
		SELECT * FROM resources
		WHERE name = $1
		  AND resource_type_name = $2
		  AND resource_type_version = $3
		  AND deleted_at IS NULL`, name, typeName, typeVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading resource")
	}
	return r, nil
}

// ListResources returns live resources, optionally filtered by type name and
// phase, newest first.
func (s *Store) ListResources(ctx context.Context, typeName string, phase types.Phase, limit int, offset int) ([]types.Resource, error) {
	query := `SELECT * FROM resources WHERE deleted_at IS NULL`
	args := []any{}
	if typeName != "" {
		args = append(args, typeName)
		query += fmt.Sprintf(" AND resource_type_name = $%d", len(args))
	}
	if phase != "" {
		args = append(args, phase)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	resources := []types.Resource{}
	if err := s.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, errors.Wrap(err, "error listing resources")
	}
	return resources, nil
}

// UpdateResourceSpec replaces the spec of a live resource. When the spec
// hash changes, the generation is incremented, the phase reset to 'pending'
// and the reconcile schedule cleared; otherwise only the stored document is
// refreshed. Returns the updated resource.
func (s *Store) UpdateResourceSpec(ctx context.Context, id int64, newSpec types.Document) (*types.Resource, error) {
	if newSpec == nil {
		newSpec = types.Document{}
	}
	updated := &types.Resource{}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		current := &types.Resource{}
		err := tx.GetContext(ctx, current, `SELECT * FROM resources WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return errors.Wrap(err, "error reading resource")
		}

		newHash := SpecHash(newSpec)
		if newHash == current.SpecHash {
			err = tx.GetContext(ctx, updated, `
				UPDATE resources SET spec = $1, updated_at = NOW()
				WHERE id = $2
				RETURNING *`, newSpec, id)
			return errors.Wrap(err, "error updating resource spec")
		}

		err = tx.GetContext(ctx, updated, `
			UPDATE resources
			SET spec = $1,
				spec_hash = $2,
				generation = generation + 1,
				status = $3,
				status_message = '',
				next_reconcile_time = NULL,
				updated_at = NOW()
			WHERE id = $4
			RETURNING *`, newSpec, newHash, types.PhasePending, id)
		if err != nil {
			return errors.Wrap(err, "error updating resource spec")
		}
		s.log.Info("updated resource spec", "id", id, "generation", updated.Generation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SoftDeleteResource marks a resource for deletion and schedules the destroy
// path. Calling it on an already soft-deleted resource is a no-op.
func (s *Store) SoftDeleteResource(ctx context.Context, id int64) (*types.Resource, error) {
	r := &types.Resource{}
	err := s.db.GetContext(ctx, r, `
		UPDATE resources
		SET status = $1, deleted_at = NOW(), next_reconcile_time = NOW(), updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING *`, types.PhaseDeleting, id)
	if errors.Is(err, sql.ErrNoRows) {
		// already soft-deleted or unknown
		return s.GetResourceIncludingDeleted(ctx, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error soft-deleting resource")
	}
	s.log.Info("marked resource for deletion", "id", id, "name", r.Name)
	return r, nil
}

// HardDeleteResource permanently removes a resource. It succeeds only when
// the resource was soft-deleted before and carries no finalizers.
func (s *Store) HardDeleteResource(ctx context.Context, id int64) error {
	var deleted int64
	err := s.db.QueryRowxContext(ctx, `
		DELETE FROM resources
		WHERE id = $1
		  AND deleted_at IS NOT NULL
		  AND finalizers = '[]'::jsonb
		RETURNING id`, id).Scan(&deleted)
	if err == nil {
		s.log.Info("hard-deleted resource", "id", id)
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "error hard-deleting resource")
	}

	r, getErr := s.GetResourceIncludingDeleted(ctx, id)
	if getErr != nil {
		return getErr
	}
	if !r.InDeletion() {
		return types.NewConflictError("resource %d is not marked for deletion", id)
	}
	return &types.FinalizersPresentError{ResourceID: id, Finalizers: r.Finalizers}
}

// AddFinalizer adds a finalizer with set semantics.
func (s *Store) AddFinalizer(ctx context.Context, id int64, finalizer string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET finalizers = CASE
				WHEN NOT finalizers @> to_jsonb($2::text)
				THEN finalizers || to_jsonb($2::text)
				ELSE finalizers
			END,
			updated_at = NOW()
		WHERE id = $1`, id, finalizer)
	return errors.Wrap(err, "error adding finalizer")
}

// RemoveFinalizer removes a finalizer; absent finalizers are a no-op.
func (s *Store) RemoveFinalizer(ctx context.Context, id int64, finalizer string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET finalizers = COALESCE(
				(SELECT jsonb_agg(elem)
				 FROM jsonb_array_elements(finalizers) AS elem
				 WHERE elem #>> '{}' != $2),
				'[]'::jsonb
			),
			updated_at = NOW()
		WHERE id = $1`, id, finalizer)
	return errors.Wrap(err, "error removing finalizer")
}

// PatchFinalizers applies finalizer additions and removals in one
// transaction and returns the resulting resource.
func (s *Store) PatchFinalizers(ctx context.Context, id int64, add []string, remove []string) (*types.Resource, error) {
	r := &types.Resource{}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var current types.StringList
		err := tx.GetContext(ctx, &current, `SELECT finalizers FROM resources WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return errors.Wrap(err, "error reading finalizers")
		}

		next := types.StringList{}
		removed := make(map[string]bool, len(remove))
		for _, name := range remove {
			removed[name] = true
		}
		present := make(map[string]bool, len(current))
		for _, name := range current {
			present[name] = true
			if !removed[name] {
				next = append(next, name)
			}
		}
		for _, name := range add {
			if !present[name] && !removed[name] {
				next = append(next, name)
				present[name] = true
			}
		}

		err = tx.GetContext(ctx, r, `
			UPDATE resources SET finalizers = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING *`, next, id)
		return errors.Wrap(err, "error patching finalizers")
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetFinalizers returns the resource's current finalizer set.
func (s *Store) GetFinalizers(ctx context.Context, id int64) ([]string, error) {
	var finalizers types.StringList
	err := s.db.GetContext(ctx, &finalizers, `SELECT finalizers FROM resources WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading finalizers")
	}
	return finalizers, nil
}

// UpdateStatus writes the phase and status message. Reaching 'ready' stamps
// the reconcile time and resets the retry counter; entering 'failed'
// increments it. Returns the retry count after the write.
func (s *Store) UpdateStatus(ctx context.Context, id int64, phase types.Phase, message string, observedGeneration *int64) (int, error) {
	query := `UPDATE resources SET status = $1, status_message = $2, updated_at = NOW()`
	args := []any{phase, message}
	if observedGeneration != nil {
		args = append(args, *observedGeneration)
		query += fmt.Sprintf(", observed_generation = $%d", len(args))
	}
	switch phase {
	case types.PhaseReady:
		query += `, last_reconcile_time = NOW(), retry_count = 0`
	case types.PhaseFailed:
		query += `, retry_count = retry_count + 1`
	}
	args = append(args, id)
	query += fmt.Sprintf(" WHERE id = $%d RETURNING retry_count", len(args))

	var retryCount int
	err := s.db.QueryRowxContext(ctx, query, args...).Scan(&retryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return 0, errors.Wrap(err, "error updating resource status")
	}
	return retryCount, nil
}

// SetConditions merges a batch of conditions into the resource's condition
// sequence under a row lock. The observed generation of each condition is
// stamped with the resource's current generation.
func (s *Store) SetConditions(ctx context.Context, id int64, batch []types.Condition) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			Conditions types.Conditions `db:"conditions"`
			Generation int64            `db:"generation"`
		}
		err := tx.GetContext(ctx, &row, `SELECT conditions, generation FROM resources WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return errors.Wrap(err, "error reading conditions")
		}

		now := s.now()
		merged := row.Conditions
		for _, c := range batch {
			c.ObservedGeneration = row.Generation
			merged = status.Merge(merged, c, now)
		}
		_, err = tx.ExecContext(ctx, `UPDATE resources SET conditions = $1, updated_at = NOW() WHERE id = $2`, merged, id)
		return errors.Wrap(err, "error writing conditions")
	})
}

// SetCondition merges a single condition; see SetConditions.
func (s *Store) SetCondition(ctx context.Context, id int64, c types.Condition) error {
	return s.SetConditions(ctx, id, []types.Condition{c})
}

// SetOutputs replaces the resource's outputs document.
func (s *Store) SetOutputs(ctx context.Context, id int64, outputs types.Document) error {
	if outputs == nil {
		outputs = types.Document{}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE resources SET outputs = $1, updated_at = NOW() WHERE id = $2`, outputs, id)
	return errors.Wrap(err, "error writing outputs")
}

// SetNextReconcile schedules the next reconciliation attempt.
func (s *Store) SetNextReconcile(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE resources SET next_reconcile_time = $1, updated_at = NOW() WHERE id = $2`, t, id)
	return errors.Wrap(err, "error scheduling reconciliation")
}

// MarkForReconcile triggers an immediate reconciliation. Resources currently
// being reconciled are left alone; the return value reports whether the
// trigger took effect.
func (s *Store) MarkForReconcile(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET status = $1, next_reconcile_time = NOW(), updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL AND status != $3`,
		types.PhasePending, id, types.PhaseReconciling)
	if err != nil {
		return false, errors.Wrap(err, "error triggering reconciliation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "error triggering reconciliation")
	}
	return n > 0, nil
}
