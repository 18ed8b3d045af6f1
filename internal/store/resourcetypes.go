/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// CreateResourceType registers a new (name, version) schema. The pair is
// unique; re-registering it is a conflict.
func (s *Store) CreateResourceType(ctx context.Context, rt *types.ResourceType) error {
	if rt.Schema == nil {
		rt.Schema = types.Document{}
	}
	if rt.Metadata == nil {
		rt.Metadata = types.Document{}
	}
	if rt.Status == "" {
		rt.Status = types.ResourceTypeActive
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO resource_types (name, version, schema, description, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		rt.Name, rt.Version, rt.Schema, rt.Description, rt.Status, rt.Metadata,
	).Scan(&rt.ID, &rt.CreatedAt, &rt.UpdatedAt)
	if isUniqueViolation(err) {
		return types.NewConflictError("resource type %s/%s already exists", rt.Name, rt.Version)
	}
	if err != nil {
		return errors.Wrap(err, "error creating resource type")
	}
	s.log.Info("registered resource type", "name", rt.Name, "version", rt.Version)
	return nil
}

// GetResourceType returns the schema declaration for (name, version).
func (s *Store) GetResourceType(ctx context.Context, name string, version string) (*types.ResourceType, error) {
	rt := &types.ResourceType{}
	err := s.db.GetContext(ctx, rt, `SELECT * FROM resource_types WHERE name = $1 AND version = $2`, name, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource type", name+"/"+version)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading resource type")
	}
	return rt, nil
}

// GetResourceTypeByID returns a schema declaration by its id.
func (s *Store) GetResourceTypeByID(ctx context.Context, id int64) (*types.ResourceType, error) {
	rt := &types.ResourceType{}
	err := s.db.GetContext(ctx, rt, `SELECT * FROM resource_types WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource type", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading resource type")
	}
	return rt, nil
}

// ListResourceTypes returns all registered types, optionally filtered by
// name, ordered by name then version.
func (s *Store) ListResourceTypes(ctx context.Context, name string) ([]types.ResourceType, error) {
	query := `SELECT * FROM resource_types`
	args := []any{}
	if name != "" {
		query += ` WHERE name = $1`
		args = append(args, name)
	}
	query += ` ORDER BY name ASC, version ASC`

	rts := []types.ResourceType{}
	if err := s.db.SelectContext(ctx, &rts, query, args...); err != nil {
		return nil, errors.Wrap(err, "error listing resource types")
	}
	return rts, nil
}

// UpdateResourceTypeMeta updates the mutable attributes of a type. The
// schema itself is immutable; a new schema requires a new version.
func (s *Store) UpdateResourceTypeMeta(ctx context.Context, name string, version string, description *string, status *string, metadata types.Document) (*types.ResourceType, error) {
	query := `UPDATE resource_types SET updated_at = NOW()`
	args := []any{}
	if description != nil {
		args = append(args, *description)
		query += fmt.Sprintf(", description = $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(", status = $%d", len(args))
	}
	if metadata != nil {
		args = append(args, metadata)
		query += fmt.Sprintf(", metadata = $%d", len(args))
	}
	args = append(args, name, version)
	query += fmt.Sprintf(" WHERE name = $%d AND version = $%d RETURNING *", len(args)-1, len(args))

	rt := &types.ResourceType{}
	err := s.db.GetContext(ctx, rt, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError("resource type", name+"/"+version)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error updating resource type")
	}
	return rt, nil
}

// DeleteResourceType removes a type declaration. Types still referenced by
// live resources cannot be deleted.
func (s *Store) DeleteResourceType(ctx context.Context, name string, version string) error {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM resources
		WHERE resource_type_name = $1 AND resource_type_version = $2 AND deleted_at IS NULL`, name, version)
	if err != nil {
		return errors.Wrap(err, "error counting resources of type")
	}
	if count > 0 {
		return types.NewConflictError("resource type %s/%s is referenced by %d resource(s)", name, version, count)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM resource_types WHERE name = $1 AND version = $2`, name, version)
	if err != nil {
		return errors.Wrap(err, "error deleting resource type")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error deleting resource type")
	}
	if n == 0 {
		return types.NewNotFoundError("resource type", name+"/"+version)
	}
	s.log.Info("deleted resource type", "name", name, "version", version)
	return nil
}
