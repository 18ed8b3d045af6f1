/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway implements the write path: type resolution, schema
// validation, admission, persistence and event publication, in that order.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"

	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/internal/validation"
	"github.com/no8s/no8s/pkg/reconciler"
	"github.com/no8s/no8s/pkg/types"
)

// Store is the persistence surface the gateway needs.
type Store interface {
	CreateResourceType(ctx context.Context, rt *types.ResourceType) error
	GetResourceType(ctx context.Context, name string, version string) (*types.ResourceType, error)
	ListResourceTypes(ctx context.Context, name string) ([]types.ResourceType, error)
	UpdateResourceTypeMeta(ctx context.Context, name string, version string, description *string, status *string, metadata types.Document) (*types.ResourceType, error)
	DeleteResourceType(ctx context.Context, name string, version string) error

	CreateResource(ctx context.Context, r *types.Resource) error
	GetResource(ctx context.Context, id int64) (*types.Resource, error)
	GetResourceIncludingDeleted(ctx context.Context, id int64) (*types.Resource, error)
	UpdateResourceSpec(ctx context.Context, id int64, newSpec types.Document) (*types.Resource, error)
	SoftDeleteResource(ctx context.Context, id int64) (*types.Resource, error)
	PatchFinalizers(ctx context.Context, id int64, add []string, remove []string) (*types.Resource, error)
	MarkForReconcile(ctx context.Context, id int64) (bool, error)
}

// Admitter runs the admission webhook chain for a write.
type Admitter interface {
	Run(ctx context.Context, op types.Operation, resource *types.Resource, old *types.Resource) (types.Document, error)
}

// Gateway coordinates all resource writes.
type Gateway struct {
	store     Store
	registry  *reconciler.Registry
	admission Admitter
	bus       *eventbus.Bus
	schemas   *gocache.Cache
	log       logr.Logger
}

func New(st Store, registry *reconciler.Registry, admission Admitter, bus *eventbus.Bus, log logr.Logger) *Gateway {
	return &Gateway{
		store:     st,
		registry:  registry,
		admission: admission,
		bus:       bus,
		schemas:   gocache.New(10*time.Minute, 30*time.Minute),
		log:       log.WithName("gateway"),
	}
}

// RegisterResourceType validates and persists a new (name, version) schema.
func (g *Gateway) RegisterResourceType(ctx context.Context, rt *types.ResourceType) error {
	if err := validation.ValidateSchema(ctx, rt.Schema); err != nil {
		return err
	}
	return g.store.CreateResourceType(ctx, rt)
}

// compiledSchema returns the compiled schema for a type, caching the result.
// Schemas are immutable per (name, version), so cached entries never go
// stale.
func (g *Gateway) compiledSchema(ctx context.Context, typeName string, typeVersion string) (*openapi3.Schema, error) {
	key := typeName + "/" + typeVersion
	if cached, ok := g.schemas.Get(key); ok {
		return cached.(*openapi3.Schema), nil
	}
	rt, err := g.store.GetResourceType(ctx, typeName, typeVersion)
	if err != nil {
		return nil, err
	}
	compiled, err := validation.Compile(rt.Schema)
	if err != nil {
		return nil, err
	}
	g.schemas.SetDefault(key, compiled)
	return compiled, nil
}

// CreateResource runs the full write pipeline for a new resource and
// publishes CREATED. The claimed reconciler's finalizer is pre-inserted so
// that deletion always waits for cleanup.
func (g *Gateway) CreateResource(ctx context.Context, name string, typeName string, typeVersion string, spec types.Document) (*types.Resource, error) {
	schema, err := g.compiledSchema(ctx, typeName, typeVersion)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		spec = types.Document{}
	}
	if err := validation.ValidateSpec(schema, spec); err != nil {
		return nil, err
	}
	reconcilerName, ok := g.registry.NameForType(typeName)
	if !ok {
		return nil, &types.NoReconcilerError{TypeName: typeName}
	}

	resource := &types.Resource{
		Name:        name,
		TypeName:    typeName,
		TypeVersion: typeVersion,
		Spec:        spec,
	}
	admitted, err := g.admission.Run(ctx, types.OperationCreate, resource, nil)
	if err != nil {
		return nil, err
	}
	resource.Spec = admitted
	resource.Finalizers = types.StringList{reconcilerName}

	if err := g.store.CreateResource(ctx, resource); err != nil {
		return nil, err
	}
	g.bus.Publish(types.NewEvent(types.EventCreated, resource))
	return resource, nil
}

// UpdateResource validates and admits a spec replacement and publishes
// MODIFIED.
func (g *Gateway) UpdateResource(ctx context.Context, id int64, newSpec types.Document) (*types.Resource, error) {
	old, err := g.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	schema, err := g.compiledSchema(ctx, old.TypeName, old.TypeVersion)
	if err != nil {
		return nil, err
	}
	if newSpec == nil {
		newSpec = types.Document{}
	}
	if err := validation.ValidateSpec(schema, newSpec); err != nil {
		return nil, err
	}

	proposed := *old
	proposed.Spec = newSpec
	admitted, err := g.admission.Run(ctx, types.OperationUpdate, &proposed, old)
	if err != nil {
		return nil, err
	}

	updated, err := g.store.UpdateResourceSpec(ctx, id, admitted)
	if err != nil {
		return nil, err
	}
	g.bus.Publish(types.NewEvent(types.EventModified, updated))
	return updated, nil
}

// DeleteResource soft-deletes a resource after admission and publishes
// DELETED. Deleting an already soft-deleted resource is a no-op.
func (g *Gateway) DeleteResource(ctx context.Context, id int64) (*types.Resource, error) {
	r, err := g.store.GetResourceIncludingDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.InDeletion() {
		return r, nil
	}
	if _, err := g.admission.Run(ctx, types.OperationDelete, r, nil); err != nil {
		return nil, err
	}
	deleted, err := g.store.SoftDeleteResource(ctx, id)
	if err != nil {
		return nil, err
	}
	g.bus.Publish(types.NewEvent(types.EventDeleted, deleted))
	return deleted, nil
}

// PatchFinalizers applies finalizer additions and removals atomically. It
// never triggers reconciliation itself; a soft-deleted resource reaching an
// empty finalizer set is picked up by the next scheduler tick.
func (g *Gateway) PatchFinalizers(ctx context.Context, id int64, add []string, remove []string) (*types.Resource, error) {
	for _, name := range append(append([]string{}, add...), remove...) {
		if name == "" {
			return nil, types.ValidationErrors{{Path: "/finalizers", Message: "finalizer name must not be empty"}}
		}
	}
	updated, err := g.store.PatchFinalizers(ctx, id, add, remove)
	if err != nil {
		return nil, err
	}
	g.bus.Publish(types.NewEvent(types.EventModified, updated))
	return updated, nil
}

// TriggerReconcile requests an immediate reconciliation; a no-op while the
// resource is already reconciling.
func (g *Gateway) TriggerReconcile(ctx context.Context, id int64) (*types.Resource, bool, error) {
	if _, err := g.store.GetResource(ctx, id); err != nil {
		return nil, false, err
	}
	triggered, err := g.store.MarkForReconcile(ctx, id)
	if err != nil {
		return nil, false, err
	}
	r, err := g.store.GetResourceIncludingDeleted(ctx, id)
	if err != nil {
		return nil, triggered, err
	}
	if !triggered {
		g.log.V(1).Info("manual trigger ignored; resource is reconciling", "id", id)
	}
	return r, triggered, nil
}

// DeleteResourceType removes a type declaration; the store enforces that no
// live resources reference it.
func (g *Gateway) DeleteResourceType(ctx context.Context, name string, version string) error {
	if err := g.store.DeleteResourceType(ctx, name, version); err != nil {
		return err
	}
	g.schemas.Delete(fmt.Sprintf("%s/%s", name, version))
	return nil
}
