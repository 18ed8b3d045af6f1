/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/no8s/no8s/internal/status"
	"github.com/no8s/no8s/pkg/action"
	"github.com/no8s/no8s/pkg/reconciler"
	"github.com/no8s/no8s/pkg/types"
)

// reconcilerContext is the façade handed to reconcilers; see
// reconciler.Context for the contract.
type reconcilerContext struct {
	store         Store
	actions       *action.Registry
	driftInterval time.Duration
	done          <-chan struct{}
	log           logr.Logger
}

// NewReconcilerContext builds the shared context passed to all reconcilers.
// The done channel is closed on shutdown.
func NewReconcilerContext(st Store, actions *action.Registry, driftInterval time.Duration, done <-chan struct{}, log logr.Logger) reconciler.Context {
	return &reconcilerContext{
		store:         st,
		actions:       actions,
		driftInterval: driftInterval,
		done:          done,
		log:           log.WithName("reconciler-context"),
	}
}

func (c *reconcilerContext) GetResourcesNeedingReconciliation(ctx context.Context, resourceTypes []string, limit int) ([]*types.Resource, error) {
	return c.store.GetResourcesNeedingReconciliation(ctx, resourceTypes, limit, c.driftInterval)
}

func (c *reconcilerContext) UpdateStatus(ctx context.Context, id int64, phase types.Phase, message string, observedGeneration *int64) error {
	if _, err := c.store.UpdateStatus(ctx, id, phase, message, observedGeneration); err != nil {
		return err
	}
	gen := int64(0)
	if observedGeneration != nil {
		gen = *observedGeneration
	}
	var batch []types.Condition
	switch phase {
	case types.PhaseReconciling:
		batch = status.ReconcileStarted(gen)
	case types.PhaseReady:
		batch = status.ReconcileSucceeded(gen)
	case types.PhaseFailed:
		batch = status.ReconcileFailed(gen, "", message)
	case types.PhaseDeleting:
		batch = status.DeletionStarted(gen)
	}
	if batch == nil {
		return nil
	}
	return c.store.SetConditions(ctx, id, batch)
}

func (c *reconcilerContext) SetCondition(ctx context.Context, id int64, condition types.Condition) error {
	return c.store.SetConditions(ctx, id, []types.Condition{condition})
}

func (c *reconcilerContext) RecordReconciliation(ctx context.Context, id int64, result reconciler.Result, success bool, errorMessage string, trigger types.TriggerReason) error {
	phase := types.PhaseReady
	if !success {
		phase = types.PhaseFailed
	}
	return c.store.AppendHistory(ctx, &types.HistoryEntry{
		ResourceID:       id,
		Success:          success,
		Phase:            string(phase),
		PlanOutput:       result.PlanOutput,
		ApplyOutput:      result.ApplyOutput,
		ErrorMessage:     errorMessage,
		ResourcesCreated: result.ResourcesCreated,
		ResourcesUpdated: result.ResourcesUpdated,
		ResourcesDeleted: result.ResourcesDeleted,
		TriggerReason:    trigger,
		DriftDetected:    result.DriftDetected,
	})
}

func (c *reconcilerContext) GetFinalizers(ctx context.Context, id int64) ([]string, error) {
	return c.store.GetFinalizers(ctx, id)
}

func (c *reconcilerContext) RemoveFinalizer(ctx context.Context, id int64, name string) error {
	c.log.V(1).Info("removing finalizer", "id", id, "finalizer", name)
	return c.store.RemoveFinalizer(ctx, id, name)
}

func (c *reconcilerContext) HardDeleteResource(ctx context.Context, id int64) error {
	return c.store.HardDeleteResource(ctx, id)
}

func (c *reconcilerContext) GetActionPlugin(name string) (action.Plugin, error) {
	return c.actions.Get(name)
}

func (c *reconcilerContext) Done() <-chan struct{} {
	return c.done
}
