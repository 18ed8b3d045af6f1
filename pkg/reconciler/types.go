/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"time"

	"github.com/no8s/no8s/pkg/action"
	"github.com/no8s/no8s/pkg/types"
)

// Reconciler is the central interface that resource reconcilers have to
// implement. A reconciler claims one or more resource types and drives
// resources of those types towards their declared spec.
//
// When the resource snapshot passed to Reconcile is soft-deleted
// (InDeletion() is true), the reconciler must destroy the external state it
// manages, and remove its own finalizer through the context only after the
// destroy succeeded; on a failed destroy the finalizer must stay in place so
// that the resource remains in 'deleting'.
type Reconciler interface {
	// Unique identifier for this reconciler; also used as its finalizer name.
	Name() string
	// Resource type names this reconciler claims.
	ResourceTypes() []string
	// Start runs the reconciler's own long-running loop, if it has one.
	// Implementations must return when ctx is done. Reconcilers that only
	// react to scheduler dispatch may block on <-ctx.Done() and return.
	Start(ctx context.Context, rctx Context) error
	// Reconcile drives a single resource towards its spec.
	Reconcile(ctx context.Context, resource *types.Resource, rctx Context) (Result, error)
	// Stop performs a graceful shutdown.
	Stop(ctx context.Context) error
}

// Result is returned by a successful Reconcile call.
type Result struct {
	// RequeueAfter overrides the drift interval for the next scheduled
	// re-reconciliation; zero means the configured drift interval applies.
	RequeueAfter time.Duration
	// Human-readable outcome, stored as the resource's status message.
	Message string
	// Outputs produced by the attempt; persisted read-only when non-nil.
	Outputs types.Document
	// Optional plan/apply transcripts recorded into history.
	PlanOutput  string
	ApplyOutput string
	// Counters recorded into history.
	ResourcesCreated int
	ResourcesUpdated int
	ResourcesDeleted int
	// DriftDetected marks that the external state had diverged from the spec.
	DriftDetected bool
}

// Context is the façade the control plane exposes to reconcilers. It is the
// only surface a reconciler may touch.
type Context interface {
	// GetResourcesNeedingReconciliation returns snapshots of resources of the
	// given types that currently match the selection predicate, without
	// claiming them.
	GetResourcesNeedingReconciliation(ctx context.Context, resourceTypes []string, limit int) ([]*types.Resource, error)
	// UpdateStatus writes the resource phase and message; conditions follow
	// the standard transition rules. Publishing events is the scheduler's
	// responsibility, not the reconciler's.
	UpdateStatus(ctx context.Context, id int64, phase types.Phase, message string, observedGeneration *int64) error
	// SetCondition merges a domain-specific condition by type; the condition's
	// lastTransitionTime only advances when its status value changes.
	SetCondition(ctx context.Context, id int64, condition types.Condition) error
	// RecordReconciliation appends a history entry for an attempt the
	// reconciler performed on its own loop.
	RecordReconciliation(ctx context.Context, id int64, result Result, success bool, errorMessage string, trigger types.TriggerReason) error
	// GetFinalizers returns the resource's current finalizer set.
	GetFinalizers(ctx context.Context, id int64) ([]string, error)
	// RemoveFinalizer removes a finalizer; no-op when absent.
	RemoveFinalizer(ctx context.Context, id int64, name string) error
	// HardDeleteResource permanently removes a soft-deleted resource; fails
	// with FinalizersPresentError while finalizers remain.
	HardDeleteResource(ctx context.Context, id int64) error
	// GetActionPlugin looks up an action plugin by name.
	GetActionPlugin(name string) (action.Plugin, error)
	// Done is closed when the control plane shuts down; reconciler loops
	// must observe it.
	Done() <-chan struct{}
}
