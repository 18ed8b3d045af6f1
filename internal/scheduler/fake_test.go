/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/no8s/no8s/internal/status"
	"github.com/no8s/no8s/internal/store"
	"github.com/no8s/no8s/pkg/reconciler"
	"github.com/no8s/no8s/pkg/types"
)

// fakeStore is an in-memory Store used by the scheduler tests.
type fakeStore struct {
	mu        sync.Mutex
	resources map[int64]*types.Resource
	history   []types.HistoryEntry
}

func newFakeStore(resources ...*types.Resource) *fakeStore {
	f := &fakeStore{resources: make(map[int64]*types.Resource)}
	for _, r := range resources {
		f.resources[r.ID] = r
	}
	return f
}

func (f *fakeStore) get(id int64) *types.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil
	}
	snapshot := *r
	return &snapshot
}

func (f *fakeStore) entries() []types.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.HistoryEntry, len(f.history))
	copy(out, f.history)
	return out
}

func (f *fakeStore) ClaimReconcileBatch(ctx context.Context, limit int, driftInterval time.Duration) ([]store.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	claims := []store.Claim{}
	for _, r := range f.resources {
		if len(claims) >= limit {
			break
		}
		if r.Status == types.PhaseReconciling {
			continue
		}
		eligible := false
		switch {
		case r.DeletedAt != nil:
			eligible = r.Status == types.PhaseDeleting
		case r.Status == types.PhasePending:
			eligible = true
		case r.Status == types.PhaseFailed:
			eligible = r.NextReconcileTime != nil && !r.NextReconcileTime.After(now)
		case r.Status == types.PhaseReady:
			eligible = r.LastReconcileTime != nil && r.LastReconcileTime.Add(driftInterval).Before(now)
		}
		if !eligible && r.Generation > r.ObservedGeneration && r.DeletedAt == nil {
			eligible = true
		}
		if !eligible {
			continue
		}
		prev := r.Status
		if r.DeletedAt == nil {
			r.Status = types.PhaseReconciling
		}
		snapshot := *r
		claims = append(claims, store.Claim{Resource: snapshot, PrevStatus: prev})
	}
	return claims, nil
}

func (f *fakeStore) GetResourcesNeedingReconciliation(ctx context.Context, resourceTypes []string, limit int, driftInterval time.Duration) ([]*types.Resource, error) {
	return nil, nil
}

func (f *fakeStore) GetResourceIncludingDeleted(ctx context.Context, id int64) (*types.Resource, error) {
	r := f.get(id)
	if r == nil {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	return r, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, phase types.Phase, message string, observedGeneration *int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return 0, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	r.Status = phase
	r.StatusMessage = message
	if observedGeneration != nil {
		r.ObservedGeneration = *observedGeneration
	}
	switch phase {
	case types.PhaseReady:
		now := time.Now()
		r.LastReconcileTime = &now
		r.RetryCount = 0
	case types.PhaseFailed:
		r.RetryCount++
	}
	return r.RetryCount, nil
}

func (f *fakeStore) SetConditions(ctx context.Context, id int64, batch []types.Condition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	now := time.Now()
	for _, c := range batch {
		c.ObservedGeneration = r.Generation
		r.Conditions = status.Merge(r.Conditions, c, now)
	}
	return nil
}

func (f *fakeStore) SetOutputs(ctx context.Context, id int64, outputs types.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.resources[id]; ok {
		r.Outputs = outputs
	}
	return nil
}

func (f *fakeStore) SetNextReconcile(ctx context.Context, id int64, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.resources[id]; ok {
		r.NextReconcileTime = &t
	}
	return nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, entry *types.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.history) + 1)
	entry.ReconcileTime = time.Now()
	f.history = append(f.history, *entry)
	return nil
}

func (f *fakeStore) GetFinalizers(ctx context.Context, id int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	return append([]string{}, r.Finalizers...), nil
}

func (f *fakeStore) RemoveFinalizer(ctx context.Context, id int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	kept := types.StringList{}
	for _, fin := range r.Finalizers {
		if fin != name {
			kept = append(kept, fin)
		}
	}
	r.Finalizers = kept
	return nil
}

func (f *fakeStore) HardDeleteResource(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if r.DeletedAt == nil {
		return types.NewConflictError("resource %d is not marked for deletion", id)
	}
	if len(r.Finalizers) > 0 {
		return &types.FinalizersPresentError{ResourceID: id, Finalizers: r.Finalizers}
	}
	delete(f.resources, id)
	return nil
}

// fakeReconciler claims a set of types and delegates to a test callback.
type fakeReconciler struct {
	name          string
	resourceTypes []string
	reconcileFn   func(ctx context.Context, r *types.Resource, rctx reconciler.Context) (reconciler.Result, error)
}

func (f *fakeReconciler) Name() string            { return f.name }
func (f *fakeReconciler) ResourceTypes() []string { return f.resourceTypes }

func (f *fakeReconciler) Start(ctx context.Context, rctx reconciler.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeReconciler) Reconcile(ctx context.Context, r *types.Resource, rctx reconciler.Context) (reconciler.Result, error) {
	if f.reconcileFn == nil {
		return reconciler.Result{}, nil
	}
	return f.reconcileFn(ctx, r, rctx)
}

func (f *fakeReconciler) Stop(ctx context.Context) error { return nil }
