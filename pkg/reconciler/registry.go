/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/no8s/no8s/pkg/types"
)

// Registry maps resource type names to the reconciler claiming them.
// It is populated once at startup; registration conflicts are fatal.
type Registry struct {
	mu          sync.RWMutex
	reconcilers map[string]Reconciler
	byType      map[string]string
	wg          sync.WaitGroup
	log         logr.Logger
}

func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		reconcilers: make(map[string]Reconciler),
		byType:      make(map[string]string),
		log:         log.WithName("registry"),
	}
}

// Register adds a reconciler, asserting that none of its resource types is
// already claimed.
func (r *Registry) Register(rec Reconciler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range rec.ResourceTypes() {
		if claimed, ok := r.byType[t]; ok && claimed != rec.Name() {
			return &types.ResourceTypeConflictError{TypeName: t, Claimed: claimed, Claimant: rec.Name()}
		}
	}
	r.reconcilers[rec.Name()] = rec
	for _, t := range rec.ResourceTypes() {
		r.byType[t] = rec.Name()
	}
	r.log.Info("registered reconciler", "name", rec.Name(), "resourceTypes", rec.ResourceTypes())
	return nil
}

// ForType returns the reconciler claiming the given resource type, or nil.
func (r *Registry) ForType(resourceType string) Reconciler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[resourceType]
	if !ok {
		return nil
	}
	return r.reconcilers[name]
}

// NameForType returns the name of the reconciler claiming the given type.
func (r *Registry) NameForType(resourceType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[resourceType]
	return name, ok
}

// HasReconcilerFor reports whether the given resource type is claimed.
func (r *Registry) HasReconcilerFor(resourceType string) bool {
	_, ok := r.NameForType(resourceType)
	return ok
}

// Names returns the registered reconciler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.reconcilers))
	for name := range r.reconcilers {
		names = append(names, name)
	}
	return names
}

// StartAll launches each reconciler's own loop in its own goroutine,
// passing the shared context façade.
func (r *Registry) StartAll(ctx context.Context, rctx Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.reconcilers {
		rec := rec
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := rec.Start(ctx, rctx); err != nil && ctx.Err() == nil {
				r.log.Error(err, "reconciler loop terminated", "name", rec.Name())
			}
		}()
		r.log.V(1).Info("started reconciler", "name", rec.Name())
	}
}

// StopAll stops all reconcilers and waits for their loops with a bounded
// grace period. The caller is expected to have cancelled the context passed
// to StartAll already.
func (r *Registry) StopAll(grace time.Duration) {
	r.mu.RLock()
	for _, rec := range r.reconcilers {
		stopCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := rec.Stop(stopCtx); err != nil {
			r.log.Error(err, "error stopping reconciler", "name", rec.Name())
		}
		cancel()
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		r.log.Info("grace period elapsed; abandoning reconciler loops")
	}
}
