/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package scheduler drives the reconciliation loop: it claims eligible
// resources, dispatches them to their reconciler and writes the attempt
// outcome back through the store.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/no8s/no8s/internal/backoff"
	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/internal/metrics"
	"github.com/no8s/no8s/internal/status"
	"github.com/no8s/no8s/internal/store"
	"github.com/no8s/no8s/pkg/reconciler"
	"github.com/no8s/no8s/pkg/types"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	ClaimReconcileBatch(ctx context.Context, limit int, driftInterval time.Duration) ([]store.Claim, error)
	GetResourcesNeedingReconciliation(ctx context.Context, resourceTypes []string, limit int, driftInterval time.Duration) ([]*types.Resource, error)
	GetResourceIncludingDeleted(ctx context.Context, id int64) (*types.Resource, error)
	UpdateStatus(ctx context.Context, id int64, phase types.Phase, message string, observedGeneration *int64) (int, error)
	SetConditions(ctx context.Context, id int64, batch []types.Condition) error
	SetOutputs(ctx context.Context, id int64, outputs types.Document) error
	SetNextReconcile(ctx context.Context, id int64, t time.Time) error
	AppendHistory(ctx context.Context, entry *types.HistoryEntry) error
	GetFinalizers(ctx context.Context, id int64) ([]string, error)
	RemoveFinalizer(ctx context.Context, id int64, name string) error
	HardDeleteResource(ctx context.Context, id int64) error
}

// Config carries the scheduler tuning knobs.
type Config struct {
	Interval      time.Duration
	MaxConcurrent int
	DriftInterval time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	ShutdownGrace time.Duration
}

// Scheduler runs the tick loop. One instance per process; mutual exclusion
// across attempts is provided by the claim transition plus the in-memory
// active set.
type Scheduler struct {
	store    Store
	registry *reconciler.Registry
	bus      *eventbus.Bus
	rctx     reconciler.Context
	backoff  *backoff.Backoff
	cfg      Config
	log      logr.Logger

	mu       sync.Mutex
	active   map[int64]struct{}
	inFlight int
	wg       sync.WaitGroup
	now      func() time.Time
}

func New(st Store, registry *reconciler.Registry, bus *eventbus.Bus, rctx reconciler.Context, cfg Config, log logr.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.DriftInterval <= 0 {
		cfg.DriftInterval = 5 * time.Minute
	}
	return &Scheduler{
		store:    st,
		registry: registry,
		bus:      bus,
		rctx:     rctx,
		backoff:  backoff.New(cfg.BackoffBase, cfg.BackoffCap),
		cfg:      cfg,
		log:      log.WithName("scheduler"),
		active:   make(map[int64]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the tick loop until ctx is cancelled, then waits for active
// attempts within the shutdown grace period.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.cfg.Interval, "maxConcurrent", s.cfg.MaxConcurrent, "driftInterval", s.cfg.DriftInterval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Info("grace period elapsed; abandoning active reconciliations")
	}
}

// Tick claims one batch and spawns an attempt per claim.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	limit := s.cfg.MaxConcurrent - s.inFlight
	s.mu.Unlock()
	if limit <= 0 {
		s.log.V(1).Info("at concurrency limit; skipping tick")
		return
	}

	claims, err := s.store.ClaimReconcileBatch(ctx, limit, s.cfg.DriftInterval)
	if err != nil {
		s.log.Error(err, "error claiming reconcile batch")
		return
	}
	if len(claims) == 0 {
		return
	}
	s.log.V(1).Info("claimed batch", "count", len(claims))

	for i := range claims {
		claim := claims[i]
		s.mu.Lock()
		if _, busy := s.active[claim.ID]; busy {
			s.mu.Unlock()
			continue
		}
		s.active[claim.ID] = struct{}{}
		s.inFlight++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.active, claim.ID)
				s.inFlight--
				s.mu.Unlock()
			}()
			s.reconcileOne(ctx, &claim)
		}()
	}
}

// reconcileOne runs the per-attempt protocol for a single claimed resource.
func (s *Scheduler) reconcileOne(ctx context.Context, claim *store.Claim) {
	r := &claim.Resource
	trigger := claim.Trigger()
	log := s.log.WithValues("id", r.ID, "name", r.Name, "resourceType", r.TypeName, "generation", r.Generation, "trigger", trigger)

	metrics.ReconcilesInFlight.Inc()
	defer metrics.ReconcilesInFlight.Dec()
	start := s.now()

	deletePath := r.InDeletion()
	if deletePath {
		s.setConditions(ctx, log, r.ID, status.DeletionStarted(r.Generation))
	} else {
		s.setConditions(ctx, log, r.ID, status.ReconcileStarted(r.Generation))
	}

	rec := s.registry.ForType(r.TypeName)
	if rec == nil {
		err := &types.NoReconcilerError{TypeName: r.TypeName}
		log.Error(err, "cannot dispatch resource")
		s.recordFailure(ctx, log, r, trigger, "NoReconciler", err.Error(), s.now().Sub(start))
		s.publishReconciled(ctx, log, r)
		metrics.Reconciles.WithLabelValues(r.TypeName, string(trigger), "failure").Inc()
		return
	}

	log.V(1).Info("dispatching resource", "reconciler", rec.Name())
	result, err := rec.Reconcile(ctx, r, s.rctx)
	duration := s.now().Sub(start)
	metrics.ReconcileDuration.WithLabelValues(r.TypeName).Observe(duration.Seconds())

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		// shutdown interrupted the attempt; no outcome is recorded
		log.V(1).Info("attempt cancelled", "duration", duration)
		return

	case err != nil && deletePath:
		log.Error(err, "destroy failed", "duration", duration)
		s.recordDestroyFailure(ctx, log, r, trigger, err.Error(), duration)
		metrics.Reconciles.WithLabelValues(r.TypeName, string(trigger), "failure").Inc()
		metrics.ReconcileErrors.WithLabelValues(r.TypeName).Inc()

	case err != nil:
		log.Error(err, "reconciliation failed", "duration", duration)
		s.recordFailure(ctx, log, r, trigger, "ReconcileFailed", err.Error(), duration)
		metrics.Reconciles.WithLabelValues(r.TypeName, string(trigger), "failure").Inc()
		metrics.ReconcileErrors.WithLabelValues(r.TypeName).Inc()

	case deletePath:
		s.finishDeletion(ctx, log, r, &result, trigger, duration)
		metrics.Reconciles.WithLabelValues(r.TypeName, string(trigger), "success").Inc()

	default:
		s.finishSuccess(ctx, log, r, &result, trigger, duration)
		metrics.Reconciles.WithLabelValues(r.TypeName, string(trigger), "success").Inc()
	}

	s.publishReconciled(ctx, log, r)
}

func (s *Scheduler) finishSuccess(ctx context.Context, log logr.Logger, r *types.Resource, result *reconciler.Result, trigger types.TriggerReason, duration time.Duration) {
	if result.Outputs != nil {
		if err := s.store.SetOutputs(ctx, r.ID, result.Outputs); err != nil {
			log.Error(err, "error writing outputs")
		}
	}
	obs := r.Generation
	if _, err := s.store.UpdateStatus(ctx, r.ID, types.PhaseReady, result.Message, &obs); err != nil {
		log.Error(err, "error updating status")
	}
	s.setConditions(ctx, log, r.ID, status.ReconcileSucceeded(r.Generation))

	next := s.now().Add(s.cfg.DriftInterval)
	if result.RequeueAfter > 0 {
		next = s.now().Add(result.RequeueAfter)
	}
	if err := s.store.SetNextReconcile(ctx, r.ID, next); err != nil {
		log.Error(err, "error scheduling next reconciliation")
	}

	s.appendHistory(ctx, log, r, result, true, "", string(types.PhaseReady), trigger, duration)
	log.Info("reconciliation succeeded", "duration", duration, "nextReconcileTime", next)
}

func (s *Scheduler) finishDeletion(ctx context.Context, log logr.Logger, r *types.Resource, result *reconciler.Result, trigger types.TriggerReason, duration time.Duration) {
	err := s.store.HardDeleteResource(ctx, r.ID)
	switch {
	case err == nil:
		s.appendHistory(ctx, log, r, result, true, "", "deleted", trigger, duration)
		log.Info("resource destroyed and removed", "duration", duration)
	case types.IsFinalizersPresent(err):
		// other finalizers still block removal; stays in deleting
		s.appendHistory(ctx, log, r, result, true, err.Error(), string(types.PhaseDeleting), trigger, duration)
		log.Info("hard delete deferred", "error", err.Error())
	default:
		log.Error(err, "error hard-deleting resource")
		s.appendHistory(ctx, log, r, result, false, err.Error(), string(types.PhaseDeleting), trigger, duration)
	}
}

// recordDestroyFailure writes the outcome of a failed destroy attempt while
// keeping the resource in 'deleting': a soft-deleted row must never leave
// that phase, and the destroy branch of the claim predicate re-selects it on
// a later tick regardless of next_reconcile_time.
func (s *Scheduler) recordDestroyFailure(ctx context.Context, log logr.Logger, r *types.Resource, trigger types.TriggerReason, message string, duration time.Duration) {
	if _, err := s.store.UpdateStatus(ctx, r.ID, types.PhaseDeleting, message, nil); err != nil {
		log.Error(err, "error updating status")
	}
	s.setConditions(ctx, log, r.ID, status.ReconcileFailed(r.Generation, "DestroyFailed", message))
	s.appendHistory(ctx, log, r, &reconciler.Result{}, false, message, string(types.PhaseDeleting), trigger, duration)
	log.Info("destroy attempt recorded; resource stays in deleting")
}

func (s *Scheduler) recordFailure(ctx context.Context, log logr.Logger, r *types.Resource, trigger types.TriggerReason, reason string, message string, duration time.Duration) {
	retries, err := s.store.UpdateStatus(ctx, r.ID, types.PhaseFailed, message, nil)
	if err != nil {
		log.Error(err, "error updating status")
		retries = r.RetryCount + 1
	}
	s.setConditions(ctx, log, r.ID, status.ReconcileFailed(r.Generation, reason, message))

	delay := s.backoff.Next(retries)
	next := s.now().Add(delay)
	if err := s.store.SetNextReconcile(ctx, r.ID, next); err != nil {
		log.Error(err, "error scheduling retry")
	}
	s.appendHistory(ctx, log, r, &reconciler.Result{}, false, message, string(types.PhaseFailed), trigger, duration)
	log.Info("retry scheduled", "retryCount", retries, "delay", delay)
}

func (s *Scheduler) appendHistory(ctx context.Context, log logr.Logger, r *types.Resource, result *reconciler.Result, success bool, errorMessage string, phase string, trigger types.TriggerReason, duration time.Duration) {
	entry := &types.HistoryEntry{
		ResourceID:       r.ID,
		Generation:       r.Generation,
		Success:          success,
		Phase:            phase,
		PlanOutput:       result.PlanOutput,
		ApplyOutput:      result.ApplyOutput,
		ErrorMessage:     errorMessage,
		ResourcesCreated: result.ResourcesCreated,
		ResourcesUpdated: result.ResourcesUpdated,
		ResourcesDeleted: result.ResourcesDeleted,
		DurationSeconds:  duration.Seconds(),
		TriggerReason:    trigger,
		DriftDetected:    result.DriftDetected,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		log.Error(err, "error appending history entry")
	}
}

func (s *Scheduler) setConditions(ctx context.Context, log logr.Logger, id int64, batch []types.Condition) {
	if err := s.store.SetConditions(ctx, id, batch); err != nil {
		log.Error(err, "error writing conditions")
	}
}

// publishReconciled emits the post-attempt resource document. After a hard
// delete the last in-memory snapshot is published instead.
func (s *Scheduler) publishReconciled(ctx context.Context, log logr.Logger, r *types.Resource) {
	current, err := s.store.GetResourceIncludingDeleted(ctx, r.ID)
	if err != nil {
		if !types.IsNotFound(err) {
			log.Error(err, "error reading resource for event")
		}
		current = r
	}
	s.bus.Publish(types.NewEvent(types.EventReconciled, current))
}
