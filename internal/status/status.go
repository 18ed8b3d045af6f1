/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package status computes the standard resource conditions on lifecycle
// transitions and implements the condition merge rules.
package status

import (
	"time"

	"github.com/no8s/no8s/pkg/types"
)

// Merge folds the given condition into the sequence, keyed by type.
// The condition's lastTransitionTime only advances when its status value
// changes; reason, message and observedGeneration are always taken from the
// new condition. Output order is insertion order.
func Merge(conditions types.Conditions, c types.Condition, now time.Time) types.Conditions {
	c.LastTransitionTime = now
	for i := range conditions {
		if conditions[i].Type != c.Type {
			continue
		}
		if conditions[i].Status == c.Status {
			c.LastTransitionTime = conditions[i].LastTransitionTime
		}
		out := make(types.Conditions, len(conditions))
		copy(out, conditions)
		out[i] = c
		return out
	}
	out := make(types.Conditions, len(conditions), len(conditions)+1)
	copy(out, conditions)
	return append(out, c)
}

// MergeAll folds a batch of conditions into the sequence in order.
func MergeAll(conditions types.Conditions, batch []types.Condition, now time.Time) types.Conditions {
	for _, c := range batch {
		conditions = Merge(conditions, c, now)
	}
	return conditions
}

// ReconcileStarted returns the condition transitions applied when an attempt
// begins. Degraded is left unchanged.
func ReconcileStarted(generation int64) []types.Condition {
	return []types.Condition{
		{
			Type:               types.ConditionTypeReady,
			Status:             types.ConditionUnknown,
			Reason:             "ReconcileStarted",
			Message:            "Reconciliation in progress",
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeReconciling,
			Status:             types.ConditionTrue,
			Reason:             "InProgress",
			Message:            "Reconciliation has started",
			ObservedGeneration: generation,
		},
	}
}

// ReconcileSucceeded returns the condition transitions applied on a
// successful attempt.
func ReconcileSucceeded(generation int64) []types.Condition {
	return []types.Condition{
		{
			Type:               types.ConditionTypeReady,
			Status:             types.ConditionTrue,
			Reason:             "ReconcileSuccess",
			Message:            "Resource reconciled successfully",
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeReconciling,
			Status:             types.ConditionFalse,
			Reason:             "ReconcileComplete",
			Message:            "Reconciliation completed",
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeDegraded,
			Status:             types.ConditionFalse,
			Reason:             "NoErrors",
			ObservedGeneration: generation,
		},
	}
}

// ReconcileFailed returns the condition transitions applied on a failed
// attempt; the reason is derived from the error by the caller.
func ReconcileFailed(generation int64, reason string, message string) []types.Condition {
	if reason == "" {
		reason = "ReconcileFailed"
	}
	return []types.Condition{
		{
			Type:               types.ConditionTypeReady,
			Status:             types.ConditionFalse,
			Reason:             reason,
			Message:            message,
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeReconciling,
			Status:             types.ConditionFalse,
			Reason:             "ReconcileComplete",
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeDegraded,
			Status:             types.ConditionTrue,
			Reason:             reason,
			Message:            message,
			ObservedGeneration: generation,
		},
	}
}

// DeletionStarted returns the condition transitions applied when the destroy
// path begins. Degraded is left unchanged.
func DeletionStarted(generation int64) []types.Condition {
	return []types.Condition{
		{
			Type:               types.ConditionTypeReady,
			Status:             types.ConditionUnknown,
			Reason:             "Deleting",
			Message:            "Resource is being deleted",
			ObservedGeneration: generation,
		},
		{
			Type:               types.ConditionTypeReconciling,
			Status:             types.ConditionFalse,
			Reason:             "Deleting",
			Message:            "Resource is being deleted",
			ObservedGeneration: generation,
		},
	}
}
