/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package status_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/no8s/no8s/internal/status"
	"github.com/no8s/no8s/pkg/types"
)

var _ = Describe("Merge", func() {
	var (
		t0 time.Time
		t1 time.Time
	)

	BeforeEach(func() {
		t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		t1 = t0.Add(5 * time.Minute)
	})

	It("should append a condition of a new type", func() {
		conds := status.Merge(nil, types.Condition{
			Type:   types.ConditionTypeReady,
			Status: types.ConditionUnknown,
			Reason: "ReconcileStarted",
		}, t0)
		Expect(conds).To(HaveLen(1))
		Expect(conds[0].Type).To(Equal(types.ConditionTypeReady))
		Expect(conds[0].LastTransitionTime).To(Equal(t0))
	})

	It("should advance lastTransitionTime when the status value changes", func() {
		conds := status.Merge(nil, types.Condition{
			Type:   types.ConditionTypeReady,
			Status: types.ConditionUnknown,
		}, t0)
		conds = status.Merge(conds, types.Condition{
			Type:   types.ConditionTypeReady,
			Status: types.ConditionTrue,
			Reason: "ReconcileSuccess",
		}, t1)
		Expect(conds).To(HaveLen(1))
		Expect(conds[0].Status).To(Equal(types.ConditionTrue))
		Expect(conds[0].LastTransitionTime).To(Equal(t1))
	})

	It("should preserve lastTransitionTime when the status value is unchanged", func() {
		conds := status.Merge(nil, types.Condition{
			Type:    types.ConditionTypeReady,
			Status:  types.ConditionTrue,
			Reason:  "ReconcileSuccess",
			Message: "first",
		}, t0)
		conds = status.Merge(conds, types.Condition{
			Type:               types.ConditionTypeReady,
			Status:             types.ConditionTrue,
			Reason:             "ReconcileSuccess",
			Message:            "second",
			ObservedGeneration: 3,
		}, t1)
		Expect(conds).To(HaveLen(1))
		Expect(conds[0].LastTransitionTime).To(Equal(t0))
		Expect(conds[0].Message).To(Equal("second"))
		Expect(conds[0].ObservedGeneration).To(Equal(int64(3)))
	})

	It("should keep insertion order when merging by type", func() {
		conds := types.Conditions{}
		for _, c := range status.ReconcileStarted(1) {
			conds = status.Merge(conds, c, t0)
		}
		conds = status.Merge(conds, types.Condition{
			Type:   types.ConditionTypeDegraded,
			Status: types.ConditionFalse,
			Reason: "NoErrors",
		}, t0)
		conds = status.Merge(conds, types.Condition{
			Type:   types.ConditionTypeReady,
			Status: types.ConditionTrue,
			Reason: "ReconcileSuccess",
		}, t1)
		Expect(conds).To(HaveLen(3))
		Expect(conds[0].Type).To(Equal(types.ConditionTypeReady))
		Expect(conds[1].Type).To(Equal(types.ConditionTypeReconciling))
		Expect(conds[2].Type).To(Equal(types.ConditionTypeDegraded))
	})

	It("should not mutate the input slice", func() {
		orig := status.MergeAll(nil, status.ReconcileStarted(1), t0)
		snapshot := make(types.Conditions, len(orig))
		copy(snapshot, orig)
		_ = status.MergeAll(orig, status.ReconcileSucceeded(1), t1)
		Expect(orig).To(Equal(snapshot))
	})
})

var _ = Describe("Transitions", func() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	get := func(conds types.Conditions, t types.ConditionType) *types.Condition {
		for i := range conds {
			if conds[i].Type == t {
				return &conds[i]
			}
		}
		return nil
	}

	It("should mark a started reconciliation", func() {
		conds := status.MergeAll(nil, status.ReconcileStarted(2), now)
		ready := get(conds, types.ConditionTypeReady)
		Expect(ready).NotTo(BeNil())
		Expect(ready.Status).To(Equal(types.ConditionUnknown))
		Expect(ready.Reason).To(Equal("ReconcileStarted"))
		reconciling := get(conds, types.ConditionTypeReconciling)
		Expect(reconciling.Status).To(Equal(types.ConditionTrue))
		Expect(reconciling.Reason).To(Equal("InProgress"))
		Expect(ready.ObservedGeneration).To(Equal(int64(2)))
		Expect(get(conds, types.ConditionTypeDegraded)).To(BeNil())
	})

	It("should mark a successful reconciliation", func() {
		conds := status.MergeAll(nil, status.ReconcileStarted(2), now)
		conds = status.MergeAll(conds, status.ReconcileSucceeded(2), now)
		Expect(get(conds, types.ConditionTypeReady).Status).To(Equal(types.ConditionTrue))
		Expect(get(conds, types.ConditionTypeReady).Reason).To(Equal("ReconcileSuccess"))
		Expect(get(conds, types.ConditionTypeReconciling).Status).To(Equal(types.ConditionFalse))
		Expect(get(conds, types.ConditionTypeDegraded).Status).To(Equal(types.ConditionFalse))
		Expect(get(conds, types.ConditionTypeDegraded).Reason).To(Equal("NoErrors"))
	})

	It("should mark a failed reconciliation with the derived reason", func() {
		conds := status.MergeAll(nil, status.ReconcileFailed(1, "NoReconciler", "no reconciler registered"), now)
		Expect(get(conds, types.ConditionTypeReady).Status).To(Equal(types.ConditionFalse))
		Expect(get(conds, types.ConditionTypeReady).Reason).To(Equal("NoReconciler"))
		Expect(get(conds, types.ConditionTypeDegraded).Status).To(Equal(types.ConditionTrue))
		Expect(get(conds, types.ConditionTypeDegraded).Message).To(Equal("no reconciler registered"))
	})

	It("should default the failure reason", func() {
		conds := status.MergeAll(nil, status.ReconcileFailed(1, "", "boom"), now)
		Expect(get(conds, types.ConditionTypeReady).Reason).To(Equal("ReconcileFailed"))
	})

	It("should mark a started deletion without touching Degraded", func() {
		conds := status.MergeAll(nil, status.ReconcileFailed(1, "", "boom"), now)
		conds = status.MergeAll(conds, status.DeletionStarted(1), now.Add(time.Minute))
		Expect(get(conds, types.ConditionTypeReady).Status).To(Equal(types.ConditionUnknown))
		Expect(get(conds, types.ConditionTypeReady).Reason).To(Equal("Deleting"))
		Expect(get(conds, types.ConditionTypeReconciling).Status).To(Equal(types.ConditionFalse))
		Expect(get(conds, types.ConditionTypeDegraded).Status).To(Equal(types.ConditionTrue))
	})
})
