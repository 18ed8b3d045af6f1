/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/no8s/no8s/pkg/types"
)

type stubReconciler struct {
	name    string
	claims  []string
	started atomic.Bool
	stopped atomic.Bool
}

func (s *stubReconciler) Name() string            { return s.name }
func (s *stubReconciler) ResourceTypes() []string { return s.claims }
func (s *stubReconciler) Start(ctx context.Context, rctx Context) error {
	s.started.Store(true)
	<-ctx.Done()
	return nil
}
func (s *stubReconciler) Reconcile(ctx context.Context, r *types.Resource, rctx Context) (Result, error) {
	return Result{}, nil
}
func (s *stubReconciler) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

var _ = ginkgo.Describe("Registry", func() {
	var registry *Registry

	ginkgo.BeforeEach(func() {
		registry = NewRegistry(ginkgo.GinkgoLogr)
	})

	ginkgo.It("should resolve reconcilers by resource type", func() {
		tf := &stubReconciler{name: "terraform", claims: []string{"vpc", "subnet"}}
		Expect(registry.Register(tf)).To(Succeed())

		Expect(registry.ForType("vpc")).To(BeIdenticalTo(tf))
		Expect(registry.ForType("subnet")).To(BeIdenticalTo(tf))
		Expect(registry.ForType("bucket")).To(BeNil())

		name, ok := registry.NameForType("vpc")
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("terraform"))
		Expect(registry.HasReconcilerFor("bucket")).To(BeFalse())
	})

	ginkgo.It("should refuse a second claim on the same resource type", func() {
		Expect(registry.Register(&stubReconciler{name: "terraform", claims: []string{"vpc"}})).To(Succeed())

		err := registry.Register(&stubReconciler{name: "pulumi", claims: []string{"vpc"}})
		Expect(err).To(HaveOccurred())
		var conflict *types.ResourceTypeConflictError
		Expect(errors.As(err, &conflict)).To(BeTrue())
		Expect(conflict.TypeName).To(Equal("vpc"))
		Expect(conflict.Claimed).To(Equal("terraform"))
	})

	ginkgo.It("should allow re-registration under the same name", func() {
		Expect(registry.Register(&stubReconciler{name: "terraform", claims: []string{"vpc"}})).To(Succeed())
		Expect(registry.Register(&stubReconciler{name: "terraform", claims: []string{"vpc", "subnet"}})).To(Succeed())
		Expect(registry.HasReconcilerFor("subnet")).To(BeTrue())
	})

	ginkgo.It("should start and stop all reconcilers", func() {
		a := &stubReconciler{name: "terraform", claims: []string{"vpc"}}
		b := &stubReconciler{name: "ansible", claims: []string{"host"}}
		Expect(registry.Register(a)).To(Succeed())
		Expect(registry.Register(b)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		registry.StartAll(ctx, nil)
		Eventually(a.started.Load).Should(BeTrue())
		Eventually(b.started.Load).Should(BeTrue())

		cancel()
		registry.StopAll(time.Second)
		Expect(a.stopped.Load()).To(BeTrue())
		Expect(b.stopped.Load()).To(BeTrue())
	})
})
