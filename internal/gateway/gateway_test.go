/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/pkg/reconciler"
	"github.com/no8s/no8s/pkg/types"
)

// fakeStore is an in-memory Store used by the gateway tests.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	resourceTypes map[string]*types.ResourceType
	resources     map[int64]*types.Resource
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		resourceTypes: make(map[string]*types.ResourceType),
		resources:     make(map[int64]*types.Resource),
	}
}

func (f *fakeStore) CreateResourceType(ctx context.Context, rt *types.ResourceType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rt.Name + "/" + rt.Version
	if _, ok := f.resourceTypes[key]; ok {
		return types.NewConflictError("resource type %s already exists", key)
	}
	f.nextID++
	rt.ID = f.nextID
	f.resourceTypes[key] = rt
	return nil
}

func (f *fakeStore) GetResourceType(ctx context.Context, name string, version string) (*types.ResourceType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.resourceTypes[name+"/"+version]
	if !ok {
		return nil, types.NewNotFoundError("resource type", name+"/"+version)
	}
	return rt, nil
}

func (f *fakeStore) ListResourceTypes(ctx context.Context, name string) ([]types.ResourceType, error) {
	return nil, nil
}

func (f *fakeStore) UpdateResourceTypeMeta(ctx context.Context, name string, version string, description *string, status *string, metadata types.Document) (*types.ResourceType, error) {
	return f.GetResourceType(ctx, name, version)
}

func (f *fakeStore) DeleteResourceType(ctx context.Context, name string, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.resources {
		if r.TypeName == name && r.TypeVersion == version && r.DeletedAt == nil {
			return types.NewConflictError("resource type %s/%s is referenced", name, version)
		}
	}
	key := name + "/" + version
	if _, ok := f.resourceTypes[key]; !ok {
		return types.NewNotFoundError("resource type", key)
	}
	delete(f.resourceTypes, key)
	return nil
}

func (f *fakeStore) CreateResource(ctx context.Context, r *types.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.resources {
		if existing.Name == r.Name && existing.DeletedAt == nil {
			return types.NewConflictError("resource %s already exists", r.Name)
		}
	}
	f.nextID++
	r.ID = f.nextID
	r.Status = types.PhasePending
	r.Generation = 1
	f.resources[r.ID] = r
	return nil
}

func (f *fakeStore) GetResource(ctx context.Context, id int64) (*types.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok || r.DeletedAt != nil {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	return r, nil
}

func (f *fakeStore) GetResourceIncludingDeleted(ctx context.Context, id int64) (*types.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	return r, nil
}

func (f *fakeStore) UpdateResourceSpec(ctx context.Context, id int64, newSpec types.Document) (*types.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok || r.DeletedAt != nil {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	r.Spec = newSpec
	r.Generation++
	r.Status = types.PhasePending
	return r, nil
}

func (f *fakeStore) SoftDeleteResource(ctx context.Context, id int64) (*types.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	if r.DeletedAt == nil {
		now := time.Now()
		r.DeletedAt = &now
		r.Status = types.PhaseDeleting
	}
	return r, nil
}

func (f *fakeStore) PatchFinalizers(ctx context.Context, id int64, add []string, remove []string) (*types.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, types.NewNotFoundError("resource", strconv.FormatInt(id, 10))
	}
	next := types.StringList{}
	removed := map[string]bool{}
	for _, name := range remove {
		removed[name] = true
	}
	seen := map[string]bool{}
	for _, name := range r.Finalizers {
		if !removed[name] {
			next = append(next, name)
			seen[name] = true
		}
	}
	for _, name := range add {
		if !seen[name] && !removed[name] {
			next = append(next, name)
		}
	}
	r.Finalizers = next
	return r, nil
}

func (f *fakeStore) MarkForReconcile(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok || r.DeletedAt != nil || r.Status == types.PhaseReconciling {
		return false, nil
	}
	r.Status = types.PhasePending
	now := time.Now()
	r.NextReconcileTime = &now
	return true, nil
}

// fakeAdmitter records calls and optionally mutates or denies.
type fakeAdmitter struct {
	deny    bool
	mutate  func(types.Document) types.Document
	lastOp  types.Operation
	lastOld *types.Resource
}

func (a *fakeAdmitter) Run(ctx context.Context, op types.Operation, resource *types.Resource, old *types.Resource) (types.Document, error) {
	a.lastOp = op
	a.lastOld = old
	if a.deny {
		return nil, types.NewAdmissionDeniedError("admission denied by webhook policy-check: not allowed")
	}
	if a.mutate != nil {
		return a.mutate(resource.Spec), nil
	}
	return resource.Spec, nil
}

type noopReconciler struct{ name string }

func (n *noopReconciler) Name() string            { return n.name }
func (n *noopReconciler) ResourceTypes() []string { return []string{"vpc"} }
func (n *noopReconciler) Start(ctx context.Context, rctx reconciler.Context) error {
	<-ctx.Done()
	return nil
}
func (n *noopReconciler) Reconcile(ctx context.Context, r *types.Resource, rctx reconciler.Context) (reconciler.Result, error) {
	return reconciler.Result{}, nil
}
func (n *noopReconciler) Stop(ctx context.Context) error { return nil }

var _ = Describe("Gateway", func() {
	var (
		ctx      context.Context
		st       *fakeStore
		registry *reconciler.Registry
		admitter *fakeAdmitter
		bus      *eventbus.Bus
		g        *Gateway
	)

	schema := types.Document{
		"type":     "object",
		"required": []any{"cidr_block"},
		"properties": map[string]any{
			"cidr_block": map[string]any{"type": "string"},
			"region":     map[string]any{"type": "string", "default": "eu-central-1"},
		},
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = newFakeStore()
		registry = reconciler.NewRegistry(GinkgoLogr)
		Expect(registry.Register(&noopReconciler{name: "terraform"})).To(Succeed())
		admitter = &fakeAdmitter{}
		bus = eventbus.New(16, GinkgoLogr)
		g = New(st, registry, admitter, bus, GinkgoLogr)

		Expect(g.RegisterResourceType(ctx, &types.ResourceType{
			Name: "vpc", Version: "v1", Schema: schema,
		})).To(Succeed())
	})

	AfterEach(func() {
		bus.Close()
	})

	Describe("RegisterResourceType", func() {
		It("should reject a malformed schema", func() {
			err := g.RegisterResourceType(ctx, &types.ResourceType{
				Name: "bad", Version: "v1", Schema: types.Document{"type": "objekt"},
			})
			Expect(types.IsValidation(err)).To(BeTrue())
		})

		It("should reject a duplicate (name, version)", func() {
			err := g.RegisterResourceType(ctx, &types.ResourceType{
				Name: "vpc", Version: "v1", Schema: schema,
			})
			Expect(types.IsConflict(err)).To(BeTrue())
		})
	})

	Describe("CreateResource", func() {
		It("should create a pending resource with the reconciler finalizer pre-inserted", func() {
			_, events := bus.Subscribe(nil)
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Status).To(Equal(types.PhasePending))
			Expect([]string(r.Finalizers)).To(Equal([]string{"terraform"}))
			// schema default applied during validation
			Expect(r.Spec).To(HaveKeyWithValue("region", "eu-central-1"))
			Eventually(events).Should(Receive(HaveField("Type", types.EventCreated)))
		})

		It("should fail with NotFound for an unknown type", func() {
			_, err := g.CreateResource(ctx, "x", "subnet", "v1", types.Document{})
			Expect(types.IsNotFound(err)).To(BeTrue())
		})

		It("should fail validation for a non-conforming spec", func() {
			_, err := g.CreateResource(ctx, "x", "vpc", "v1", types.Document{})
			Expect(types.IsValidation(err)).To(BeTrue())
		})

		It("should fail when no reconciler claims the type", func() {
			Expect(g.RegisterResourceType(ctx, &types.ResourceType{
				Name: "orphan", Version: "v1", Schema: types.Document{"type": "object"},
			})).To(Succeed())
			_, err := g.CreateResource(ctx, "x", "orphan", "v1", types.Document{})
			Expect(types.IsNoReconciler(err)).To(BeTrue())
		})

		It("should persist the admission-mutated spec", func() {
			admitter.mutate = func(spec types.Document) types.Document {
				out := spec.DeepCopy()
				out["tagged"] = true
				return out
			}
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Spec).To(HaveKeyWithValue("tagged", true))
		})

		It("should surface an admission denial", func() {
			admitter.deny = true
			_, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(types.IsAdmissionDenied(err)).To(BeTrue())
		})

		It("should reject a duplicate name", func() {
			_, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			_, err = g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(types.IsConflict(err)).To(BeTrue())
		})
	})

	Describe("UpdateResource", func() {
		var id int64

		BeforeEach(func() {
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			id = r.ID
		})

		It("should pass the previous resource to admission and publish MODIFIED", func() {
			_, events := bus.Subscribe(nil)
			updated, err := g.UpdateResource(ctx, id, types.Document{"cidr_block": "10.1.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Generation).To(Equal(int64(2)))
			Expect(admitter.lastOp).To(Equal(types.OperationUpdate))
			Expect(admitter.lastOld).NotTo(BeNil())
			Eventually(events).Should(Receive(HaveField("Type", types.EventModified)))
		})

		It("should validate the replacement spec", func() {
			_, err := g.UpdateResource(ctx, id, types.Document{"cidr_block": float64(7)})
			Expect(types.IsValidation(err)).To(BeTrue())
		})
	})

	Describe("DeleteResource", func() {
		var id int64

		BeforeEach(func() {
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			id = r.ID
		})

		It("should soft-delete and publish DELETED", func() {
			_, events := bus.Subscribe(nil)
			r, err := g.DeleteResource(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.InDeletion()).To(BeTrue())
			Expect(r.Status).To(Equal(types.PhaseDeleting))
			Eventually(events).Should(Receive(HaveField("Type", types.EventDeleted)))
		})

		It("should be idempotent", func() {
			_, err := g.DeleteResource(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			_, events := bus.Subscribe(nil)
			r, err := g.DeleteResource(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.InDeletion()).To(BeTrue())
			Consistently(events).ShouldNot(Receive())
		})

		It("should surface an admission denial", func() {
			admitter.deny = true
			_, err := g.DeleteResource(ctx, id)
			Expect(types.IsAdmissionDenied(err)).To(BeTrue())
		})
	})

	Describe("PatchFinalizers", func() {
		var id int64

		BeforeEach(func() {
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			id = r.ID
		})

		It("should apply additions and removals with set semantics", func() {
			r, err := g.PatchFinalizers(ctx, id, []string{"billing-export", "terraform"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect([]string(r.Finalizers)).To(Equal([]string{"terraform", "billing-export"}))

			r, err = g.PatchFinalizers(ctx, id, nil, []string{"terraform"})
			Expect(err).NotTo(HaveOccurred())
			Expect([]string(r.Finalizers)).To(Equal([]string{"billing-export"}))
		})

		It("should reject an empty finalizer name", func() {
			_, err := g.PatchFinalizers(ctx, id, []string{""}, nil)
			Expect(types.IsValidation(err)).To(BeTrue())
		})
	})

	Describe("TriggerReconcile", func() {
		It("should mark a resource for immediate reconciliation", func() {
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			_, triggered, err := g.TriggerReconcile(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(triggered).To(BeTrue())
		})

		It("should be a no-op while the resource is reconciling", func() {
			r, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			st.resources[r.ID].Status = types.PhaseReconciling
			_, triggered, err := g.TriggerReconcile(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(triggered).To(BeFalse())
		})

		It("should fail for an unknown resource", func() {
			_, _, err := g.TriggerReconcile(ctx, 999)
			Expect(types.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("DeleteResourceType", func() {
		It("should refuse while live resources reference the type", func() {
			_, err := g.CreateResource(ctx, "net-prod", "vpc", "v1", types.Document{"cidr_block": "10.0.0.0/16"})
			Expect(err).NotTo(HaveOccurred())
			Expect(types.IsConflict(g.DeleteResourceType(ctx, "vpc", "v1"))).To(BeTrue())
		})

		It("should delete an unreferenced type", func() {
			Expect(g.DeleteResourceType(ctx, "vpc", "v1")).To(Succeed())
		})
	})
})
