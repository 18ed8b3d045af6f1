/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/no8s/no8s/pkg/types"
)

// idParam parses the id path segment. The route pattern restricts it to
// digits, so only out-of-range values can fail here.
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, types.ValidationErrors{{Path: "/id", Message: "invalid id"}}
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleCreateResourceType(w http.ResponseWriter, r *http.Request) {
	var req createResourceTypeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rt := &types.ResourceType{
		Name:        req.Name,
		Version:     req.Version,
		Schema:      req.Schema,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if err := s.gw.RegisterResourceType(r.Context(), rt); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) handleListResourceTypes(w http.ResponseWriter, r *http.Request) {
	rts, err := s.store.ListResourceTypes(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[types.ResourceType]{Items: rts, Count: len(rts)})
}

func (s *Server) handleGetResourceTypeByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rt, err := s.store.GetResourceTypeByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleGetResourceType(w http.ResponseWriter, r *http.Request) {
	rt, err := s.store.GetResourceType(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// handleUpdateResourceType changes a type's description, status or metadata.
// The schema itself is immutable once registered.
func (s *Server) handleUpdateResourceType(w http.ResponseWriter, r *http.Request) {
	var req updateResourceTypeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rt, err := s.store.UpdateResourceTypeMeta(r.Context(),
		chi.URLParam(r, "name"), chi.URLParam(r, "version"),
		req.Description, req.Status, req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleDeleteResourceType(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteResourceType(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.gw.CreateResource(r.Context(), req.Name, req.TypeName, req.TypeVersion, req.Spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resource)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.store.ListResources(r.Context(),
		r.URL.Query().Get("resource_type"),
		types.Phase(r.URL.Query().Get("status")),
		queryInt(r, "limit", 100),
		queryInt(r, "offset", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[types.Resource]{Items: resources, Count: len(resources)})
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.store.GetResource(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) handleGetResourceByKey(w http.ResponseWriter, r *http.Request) {
	resource, err := s.store.GetResourceByKey(r.Context(),
		chi.URLParam(r, "type"), chi.URLParam(r, "version"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req updateResourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.gw.UpdateResource(r.Context(), id, req.Spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.gw.DeleteResource(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) handleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resource, triggered, err := s.gw.TriggerReconcile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": triggered, "resource": resource})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.store.GetResource(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.store.ListHistory(r.Context(), id, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[types.HistoryEntry]{Items: entries, Count: len(entries)})
}

func (s *Server) handleGetOutputs(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.store.GetResource(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outputs := resource.Outputs
	if outputs == nil {
		outputs = types.Document{}
	}
	writeJSON(w, http.StatusOK, outputs)
}

func (s *Server) handlePatchFinalizers(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req patchFinalizersRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resource, err := s.gw.PatchFinalizers(r.Context(), id, req.Add, req.Remove)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	wh := &types.AdmissionWebhook{
		Name:           req.Name,
		TypeName:       req.TypeName,
		TypeVersion:    req.TypeVersion,
		URL:            req.URL,
		WebhookType:    req.WebhookType,
		Operations:     types.StringList(req.Operations),
		TimeoutSeconds: req.TimeoutSeconds,
		FailurePolicy:  types.FailurePolicy(req.FailurePolicy),
		Ordering:       req.Ordering,
	}
	if err := s.store.CreateWebhook(r.Context(), wh); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.store.ListWebhooks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[types.AdmissionWebhook]{Items: webhooks, Count: len(webhooks)})
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	wh, err := s.store.GetWebhook(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteWebhook(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
