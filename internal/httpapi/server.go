/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package httpapi exposes the control plane over REST and server-sent
// events.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/internal/gateway"
	"github.com/no8s/no8s/pkg/types"
)

// Store is the read surface the API needs in addition to the gateway.
type Store interface {
	GetResourceTypeByID(ctx context.Context, id int64) (*types.ResourceType, error)
	GetResourceType(ctx context.Context, name string, version string) (*types.ResourceType, error)
	ListResourceTypes(ctx context.Context, name string) ([]types.ResourceType, error)
	UpdateResourceTypeMeta(ctx context.Context, name string, version string, description *string, status *string, metadata types.Document) (*types.ResourceType, error)
	GetResource(ctx context.Context, id int64) (*types.Resource, error)
	GetResourceByKey(ctx context.Context, typeName string, typeVersion string, name string) (*types.Resource, error)
	ListResources(ctx context.Context, typeName string, phase types.Phase, limit int, offset int) ([]types.Resource, error)
	ListHistory(ctx context.Context, resourceID int64, limit int, offset int) ([]types.HistoryEntry, error)
	CreateWebhook(ctx context.Context, wh *types.AdmissionWebhook) error
	GetWebhook(ctx context.Context, id int64) (*types.AdmissionWebhook, error)
	ListWebhooks(ctx context.Context) ([]types.AdmissionWebhook, error)
	DeleteWebhook(ctx context.Context, id int64) error
}

// Options controls optional server behavior.
type Options struct {
	CORSEnabled        bool
	CORSAllowedOrigins []string
}

// Server serves the REST API and the event streams.
type Server struct {
	gw     *gateway.Gateway
	store  Store
	bus    *eventbus.Bus
	log    logr.Logger
	router chi.Router
}

func NewServer(gw *gateway.Gateway, st Store, bus *eventbus.Bus, opts Options, log logr.Logger) *Server {
	s := &Server{
		gw:    gw,
		store: st,
		bus:   bus,
		log:   log.WithName("httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.CORSEnabled {
		origins := opts.CORSAllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/resource-types", func(r chi.Router) {
			r.Post("/", s.handleCreateResourceType)
			r.Get("/", s.handleListResourceTypes)
			r.Get("/{id:[0-9]+}", s.handleGetResourceTypeByID)
			r.Get("/{name}/{version}", s.handleGetResourceType)
			r.Put("/{name}/{version}", s.handleUpdateResourceType)
			r.Delete("/{name}/{version}", s.handleDeleteResourceType)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", s.handleCreateResource)
			r.Get("/", s.handleListResources)
			r.Get("/by-name/{type}/{version}/{name}", s.handleGetResourceByKey)
			r.Route("/{id:[0-9]+}", func(r chi.Router) {
				r.Get("/", s.handleGetResource)
				r.Put("/", s.handleUpdateResource)
				r.Delete("/", s.handleDeleteResource)
				r.Post("/reconcile", s.handleTriggerReconcile)
				r.Get("/history", s.handleListHistory)
				r.Get("/outputs", s.handleGetOutputs)
				r.Put("/finalizers", s.handlePatchFinalizers)
				r.Get("/events", s.handleResourceEvents)
			})
		})

		r.Route("/admission-webhooks", func(r chi.Router) {
			r.Post("/", s.handleCreateWebhook)
			r.Get("/", s.handleListWebhooks)
			r.Get("/{id:[0-9]+}", s.handleGetWebhook)
			r.Delete("/{id:[0-9]+}", s.handleDeleteWebhook)
		})

		r.Get("/events", s.handleEvents)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "error shutting down http server")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case types.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case types.IsNoReconciler(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case types.IsAdmissionDenied(err):
		writeJSON(w, http.StatusForbidden, errorResponse{Detail: err.Error()})
	case types.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
	case types.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Detail: err.Error()})
	default:
		s.log.Error(err, "internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.ValidationErrors{{Path: "", Message: fmt.Sprintf("invalid request body: %s", err)}}
	}
	if err := validate.Struct(dst); err != nil {
		return types.ValidationErrors{{Path: "", Message: err.Error()}}
	}
	return nil
}
