/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/pkg/types"
)

const keepaliveInterval = 15 * time.Second

// handleEvents streams all resource events, optionally filtered by resource
// type, as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var filter *eventbus.Filter
	if typeName := r.URL.Query().Get("resource_type"); typeName != "" {
		filter = &eventbus.Filter{ResourceType: &typeName}
	}
	s.streamEvents(w, r, filter)
}

// handleResourceEvents streams the events of a single resource.
func (s *Server) handleResourceEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.store.GetResource(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.streamEvents(w, r, &eventbus.Filter{ResourceID: &id})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, filter *eventbus.Filter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, events := s.bus.Subscribe(filter)
	defer s.bus.Unsubscribe(id)
	s.log.V(1).Info("sse subscriber connected", "subscriber", id, "remote", r.RemoteAddr)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.V(1).Info("sse subscriber disconnected", "subscriber", id)
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-events:
			if !open {
				// bus shut down; end of stream
				return
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e types.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, payload)
	return err
}
