/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package action defines the extension point for action plugins. Action
// plugins are opaque executors (terraform, CI pipelines, ...) that
// reconcilers obtain by name through their context; the control plane never
// calls into them itself.
package action

import (
	"sync"

	"github.com/pkg/errors"
)

// Plugin is an opaque action executor registered by name.
type Plugin interface {
	Name() string
}

// Registry is a static name-to-plugin map populated at startup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin; re-registering a name replaces the previous entry.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Get returns the plugin registered under the given name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, errors.Errorf("unknown action plugin: %s", name)
	}
	return p, nil
}

// Names returns the registered plugin names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	return names
}
