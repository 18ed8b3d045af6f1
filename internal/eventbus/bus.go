/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package eventbus implements the in-memory, lossy publish/subscribe channel
// for resource change events. Delivery is best-effort; a subscriber that does
// not drain its queue loses events rather than blocking the publisher.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/no8s/no8s/internal/metrics"
	"github.com/no8s/no8s/pkg/types"
)

const defaultQueueSize = 100

// Filter restricts delivery to a subscriber; nil fields match everything.
type Filter struct {
	ResourceID   *int64
	ResourceType *string
	EventTypes   []types.EventType
}

func (f *Filter) matches(e types.Event) bool {
	if f == nil {
		return true
	}
	if f.ResourceID != nil && *f.ResourceID != e.ResourceID {
		return false
	}
	if f.ResourceType != nil && *f.ResourceType != e.TypeName {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type subscriber struct {
	ch      chan types.Event
	filter  *Filter
	dropped atomic.Uint64
}

// Bus fans resource events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber
	queueSize   int
	closed      bool
	log         logr.Logger
}

func New(queueSize int, log logr.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		subscribers: make(map[uuid.UUID]*subscriber),
		queueSize:   queueSize,
		log:         log.WithName("eventbus"),
	}
}

// Publish delivers the event to every matching subscriber without blocking.
// When a subscriber's queue is full, the event is dropped for that subscriber
// and counted; other subscribers are unaffected.
func (b *Bus) Publish(e types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	for id, sub := range b.subscribers {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			total := sub.dropped.Add(1)
			metrics.EventsDropped.Inc()
			b.log.V(1).Info("dropped event for slow subscriber", "subscriber", id, "eventType", e.Type, "resourceId", e.ResourceID, "totalDropped", total)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The channel is closed on Unsubscribe or when the bus shuts down.
func (b *Bus) Subscribe(filter *Filter) (uuid.UUID, <-chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	sub := &subscriber{ch: make(chan types.Event, b.queueSize), filter: filter}
	if b.closed {
		close(sub.ch)
		return id, sub.ch
	}
	b.subscribers[id] = sub
	b.log.V(1).Info("subscriber added", "subscriber", id, "subscribers", len(b.subscribers))
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(sub.ch)
	if dropped := sub.dropped.Load(); dropped > 0 {
		b.log.Info("subscriber removed", "subscriber", id, "droppedEvents", dropped)
	} else {
		b.log.V(1).Info("subscriber removed", "subscriber", id)
	}
}

// Close shuts the bus down, closing all subscriber channels. Subsequent
// publishes are silently discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
