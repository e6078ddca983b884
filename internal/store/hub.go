package store

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// Hub fans realtime changes out to per-organization subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch   chan Change
	done <-chan struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe implements Feed. The channel closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, organizationID string) (<-chan Change, error) {
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}
	sub := &subscriber{ch: make(chan Change, subscriberBuffer), done: ctx.Done()}
	h.mu.Lock()
	if h.subs[organizationID] == nil {
		h.subs[organizationID] = make(map[*subscriber]struct{})
	}
	h.subs[organizationID][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[organizationID], sub)
		if len(h.subs[organizationID]) == 0 {
			delete(h.subs, organizationID)
		}
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch, nil
}

// Publish delivers c to every subscriber of its organization. Slow
// subscribers block the publisher until they drain or unsubscribe.
func (h *Hub) Publish(c Change) {
	if c.OrganizationID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[c.OrganizationID] {
		select {
		case sub.ch <- c:
		case <-sub.done:
		}
	}
}

// Subscribers reports the number of live subscribers for an organization.
func (h *Hub) Subscribers(organizationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[organizationID])
}

// Resync sends a ChangeResync to every subscriber so each reloads its
// organization.
func (h *Hub) Resync() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for org, subs := range h.subs {
		for sub := range subs {
			select {
			case sub.ch <- Change{Type: ChangeResync, OrganizationID: org}:
			case <-sub.done:
			}
		}
	}
}
