package snapshot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stockroom/stockroom/internal/store"
)

type follower struct {
	ctx      context.Context
	feed     store.Feed
	watching map[string]struct{}
}

// Follow attaches a realtime feed. Every organization already loaded, and
// every organization loaded afterwards, is watched until ctx ends.
func (l *Loader) Follow(ctx context.Context, feed store.Feed) {
	l.mu.Lock()
	l.follower = &follower{ctx: ctx, feed: feed, watching: make(map[string]struct{})}
	orgs := make([]string, 0, len(l.current))
	for org := range l.current {
		orgs = append(orgs, org)
	}
	l.mu.Unlock()
	for _, org := range orgs {
		l.follow(org)
	}
}

func (l *Loader) follow(organizationID string) {
	l.mu.Lock()
	f := l.follower
	if f == nil {
		l.mu.Unlock()
		return
	}
	if _, ok := f.watching[organizationID]; ok {
		l.mu.Unlock()
		return
	}
	f.watching[organizationID] = struct{}{}
	l.mu.Unlock()

	go func() {
		err := l.Watch(f.ctx, f.feed, organizationID)
		l.mu.Lock()
		delete(f.watching, organizationID)
		l.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("realtime watch stopped", slog.String("organization_id", organizationID), slog.Any("error", err))
		}
	}()
}
