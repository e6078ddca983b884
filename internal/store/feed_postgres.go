package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultChannel is the NOTIFY channel the table triggers publish on.
const DefaultChannel = "stockroom_changes"

// PostgresFeed listens for NOTIFY payloads shaped like Change and fans them
// out through a Hub. Payloads carry the row id only; notifications are lost
// while no connection listens, so every (re)connect asks subscribers to
// resync.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewPostgresFeed constructs the LISTEN/NOTIFY feed.
func NewPostgresFeed(pool *pgxpool.Pool, channel string, logger *slog.Logger) *PostgresFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFeed{pool: pool, channel: channel, hub: NewHub(), logger: logger.With(slog.String("feed", "postgres"))}
}

// Subscribe implements Feed.
func (f *PostgresFeed) Subscribe(ctx context.Context, organizationID string) (<-chan Change, error) {
	return f.hub.Subscribe(ctx, organizationID)
}

// Run holds a dedicated connection listening on the channel until ctx ends,
// reconnecting after failures.
func (f *PostgresFeed) Run(ctx context.Context) error {
	if f.pool == nil {
		return errors.New("store: feed pool not configured")
	}
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("listen interrupted", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (f *PostgresFeed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire listener: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("store: listen: %w", err)
	}
	f.logger.Info("listening for changes", slog.String("channel", f.channel))
	f.hub.Resync()
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var change Change
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			f.logger.Warn("discard malformed change", slog.Any("error", err))
			continue
		}
		f.hub.Publish(change)
	}
}
