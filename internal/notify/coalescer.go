package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CoalescerConfig bounds failure notifications per organization.
type CoalescerConfig struct {
	// Threshold is how many error notifications pass in one window.
	Threshold int
	// Window is the length of a failure burst.
	Window time.Duration
}

type burst struct {
	start      time.Time
	passed     int
	suppressed int
}

// Coalescer forwards notifications to another Notifier, suppressing error
// bursts. After Threshold errors inside Window further errors are held back
// and one "N more failures" summary is sent when the window closes or the
// next non-error notification arrives.
type Coalescer struct {
	next   Notifier
	cfg    CoalescerConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	bursts map[string]*burst
}

// NewCoalescer wraps next.
func NewCoalescer(next Notifier, cfg CoalescerConfig, logger *slog.Logger) *Coalescer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer{
		next:   next,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		bursts: make(map[string]*burst),
	}
}

// Notify implements Notifier.
func (c *Coalescer) Notify(ctx context.Context, n Notification) error {
	now := c.now()
	var summaries []Notification

	c.mu.Lock()
	b := c.bursts[n.OrganizationID]
	if b != nil && now.Sub(b.start) >= c.cfg.Window {
		summaries = appendSummary(summaries, n.OrganizationID, b, now)
		delete(c.bursts, n.OrganizationID)
		b = nil
	}
	forward := true
	if n.Severity == SeverityError {
		if b == nil {
			b = &burst{start: now}
			c.bursts[n.OrganizationID] = b
		}
		if b.passed < c.cfg.Threshold {
			b.passed++
		} else {
			b.suppressed++
			forward = false
		}
	} else if b != nil {
		summaries = appendSummary(summaries, n.OrganizationID, b, now)
		delete(c.bursts, n.OrganizationID)
	}
	c.mu.Unlock()

	c.send(ctx, summaries)
	if !forward {
		c.logger.Debug("failure notification suppressed", slog.String("organization_id", n.OrganizationID))
		return nil
	}
	return c.next.Notify(ctx, n)
}

// Flush emits summaries for every window that has closed.
func (c *Coalescer) Flush(ctx context.Context) {
	now := c.now()
	var summaries []Notification
	c.mu.Lock()
	for org, b := range c.bursts {
		if now.Sub(b.start) < c.cfg.Window {
			continue
		}
		summaries = appendSummary(summaries, org, b, now)
		delete(c.bursts, org)
	}
	c.mu.Unlock()
	c.send(ctx, summaries)
}

// Run flushes closed windows until ctx ends.
func (c *Coalescer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

func (c *Coalescer) send(ctx context.Context, summaries []Notification) {
	for _, s := range summaries {
		if err := c.next.Notify(ctx, s); err != nil {
			c.logger.Warn("failure summary not delivered", slog.String("organization_id", s.OrganizationID), slog.Any("error", err))
		}
	}
}

func appendSummary(out []Notification, org string, b *burst, now time.Time) []Notification {
	if b.suppressed == 0 {
		return out
	}
	return append(out, Notification{
		OrganizationID: org,
		Message:        fmt.Sprintf("%d more failures", b.suppressed),
		Severity:       SeverityError,
		CreatedAt:      now,
	})
}
