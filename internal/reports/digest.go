package reports

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// Counter runs remote aggregate counts. store.Store satisfies it.
type Counter interface {
	Count(ctx context.Context, organizationID string, table store.Table, q store.Query) (int64, error)
}

// PeriodCounts are the digest figures for one period. Nil bounds are open.
type PeriodCounts struct {
	From                 *time.Time `json:"from,omitempty"`
	To                   *time.Time `json:"to,omitempty"`
	PendingDiscrepancies int64      `json:"pending_discrepancies"`
	IssuesReported       int64      `json:"issues_reported"`
}

// Digest compares the filter period with the equal-length period before it.
// Previous is nil for an open range.
type Digest struct {
	Current          PeriodCounts  `json:"current"`
	Previous         *PeriodCounts `json:"previous,omitempty"`
	DiscrepancyDelta int64         `json:"discrepancy_delta"`
	IssueDelta       int64         `json:"issue_delta"`
}

// ComputeDigest issues the period counts concurrently.
func ComputeDigest(ctx context.Context, counter Counter, organizationID string, r shared.DateRange) (*Digest, error) {
	d := &Digest{}
	g, gctx := errgroup.WithContext(ctx)
	countPeriod(gctx, g, counter, organizationID, r, &d.Current)
	if prev, ok := r.Previous(); ok {
		d.Previous = &PeriodCounts{}
		countPeriod(gctx, g, counter, organizationID, prev, d.Previous)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if d.Previous != nil {
		d.DiscrepancyDelta = d.Current.PendingDiscrepancies - d.Previous.PendingDiscrepancies
		d.IssueDelta = d.Current.IssuesReported - d.Previous.IssuesReported
	}
	return d, nil
}

func countPeriod(ctx context.Context, g *errgroup.Group, counter Counter, organizationID string, r shared.DateRange, out *PeriodCounts) {
	var span func(column string) *store.Range
	if from, to, ok := r.Bounds(); ok {
		out.From, out.To = &from, &to
		span = func(column string) *store.Range { return &store.Range{Column: column, From: from, To: to} }
	} else {
		span = func(string) *store.Range { return nil }
	}

	g.Go(func() error {
		n, err := counter.Count(ctx, organizationID, store.TableDiscrepancies, store.Query{
			Eq:    map[string]any{"status": string(inventory.DiscrepancyPending)},
			Range: span("created_at"),
		})
		out.PendingDiscrepancies = n
		return err
	})
	g.Go(func() error {
		n, err := counter.Count(ctx, organizationID, store.TableActivities, store.Query{
			Eq:    map[string]any{"category": inventory.ActivityIssueReported},
			Range: span("timestamp"),
		})
		out.IssuesReported = n
		return err
	})
}
