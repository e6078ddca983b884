package replenishment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/notify"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
)

// Stage names the side effect that failed.
type Stage string

const (
	StageMarker Stage = "marker"
	StageOrder  Stage = "order"
	StageNotify Stage = "notify"
)

// Failure is one side-effect failure for one item.
type Failure struct {
	ItemID string
	Stage  Stage
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("replenishment: %s %s: %v", f.Stage, f.ItemID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// RunInput scopes one evaluation. Enabled is the organization's auto-reorder
// switch; a disabled run evaluates nothing.
type RunInput struct {
	OrganizationID string
	Enabled        bool
}

// RunResult summarises a run.
type RunResult struct {
	OrganizationID  string         `json:"organization_id"`
	Disabled        bool           `json:"disabled,omitempty"`
	SnapshotVersion uint64         `json:"snapshot_version"`
	Requests        []OrderRequest `json:"requests"`
	Orders          []orders.Order `json:"orders"`
	Failures        []Failure      `json:"-"`
}

// Err joins every failure, or returns nil.
func (r RunResult) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Runner applies decisions: reserve the marker, create the order, notify.
type Runner struct {
	source   snapshot.Source
	markers  MarkerStore
	orders   orders.Creator
	notifier notify.Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

// RunnerConfig collects Runner dependencies.
type RunnerConfig struct {
	Source   snapshot.Source
	Markers  MarkerStore
	Orders   orders.Creator
	Notifier notify.Notifier
	Metrics  *Metrics
	Logger   *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:   cfg.Source,
		markers:  cfg.Markers,
		orders:   cfg.Orders,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger.With(slog.String("component", "replenishment")),
	}
}

// Preview evaluates the current snapshot without side effects.
func (r *Runner) Preview(ctx context.Context, organizationID string) ([]Decision, error) {
	snap, markers, err := r.load(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return Explain(snap.Items, snap.Vendors, organizationID, markers), nil
}

// Run evaluates the organization's snapshot and places an order for every
// eligible item. Side-effect failures are collected in the result and never
// stop the remaining items; the returned error covers only failures to
// evaluate at all.
func (r *Runner) Run(ctx context.Context, in RunInput) (RunResult, error) {
	result := RunResult{OrganizationID: in.OrganizationID}
	if in.OrganizationID == "" {
		return result, shared.ErrOrganizationRequired
	}
	if !in.Enabled {
		result.Disabled = true
		return result, nil
	}

	snap, markers, err := r.load(ctx, in.OrganizationID)
	if err != nil {
		return result, err
	}
	result.SnapshotVersion = snap.Version
	logger := r.logger.With(slog.String("organization_id", in.OrganizationID), slog.Uint64("snapshot_version", snap.Version))

	for _, d := range Explain(snap.Items, snap.Vendors, in.OrganizationID, markers) {
		r.metrics.decision(d.Skip)
		if d.Request == nil {
			if d.Skip != SkipDisabled && d.Skip != SkipAboveLevel {
				logger.Debug("reorder skipped", slog.String("item_id", d.ItemID), slog.String("reason", string(d.Skip)))
			}
			continue
		}
		req := *d.Request
		result.Requests = append(result.Requests, req)
		order, placed, failures := r.place(ctx, logger, req)
		if placed {
			result.Orders = append(result.Orders, order)
		}
		for _, f := range failures {
			r.metrics.failure(f.Stage)
			result.Failures = append(result.Failures, f)
		}
	}
	return result, nil
}

func (r *Runner) place(ctx context.Context, logger *slog.Logger, req OrderRequest) (orders.Order, bool, []Failure) {
	reserved, err := r.markers.Reserve(ctx, req.OrganizationID, req.ItemID, req.RequestID)
	if err != nil {
		return orders.Order{}, false, []Failure{{ItemID: req.ItemID, Stage: StageMarker, Err: err}}
	}
	if !reserved {
		logger.Debug("reorder already outstanding", slog.String("item_id", req.ItemID))
		return orders.Order{}, false, nil
	}

	order, err := r.orders.CreateOrder(ctx, draftFor(req))
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		logger.Info("reorder already placed", slog.String("item_id", req.ItemID), slog.String("dedupe_key", req.DedupeKey))
		return orders.Order{}, false, nil
	}
	if err != nil {
		failures := []Failure{{ItemID: req.ItemID, Stage: StageOrder, Err: err}}
		if relErr := r.markers.Release(ctx, req.OrganizationID, req.ItemID, req.RequestID); relErr != nil {
			failures = append(failures, Failure{ItemID: req.ItemID, Stage: StageMarker, Err: relErr})
		}
		logger.Error("reorder failed", slog.String("item_id", req.ItemID), slog.Any("error", err))
		if nerr := r.notify(ctx, req.OrganizationID, notify.SeverityError,
			fmt.Sprintf("Auto-reorder failed for %s", req.ItemName)); nerr != nil {
			failures = append(failures, Failure{ItemID: req.ItemID, Stage: StageNotify, Err: nerr})
		}
		return orders.Order{}, false, failures
	}

	r.metrics.orderCreated()
	logger.Info("reorder placed",
		slog.String("item_id", req.ItemID),
		slog.String("vendor_id", req.VendorID),
		slog.Int("quantity", req.Quantity),
		slog.String("order_number", order.OrderNumber))
	msg := fmt.Sprintf("Auto-reorder %s placed: %d x %s from %s", order.OrderNumber, req.Quantity, req.ItemName, req.VendorName)
	if err := r.notify(ctx, req.OrganizationID, notify.SeverityInfo, msg); err != nil {
		logger.Warn("reorder notification failed", slog.String("item_id", req.ItemID), slog.Any("error", err))
		return order, true, []Failure{{ItemID: req.ItemID, Stage: StageNotify, Err: err}}
	}
	return order, true, nil
}

func (r *Runner) notify(ctx context.Context, organizationID string, severity notify.Severity, msg string) error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Notify(ctx, notify.Notification{
		OrganizationID: organizationID,
		Message:        msg,
		Severity:       severity,
		CreatedAt:      time.Now().UTC(),
	})
}

// load fetches the snapshot and markers, first moving markers of restocked
// items along Requested -> Fulfilled -> NotNeeded.
func (r *Runner) load(ctx context.Context, organizationID string) (snapshot.Snapshot, map[string]Marker, error) {
	if r.markers == nil {
		return snapshot.Snapshot{}, nil, ErrMarkersUnavailable
	}
	snap, err := r.source.Snapshot(ctx, organizationID)
	if err != nil {
		return snapshot.Snapshot{}, nil, fmt.Errorf("replenishment: load snapshot: %w", err)
	}
	ids := make([]string, 0, len(snap.Items))
	for _, it := range snap.Items {
		if it.OrganizationID == organizationID {
			ids = append(ids, it.ID)
		}
	}
	markers, err := r.markers.Get(ctx, organizationID, ids)
	if err != nil {
		return snapshot.Snapshot{}, nil, fmt.Errorf("replenishment: load markers: %w", err)
	}
	for _, it := range snap.Items {
		m, ok := markers[it.ID]
		if !ok || it.OrganizationID != organizationID || inventory.AtOrBelowReorderLevel(it) {
			continue
		}
		var terr error
		switch m.State {
		case MarkerRequested:
			terr = r.markers.Fulfill(ctx, organizationID, it.ID)
			markers[it.ID] = Fulfilled()
		case MarkerFulfilled:
			terr = r.markers.Clear(ctx, organizationID, it.ID)
			delete(markers, it.ID)
		}
		if terr != nil {
			r.logger.Warn("marker transition", slog.String("item_id", it.ID), slog.Any("error", terr))
		}
	}
	return snap, markers, nil
}

func draftFor(req OrderRequest) orders.Draft {
	vendorID := req.VendorID
	itemID := req.ItemID
	return orders.Draft{
		OrganizationID:  req.OrganizationID,
		Type:            orders.TypePurchase,
		CounterpartName: req.VendorName,
		VendorID:        &vendorID,
		Items: []orders.POItem{{
			Name:            req.ItemName,
			Quantity:        req.Quantity,
			UnitPrice:       req.UnitCost,
			InventoryItemID: &itemID,
		}},
		Notes:     "Auto-reorder " + req.RequestID,
		DedupeKey: req.DedupeKey,
	}
}
