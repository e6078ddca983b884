package replenishment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/notify"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
)

type harness struct {
	st       *store.Memory
	loader   *snapshot.Loader
	markers  *MemoryMarkerStore
	notifier *flakyNotifier
	metrics  *Metrics
	runner   *Runner
}

type flakyNotifier struct {
	next notify.Notifier
	err  error
}

func (f *flakyNotifier) Notify(ctx context.Context, n notify.Notification) error {
	if f.err != nil {
		return f.err
	}
	return f.next.Notify(ctx, n)
}

func newHarness(t *testing.T, items ...inventory.Item) *harness {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	for _, it := range items {
		require.NoError(t, st.Insert(ctx, org, store.TableItems, it.Record()))
	}
	require.NoError(t, st.Insert(ctx, org, store.TableVendors, store.Record{"id": "V1", "name": "Parts Co"}))
	require.NoError(t, st.Insert(ctx, org, store.TableProfiles, store.Record{"id": "u-admin", "full_name": "Dana", "role": "admin"}))
	require.NoError(t, st.Insert(ctx, org, store.TableProfiles, store.Record{"id": "u-staff", "full_name": "Sam", "role": "staff"}))

	h := &harness{
		st:       st,
		loader:   snapshot.NewLoader(st, nil),
		markers:  NewMemoryMarkerStore(time.Hour),
		notifier: &flakyNotifier{next: notify.NewStoreNotifier(st, nil)},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	h.runner = NewRunner(RunnerConfig{
		Source:   h.loader,
		Markers:  h.markers,
		Orders:   orders.NewService(st, nil, nil),
		Notifier: h.notifier,
		Metrics:  h.metrics,
	})
	_, err := h.loader.Load(ctx, org)
	require.NoError(t, err)
	return h
}

func (h *harness) orders(t *testing.T) []orders.Order {
	t.Helper()
	var out []orders.Order
	require.NoError(t, h.st.Select(context.Background(), org, store.TableOrders, store.Query{}, &out))
	return out
}

func (h *harness) notifications(t *testing.T) []notify.Notification {
	t.Helper()
	var out []notify.Notification
	require.NoError(t, h.st.Select(context.Background(), org, store.TableNotifications, store.Query{}, &out))
	return out
}

func TestRunPlacesOneOrderPerItem(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"), reorderItem("C", 9, 0, "V1"))
	ctx := context.Background()

	result, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	require.Empty(t, result.Failures)
	require.Len(t, result.Orders, 1)

	order := result.Orders[0]
	require.Equal(t, orders.TypePurchase, order.Type)
	require.Equal(t, orders.StatusNew, order.Status)
	require.Equal(t, "Parts Co", order.CounterpartName)
	require.Equal(t, "V1", *order.VendorID)
	require.Equal(t, 20, order.ItemCount)
	require.Equal(t, "25.00", order.TotalAmount.StringFixed(2))
	require.Equal(t, "A", *order.Items[0].InventoryItemID)

	again, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	require.Empty(t, again.Orders)
	require.Len(t, h.orders(t), 1)

	notes := h.notifications(t)
	require.Len(t, notes, 1)
	require.Equal(t, notify.SeverityInfo, notes[0].Severity)
	require.Contains(t, notes[0].Message, "20 x Item A from Parts Co")

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.orders))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.decisions.WithLabelValues("reorder")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.decisions.WithLabelValues(string(SkipAlreadyPending))))
}

func TestRunDisabledDoesNothing(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"))
	result, err := h.runner.Run(context.Background(), RunInput{OrganizationID: org})
	require.NoError(t, err)
	require.True(t, result.Disabled)
	require.Empty(t, h.orders(t))

	_, err = h.runner.Run(context.Background(), RunInput{Enabled: true})
	require.Error(t, err)
}

func TestRunOrderFailureReleasesMarker(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"), reorderItem("B", 0, 0, "V1"))
	ctx := context.Background()
	h.st.Fail = func(op string, table store.Table) error {
		if op == "insert" && table == store.TableOrders {
			return errors.New("orders offline")
		}
		return nil
	}

	result, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	require.Empty(t, result.Orders)
	require.Len(t, result.Failures, 2)
	for _, f := range result.Failures {
		require.Equal(t, StageOrder, f.Stage)
	}
	require.ErrorContains(t, result.Err(), "orders offline")

	markers, err := h.markers.Get(ctx, org, []string{"A", "B"})
	require.NoError(t, err)
	require.Empty(t, markers)
	require.Len(t, h.notifications(t), 2)
	require.Equal(t, 2.0, testutil.ToFloat64(h.metrics.failures.WithLabelValues(string(StageOrder))))

	h.st.Fail = nil
	result, err = h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
}

func TestRunNotifyFailureKeepsOrder(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"))
	h.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	result, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Len(t, result.Failures, 1)
	require.Equal(t, StageNotify, result.Failures[0].Stage)
	require.Equal(t, "A", result.Failures[0].ItemID)

	markers, err := h.markers.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Equal(t, MarkerRequested, markers["A"].State)
	require.Len(t, h.orders(t), 1)
}

func TestRunMovesMarkersAfterRestock(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"))
	ctx := context.Background()

	_, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)

	_, err = h.st.Update(ctx, org, store.TableItems,
		store.Record{"overstock_quantity": 20, "quantity": 22},
		store.Where("id", "A"))
	require.NoError(t, err)
	_, err = h.loader.Load(ctx, org)
	require.NoError(t, err)

	_, err = h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	markers, err := h.markers.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Equal(t, Fulfilled(), markers["A"])

	_, err = h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: true})
	require.NoError(t, err)
	markers, err = h.markers.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Empty(t, markers)
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	h := newHarness(t, reorderItem("A", 2, 0, "V1"))
	decisions, err := h.runner.Preview(context.Background(), org)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].Request)
	require.Empty(t, h.orders(t))
}
