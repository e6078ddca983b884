package reports

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/refdata"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
)

var (
	// EstimatedCostRatio is the cost share assumed for sold lines whose
	// inventory unit cost cannot be resolved. It is an approximation, not a
	// costing method.
	EstimatedCostRatio = decimal.RequireFromString("0.7")
	// SimulatedOpexRatio is the placeholder operating expense share of
	// revenue used by Profitability.Simulated.
	SimulatedOpexRatio = decimal.RequireFromString("0.2")

	hundred = decimal.NewFromInt(100)
)

// ErrNotReady is returned while the organization or its profile reference
// data has not been loaded.
var ErrNotReady = errors.New("reports: data not ready")

// Computer derives view models from snapshots. It never mutates its input.
type Computer struct {
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewComputer builds a Computer. rng feeds forecast presentation jitter; nil
// disables it.
func NewComputer(logger *slog.Logger, rng *rand.Rand) *Computer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Computer{logger: logger, rng: rng}
}

// input is the tenant-scoped, filtered view every sub-report reads.
type input struct {
	asOf            time.Time
	filters         Filters
	resolver        *refdata.Resolver
	items           []inventory.Item
	itemsByID       map[string]inventory.Item
	orders          []orders.Order
	allOrders       []orders.Order
	movements       []inventory.Movement
	scopedMovements []inventory.Movement
	activity        []inventory.Activity
}

// Compute builds the full view model for snap under f.
func (c *Computer) Compute(snap snapshot.Snapshot, f Filters) (*ViewModel, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !snap.HasReferenceData() {
		return nil, ErrNotReady
	}
	f = f.normalized()
	in := c.prepare(snap, f)

	vm := &ViewModel{
		OrganizationID:  snap.OrganizationID,
		SnapshotVersion: snap.Version,
		AsOf:            in.asOf,
		Filters:         f,
	}
	vm.Valuation = valuation(in)
	vm.LowStock, vm.OutOfStock = stockAlerts(in)
	vm.PickingAlerts = pickingAlerts(in)
	vm.SalesByCustomer = counterpartRollup(in, orders.TypeSales)
	vm.PurchasesByVendor = counterpartRollup(in, orders.TypePurchase)
	vm.SalesByProduct = productRollup(in)
	vm.Profitability = profitability(in)
	vm.Movements = movementRows(in)
	vm.RecentActivity = recentActivity(in)
	vm.DueSoon = dueSoon(in)
	vm.StatusBreakdown = statusBreakdown(in)
	vm.Forecast = c.forecast(in)
	vm.Dashboard = dashboard(in, vm)

	c.logger.Debug("report computed",
		slog.String("organization_id", snap.OrganizationID),
		slog.Uint64("snapshot_version", snap.Version),
		slog.Int("items", len(in.items)),
		slog.Int("orders", len(in.orders)))
	return vm, nil
}

func (c *Computer) prepare(snap snapshot.Snapshot, f Filters) input {
	org := snap.OrganizationID
	rng := f.Range()
	in := input{
		asOf:      snap.LoadedAt,
		filters:   f,
		resolver:  snap.Resolver(c.logger),
		itemsByID: make(map[string]inventory.Item, len(snap.Items)),
	}

	for _, it := range snap.Items {
		if it.OrganizationID != org {
			continue
		}
		in.itemsByID[it.ID] = it
		if f.matchesCategory(it.Category) && f.matchesFolder(it.Folder()) {
			in.items = append(in.items, it)
		}
	}

	for _, o := range snap.Orders {
		if o.OrganizationID != org {
			continue
		}
		in.allOrders = append(in.allOrders, o)
	}
	dated := shared.FilterByDate(in.allOrders, rng, func(o orders.Order) shared.Date { return o.OrderDate })
	for _, o := range dated {
		if f.matchesOrder(o) {
			in.orders = append(in.orders, o)
		}
	}

	for _, m := range snap.Movements {
		if m.OrganizationID != org {
			continue
		}
		in.scopedMovements = append(in.scopedMovements, m)
	}
	for _, m := range shared.FilterByDate(in.scopedMovements, rng, func(m inventory.Movement) shared.Date { return m.Timestamp }) {
		folder := m.Folder()
		item, known := in.itemsByID[m.ItemID]
		if folder == "" && known {
			folder = item.Folder()
		}
		if !f.matchesFolder(folder) {
			continue
		}
		if len(f.Categories) > 0 && (!known || !f.matchesCategory(item.Category)) {
			continue
		}
		in.movements = append(in.movements, m)
	}

	var activity []inventory.Activity
	for _, a := range snap.Activity {
		if a.OrganizationID == org {
			activity = append(activity, a)
		}
	}
	in.activity = shared.FilterByDate(activity, rng, func(a inventory.Activity) shared.Date { return a.Timestamp })
	return in
}

func dashboard(in input, vm *ViewModel) DashboardSummary {
	d := DashboardSummary{
		TotalStockValue:   vm.Valuation.TotalValue,
		TotalUnits:        vm.Valuation.TotalUnits,
		ItemCount:         len(in.items),
		LowStockCount:     len(vm.LowStock),
		OutOfStockCount:   len(vm.OutOfStock),
		OpenPurchaseValue: decimal.Zero,
		SalesTotal:        decimal.Zero,
	}
	for _, o := range in.allOrders {
		if o.Status.Terminal() {
			continue
		}
		d.PendingOrderCount++
		if o.Type == orders.TypePurchase {
			d.OpenPurchaseValue = d.OpenPurchaseValue.Add(o.TotalAmount)
		}
	}
	for _, o := range in.orders {
		if o.Type == orders.TypeSales {
			d.SalesTotal = d.SalesTotal.Add(o.TotalAmount)
		}
	}
	return d
}

// percentOf is part/total × 100 rounded to two places; 0 when total is 0.
func percentOf(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred).Round(2)
}
