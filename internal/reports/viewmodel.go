package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/shared"
)

// ViewModel carries every sub-report for one organization, snapshot and
// filter set.
type ViewModel struct {
	OrganizationID  string    `json:"organization_id"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	AsOf            time.Time `json:"as_of"`
	Filters         Filters   `json:"filters"`

	Dashboard         DashboardSummary    `json:"dashboard"`
	Valuation         Valuation           `json:"valuation"`
	LowStock          []StockAlert        `json:"low_stock"`
	OutOfStock        []StockAlert        `json:"out_of_stock"`
	PickingAlerts     []PickingAlert      `json:"picking_alerts"`
	SalesByCustomer   []CounterpartRollup `json:"sales_by_customer"`
	PurchasesByVendor []CounterpartRollup `json:"purchases_by_vendor"`
	SalesByProduct    []ProductRollup     `json:"sales_by_product"`
	Profitability     Profitability       `json:"profitability"`
	Movements         []MovementRow       `json:"movements"`
	RecentActivity    []ActivityRow       `json:"recent_activity"`
	DueSoon           []DueOrder          `json:"due_soon"`
	Forecast          []ForecastRow       `json:"forecast"`
	StatusBreakdown   []StatusCount       `json:"status_breakdown"`

	// Digest is filled by Service from remote counts.
	Digest *Digest `json:"digest,omitempty"`
}

// DashboardSummary is the headline figures block.
type DashboardSummary struct {
	TotalStockValue   decimal.Decimal `json:"total_stock_value"`
	TotalUnits        int             `json:"total_units"`
	ItemCount         int             `json:"item_count"`
	LowStockCount     int             `json:"low_stock_count"`
	OutOfStockCount   int             `json:"out_of_stock_count"`
	PendingOrderCount int             `json:"pending_order_count"`
	OpenPurchaseValue decimal.Decimal `json:"open_purchase_value"`
	SalesTotal        decimal.Decimal `json:"sales_total"`
}

// Valuation is the grouped stock value rollup.
type Valuation struct {
	GroupBy    GroupBy           `json:"group_by"`
	TotalValue decimal.Decimal   `json:"total_value"`
	TotalUnits int               `json:"total_units"`
	Buckets    []ValuationBucket `json:"buckets"`
}

// ValuationBucket is one group of the valuation.
type ValuationBucket struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Value      decimal.Decimal `json:"value"`
	Units      int             `json:"units"`
	ItemCount  int             `json:"item_count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// StockAlert is a low or out-of-stock line.
type StockAlert struct {
	ItemID       string           `json:"item_id"`
	Name         string           `json:"name"`
	SKU          string           `json:"sku"`
	Category     string           `json:"category"`
	Folder       string           `json:"folder"`
	Vendor       string           `json:"vendor"`
	Quantity     int              `json:"quantity"`
	ReorderLevel int              `json:"reorder_level"`
	Shortfall    int              `json:"shortfall"`
	Health       inventory.Health `json:"health"`
}

// PickingAlert flags a pick face that overstock can refill.
type PickingAlert struct {
	ItemID              string `json:"item_id"`
	Name                string `json:"name"`
	PickingFolder       string `json:"picking_folder"`
	PickingBinQuantity  int    `json:"picking_bin_quantity"`
	PickingReorderLevel int    `json:"picking_reorder_level"`
	OverstockQuantity   int    `json:"overstock_quantity"`
	SuggestedMove       int    `json:"suggested_move"`
}

// CounterpartRollup totals orders per customer or vendor name.
type CounterpartRollup struct {
	Name          string          `json:"name"`
	Total         decimal.Decimal `json:"total"`
	TotalItems    int             `json:"total_items"`
	OrderCount    int             `json:"order_count"`
	LastOrderDate shared.Date     `json:"last_order_date"`
}

// ProductRollup totals sold units per inventory item or line name.
type ProductRollup struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Category  string          `json:"category"`
	UnitsSold int             `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Profitability holds deterministic margin figures. Simulated holds the
// placeholder operating-expense projection and is never mixed into them.
type Profitability struct {
	Revenue        decimal.Decimal `json:"revenue"`
	COGS           decimal.Decimal `json:"cogs"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	GrossMarginPct decimal.Decimal `json:"gross_margin_pct"`
	EstimatedLines int             `json:"estimated_lines"`
	Simulated      Simulated       `json:"simulated"`
}

// Simulated is a placeholder projection: operating expense is a flat share
// of revenue, not real expense accounting.
type Simulated struct {
	OpexRatio        decimal.Decimal `json:"opex_ratio"`
	OperatingExpense decimal.Decimal `json:"operating_expense"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	NetMarginPct     decimal.Decimal `json:"net_margin_pct"`
}

// MovementRow is a movement annotated with display names.
type MovementRow struct {
	ID          string                 `json:"id"`
	ItemID      string                 `json:"item_id"`
	ItemName    string                 `json:"item_name"`
	Type        inventory.MovementType `json:"type"`
	Amount      int                    `json:"amount"`
	OldQuantity int                    `json:"old_quantity"`
	NewQuantity int                    `json:"new_quantity"`
	Reason      string                 `json:"reason"`
	User        string                 `json:"user"`
	Folder      string                 `json:"folder"`
	Timestamp   shared.Date            `json:"timestamp"`
}

// ActivityRow is a feed entry with the user resolved.
type ActivityRow struct {
	ID          string      `json:"id"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	User        string      `json:"user"`
	Timestamp   shared.Date `json:"timestamp"`
}

// DueOrder is an open order with a due date.
type DueOrder struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Type        orders.Type     `json:"type"`
	Counterpart string          `json:"counterpart"`
	Status      orders.Status   `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     shared.Date     `json:"due_date"`
	Overdue     bool            `json:"overdue"`
}

// ForecastRow projects when an item runs out at its recent removal rate.
type ForecastRow struct {
	ItemID         string           `json:"item_id"`
	Name           string           `json:"name"`
	Quantity       int              `json:"quantity"`
	UnitsRemoved   int              `json:"units_removed"`
	WindowDays     int              `json:"window_days"`
	AvgDailyDemand decimal.Decimal  `json:"avg_daily_demand"`
	DaysOfCover    *decimal.Decimal `json:"days_of_cover,omitempty"`
	StockoutDate   shared.Date      `json:"stockout_date"`
	// Simulated is presentation jitter, present only when a random source
	// was injected.
	Simulated *ForecastJitter `json:"simulated,omitempty"`
}

// ForecastJitter is the jittered demand shown in trend charts.
type ForecastJitter struct {
	Demand decimal.Decimal `json:"demand"`
}

// StatusCount is one bucket of the order status breakdown.
type StatusCount struct {
	Status orders.Status `json:"status"`
	Count  int           `json:"count"`
}
