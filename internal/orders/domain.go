package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// ============================================================================
// ORDER
// ============================================================================

// Type distinguishes customer orders from supplier orders.
type Type string

const (
	TypeSales    Type = "Sales"
	TypePurchase Type = "Purchase"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusNew        Status = "New Order"
	StatusProcessing Status = "Processing"
	StatusPacked     Status = "Packed"
	StatusShipped    Status = "Shipped"
	StatusOnHold     Status = "On Hold"
	StatusProblem    Status = "Problem"
	StatusArchived   Status = "Archived"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusNew, StatusProcessing, StatusPacked, StatusShipped, StatusOnHold, StatusProblem, StatusArchived}

// Terminal reports Shipped and Archived.
func (s Status) Terminal() bool {
	return s == StatusShipped || s == StatusArchived
}

var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing, StatusOnHold, StatusProblem, StatusArchived},
	StatusProcessing: {StatusPacked, StatusOnHold, StatusProblem, StatusArchived},
	StatusPacked:     {StatusShipped, StatusOnHold, StatusProblem, StatusArchived},
	StatusOnHold:     {StatusNew, StatusProcessing, StatusPacked, StatusProblem, StatusArchived},
	StatusProblem:    {StatusNew, StatusProcessing, StatusPacked, StatusOnHold, StatusArchived},
	StatusShipped:    {StatusArchived},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// POItem is an order line.
type POItem struct {
	Name            string          `json:"name" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	InventoryItemID *string         `json:"inventory_item_id,omitempty"`
}

// Total is Quantity × UnitPrice.
func (p POItem) Total() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// InventoryItem returns the linked inventory id or "".
func (p POItem) InventoryItem() string {
	if p.InventoryItemID == nil {
		return ""
	}
	return *p.InventoryItemID
}

// Order is a sales or purchase order. Lines are stored as a JSON column.
type Order struct {
	ID              string          `json:"id" db:"id"`
	OrganizationID  string          `json:"organization_id" db:"organization_id"`
	OrderNumber     string          `json:"order_number" db:"order_number"`
	Type            Type            `json:"type" db:"type"`
	CounterpartName string          `json:"counterpart_name" db:"counterpart_name"`
	CustomerID      *string         `json:"customer_id" db:"customer_id"`
	VendorID        *string         `json:"vendor_id" db:"vendor_id"`
	Status          Status          `json:"status" db:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	ItemCount       int             `json:"item_count" db:"item_count"`
	OrderDate       shared.Date     `json:"order_date" db:"order_date"`
	DueDate         shared.Date     `json:"due_date" db:"due_date"`
	Items           []POItem        `json:"items" db:"items"`
	Notes           string          `json:"notes" db:"notes"`
}

// LineTotal sums quantity × unit price over the lines.
func (o Order) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Total())
	}
	return total
}

// Reconcile checks TotalAmount against LineTotal. Orders without lines are
// accepted as entered.
func (o Order) Reconcile() error {
	if len(o.Items) == 0 {
		return nil
	}
	if lines := o.LineTotal(); !lines.Equal(o.TotalAmount) {
		return fmt.Errorf("%w: total %s, lines %s", ErrTotalMismatch, o.TotalAmount, lines)
	}
	return nil
}

// Record renders the insert payload.
func (o Order) Record() store.Record {
	return store.Record{
		"id":               o.ID,
		"order_number":     o.OrderNumber,
		"type":             string(o.Type),
		"counterpart_name": o.CounterpartName,
		"customer_id":      o.CustomerID,
		"vendor_id":        o.VendorID,
		"status":           string(o.Status),
		"total_amount":     o.TotalAmount,
		"item_count":       o.ItemCount,
		"order_date":       o.OrderDate,
		"due_date":         o.DueDate,
		"items":            o.Items,
		"notes":            o.Notes,
	}
}

var (
	// ErrTotalMismatch indicates TotalAmount disagrees with the lines.
	ErrTotalMismatch = errors.New("orders: total does not reconcile with lines")
	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = errors.New("orders: order not found")
)
