package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// Item is a stocked SKU. Quantity always equals PickingBinQuantity plus
// OverstockQuantity.
type Item struct {
	ID                  string          `json:"id" db:"id"`
	OrganizationID      string          `json:"organization_id" db:"organization_id"`
	Name                string          `json:"name" db:"name"`
	SKU                 string          `json:"sku" db:"sku"`
	Category            string          `json:"category" db:"category"`
	FolderID            *string         `json:"folder_id" db:"folder_id"`
	PickingBinFolderID  *string         `json:"picking_bin_folder_id" db:"picking_bin_folder_id"`
	VendorID            *string         `json:"vendor_id" db:"vendor_id"`
	PickingBinQuantity  int             `json:"picking_bin_quantity" db:"picking_bin_quantity"`
	OverstockQuantity   int             `json:"overstock_quantity" db:"overstock_quantity"`
	Quantity            int             `json:"quantity" db:"quantity"`
	ReorderLevel        int             `json:"reorder_level" db:"reorder_level"`
	PickingReorderLevel int             `json:"picking_reorder_level" db:"picking_reorder_level"`
	UnitCost            decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	RetailPrice         decimal.Decimal `json:"retail_price" db:"retail_price"`
	AutoReorderEnabled  bool            `json:"auto_reorder_enabled" db:"auto_reorder_enabled"`
	AutoReorderQuantity int             `json:"auto_reorder_quantity" db:"auto_reorder_quantity"`
	LastUpdated         shared.Date     `json:"last_updated" db:"last_updated"`
}

// Normalize recomputes Quantity from its two bins.
func (i *Item) Normalize() {
	i.Quantity = i.PickingBinQuantity + i.OverstockQuantity
}

// Validate checks the quantity invariants.
func (i Item) Validate() error {
	if i.PickingBinQuantity < 0 || i.OverstockQuantity < 0 {
		return ErrNegativeStock
	}
	if i.Quantity != i.PickingBinQuantity+i.OverstockQuantity {
		return fmt.Errorf("%w: quantity %d != %d + %d", ErrQuantityMismatch, i.Quantity, i.PickingBinQuantity, i.OverstockQuantity)
	}
	return nil
}

// Value is Quantity multiplied by UnitCost.
func (i Item) Value() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Folder returns the storage folder id or "".
func (i Item) Folder() string {
	return deref(i.FolderID)
}

// Vendor returns the vendor id or "".
func (i Item) Vendor() string {
	return deref(i.VendorID)
}

// Record renders the full insert payload.
func (i Item) Record() store.Record {
	rec := i.QuantityRecord()
	rec["id"] = i.ID
	rec["name"] = i.Name
	rec["sku"] = i.SKU
	rec["category"] = i.Category
	rec["folder_id"] = i.FolderID
	rec["picking_bin_folder_id"] = i.PickingBinFolderID
	rec["vendor_id"] = i.VendorID
	rec["reorder_level"] = i.ReorderLevel
	rec["picking_reorder_level"] = i.PickingReorderLevel
	rec["unit_cost"] = i.UnitCost
	rec["retail_price"] = i.RetailPrice
	rec["auto_reorder_enabled"] = i.AutoReorderEnabled
	rec["auto_reorder_quantity"] = i.AutoReorderQuantity
	return rec
}

// QuantityRecord holds the columns changed by stock mutations.
func (i Item) QuantityRecord() store.Record {
	return store.Record{
		"picking_bin_quantity": i.PickingBinQuantity,
		"overstock_quantity":   i.OverstockQuantity,
		"quantity":             i.Quantity,
		"last_updated":         i.LastUpdated.Time,
	}
}

// Health classifies an item's stock level.
type Health string

const (
	HealthInStock Health = "in_stock"
	HealthLow     Health = "low_stock"
	HealthOut     Health = "out_of_stock"
)

// Classify is the single stock-health predicate: out of stock at zero, low
// stock when 0 < quantity <= reorder level, otherwise in stock.
func Classify(item Item) Health {
	switch {
	case item.Quantity <= 0:
		return HealthOut
	case item.Quantity <= item.ReorderLevel:
		return HealthLow
	default:
		return HealthInStock
	}
}

// IsLowStock reports HealthLow.
func IsLowStock(item Item) bool { return Classify(item) == HealthLow }

// IsOutOfStock reports HealthOut.
func IsOutOfStock(item Item) bool { return Classify(item) == HealthOut }

// AtOrBelowReorderLevel reports whether the item is low or out of stock.
func AtOrBelowReorderLevel(item Item) bool { return Classify(item) != HealthInStock }

// PickingBinNeedsRefill reports a pick face at or below its own reorder
// level while overstock can refill it.
func PickingBinNeedsRefill(item Item) bool {
	return item.PickingBinQuantity <= item.PickingReorderLevel && item.OverstockQuantity > 0
}

// MovementType enumerates stock movement directions.
type MovementType string

const (
	MovementAdd    MovementType = "add"
	MovementRemove MovementType = "remove"
)

// Movement is an immutable stock event.
type Movement struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	ItemID         string       `json:"item_id" db:"item_id"`
	FolderID       *string      `json:"folder_id" db:"folder_id"`
	Type           MovementType `json:"type" db:"type"`
	Amount         int          `json:"amount" db:"amount"`
	OldQuantity    int          `json:"old_quantity" db:"old_quantity"`
	NewQuantity    int          `json:"new_quantity" db:"new_quantity"`
	Reason         string       `json:"reason" db:"reason"`
	UserID         string       `json:"user_id" db:"user_id"`
	Timestamp      shared.Date  `json:"timestamp" db:"timestamp"`
}

// Validate checks NewQuantity == OldQuantity ± Amount.
func (m Movement) Validate() error {
	if m.Amount <= 0 {
		return ErrInvalidQuantity
	}
	switch m.Type {
	case MovementAdd:
		if m.NewQuantity != m.OldQuantity+m.Amount {
			return ErrMovementMismatch
		}
	case MovementRemove:
		if m.NewQuantity != m.OldQuantity-m.Amount {
			return ErrMovementMismatch
		}
	default:
		return ErrInvalidMovementType
	}
	return nil
}

// Folder returns the folder id or "".
func (m Movement) Folder() string {
	return deref(m.FolderID)
}

// Record renders the insert payload.
func (m Movement) Record() store.Record {
	return store.Record{
		"id":           m.ID,
		"item_id":      m.ItemID,
		"folder_id":    m.FolderID,
		"type":         string(m.Type),
		"amount":       m.Amount,
		"old_quantity": m.OldQuantity,
		"new_quantity": m.NewQuantity,
		"reason":       m.Reason,
		"user_id":      m.UserID,
		"timestamp":    m.Timestamp.Time,
	}
}

// DiscrepancyStatus enumerates discrepancy lifecycle values.
type DiscrepancyStatus string

const (
	DiscrepancyPending  DiscrepancyStatus = "pending"
	DiscrepancyResolved DiscrepancyStatus = "resolved"
)

// Discrepancy records a mismatch between expected and counted stock.
type Discrepancy struct {
	ID               string            `json:"id" db:"id"`
	OrganizationID   string            `json:"organization_id" db:"organization_id"`
	ItemID           string            `json:"item_id" db:"item_id"`
	FolderID         *string           `json:"folder_id" db:"folder_id"`
	OriginalQuantity int               `json:"original_quantity" db:"original_quantity"`
	CountedQuantity  int               `json:"counted_quantity" db:"counted_quantity"`
	Difference       int               `json:"difference" db:"difference"`
	Status           DiscrepancyStatus `json:"status" db:"status"`
	Reason           string            `json:"reason" db:"reason"`
	ReportedBy       string            `json:"reported_by" db:"reported_by"`
	CreatedAt        shared.Date       `json:"created_at" db:"created_at"`
}

// Record renders the insert payload.
func (d Discrepancy) Record() store.Record {
	return store.Record{
		"id":                d.ID,
		"item_id":           d.ItemID,
		"folder_id":         d.FolderID,
		"original_quantity": d.OriginalQuantity,
		"counted_quantity":  d.CountedQuantity,
		"difference":        d.Difference,
		"status":            string(d.Status),
		"reason":            d.Reason,
		"reported_by":       d.ReportedBy,
		"created_at":        d.CreatedAt.Time,
	}
}

// ActivityIssueReported is the activity category counted in issue digests.
const ActivityIssueReported = "Issue Reported"

// Activity is an entry in the organization's activity feed.
type Activity struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	Category       string      `json:"category" db:"category"`
	ItemID         *string     `json:"item_id" db:"item_id"`
	UserID         string      `json:"user_id" db:"user_id"`
	Description    string      `json:"description" db:"description"`
	Timestamp      shared.Date `json:"timestamp" db:"timestamp"`
}

// Record renders the insert payload.
func (a Activity) Record() store.Record {
	return store.Record{
		"id":          a.ID,
		"category":    a.Category,
		"item_id":     a.ItemID,
		"user_id":     a.UserID,
		"description": a.Description,
		"timestamp":   a.Timestamp.Time,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	// ErrNegativeStock triggered when a movement would drive a bin below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrQuantityMismatch indicates quantity != picking bin + overstock.
	ErrQuantityMismatch = errors.New("inventory: quantity does not match bins")
	// ErrMovementMismatch indicates new != old ± amount.
	ErrMovementMismatch = errors.New("inventory: movement quantities inconsistent")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: unknown movement type")
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrConcurrentUpdate indicates the item changed between read and write.
	ErrConcurrentUpdate = errors.New("inventory: item changed concurrently")
)
