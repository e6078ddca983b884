// Package replenishment decides and places automatic purchase orders for
// items at or below their reorder level.
package replenishment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/refdata"
)

// OrderRequest is one purchase order the engine wants placed.
type OrderRequest struct {
	RequestID      string          `json:"request_id"`
	OrganizationID string          `json:"organization_id"`
	ItemID         string          `json:"item_id"`
	ItemName       string          `json:"item_name"`
	SKU            string          `json:"sku"`
	VendorID       string          `json:"vendor_id"`
	VendorName     string          `json:"vendor_name"`
	Quantity       int             `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	// DedupeKey is stable for one stock state of one item, so replaying the
	// same decision never places a second order.
	DedupeKey string `json:"dedupe_key"`
}

// SkipReason explains why an item produced no request.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDisabled       SkipReason = "auto_reorder_disabled"
	SkipAboveLevel     SkipReason = "above_reorder_level"
	SkipNoQuantity     SkipReason = "no_reorder_quantity"
	SkipNoVendor       SkipReason = "no_vendor"
	SkipUnknownVendor  SkipReason = "unknown_vendor"
	SkipAlreadyPending SkipReason = "request_outstanding"
)

// Decision is the per-item outcome of an evaluation.
type Decision struct {
	ItemID  string        `json:"item_id"`
	Name    string        `json:"name"`
	Skip    SkipReason    `json:"skip,omitempty"`
	Request *OrderRequest `json:"request,omitempty"`
}

// Decide returns the order requests for organizationID, sorted by item id.
// Items and vendors of other organizations are ignored. Items whose marker
// is Requested are skipped.
func Decide(items []inventory.Item, vendors []refdata.Vendor, organizationID string, markers map[string]Marker) []OrderRequest {
	var out []OrderRequest
	for _, d := range Explain(items, vendors, organizationID, markers) {
		if d.Request != nil {
			out = append(out, *d.Request)
		}
	}
	return out
}

// Explain evaluates every item of the organization, sorted by item id.
func Explain(items []inventory.Item, vendors []refdata.Vendor, organizationID string, markers map[string]Marker) []Decision {
	byID := make(map[string]refdata.Vendor, len(vendors))
	for _, v := range vendors {
		if v.OrganizationID == organizationID {
			byID[v.ID] = v
		}
	}

	var out []Decision
	for _, item := range items {
		if item.OrganizationID != organizationID {
			continue
		}
		d := Decision{ItemID: item.ID, Name: item.Name}
		d.Skip = skipReason(item, byID, markers[item.ID])
		if d.Skip == SkipNone {
			vendor := byID[item.Vendor()]
			req := newRequest(organizationID, item, vendor)
			d.Request = &req
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func skipReason(item inventory.Item, vendors map[string]refdata.Vendor, marker Marker) SkipReason {
	switch {
	case !item.AutoReorderEnabled:
		return SkipDisabled
	case !inventory.AtOrBelowReorderLevel(item):
		return SkipAboveLevel
	case item.AutoReorderQuantity <= 0:
		return SkipNoQuantity
	case strings.TrimSpace(item.Vendor()) == "":
		return SkipNoVendor
	}
	if _, ok := vendors[item.Vendor()]; !ok {
		return SkipUnknownVendor
	}
	if marker.State == MarkerRequested {
		return SkipAlreadyPending
	}
	return SkipNone
}

func newRequest(organizationID string, item inventory.Item, vendor refdata.Vendor) OrderRequest {
	var stamp int64
	if item.LastUpdated.Valid {
		stamp = item.LastUpdated.Time.UnixMilli()
	}
	vendorName := strings.TrimSpace(vendor.Name)
	if vendorName == "" {
		vendorName = refdata.UnknownVendor
	}
	key := fmt.Sprintf("reorder:%s:%s:%s:%d:%d", organizationID, item.ID, vendor.ID, item.AutoReorderQuantity, stamp)
	return OrderRequest{
		RequestID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
		OrganizationID: organizationID,
		ItemID:         item.ID,
		ItemName:       item.Name,
		SKU:            item.SKU,
		VendorID:       vendor.ID,
		VendorName:     vendorName,
		Quantity:       item.AutoReorderQuantity,
		UnitCost:       item.UnitCost,
		DedupeKey:      key,
	}
}
