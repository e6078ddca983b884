package replenishment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/refdata"
)

const org = "org-1"

func ptr(s string) *string { return &s }

func reorderItem(id string, picking, overstock int, vendor string) inventory.Item {
	it := inventory.Item{
		ID:                  id,
		OrganizationID:      org,
		Name:                "Item " + id,
		SKU:                 "SKU-" + id,
		PickingBinQuantity:  picking,
		OverstockQuantity:   overstock,
		ReorderLevel:        5,
		UnitCost:            decimal.RequireFromString("1.25"),
		AutoReorderEnabled:  true,
		AutoReorderQuantity: 20,
	}
	if vendor != "" {
		it.VendorID = ptr(vendor)
	}
	it.Normalize()
	return it
}

var vendors = []refdata.Vendor{
	{ID: "V1", OrganizationID: org, Name: "Parts Co"},
	{ID: "V9", OrganizationID: "org-2", Name: "Elsewhere"},
}

func TestDecideScenario(t *testing.T) {
	items := []inventory.Item{reorderItem("A", 2, 0, "V1")}

	got := Decide(items, vendors, org, nil)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].ItemID)
	require.Equal(t, "V1", got[0].VendorID)
	require.Equal(t, 20, got[0].Quantity)
	require.Equal(t, org, got[0].OrganizationID)
	require.Equal(t, "Parts Co", got[0].VendorName)
	require.NotEmpty(t, got[0].RequestID)
	require.NotEmpty(t, got[0].DedupeKey)
}

func TestDecideSkips(t *testing.T) {
	disabled := reorderItem("B", 1, 0, "V1")
	disabled.AutoReorderEnabled = false
	noQty := reorderItem("F", 1, 0, "V1")
	noQty.AutoReorderQuantity = 0
	foreign := reorderItem("G", 0, 0, "V1")
	foreign.OrganizationID = "org-2"

	items := []inventory.Item{
		reorderItem("E", 0, 0, "V1"),
		disabled,
		reorderItem("C", 4, 4, "V1"),
		reorderItem("D", 1, 0, ""),
		noQty,
		foreign,
		reorderItem("H", 1, 0, "V9"),
		reorderItem("I", 3, 0, "V1"),
		reorderItem("A", 5, 0, "V1"),
	}
	markers := map[string]Marker{"I": Requested("r-1"), "E": Fulfilled()}

	decisions := Explain(items, vendors, org, markers)
	reasons := make(map[string]SkipReason, len(decisions))
	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		reasons[d.ItemID] = d.Skip
		ids = append(ids, d.ItemID)
	}
	require.Equal(t, []string{"A", "B", "C", "D", "E", "F", "H", "I"}, ids)
	require.Equal(t, SkipNone, reasons["A"])
	require.Equal(t, SkipDisabled, reasons["B"])
	require.Equal(t, SkipAboveLevel, reasons["C"])
	require.Equal(t, SkipNoVendor, reasons["D"])
	require.Equal(t, SkipNone, reasons["E"])
	require.Equal(t, SkipNoQuantity, reasons["F"])
	require.Equal(t, SkipUnknownVendor, reasons["H"])
	require.Equal(t, SkipAlreadyPending, reasons["I"])

	requests := Decide(items, vendors, org, markers)
	require.Len(t, requests, 2)
	require.Equal(t, "A", requests[0].ItemID)
	require.Equal(t, "E", requests[1].ItemID)
}

func TestDecideIsDeterministic(t *testing.T) {
	items := []inventory.Item{reorderItem("B", 0, 0, "V1"), reorderItem("A", 2, 0, "V1")}
	first := Decide(items, vendors, org, nil)
	second := Decide(items, vendors, org, nil)
	require.Equal(t, first, second)
	require.Equal(t, "A", first[0].ItemID)
	require.NotEqual(t, first[0].RequestID, first[1].RequestID)
}
