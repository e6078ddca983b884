package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/refdata"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
)

const org = "org-1"

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(value string) shared.Date { return shared.DateOf(value) }

func item(id, name, category, folder string, picking, overstock, reorder int, cost string) inventory.Item {
	it := inventory.Item{
		ID:                 id,
		OrganizationID:     org,
		Name:               name,
		SKU:                "SKU-" + id,
		Category:           category,
		FolderID:           ptr(folder),
		PickingBinQuantity: picking,
		OverstockQuantity:  overstock,
		ReorderLevel:       reorder,
		UnitCost:           dec(cost),
	}
	it.Normalize()
	return it
}

func fixture() snapshot.Snapshot {
	a := item("A", "Widget", "Hardware", "f1", 2, 0, 5, "3.00")
	a.AutoReorderEnabled, a.AutoReorderQuantity, a.VendorID = true, 20, ptr("V1")
	b := item("B", "Gadget", "Hardware", "f2", 0, 0, 2, "10.00")
	c := item("C", "Bolt", "Fasteners", "f1", 1, 49, 10, "0.10")
	c.PickingReorderLevel = 5
	foreign := item("X", "Foreign", "Hardware", "f1", 0, 0, 5, "99.00")
	foreign.OrganizationID = "org-2"

	return snapshot.Snapshot{
		OrganizationID: org,
		Version:        1,
		LoadedAt:       time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Items:          []inventory.Item{a, b, c, foreign},
		Orders: []orders.Order{
			{
				ID: "o1", OrganizationID: org, Type: orders.TypeSales, CounterpartName: "Acme", Status: orders.StatusShipped,
				TotalAmount: dec("100.00"), ItemCount: 3, OrderDate: at("2024-01-10T23:59:00Z"),
				Items: []orders.POItem{
					{Name: "Widget", Quantity: 3, UnitPrice: dec("20.00"), InventoryItemID: ptr("A")},
					{Name: "Service fee", Quantity: 1, UnitPrice: dec("40.00")},
				},
			},
			{
				ID: "o2", OrganizationID: org, Type: orders.TypeSales, CounterpartName: "Acme", Status: orders.StatusProcessing,
				TotalAmount: dec("250.50"), ItemCount: 5, OrderDate: at("2024-01-12T10:00:00Z"), DueDate: at("2024-01-20"),
				Items: []orders.POItem{{Name: "Bolt", Quantity: 5, UnitPrice: dec("50.10"), InventoryItemID: ptr("C")}},
			},
			{
				ID: "o3", OrganizationID: org, Type: orders.TypePurchase, CounterpartName: "Parts Co", Status: orders.StatusNew,
				TotalAmount: dec("60.00"), ItemCount: 20, OrderDate: at("2024-01-11"), DueDate: at("2024-01-14"),
				Items: []orders.POItem{{Name: "Widget", Quantity: 20, UnitPrice: dec("3.00"), InventoryItemID: ptr("A")}},
			},
			{
				ID: "o4", OrganizationID: org, Type: orders.TypeSales, CustomerID: ptr("c2"), Status: orders.StatusNew,
				TotalAmount: dec("10.00"), ItemCount: 1, OrderDate: at("2024-01-11T00:00:01Z"), DueDate: at("2024-01-16"),
			},
			{
				ID: "o9", OrganizationID: "org-2", Type: orders.TypeSales, CounterpartName: "Acme", Status: orders.StatusNew,
				TotalAmount: dec("999.00"), ItemCount: 9, OrderDate: at("2024-01-10"),
			},
		},
		Movements: []inventory.Movement{
			{ID: "m1", OrganizationID: org, ItemID: "A", FolderID: ptr("f1"), Type: inventory.MovementRemove, Amount: 3, OldQuantity: 5, NewQuantity: 2, UserID: "u1", Timestamp: at("2024-01-10T08:00:00Z")},
			{ID: "m2", OrganizationID: org, ItemID: "C", Type: inventory.MovementRemove, Amount: 10, OldQuantity: 60, NewQuantity: 50, UserID: "u9", Timestamp: at("2024-01-14T08:00:00Z")},
			{ID: "m3", OrganizationID: "org-2", ItemID: "X", Type: inventory.MovementRemove, Amount: 1, OldQuantity: 1, NewQuantity: 0, Timestamp: at("2024-01-14T08:00:00Z")},
			{ID: "m4", OrganizationID: org, ItemID: "A", Type: inventory.MovementAdd, Amount: 1, OldQuantity: 4, NewQuantity: 5, Timestamp: at("not a date")},
		},
		Activity: []inventory.Activity{
			{ID: "a1", OrganizationID: org, Category: inventory.ActivityIssueReported, UserID: "u1", Timestamp: at("2024-01-13T09:00:00Z")},
			{ID: "a2", OrganizationID: org, Category: "Stock Added", UserID: "u1", Timestamp: at("2024-01-14T09:00:00Z")},
		},
		Folders: []refdata.Folder{
			{ID: "f1", OrganizationID: org, Name: "Aisle 1"},
			{ID: "f2", OrganizationID: org, Name: "Back Room"},
		},
		Vendors:   []refdata.Vendor{{ID: "V1", OrganizationID: org, Name: "Parts Co"}},
		Customers: []refdata.Customer{{ID: "c2", OrganizationID: org, Name: "Beta"}},
		Profiles:  []refdata.Profile{{ID: "u1", OrganizationID: org, FullName: "Dana", Role: refdata.RoleAdmin}},
	}
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
