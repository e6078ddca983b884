package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

func main() {
	org := flag.String("org", "demo", "organization id to seed")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	pg, err := store.NewPostgres(pool)
	if err != nil {
		logger.Error("init store", slog.Any("error", err))
		os.Exit(1)
	}

	steps := []struct {
		name string
		fn   func(context.Context, store.Store, string) error
	}{
		{"reference data", seedReference},
		{"inventory", seedInventory},
		{"orders", seedOrders},
	}
	for _, step := range steps {
		logger.Info("seeding", slog.String("step", step.name), slog.String("organization_id", *org))
		if err := step.fn(ctx, pg, *org); err != nil {
			logger.Error("seed failed", slog.String("step", step.name), slog.Any("error", err))
			os.Exit(1)
		}
	}
	logger.Info("seed complete", slog.String("organization_id", *org))
}

func scoped(org, id string) string {
	return org + "-" + id
}

func seedReference(ctx context.Context, st store.Store, org string) error {
	rows := []struct {
		table store.Table
		rec   store.Record
	}{
		{store.TableFolders, store.Record{"id": scoped(org, "aisle-1"), "name": "Aisle 1"}},
		{store.TableFolders, store.Record{"id": scoped(org, "back-room"), "name": "Back Room"}},
		{store.TableVendors, store.Record{"id": scoped(org, "parts-co"), "name": "Parts Co", "email": "orders@parts.example"}},
		{store.TableVendors, store.Record{"id": scoped(org, "bolt-bros"), "name": "Bolt Brothers"}},
		{store.TableCustomers, store.Record{"id": scoped(org, "acme"), "name": "Acme Retail"}},
		{store.TableProfiles, store.Record{"id": "admin", "full_name": "Demo Admin", "email": "admin@stockroom.example", "role": "admin"}},
		{store.TableProfiles, store.Record{"id": "picker", "full_name": "Demo Picker", "role": "staff"}},
	}
	for _, row := range rows {
		if err := st.Insert(ctx, org, row.table, row.rec); err != nil {
			return fmt.Errorf("%s %v: %w", row.table, row.rec["id"], err)
		}
	}
	return nil
}

func seedInventory(ctx context.Context, st store.Store, org string) error {
	aisle, back := scoped(org, "aisle-1"), scoped(org, "back-room")
	parts, bolts := scoped(org, "parts-co"), scoped(org, "bolt-bros")
	items := []inventory.Item{
		{ID: scoped(org, "widget"), Name: "Widget", SKU: "WID-1", Category: "Hardware", FolderID: &aisle, VendorID: &parts,
			PickingBinQuantity: 2, OverstockQuantity: 1, ReorderLevel: 5, PickingReorderLevel: 2,
			UnitCost: decimal.RequireFromString("3.20"), RetailPrice: decimal.RequireFromString("9.99"),
			AutoReorderEnabled: true, AutoReorderQuantity: 40},
		{ID: scoped(org, "gadget"), Name: "Gadget", SKU: "GAD-1", Category: "Hardware", FolderID: &back, VendorID: &parts,
			ReorderLevel: 2, UnitCost: decimal.RequireFromString("12.00"), RetailPrice: decimal.RequireFromString("29.00")},
		{ID: scoped(org, "bolt"), Name: "Hex bolt M8", SKU: "BLT-M8", Category: "Fasteners", FolderID: &aisle, VendorID: &bolts,
			PickingBinQuantity: 40, OverstockQuantity: 600, ReorderLevel: 100, PickingReorderLevel: 50,
			UnitCost: decimal.RequireFromString("0.08"), RetailPrice: decimal.RequireFromString("0.25"),
			AutoReorderEnabled: true, AutoReorderQuantity: 1000},
	}
	now := time.Now().UTC()
	for _, it := range items {
		it.Normalize()
		it.LastUpdated = shared.NewDate(now)
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		if err := st.Insert(ctx, org, store.TableItems, it.Record()); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}
	return nil
}

func seedOrders(ctx context.Context, st store.Store, org string) error {
	widget := scoped(org, "widget")
	acme := scoped(org, "acme")
	now := time.Now().UTC()
	list := []orders.Order{
		{
			Type: orders.TypeSales, CounterpartName: "Acme Retail", CustomerID: &acme, Status: orders.StatusShipped,
			OrderDate: shared.NewDate(now.AddDate(0, 0, -6)),
			Items:     []orders.POItem{{Name: "Widget", Quantity: 6, UnitPrice: decimal.RequireFromString("9.99"), InventoryItemID: &widget}},
		},
		{
			Type: orders.TypeSales, CounterpartName: "Walk-in", Status: orders.StatusProcessing,
			OrderDate: shared.NewDate(now.AddDate(0, 0, -1)), DueDate: shared.NewDate(now.AddDate(0, 0, 2)),
			Items:     []orders.POItem{{Name: "Gift wrap", Quantity: 1, UnitPrice: decimal.RequireFromString("2.00")}},
		},
	}
	for _, o := range list {
		id := uuid.New()
		o.ID = id.String()
		o.OrderNumber = fmt.Sprintf("SO-SEED-%s", id.String()[:6])
		o.TotalAmount = o.LineTotal()
		for _, line := range o.Items {
			o.ItemCount += line.Quantity
		}
		if err := st.Insert(ctx, org, store.TableOrders, o.Record()); err != nil {
			return fmt.Errorf("order %s: %w", o.OrderNumber, err)
		}
	}
	return nil
}
