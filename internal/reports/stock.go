package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
)

const uncategorized = "Uncategorized"

func valuation(in input) Valuation {
	v := Valuation{GroupBy: in.filters.GroupBy, TotalValue: decimal.Zero}
	index := make(map[string]int)
	for _, it := range in.items {
		value := it.Value()
		v.TotalValue = v.TotalValue.Add(value)
		v.TotalUnits += it.Quantity

		key, label := bucketKey(in, it)
		pos, ok := index[key]
		if !ok {
			pos = len(v.Buckets)
			index[key] = pos
			v.Buckets = append(v.Buckets, ValuationBucket{Key: key, Label: label, Value: decimal.Zero})
		}
		b := &v.Buckets[pos]
		b.Value = b.Value.Add(value)
		b.Units += it.Quantity
		b.ItemCount++
	}
	for i := range v.Buckets {
		v.Buckets[i].Percentage = percentOf(v.Buckets[i].Value, v.TotalValue)
	}
	sort.SliceStable(v.Buckets, func(i, j int) bool {
		if c := v.Buckets[i].Value.Cmp(v.Buckets[j].Value); c != 0 {
			return c > 0
		}
		return v.Buckets[i].Key < v.Buckets[j].Key
	})
	return v
}

func bucketKey(in input, it inventory.Item) (string, string) {
	if in.filters.GroupBy == GroupByFolder {
		id := it.Folder()
		return id, in.resolver.FolderName(id)
	}
	category := strings.TrimSpace(it.Category)
	if category == "" {
		category = uncategorized
	}
	return category, category
}

func stockAlerts(in input) (low, out []StockAlert) {
	low, out = []StockAlert{}, []StockAlert{}
	for _, it := range in.items {
		health := inventory.Classify(it)
		if health == inventory.HealthInStock {
			continue
		}
		alert := StockAlert{
			ItemID:       it.ID,
			Name:         it.Name,
			SKU:          it.SKU,
			Category:     it.Category,
			Folder:       in.resolver.FolderName(it.Folder()),
			Vendor:       vendorLabel(in, it),
			Quantity:     it.Quantity,
			ReorderLevel: it.ReorderLevel,
			Shortfall:    it.ReorderLevel - it.Quantity,
			Health:       health,
		}
		if health == inventory.HealthLow {
			low = append(low, alert)
		} else {
			out = append(out, alert)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Quantity < low[j].Quantity })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return low, out
}

func vendorLabel(in input, it inventory.Item) string {
	if it.Vendor() == "" {
		return ""
	}
	return in.resolver.VendorName(it.Vendor())
}

func pickingAlerts(in input) []PickingAlert {
	alerts := []PickingAlert{}
	for _, it := range in.items {
		if !inventory.PickingBinNeedsRefill(it) {
			continue
		}
		folder := ""
		if it.PickingBinFolderID != nil {
			folder = in.resolver.FolderName(*it.PickingBinFolderID)
		}
		alerts = append(alerts, PickingAlert{
			ItemID:              it.ID,
			Name:                it.Name,
			PickingFolder:       folder,
			PickingBinQuantity:  it.PickingBinQuantity,
			PickingReorderLevel: it.PickingReorderLevel,
			OverstockQuantity:   it.OverstockQuantity,
			SuggestedMove:       suggestedMove(it),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].PickingBinQuantity < alerts[j].PickingBinQuantity })
	return alerts
}

// suggestedMove refills the pick face to twice its reorder level, bounded by
// the overstock on hand.
func suggestedMove(it inventory.Item) int {
	target := max(2*it.PickingReorderLevel, it.PickingReorderLevel+1)
	return min(target-it.PickingBinQuantity, it.OverstockQuantity)
}
