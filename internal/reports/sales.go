package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/refdata"
)

func counterpartRollup(in input, typ orders.Type) []CounterpartRollup {
	out := []CounterpartRollup{}
	index := make(map[string]int)
	for _, o := range in.orders {
		if o.Type != typ {
			continue
		}
		name := counterpartName(in, o)
		pos, ok := index[name]
		if !ok {
			pos = len(out)
			index[name] = pos
			out = append(out, CounterpartRollup{Name: name, Total: decimal.Zero})
		}
		r := &out[pos]
		r.Total = r.Total.Add(o.TotalAmount)
		r.TotalItems += itemCount(o)
		r.OrderCount++
		if o.OrderDate.Valid && (!r.LastOrderDate.Valid || o.OrderDate.Time.After(r.LastOrderDate.Time)) {
			r.LastOrderDate = o.OrderDate
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func counterpartName(in input, o orders.Order) string {
	if name := strings.TrimSpace(o.CounterpartName); name != "" {
		return name
	}
	switch {
	case o.CustomerID != nil:
		return in.resolver.CustomerName(*o.CustomerID)
	case o.VendorID != nil:
		return in.resolver.VendorName(*o.VendorID)
	case o.Type == orders.TypePurchase:
		return refdata.UnknownVendor
	default:
		return refdata.UnknownCustomer
	}
}

// itemCount prefers the stored count and falls back to summing lines.
func itemCount(o orders.Order) int {
	if o.ItemCount > 0 {
		return o.ItemCount
	}
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

func productRollup(in input) []ProductRollup {
	out := []ProductRollup{}
	index := make(map[string]int)
	for _, o := range in.orders {
		if o.Type != orders.TypeSales {
			continue
		}
		for _, line := range o.Items {
			key := line.InventoryItem()
			if key == "" {
				key = line.Name
			}
			pos, ok := index[key]
			if !ok {
				pos = len(out)
				index[key] = pos
				row := ProductRollup{Key: key, Name: line.Name, Revenue: decimal.Zero}
				if item, found := in.itemsByID[line.InventoryItem()]; found {
					row.Name, row.SKU, row.Category = item.Name, item.SKU, item.Category
				}
				out = append(out, row)
			}
			r := &out[pos]
			r.UnitsSold += line.Quantity
			r.Revenue = r.Revenue.Add(line.Total())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func profitability(in input) Profitability {
	p := Profitability{Revenue: decimal.Zero, COGS: decimal.Zero}
	for _, o := range in.orders {
		if o.Type != orders.TypeSales {
			continue
		}
		if len(o.Items) == 0 {
			p.Revenue = p.Revenue.Add(o.TotalAmount)
			p.COGS = p.COGS.Add(o.TotalAmount.Mul(EstimatedCostRatio))
			p.EstimatedLines++
			continue
		}
		for _, line := range o.Items {
			revenue := line.Total()
			p.Revenue = p.Revenue.Add(revenue)
			if item, ok := in.itemsByID[line.InventoryItem()]; ok {
				p.COGS = p.COGS.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
				continue
			}
			p.COGS = p.COGS.Add(revenue.Mul(EstimatedCostRatio))
			p.EstimatedLines++
		}
	}
	p.GrossProfit = p.Revenue.Sub(p.COGS)
	p.GrossMarginPct = percentOf(p.GrossProfit, p.Revenue)

	opex := p.Revenue.Mul(SimulatedOpexRatio)
	net := p.GrossProfit.Sub(opex)
	p.Simulated = Simulated{
		OpexRatio:        SimulatedOpexRatio,
		OperatingExpense: opex,
		NetProfit:        net,
		NetMarginPct:     percentOf(net, p.Revenue),
	}
	return p
}
