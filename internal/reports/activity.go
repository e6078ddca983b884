package reports

import (
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/shared"
)

func movementRows(in input) []MovementRow {
	sorted := shared.SortByDate(in.movements, func(m inventory.Movement) shared.Date { return m.Timestamp }, true)
	rows := make([]MovementRow, 0, len(sorted))
	for _, m := range sorted {
		name := m.ItemID
		folder := m.Folder()
		if item, ok := in.itemsByID[m.ItemID]; ok {
			name = item.Name
			if folder == "" {
				folder = item.Folder()
			}
		}
		rows = append(rows, MovementRow{
			ID:          m.ID,
			ItemID:      m.ItemID,
			ItemName:    name,
			Type:        m.Type,
			Amount:      m.Amount,
			OldQuantity: m.OldQuantity,
			NewQuantity: m.NewQuantity,
			Reason:      m.Reason,
			User:        in.resolver.UserName(m.UserID),
			Folder:      in.resolver.FolderName(folder),
			Timestamp:   m.Timestamp,
		})
	}
	return rows
}

func recentActivity(in input) []ActivityRow {
	sorted := shared.SortByDate(in.activity, func(a inventory.Activity) shared.Date { return a.Timestamp }, true)
	if len(sorted) > in.filters.Limit {
		sorted = sorted[:in.filters.Limit]
	}
	rows := make([]ActivityRow, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, ActivityRow{
			ID:          a.ID,
			Category:    a.Category,
			Description: a.Description,
			User:        in.resolver.UserName(a.UserID),
			Timestamp:   a.Timestamp,
		})
	}
	return rows
}

// dueSoon lists open orders with a due date, earliest first.
func dueSoon(in input) []DueOrder {
	var open []orders.Order
	for _, o := range in.allOrders {
		if o.Status.Terminal() || !o.DueDate.Valid {
			continue
		}
		if in.filters.OrderType != "" && o.Type != in.filters.OrderType {
			continue
		}
		open = append(open, o)
	}
	sorted := shared.SortByDate(open, func(o orders.Order) shared.Date { return o.DueDate }, false)
	if len(sorted) > in.filters.Limit {
		sorted = sorted[:in.filters.Limit]
	}
	today := shared.StartOfDay(in.asOf)
	rows := make([]DueOrder, 0, len(sorted))
	for _, o := range sorted {
		rows = append(rows, DueOrder{
			ID:          o.ID,
			OrderNumber: o.OrderNumber,
			Type:        o.Type,
			Counterpart: counterpartName(in, o),
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
			DueDate:     o.DueDate,
			Overdue:     !in.asOf.IsZero() && o.DueDate.Time.Before(today),
		})
	}
	return rows
}

// statusBreakdown counts date and type filtered orders per status. The status
// filter is ignored so every bucket stays visible.
func statusBreakdown(in input) []StatusCount {
	counts := make(map[orders.Status]int)
	dated := shared.FilterByDate(in.allOrders, in.filters.Range(), func(o orders.Order) shared.Date { return o.OrderDate })
	for _, o := range dated {
		if in.filters.OrderType != "" && o.Type != in.filters.OrderType {
			continue
		}
		counts[o.Status]++
	}
	out := make([]StatusCount, 0, len(orders.Statuses))
	for _, s := range orders.Statuses {
		out = append(out, StatusCount{Status: s, Count: counts[s]})
	}
	return out
}
