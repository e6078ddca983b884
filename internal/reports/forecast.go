package reports

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/shared"
)

// forecastWindow is the filter range when bounded, otherwise the 30 days
// ending at the snapshot time.
func forecastWindow(in input) (time.Time, time.Time, int) {
	if from, to, ok := in.filters.Range().Bounds(); ok {
		days := int(math.Ceil(to.Sub(from).Hours() / 24))
		return from, to, max(days, 1)
	}
	to := shared.EndOfDay(in.asOf)
	from := shared.StartOfDay(in.asOf.AddDate(0, 0, -(forecastDays - 1)))
	return from, to, forecastDays
}

func (c *Computer) forecast(in input) []ForecastRow {
	from, to, days := forecastWindow(in)
	removed := make(map[string]int)
	for _, m := range in.scopedMovements {
		if m.Type != inventory.MovementRemove || !m.Timestamp.Valid {
			continue
		}
		if m.Timestamp.Time.Before(from) || m.Timestamp.Time.After(to) {
			continue
		}
		removed[m.ItemID] += m.Amount
	}

	window := decimal.NewFromInt(int64(days))
	rows := []ForecastRow{}
	for _, it := range in.items {
		units := removed[it.ID]
		if units == 0 {
			continue
		}
		demand := decimal.NewFromInt(int64(units)).Div(window)
		cover := decimal.NewFromInt(int64(it.Quantity)).Div(demand).Round(1)
		row := ForecastRow{
			ItemID:         it.ID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitsRemoved:   units,
			WindowDays:     days,
			AvgDailyDemand: demand.Round(2),
			DaysOfCover:    &cover,
		}
		if !in.asOf.IsZero() {
			row.StockoutDate = shared.NewDate(shared.StartOfDay(in.asOf).AddDate(0, 0, int(cover.IntPart())))
		}
		if jitter, ok := c.jitter(); ok {
			row.Simulated = &ForecastJitter{Demand: demand.Mul(jitter).Round(2)}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DaysOfCover.LessThan(*rows[j].DaysOfCover) })
	return rows
}

// jitter draws a factor in [0.9, 1.1) from the injected source.
func (c *Computer) jitter() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(0.9 + 0.2*c.rng.Float64()), true
}
