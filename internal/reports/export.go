package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteValuationCSV serialises the valuation buckets.
func WriteValuationCSV(w io.Writer, v Valuation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Group", "Items", "Units", "Value", "Percentage"}); err != nil {
		return err
	}
	for _, b := range v.Buckets {
		record := []string{b.Label, strconv.Itoa(b.ItemCount), strconv.Itoa(b.Units), b.Value.StringFixed(2), b.Percentage.StringFixed(2)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", strconv.Itoa(v.TotalUnits), v.TotalValue.StringFixed(2), "100.00"}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteStockAlertsCSV emits low and out-of-stock lines.
func WriteStockAlertsCSV(w io.Writer, alerts []StockAlert) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"SKU", "Name", "Category", "Folder", "Vendor", "Quantity", "Reorder Level", "Shortfall", "Health"}); err != nil {
		return err
	}
	for _, a := range alerts {
		record := []string{a.SKU, a.Name, a.Category, a.Folder, a.Vendor, strconv.Itoa(a.Quantity), strconv.Itoa(a.ReorderLevel), strconv.Itoa(a.Shortfall), string(a.Health)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMovementsCSV emits the movement report.
func WriteMovementsCSV(w io.Writer, rows []MovementRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Timestamp", "Item", "Type", "Amount", "Old Quantity", "New Quantity", "Folder", "User", "Reason"}); err != nil {
		return err
	}
	for _, m := range rows {
		ts := ""
		if m.Timestamp.Valid {
			ts = m.Timestamp.Time.Format(time.RFC3339)
		}
		record := []string{ts, m.ItemName, string(m.Type), strconv.Itoa(m.Amount), strconv.Itoa(m.OldQuantity), strconv.Itoa(m.NewQuantity), m.Folder, m.User, m.Reason}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
