package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"timestamp", "item_id", "sku", "item_name", "action", "quantity_change"}

// Exporter renders timeline rows as CSV.
type Exporter struct{}

// NewExporter builds Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV writes a header line followed by one record per row.
func (e *Exporter) WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ItemID,
			row.SKU,
			row.ItemName,
			row.Action,
			strconv.Itoa(row.QuantityChange),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
