package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVExporter writes a single table as CSV
type CSVExporter struct {
	options Options
}

// NewCSVExporter creates a CSV exporter
func NewCSVExporter(options Options) *CSVExporter {
	return &CSVExporter{options: options}
}

// Write renders the header and every row of table to w
func (e *CSVExporter) Write(w io.Writer, table *Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = e.options.NullValue
			if i < len(row) {
				record[i] = e.options.format(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
