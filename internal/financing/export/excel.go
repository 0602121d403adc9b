package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes tables as sheets of one workbook
type ExcelExporter struct {
	options Options
}

// NewExcelExporter creates an XLSX exporter
func NewExcelExporter(options Options) *ExcelExporter {
	return &ExcelExporter{options: options}
}

// Write renders every table as its own sheet, in order, and streams the
// workbook to w.
func (e *ExcelExporter) Write(w io.Writer, tables ...*Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}

	file := excelize.NewFile()
	defer file.Close()

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, table := range tables {
		sheet := table.Name
		if i == 0 {
			if err := file.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		if err := e.writeTable(file, sheet, table, headerStyle); err != nil {
			return err
		}
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *ExcelExporter) writeTable(file *excelize.File, sheet string, table *Table, headerStyle int) error {
	for col, name := range table.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if len(table.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(table.Columns), 1)
		if err := file.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
		if err := file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	for r, row := range table.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, e.cellValue(value)); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

// cellValue keeps numbers numeric and renders everything else as text
func (e *ExcelExporter) cellValue(value any) any {
	switch v := value.(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case int, int64, float64:
		return v
	default:
		return e.options.format(value)
	}
}
