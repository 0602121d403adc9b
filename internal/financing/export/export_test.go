package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	table := &Table{Name: "Invoices", Columns: []string{"number", "amount", "due", "settled_at", "note"}}
	due := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, table.AddRow("INV-1", decimal.RequireFromString("11.25"), Date(due), nil, "a, b"))
	require.NoError(t, table.AddRow("INV-2", decimal.Zero, Date(due), &due, ""))
	return table
}

func TestCSVExporterWrite(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVExporter(DefaultOptions()).Write(&buf, sampleTable(t))
	require.NoError(t, err)

	expected := "number,amount,due,settled_at,note\n" +
		"INV-1,11.25,2024-05-01,,\"a, b\"\n" +
		"INV-2,0,2024-05-01,2024-05-01T10:30:00Z,\n"
	assert.Equal(t, expected, buf.String())
}

func TestTableAddRowRejectsWrongWidth(t *testing.T) {
	table := &Table{Name: "x", Columns: []string{"a", "b"}}
	assert.Error(t, table.AddRow("only one"))
	assert.Empty(t, table.Rows)
}

func TestExcelExporterWritesSheets(t *testing.T) {
	summary := &Table{Name: "Summary", Columns: []string{"field", "value"}}
	require.NoError(t, summary.AddRow("total_invested", decimal.RequireFromString("150")))

	var buf bytes.Buffer
	err := NewExcelExporter(DefaultOptions()).Write(&buf, summary, sampleTable(t))
	require.NoError(t, err)

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, []string{"Summary", "Invoices"}, file.GetSheetList())

	header, err := file.GetCellValue("Invoices", "A1")
	require.NoError(t, err)
	assert.Equal(t, "number", header)

	amount, err := file.GetCellValue("Invoices", "B2")
	require.NoError(t, err)
	assert.Equal(t, "11.25", amount)

	value, err := file.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "150", value)
}

func TestExcelExporterRequiresTables(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewExcelExporter(DefaultOptions()).Write(&buf))
}
