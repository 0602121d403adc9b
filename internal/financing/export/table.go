package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Table is a named sheet of rows
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// AddRow appends a row; it must have one value per column
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table %q has %d columns", len(values), t.Name, len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Options controls how values are rendered
type Options struct {
	TimestampFormat string
	DateFormat      string
	NullValue       string
}

// DefaultOptions renders timestamps as RFC3339 and dates as YYYY-MM-DD
func DefaultOptions() Options {
	return Options{
		TimestampFormat: time.RFC3339,
		DateFormat:      "2006-01-02",
		NullValue:       "",
	}
}

// Date marks a time value that should be rendered without its clock part
type Date time.Time

func (o Options) format(value any) string {
	switch v := value.(type) {
	case nil:
		return o.NullValue
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case decimal.NullDecimal:
		if !v.Valid {
			return o.NullValue
		}
		return v.Decimal.String()
	case time.Time:
		if v.IsZero() {
			return o.NullValue
		}
		return v.Format(o.TimestampFormat)
	case *time.Time:
		if v == nil {
			return o.NullValue
		}
		return o.format(*v)
	case Date:
		t := time.Time(v)
		if t.IsZero() {
			return o.NullValue
		}
		return t.Format(o.DateFormat)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
