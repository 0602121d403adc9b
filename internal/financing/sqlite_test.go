package financing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDialectorStoresDecimalsAsText(t *testing.T) {
	store := newSQLiteStore(t)

	columns, err := store.db.Migrator().ColumnTypes(&Investment{})
	require.NoError(t, err)

	types := make(map[string]string, len(columns))
	for _, column := range columns {
		types[column.Name()] = strings.ToLower(column.DatabaseTypeName())
	}
	assert.Equal(t, "text", types["principal"])
	assert.Equal(t, "text", types["interest_rate"])
	assert.Equal(t, "text", types["return_amount"])
	assert.Equal(t, "sqlite", store.db.Dialector.Name())
}
