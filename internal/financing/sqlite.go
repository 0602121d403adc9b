package financing

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// SQLiteDialector opens dsn with the pure-Go sqlite driver. Fixed-point
// columns are created as TEXT: sqlite gives decimal(p,s) NUMERIC affinity,
// which stores values as doubles and drops digits past the fifteenth.
func SQLiteDialector(dsn string) gorm.Dialector {
	return sqliteDialector{Dialector: sqlite.Dialector{DSN: dsn}}
}

type sqliteDialector struct {
	sqlite.Dialector
}

func (d sqliteDialector) DataTypeOf(field *schema.Field) string {
	if isFixedPoint(field.DataType) {
		return "text"
	}
	return d.Dialector.DataTypeOf(field)
}

// Migrator is rebuilt so column types resolve through this dialector
func (d sqliteDialector) Migrator(db *gorm.DB) gorm.Migrator {
	return sqlite.Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}

func isFixedPoint(dataType schema.DataType) bool {
	lower := strings.ToLower(string(dataType))
	return strings.HasPrefix(lower, "decimal") || strings.HasPrefix(lower, "numeric")
}
