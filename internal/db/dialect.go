package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// maxParams is the bind parameter limit shared by postgres and mysql.
const maxParams = 65535

// sqliteMaxParams is SQLITE_MAX_VARIABLE_NUMBER in current builds.
const sqliteMaxParams = 32766

type dialect struct {
	name      string
	quoteChar byte
	numbered  bool
	maxParams int
	// datesAsText stores DATE values as YYYY-MM-DD strings.
	datesAsText bool
	floatType   string
	tableSuffix string
}

var (
	postgresDialect = dialect{
		name:      DriverPostgres,
		quoteChar: '"',
		numbered:  true,
		maxParams: maxParams,
		floatType: "DOUBLE PRECISION",
	}
	mysqlDialect = dialect{
		name:        DriverMySQL,
		quoteChar:   '`',
		maxParams:   maxParams,
		floatType:   "DOUBLE",
		tableSuffix: " DEFAULT CHARSET=utf8mb4",
	}
	sqliteDialect = dialect{
		name:        DriverSQLite,
		quoteChar:   '"',
		maxParams:   sqliteMaxParams,
		datesAsText: true,
		floatType:   "REAL",
	}
)

// quote quotes an identifier. Column names are mixed case and include
// reserved words such as condition.
func (d dialect) quote(ident string) string {
	q := string(d.quoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func (d dialect) placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// chunkRows clamps the requested rows per statement to the parameter limit.
func (d dialect) chunkRows(requested int) int {
	if requested <= 0 {
		requested = DefaultChunkRows
	}
	if limit := d.maxParams / len(jobs.Columns); requested > limit {
		return limit
	}
	return requested
}

func (d dialect) columnType(c jobs.Column) string {
	switch c.Kind {
	case jobs.KindInt:
		return "INTEGER"
	case jobs.KindFloat:
		return d.floatType
	case jobs.KindDate:
		return "DATE"
	case jobs.KindStructured:
		return "TEXT"
	default:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "TEXT"
	}
}

// createTableSQL returns the DDL for the jobs table.
func (d dialect) createTableSQL(table string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", d.quote(table))
	for i, c := range jobs.Columns {
		fmt.Fprintf(&sb, "  %s %s", d.quote(c.Name), d.columnType(c))
		if i < len(jobs.Columns)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(")")
	sb.WriteString(d.tableSuffix)
	return sb.String()
}

// insertSQL returns a multi-row INSERT for rows records.
func (d dialect) insertSQL(table string, rows int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (", d.quote(table))
	for i, c := range jobs.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.quote(c.Name))
	}
	sb.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i := range jobs.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(n))
			n++
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// value adapts a normalized value to the driver.
func (d dialect) value(v any) any {
	if t, ok := v.(time.Time); ok && d.datesAsText {
		return t.Format("2006-01-02")
	}
	return v
}
