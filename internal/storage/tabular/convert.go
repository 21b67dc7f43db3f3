package tabular

import (
	"fmt"
	"time"

	"github.com/bobmcallan/transformd/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// tableFromRows drains rows into a column-oriented Table, inferring each
// column's ColumnType from the first non-null value seen (pgx reports the
// wire OID, not a stable Go type, until a value is decoded).
func tableFromRows(rows pgx.Rows) (*models.Table, error) {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	cols := make([]*models.Column, len(names))
	for i, n := range names {
		cols[i] = &models.Column{Name: n, Type: models.ColumnString}
	}
	typeKnown := make([]bool, len(names))

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		for i, v := range values {
			converted, t := fromPostgresValue(v)
			if !typeKnown[i] && converted != nil {
				cols[i].Type = t
				typeKnown[i] = true
			}
			cols[i].Data = append(cols[i].Data, converted)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &models.Table{Columns: cols}, nil
}

// fromPostgresValue normalizes a value pgx has already decoded into the
// scalar union ExecutionResult tables carry, alongside the ColumnType it
// implies. nil passes through unchanged and leaves the type unresolved.
func fromPostgresValue(v any) (any, models.ColumnType) {
	switch val := v.(type) {
	case nil:
		return nil, models.ColumnString
	case int16:
		return int64(val), models.ColumnInt64
	case int32:
		return int64(val), models.ColumnInt64
	case int64:
		return val, models.ColumnInt64
	case float32:
		return float64(val), models.ColumnFloat64
	case float64:
		return val, models.ColumnFloat64
	case bool:
		return val, models.ColumnBool
	case string:
		return val, models.ColumnString
	case time.Time:
		return val, models.ColumnTime
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err == nil && f.Valid {
			return f.Float64, models.ColumnFloat64
		}
		return fmt.Sprintf("%v", val), models.ColumnString
	default:
		return fmt.Sprintf("%v", val), models.ColumnString
	}
}

// toPostgresValue is the inverse of fromPostgresValue, used when streaming
// a Table out via CopyFrom.
func toPostgresValue(v any) any {
	return v
}

// postgresTypeName maps a ColumnType to the DDL type WriteTable's CREATE
// TABLE uses for a fresh destination.
func postgresTypeName(t models.ColumnType) (string, error) {
	switch t {
	case models.ColumnInt64:
		return "bigint", nil
	case models.ColumnFloat64:
		return "double precision", nil
	case models.ColumnString:
		return "text", nil
	case models.ColumnBool:
		return "boolean", nil
	case models.ColumnTime:
		return "timestamptz", nil
	default:
		return "", fmt.Errorf("unsupported column type %v", t)
	}
}

// createTableDDL builds a CREATE TABLE statement for table's columns.
// Column and table identifiers must already be validated by the caller.
func createTableDDL(name string, table *models.Table) (string, error) {
	ddl := fmt.Sprintf("CREATE TABLE %s (", quoteIdent(name))
	for i, col := range table.Columns {
		if i > 0 {
			ddl += ", "
		}
		pgType, err := postgresTypeName(col.Type)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		ddl += fmt.Sprintf("%s %s", quoteIdent(col.Name), pgType)
	}
	ddl += ")"
	return ddl, nil
}

// tableRowSource adapts a column-oriented Table to pgx.CopyFromSource,
// which CopyFrom drives row by row.
type tableRowSource struct {
	table *models.Table
	row   int
}

func (s *tableRowSource) Next() bool {
	if len(s.table.Columns) == 0 {
		return false
	}
	return s.row < s.table.RowCount()
}

func (s *tableRowSource) Values() ([]any, error) {
	values := make([]any, len(s.table.Columns))
	for i, col := range s.table.Columns {
		values[i] = toPostgresValue(col.Data[s.row])
	}
	s.row++
	return values, nil
}

func (s *tableRowSource) Err() error {
	return nil
}

var _ pgx.CopyFromSource = (*tableRowSource)(nil)
