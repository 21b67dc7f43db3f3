// Package tabular implements DataStore against PostgreSQL: every read and
// write the sandboxed transform touches on externally managed tables.
package tabular

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/identifier"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements interfaces.DataStore against a PostgreSQL pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *common.Logger
}

// New opens a connection pool against config.Database.DSN and verifies it
// is reachable.
func New(ctx context.Context, logger *common.Logger, config *common.Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	logger.Info().Msg("PostgreSQL data store initialized")
	return &Store{pool: pool, logger: logger}, nil
}

// NewWithPool builds a Store around an already-open pool, for tests.
func NewWithPool(pool *pgxpool.Pool, logger *common.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ListTables returns every user table in the public schema, excluding the
// names in identifier.ReservedNames (users, scripts, jobs, alembic_version).
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if identifier.ReservedNames[strings.ToLower(name)] {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Schema returns the ordered column definitions of name as reported by
// information_schema.
func (s *Store) Schema(ctx context.Context, name string) ([]interfaces.ColumnSchema, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	defer rows.Close()

	var cols []interfaces.ColumnSchema
	for rows.Next() {
		var c interfaces.ColumnSchema
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("scan column schema: %w", err)
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return cols, nil
}

// RowCount returns the exact row count of name.
func (s *Store) RowCount(ctx context.Context, name string) (int64, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return 0, err
	}

	var count int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name))
	if err := s.pool.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, fmt.Errorf("row count %s: %w", name, err)
	}
	return count, nil
}

// Preview returns the table's total row count alongside the first limit
// rows, for the dry-run / inspection path the pipeline's callers use
// before submitting a transform job.
func (s *Store) Preview(ctx context.Context, name string, limit int) (int64, *models.Table, error) {
	total, err := s.RowCount(ctx, name)
	if err != nil {
		return 0, nil, err
	}
	table, err := s.ReadChunk(ctx, name, limit, 0)
	if err != nil {
		return 0, nil, err
	}
	return total, table, nil
}

// ReadChunk reads up to limit rows of name starting at offset. There is no
// ORDER BY clause, so rows come in whatever order PostgreSQL returns them
// and which rows fall into which chunk is not guaranteed stable across
// calls.
func (s *Store) ReadChunk(ctx context.Context, name string, limit, offset int) (*models.Table, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT * FROM %s LIMIT $1 OFFSET $2", quoteIdent(name))
	rows, err := s.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", name, err)
	}
	defer rows.Close()

	return tableFromRows(rows)
}

// ReadTable reads the entirety of name into memory. Callers decide whether
// the table is small enough for this path versus chunked reads.
func (s *Store) ReadTable(ctx context.Context, name string) (*models.Table, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT * FROM %s", quoteIdent(name))
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", name, err)
	}
	defer rows.Close()

	return tableFromRows(rows)
}

// WriteTable writes table to name under mode. WriteReplace drops and
// recreates the destination inside a transaction so a crash mid-write
// leaves the prior table intact; WriteAppend requires the destination to
// already match table's columns; WriteFail errors if the destination
// exists. Rows are streamed via pgx.CopyFrom rather than individual
// INSERTs.
func (s *Store) WriteTable(ctx context.Context, table *models.Table, name string, mode interfaces.WriteMode) (int64, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return 0, err
	}
	if table.RowCount() == 0 {
		return 0, newError(models.ErrEmptyOutput, "write_table %q: transform produced an empty table", name)
	}

	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return 0, err
	}
	if mode == interfaces.WriteFail && exists {
		return 0, fmt.Errorf("destination table %q already exists", name)
	}

	colNames := table.ColumnNames()
	identifiers := make([]string, len(colNames))
	for i, n := range colNames {
		if err := identifier.CheckColumnName(n); err != nil {
			return 0, newError(models.ErrInvalidColumn, "write_table %q: %v", name, err)
		}
		identifiers[i] = n
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin write transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if mode == interfaces.WriteReplace && exists {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE %s", quoteIdent(name))); err != nil {
			return 0, fmt.Errorf("drop existing table %s: %w", name, err)
		}
		exists = false
	}

	if !exists {
		ddl, err := createTableDDL(name, table)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return 0, fmt.Errorf("create table %s: %w", name, err)
		}
	}

	rows := tableRowSource{table: table}
	written, err := tx.CopyFrom(ctx, pgx.Identifier{name}, identifiers, &rows)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit write to %s: %w", name, err)
	}

	return written, nil
}

// TableExists reports whether name exists in the public schema.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	if err := identifier.CheckTableName(name); err != nil {
		return false, err
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", name, err)
	}
	return exists, nil
}

var _ interfaces.DataStore = (*Store)(nil)

// quoteIdent double-quotes an identifier already vetted by
// identifier.CheckTableName, guarding against reserved words colliding
// with SQL keywords.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
