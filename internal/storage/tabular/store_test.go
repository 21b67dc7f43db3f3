package tabular

import (
	"context"
	"testing"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	tcommon "github.com/bobmcallan/transformd/tests/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pg := tcommon.StartPostgres(t)
	pool, err := pgxpool.New(ctx, pg.DSN())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewWithPool(pool, common.NewSilentLogger())
}

func sampleTable() *models.Table {
	return &models.Table{Columns: []*models.Column{
		{Name: "id", Type: models.ColumnInt64, Data: []any{int64(1), int64(2), int64(3)}},
		{Name: "price", Type: models.ColumnFloat64, Data: []any{9.5, 10.0, 12.25}},
		{Name: "label", Type: models.ColumnString, Data: []any{"a", "b", "c"}},
	}}
}

func TestWriteTableReplaceThenReadTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.WriteTable(ctx, sampleTable(), "widgets", interfaces.WriteReplace)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	exists, err := s.TableExists(ctx, "widgets")
	require.NoError(t, err)
	require.True(t, exists)

	got, err := s.ReadTable(ctx, "widgets")
	require.NoError(t, err)
	require.Equal(t, 3, got.RowCount())
	require.ElementsMatch(t, []string{"id", "price", "label"}, got.ColumnNames())

	// Replace again should drop and recreate rather than append.
	n, err = s.WriteTable(ctx, sampleTable(), "widgets", interfaces.WriteReplace)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	count, err := s.RowCount(ctx, "widgets")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestWriteTableFailModeRejectsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteTable(ctx, sampleTable(), "gizmos", interfaces.WriteReplace)
	require.NoError(t, err)

	_, err = s.WriteTable(ctx, sampleTable(), "gizmos", interfaces.WriteFail)
	require.Error(t, err)
}

func TestReadChunkPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteTable(ctx, sampleTable(), "chunked", interfaces.WriteReplace)
	require.NoError(t, err)

	chunk, err := s.ReadChunk(ctx, "chunked", 2, 0)
	require.NoError(t, err)
	require.Equal(t, 2, chunk.RowCount())

	chunk, err = s.ReadChunk(ctx, "chunked", 2, 2)
	require.NoError(t, err)
	require.Equal(t, 1, chunk.RowCount())
}

func TestSchemaReportsColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteTable(ctx, sampleTable(), "schema_check", interfaces.WriteReplace)
	require.NoError(t, err)

	schema, err := s.Schema(ctx, "schema_check")
	require.NoError(t, err)
	require.Len(t, schema, 3)
}

func TestListTablesExcludesReservedNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteTable(ctx, sampleTable(), "listed", interfaces.WriteReplace)
	require.NoError(t, err)

	names, err := s.ListTables(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "listed")
	require.NotContains(t, names, "jobs")
}

func TestInvalidTableNameRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteTable(ctx, sampleTable(), "pg_evil", interfaces.WriteReplace)
	require.Error(t, err)

	_, err = s.RowCount(ctx, "bad name")
	require.Error(t, err)
}

func TestWriteTableRejectsEmptyOutput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty := &models.Table{Columns: []*models.Column{
		{Name: "id", Type: models.ColumnInt64, Data: []any{}},
	}}

	_, err := s.WriteTable(ctx, empty, "empties", interfaces.WriteReplace)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, models.ErrEmptyOutput, werr.Kind())

	exists, existsErr := s.TableExists(ctx, "empties")
	require.NoError(t, existsErr)
	require.False(t, exists)
}

func TestWriteTableRejectsInvalidColumnName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := &models.Table{Columns: []*models.Column{
		{Name: "ok", Type: models.ColumnInt64, Data: []any{int64(1)}},
		{Name: "bad name", Type: models.ColumnInt64, Data: []any{int64(2)}},
	}}

	_, err := s.WriteTable(ctx, bad, "bad_columns", interfaces.WriteReplace)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, models.ErrInvalidColumn, werr.Kind())
}
