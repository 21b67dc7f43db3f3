package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/stretchr/testify/require"
)

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Sandbox.TimeoutSeconds = 5
	cfg.Sandbox.MaxMemoryMB = 512
	cfg.Sandbox.MaxOutputRows = 1000
	return cfg
}

func TestExecuteRunsTransformInChildProcess(t *testing.T) {
	sb, err := New(common.NewSilentLogger(), testConfig())
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "price", Type: models.ColumnFloat64, Data: []any{10.0, 20.0}},
		{Name: "qty", Type: models.ColumnInt64, Data: []any{int64(1), int64(2)}},
	}}

	result := sb.Execute(context.Background(), `df["total"] = df["price"] * df["qty"]`, table)
	require.True(t, result.Success, result.Message)
	require.Equal(t, 2, result.RowCount)
	require.Contains(t, result.Columns, "total")
	require.Equal(t, []any{10.0, 40.0}, result.Table.Column("total").Data)
}

func TestExecuteReportsBadReturnType(t *testing.T) {
	sb, err := New(common.NewSilentLogger(), testConfig())
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "a", Type: models.ColumnInt64, Data: []any{int64(1)}},
	}}

	result := sb.Execute(context.Background(), `
def transform(df):
    return 42
`, table)
	require.False(t, result.Success)
	require.Equal(t, models.ErrBadReturnType, result.Kind)
}

func TestExecuteReportsStaticReject(t *testing.T) {
	sb, err := New(common.NewSilentLogger(), testConfig())
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "a", Type: models.ColumnInt64, Data: []any{int64(1)}},
	}}

	result := sb.Execute(context.Background(), `load("evil.star", "evil")`, table)
	require.False(t, result.Success)
	require.Equal(t, models.ErrStaticReject, result.Kind)
}

func TestExecuteReportsRuntimeError(t *testing.T) {
	sb, err := New(common.NewSilentLogger(), testConfig())
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "a", Type: models.ColumnInt64, Data: []any{int64(1)}},
	}}

	result := sb.Execute(context.Background(), `df["b"] = df["missing_column"] * 2`, table)
	require.False(t, result.Success)
	require.Equal(t, models.ErrRuntimeError, result.Kind)
}

func TestExecuteTimesOutOnInfiniteLoop(t *testing.T) {
	cfg := testConfig()
	cfg.Sandbox.TimeoutSeconds = 1
	sb, err := New(common.NewSilentLogger(), cfg)
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "a", Type: models.ColumnInt64, Data: []any{int64(1)}},
	}}

	start := time.Now()
	result := sb.Execute(context.Background(), `
def transform(df):
    x = 0
    while True:
        x = x + 1
    return df
`, table)
	require.False(t, result.Success)
	require.Equal(t, models.ErrTimeout, result.Kind)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteHonorsCancellation(t *testing.T) {
	sb, err := New(common.NewSilentLogger(), testConfig())
	require.NoError(t, err)

	table := &models.Table{Columns: []*models.Column{
		{Name: "a", Type: models.ColumnInt64, Data: []any{int64(1)}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := sb.Execute(ctx, `
def transform(df):
    x = 0
    while True:
        x = x + 1
    return df
`, table)
	require.False(t, result.Success)
	require.Equal(t, models.ErrCancelled, result.Kind)
}
