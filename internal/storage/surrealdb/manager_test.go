package surrealdb

import (
	"context"
	"testing"

	"github.com/bobmcallan/transformd/internal/common"
	tcommon "github.com/bobmcallan/transformd/tests/common"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
)

func TestConnectDefinesTables(t *testing.T) {
	sc := tcommon.StartSurrealDB(t)

	config := common.NewDefaultConfig()
	config.Queue.Address = sc.Address()
	config.Queue.Username = "root"
	config.Queue.Password = "root"
	config.Queue.Namespace = "transformd_test"
	config.Queue.Database = "connect_test"

	db, err := Connect(context.Background(), testLogger(), config)
	require.NoError(t, err)
	defer db.Close(context.Background())

	for _, table := range []string{"jobs", "scripts", "counters"} {
		_, err := surrealdb.Query[any](context.Background(), db, "SELECT * FROM "+table+" LIMIT 1", nil)
		require.NoErrorf(t, err, "table %s should be queryable", table)
	}
}
