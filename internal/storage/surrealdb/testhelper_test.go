package surrealdb

import (
	"testing"

	"github.com/bobmcallan/transformd/internal/common"
	tcommon "github.com/bobmcallan/transformd/tests/common"
	surreal "github.com/surrealdb/surrealdb.go"
)

func testDB(t *testing.T) *surreal.DB {
	t.Helper()
	return tcommon.NewSurrealDB(t, []string{"jobs", "scripts", "counters"})
}

// testLogger returns a silent logger for tests.
func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
