package scripts

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/models"
	tcommon "github.com/bobmcallan/transformd/tests/common"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := tcommon.NewSurrealDB(t, []string{"jobs", "scripts", "counters"})
	return New(db, common.NewSilentLogger())
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	script := &models.Script{
		ID:        "scr1",
		UserID:    "user1",
		Name:      "total column",
		CodeText:  `df["total"] = df["price"] * df["qty"]` + "\nreturn df",
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Put(ctx, script))

	got, err := s.Get(ctx, "scr1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, script.CodeText, got.CodeText)
	require.Equal(t, script.Name, got.Name)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	script := &models.Script{ID: "scr2", UserID: "user1", Name: "x", CodeText: "return df"}
	require.NoError(t, s.Put(ctx, script))
	require.NoError(t, s.Delete(ctx, "scr2"))

	got, err := s.Get(ctx, "scr2")
	require.NoError(t, err)
	require.Nil(t, got)
}
