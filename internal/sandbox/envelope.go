package sandbox

import (
	"encoding/gob"
	"time"

	"github.com/bobmcallan/transformd/internal/models"
)

var timeZeroValue = time.Time{}

// request is sent parent-to-child on the runner's stdin. gob (not
// encoding/json) because the wire values are already Go's own scalar
// union — no need to round-trip through a text format — and unlike
// Python's pickle, decoding a gob stream never executes arbitrary code,
// so the child has nothing to fear from a parent it already trusts and
// the parent has nothing to fear from a child it already sandboxes.
type request struct {
	Code  string
	Table wireTable
}

// response is sent child-to-parent on the runner's stdout.
type response struct {
	Success   bool
	Table     wireTable
	RowCount  int
	Columns   []string
	Kind      models.ErrorKind
	Message   string
	Traceback string
}

// wireTable is the gob-safe projection of models.Table: Column.Data is
// []any, and gob requires concrete types registered ahead of encoding
// for interface values, so every scalar the Table model supports is
// registered in init below.
type wireTable struct {
	Names []string
	Types []models.ColumnType
	Data  [][]any
}

func toWireTable(t *models.Table) wireTable {
	w := wireTable{
		Names: t.ColumnNames(),
		Types: make([]models.ColumnType, len(t.Columns)),
		Data:  make([][]any, len(t.Columns)),
	}
	for i, c := range t.Columns {
		w.Types[i] = c.Type
		w.Data[i] = c.Data
	}
	return w
}

func fromWireTable(w wireTable) *models.Table {
	cols := make([]*models.Column, len(w.Names))
	for i, name := range w.Names {
		cols[i] = &models.Column{Name: name, Type: w.Types[i], Data: w.Data[i]}
	}
	return &models.Table{Columns: cols}
}

func init() {
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register(timeZeroValue)
}
