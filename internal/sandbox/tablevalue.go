package sandbox

import (
	"fmt"
	"math"

	"github.com/bobmcallan/transformd/internal/models"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// starlarkTable exposes a *models.Table to a transform script as a native
// value: df["col"] reads a column, df["col"] = ... writes one, and
// df[boolColumn] filters rows — all without reflecting over Go fields, so
// there is nothing for a script to walk to beyond what is implemented
// here.
type starlarkTable struct {
	table  *models.Table
	frozen bool
}

func newStarlarkTable(t *models.Table) *starlarkTable {
	return &starlarkTable{table: t}
}

func (t *starlarkTable) String() string {
	return fmt.Sprintf("<table %d cols x %d rows>", len(t.table.Columns), t.table.RowCount())
}
func (t *starlarkTable) Type() string          { return "table" }
func (t *starlarkTable) Freeze()               { t.frozen = true }
func (t *starlarkTable) Truth() starlark.Bool   { return starlark.Bool(t.table.RowCount() > 0) }
func (t *starlarkTable) Hash() (uint32, error) {
	return 0, fmt.Errorf("table values are not hashable")
}

// Get implements starlark.Mapping: df["col"] returns the named column;
// df[mask] (mask a boolean column) returns the filtered table.
func (t *starlarkTable) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		col := t.table.Column(string(key))
		if col == nil {
			return nil, false, nil
		}
		return newStarlarkColumn(col), true, nil
	case *starlarkColumn:
		mask, err := key.boolMask()
		if err != nil {
			return nil, false, err
		}
		return newStarlarkTable(t.table.SelectRows(mask)), true, nil
	default:
		return nil, false, fmt.Errorf("table index must be a column name or a boolean mask, got %s", k.Type())
	}
}

// SetKey implements starlark.HasSetKey: df["col"] = column assigns or
// replaces a column in place; a bare scalar broadcasts to every row.
func (t *starlarkTable) SetKey(k, v starlark.Value) error {
	if t.frozen {
		return fmt.Errorf("table is frozen")
	}
	name, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("table key must be a column name (string), got %s", k.Type())
	}

	if col, ok := v.(*starlarkColumn); ok {
		clone := col.column.Clone()
		clone.Name = string(name)
		if clone.Len() != 0 && clone.Len() != t.table.RowCount() && t.table.RowCount() != 0 {
			return fmt.Errorf("assigned column has %d rows, table has %d", clone.Len(), t.table.RowCount())
		}
		t.table.AppendColumn(clone)
		return nil
	}

	scalar, err := fromStarlarkScalar(v)
	if err != nil {
		return fmt.Errorf("cannot assign %s to column %q: %w", v.Type(), string(name), err)
	}
	rows := t.table.RowCount()
	data := make([]any, rows)
	colType := inferScalarType(scalar)
	for i := range data {
		data[i] = scalar
	}
	t.table.AppendColumn(&models.Column{Name: string(name), Type: colType, Data: data})
	return nil
}

// Len implements starlark.Sequence: len(df) is the row count, matching
// pandas' len(DataFrame).
func (t *starlarkTable) Len() int { return t.table.RowCount() }

// Iterate implements starlark.Sequence: iterating a table yields its
// column names, matching pandas' `for col in df`.
func (t *starlarkTable) Iterate() starlark.Iterator {
	return &columnNameIterator{names: t.table.ColumnNames()}
}

type columnNameIterator struct {
	names []string
	idx   int
}

func (it *columnNameIterator) Next(p *starlark.Value) bool {
	if it.idx >= len(it.names) {
		return false
	}
	*p = starlark.String(it.names[it.idx])
	it.idx++
	return true
}
func (it *columnNameIterator) Done() {}

// Attr implements starlark.HasAttrs: df.columns lists the column names in
// order.
func (t *starlarkTable) Attr(name string) (starlark.Value, error) {
	if name != "columns" {
		return nil, nil
	}
	names := t.table.ColumnNames()
	values := make([]starlark.Value, len(names))
	for i, n := range names {
		values[i] = starlark.String(n)
	}
	return starlark.NewList(values), nil
}

func (t *starlarkTable) AttrNames() []string { return []string{"columns"} }

var (
	_ starlark.Value    = (*starlarkTable)(nil)
	_ starlark.Mapping  = (*starlarkTable)(nil)
	_ starlark.HasSetKey = (*starlarkTable)(nil)
	_ starlark.Sequence = (*starlarkTable)(nil)
	_ starlark.HasAttrs = (*starlarkTable)(nil)
)

// starlarkColumn exposes a *models.Column for elementwise arithmetic,
// comparison (producing a boolean mask column), and a small set of
// cleaning helpers (fillna).
type starlarkColumn struct {
	column *models.Column
}

func newStarlarkColumn(c *models.Column) *starlarkColumn {
	return &starlarkColumn{column: c}
}

func (c *starlarkColumn) String() string {
	return fmt.Sprintf("<column %q (%s) x %d>", c.column.Name, c.column.Type, c.column.Len())
}
func (c *starlarkColumn) Type() string        { return "column" }
func (c *starlarkColumn) Freeze()             {}
func (c *starlarkColumn) Truth() starlark.Bool { return starlark.Bool(c.column.Len() > 0) }
func (c *starlarkColumn) Hash() (uint32, error) {
	return 0, fmt.Errorf("column values are not hashable")
}

func (c *starlarkColumn) Len() int { return c.column.Len() }

func (c *starlarkColumn) Iterate() starlark.Iterator {
	return &columnValueIterator{column: c.column}
}

type columnValueIterator struct {
	column *models.Column
	idx    int
}

func (it *columnValueIterator) Next(p *starlark.Value) bool {
	if it.idx >= it.column.Len() {
		return false
	}
	v, err := toStarlarkScalar(it.column.Data[it.idx])
	it.idx++
	if err != nil {
		return false
	}
	*p = v
	return true
}
func (it *columnValueIterator) Done() {}

// Attr implements a small set of column helpers in the teacher's sparse,
// no-frills doc style: only what the example transform scripts need.
func (c *starlarkColumn) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(c.column.Name), nil
	case "dtype":
		return starlark.String(c.column.Type.String()), nil
	case "fillna":
		return starlark.NewBuiltin("fillna", c.fillna), nil
	}
	return nil, nil
}

func (c *starlarkColumn) AttrNames() []string { return []string{"name", "dtype", "fillna"} }

func (c *starlarkColumn) fillna(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fill starlark.Value
	if err := starlark.UnpackArgs("fillna", args, kwargs, "value", &fill); err != nil {
		return nil, err
	}
	scalar, err := fromStarlarkScalar(fill)
	if err != nil {
		return nil, fmt.Errorf("fillna: %w", err)
	}
	data := make([]any, c.column.Len())
	for i, v := range c.column.Data {
		if v == nil {
			data[i] = scalar
		} else {
			data[i] = v
		}
	}
	return newStarlarkColumn(&models.Column{Name: c.column.Name, Type: c.column.Type, Data: data}), nil
}

// Binary implements starlark.HasBinary: arithmetic (+ - * / %) and
// comparison (< <= > >= == !=) against either another column (elementwise,
// same length) or a scalar (broadcast).
func (c *starlarkColumn) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	length := c.column.Len()

	var rhs func(i int) any
	if other, ok := y.(*starlarkColumn); ok {
		if other.column.Len() != length {
			return nil, fmt.Errorf("column length mismatch: %d vs %d", length, other.column.Len())
		}
		rhs = func(i int) any { return other.column.Data[i] }
	} else {
		scalar, err := fromStarlarkScalar(y)
		if err != nil {
			return nil, nil // let starlark try the other operand / report "unsupported"
		}
		rhs = func(i int) any { return scalar }
	}

	comparison := isComparisonOp(op)
	data := make([]any, length)
	resultType := c.column.Type
	if comparison {
		resultType = models.ColumnBool
	}

	for i := 0; i < length; i++ {
		left, right := c.column.Data[i], rhs(i)
		if side == starlark.Right {
			left, right = right, left
		}
		v, vt, err := applyOp(op, left, right)
		if err != nil {
			return nil, err
		}
		data[i] = v
		if !comparison {
			resultType = vt
		}
	}

	return &starlarkColumn{column: &models.Column{Name: c.column.Name, Type: resultType, Data: data}}, nil
}

var (
	_ starlark.Value    = (*starlarkColumn)(nil)
	_ starlark.HasBinary = (*starlarkColumn)(nil)
	_ starlark.Sequence = (*starlarkColumn)(nil)
	_ starlark.HasAttrs = (*starlarkColumn)(nil)
)

func (c *starlarkColumn) boolMask() ([]bool, error) {
	if c.column.Type != models.ColumnBool {
		return nil, fmt.Errorf("boolean mask must be a bool column, got %s", c.column.Type)
	}
	mask := make([]bool, c.column.Len())
	for i, v := range c.column.Data {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("mask value at row %d is not a bool", i)
		}
		mask[i] = b
	}
	return mask, nil
}

func isComparisonOp(op syntax.Token) bool {
	switch op {
	case syntax.LT, syntax.LE, syntax.GT, syntax.GE, syntax.EQL, syntax.NEQ:
		return true
	}
	return false
}

// applyOp evaluates op over two already-unwrapped scalar values, returning
// the result plus the ColumnType it implies (ignored by callers computing
// a boolean mask).
func applyOp(op syntax.Token, a, b any) (any, models.ColumnType, error) {
	if isComparisonOp(op) {
		result, err := compareScalars(op, a, b)
		return result, models.ColumnBool, err
	}

	if as, aIsStr := a.(string); aIsStr && op == syntax.PLUS {
		bs, ok := b.(string)
		if !ok {
			return nil, 0, fmt.Errorf("cannot add string and %T", b)
		}
		return as + bs, models.ColumnString, nil
	}

	af, aIsFloat := a.(float64)
	ai, aIsInt := a.(int64)
	bf, bIsFloat := b.(float64)
	bi, bIsInt := b.(int64)
	if !aIsFloat && !aIsInt {
		return nil, 0, fmt.Errorf("unsupported operand type %T", a)
	}
	if !bIsFloat && !bIsInt {
		return nil, 0, fmt.Errorf("unsupported operand type %T", b)
	}
	useFloat := aIsFloat || bIsFloat
	var x, y float64
	if aIsFloat {
		x = af
	} else {
		x = float64(ai)
	}
	if bIsFloat {
		y = bf
	} else {
		y = float64(bi)
	}

	switch op {
	case syntax.PLUS:
		if !useFloat {
			return ai + bi, models.ColumnInt64, nil
		}
		return x + y, models.ColumnFloat64, nil
	case syntax.MINUS:
		if !useFloat {
			return ai - bi, models.ColumnInt64, nil
		}
		return x - y, models.ColumnFloat64, nil
	case syntax.STAR:
		if !useFloat {
			return ai * bi, models.ColumnInt64, nil
		}
		return x * y, models.ColumnFloat64, nil
	case syntax.SLASH:
		return x / y, models.ColumnFloat64, nil
	case syntax.SLASHSLASH:
		return math.Floor(x / y), models.ColumnFloat64, nil
	case syntax.PERCENT:
		if !useFloat {
			return ai % bi, models.ColumnInt64, nil
		}
		return math.Mod(x, y), models.ColumnFloat64, nil
	default:
		return nil, 0, fmt.Errorf("unsupported operator %s", op)
	}
}

func compareScalars(op syntax.Token, a, b any) (bool, error) {
	cmp, err := compareOrder(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case syntax.LT:
		return cmp < 0, nil
	case syntax.LE:
		return cmp <= 0, nil
	case syntax.GT:
		return cmp > 0, nil
	case syntax.GE:
		return cmp >= 0, nil
	case syntax.EQL:
		return cmp == 0, nil
	case syntax.NEQ:
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %s", op)
	}
}

// compareOrder returns -1/0/1 comparing a and b, coercing int64/float64
// pairs to a common numeric type.
func compareOrder(a, b any) (int, error) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return sign(float64(av - bv)), nil
		case float64:
			return sign(float64(av) - bv), nil
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return sign(av - float64(bv)), nil
		case float64:
			return sign(av - bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, nil
			}
			if !av && bv {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}

func inferScalarType(v any) models.ColumnType {
	switch v.(type) {
	case int64:
		return models.ColumnInt64
	case float64:
		return models.ColumnFloat64
	case bool:
		return models.ColumnBool
	default:
		return models.ColumnString
	}
}

func fromStarlarkScalar(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer literal out of range")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %s", v.Type())
	}
}

func toStarlarkScalar(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
