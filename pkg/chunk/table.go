package chunk

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// Table is an ordered list of named columns of equal length. Names are
// symbol ids and may repeat; lookups return the first match.
type Table struct {
	names []int32
	cols  []*Vector
	rows  int
	refs  atomic.Int32
}

func NewTable() *Table {
	t := &Table{}
	t.refs.Store(1)
	return t
}

func (t *Table) value() {}

func (t *Table) Kind() ValueKind {
	return VK_TABLE
}

func (t *Table) Retain() {
	if t.refs.Add(1) <= 1 {
		panic(errors.Wrap(common.ErrReleased, "retain table"))
	}
}

func (t *Table) Release() {
	n := t.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(errors.Wrap(common.ErrReleased, "double release of table"))
	}
	for _, col := range t.cols {
		col.Release()
	}
	t.cols = nil
	t.names = nil
}

// AddColumn appends col under name. The table takes over the caller's
// reference to col, also on error.
func (t *Table) AddColumn(name string, col *Vector) error {
	return t.AddColumnSym(sym.Intern(name), col)
}

func (t *Table) AddColumnSym(name int32, col *Vector) error {
	if len(t.cols) > 0 && col.Len() != t.rows {
		col.Release()
		return errors.Wrapf(common.ErrLength, "column %q has %d rows, table has %d",
			sym.Str(name), col.Len(), t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = col.Len()
	}
	t.names = append(t.names, name)
	t.cols = append(t.cols, col)
	return nil
}

func (t *Table) RowCount() int {
	return t.rows
}

func (t *Table) ColumnCount() int {
	return len(t.cols)
}

func (t *Table) ColumnName(i int) string {
	return sym.Str(t.names[i])
}

func (t *Table) ColumnSym(i int) int32 {
	return t.names[i]
}

func (t *Table) Column(i int) *Vector {
	return t.cols[i]
}

func (t *Table) ColumnIndex(name string) int {
	id, ok := sym.Find(name)
	if !ok {
		return -1
	}
	return t.ColumnIndexSym(id)
}

func (t *Table) ColumnIndexSym(id int32) int {
	for i, n := range t.names {
		if n == id {
			return i
		}
	}
	return -1
}

func (t *Table) ColumnByName(name string) (*Vector, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.cols[i], true
}

func (t *Table) ColumnBySym(id int32) (*Vector, bool) {
	i := t.ColumnIndexSym(id)
	if i < 0 {
		return nil, false
	}
	return t.cols[i], true
}

func (t *Table) Names() []string {
	ret := make([]string, len(t.names))
	for i, n := range t.names {
		ret[i] = sym.Str(n)
	}
	return ret
}

func (t *Table) Types() []common.TypeId {
	ret := make([]common.TypeId, len(t.cols))
	for i, col := range t.cols {
		ret[i] = col.Type()
	}
	return ret
}

// MapColumns builds a new table from fn applied to every column. fn returns
// a new reference.
func (t *Table) MapColumns(fn func(i int, col *Vector) (*Vector, error)) (*Table, error) {
	out := NewTable()
	for i, col := range t.cols {
		res, err := fn(i, col)
		if err != nil {
			out.Release()
			return nil, err
		}
		if err = out.AddColumnSym(t.names[i], res); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// Slice returns a table of zero-copy column views over rows [off, off+n).
func (t *Table) Slice(off, n int) *Table {
	out, _ := t.MapColumns(func(_ int, col *Vector) (*Vector, error) {
		return col.Slice(off, n), nil
	})
	return out
}

// Row formats row i.
func (t *Table) Row(i int) []string {
	ret := make([]string, len(t.cols))
	for j, col := range t.cols {
		ret[j] = col.ElemString(i)
	}
	return ret
}

// Print writes the header and at most maxRows rows, tab separated.
// maxRows <= 0 prints every row.
func (t *Table) Print(w io.Writer, maxRows int) error {
	if _, err := fmt.Fprintln(w, strings.Join(t.Names(), "\t")); err != nil {
		return err
	}
	n := t.rows
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprintln(w, strings.Join(t.Row(i), "\t")); err != nil {
			return err
		}
	}
	if n < t.rows {
		if _, err := fmt.Fprintf(w, "... %d rows\n", t.rows); err != nil {
			return err
		}
	}
	return nil
}

// Log writes rows to the logger, one entry per row.
func (t *Table) Log(prefix string, maxRows int) {
	n := t.rows
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	names := t.Names()
	for i := 0; i < n; i++ {
		fields := make([]zap.Field, 0, len(t.cols))
		for j, col := range t.cols {
			fields = append(fields, zap.String(names[j], col.ElemString(i)))
		}
		util.Info(prefix, fields...)
	}
}

func (t *Table) String() string {
	sb := &strings.Builder{}
	_ = t.Print(sb, 10)
	return sb.String()
}
