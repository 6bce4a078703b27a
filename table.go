package harvest

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Table is an ordered set of named string columns. It is the in memory form
// of every CSV file the harvester reads or writes.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column or -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool { return t.Index(col) >= 0 }

// Append adds a row. The row must have one value per column.
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Columns) {
		return errors.Errorf("row/column len mismatch: %d vs %d, %v and %v", len(row), len(t.Columns), row, t.Columns)
	}
	r := make([]string, len(row))
	copy(r, row)
	t.Rows = append(t.Rows, r)
	return nil
}

// Column returns a copy of the values of the named column.
func (t *Table) Column(col string) ([]string, error) {
	idx := t.Index(col)
	if idx < 0 {
		return nil, errors.Errorf("no column '%s' in %v", col, t.Columns)
	}
	ret := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		ret[i] = row[idx]
	}
	return ret, nil
}

// Floats returns the named column parsed as float64. Empty cells and "nan"
// become NaN.
func (t *Table) Floats(col string) ([]float64, error) {
	vals, err := t.Column(col)
	if err != nil {
		return nil, err
	}
	ret := make([]float64, len(vals))
	for i, v := range vals {
		ret[i], err = ParseFloat(v)
		if err != nil {
			return nil, errors.Wrapf(err, "column '%s' row %d", col, i)
		}
	}
	return ret, nil
}

// MaxInt returns the greatest integer in the named column. Empty and NaN
// cells are skipped. ok is false when no cell holds a number.
func (t *Table) MaxInt(col string) (max int, ok bool, err error) {
	vals, err := t.Column(col)
	if err != nil {
		return 0, false, err
	}
	for i, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			// pandas writes integer columns with missing values as floats
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0, false, errors.Wrapf(err, "column '%s' row %d", col, i)
			}
			if math.IsNaN(f) {
				continue
			}
			n = int(f)
		}
		if !ok || n > max {
			max, ok = n, true
		}
	}
	return max, ok, nil
}

// Concat appends the rows of o to t. Columns are matched by name, so o may
// have them in a different order, but both tables must have the same set.
func (t *Table) Concat(o *Table) error {
	if len(o.Columns) != len(t.Columns) {
		return errors.Errorf("can't concat %v onto %v", o.Columns, t.Columns)
	}
	order := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		order[i] = o.Index(c)
		if order[i] < 0 {
			return errors.Errorf("column '%s' missing from %v", c, o.Columns)
		}
	}
	for _, orow := range o.Rows {
		row := make([]string, len(order))
		for i, j := range order {
			row[i] = orow[j]
		}
		t.Rows = append(t.Rows, row)
	}
	return nil
}

// Union appends the rows of o to t like Concat, except that the column sets
// may differ: columns only in o are added to t, and cells for columns a
// table lacks are left empty.
func (t *Table) Union(o *Table) {
	for _, c := range o.Columns {
		if !t.Has(c) {
			t.Columns = append(t.Columns, c)
			for i := range t.Rows {
				t.Rows[i] = append(t.Rows[i], "")
			}
		}
	}
	order := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		order[i] = o.Index(c)
	}
	for _, orow := range o.Rows {
		row := make([]string, len(order))
		for i, j := range order {
			if j >= 0 {
				row[i] = orow[j]
			}
		}
		t.Rows = append(t.Rows, row)
	}
}

// DropDuplicates removes rows equal in every column to an earlier row and
// returns how many were removed.
func (t *Table) DropDuplicates() int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		k := rowKey(row)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}
	n := len(t.Rows) - len(kept)
	t.Rows = kept
	return n
}

func rowKey(row []string) string {
	return strings.Join(row, "\x1f")
}

// Merge inner joins t and o on every column they have in common. The result
// has t's columns followed by o's remaining columns, and t's row order. Each
// row of t is repeated once per matching row of o.
func (t *Table) Merge(o *Table) (*Table, error) {
	var on []string
	for _, c := range t.Columns {
		if o.Has(c) {
			on = append(on, c)
		}
	}
	if len(on) == 0 {
		return nil, errors.Errorf("no common columns to merge on between %v and %v", t.Columns, o.Columns)
	}
	lidx := make([]int, len(on))
	ridx := make([]int, len(on))
	for i, c := range on {
		lidx[i] = t.Index(c)
		ridx[i] = o.Index(c)
	}
	var rest []int
	ret := NewTable(t.Columns...)
	for j, c := range o.Columns {
		if !t.Has(c) {
			rest = append(rest, j)
			ret.Columns = append(ret.Columns, c)
		}
	}

	right := make(map[string][]int, len(o.Rows))
	for j, row := range o.Rows {
		k := rowKey(pick(row, ridx))
		right[k] = append(right[k], j)
	}
	for _, row := range t.Rows {
		for _, j := range right[rowKey(pick(row, lidx))] {
			out := make([]string, 0, len(ret.Columns))
			out = append(out, row...)
			out = append(out, pick(o.Rows[j], rest)...)
			ret.Rows = append(ret.Rows, out)
		}
	}
	return ret, nil
}

func pick(row []string, idx []int) []string {
	ret := make([]string, len(idx))
	for i, j := range idx {
		ret[i] = row[j]
	}
	return ret
}

// HStack joins tables side by side on row position, like a left join on the
// row index: the result has t's rows, and cells of shorter tables are left
// empty. Column names must not collide.
func (t *Table) HStack(others ...*Table) (*Table, error) {
	ret := NewTable(t.Columns...)
	ret.Name = t.Name
	for _, o := range others {
		for _, c := range o.Columns {
			if ret.Has(c) {
				return nil, errors.Errorf("column '%s' of %s overlaps", c, o.Name)
			}
			ret.Columns = append(ret.Columns, c)
		}
	}
	for i, row := range t.Rows {
		out := make([]string, 0, len(ret.Columns))
		out = append(out, row...)
		for _, o := range others {
			if i < len(o.Rows) {
				out = append(out, o.Rows[i]...)
			} else {
				out = append(out, make([]string, len(o.Columns))...)
			}
		}
		ret.Rows = append(ret.Rows, out)
	}
	return ret, nil
}

// DropColumns returns a copy of t without the columns for which drop returns
// true.
func (t *Table) DropColumns(drop func(col string) bool) *Table {
	var keep []int
	ret := &Table{Name: t.Name}
	for i, c := range t.Columns {
		if !drop(c) {
			keep = append(keep, i)
			ret.Columns = append(ret.Columns, c)
		}
	}
	ret.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		ret.Rows[i] = pick(row, keep)
	}
	return ret
}

// InsertColumn inserts a column at position pos.
func (t *Table) InsertColumn(pos int, name string, vals []string) error {
	if pos < 0 || pos > len(t.Columns) {
		return errors.Errorf("position %d out of range for %d columns", pos, len(t.Columns))
	}
	if len(vals) != len(t.Rows) {
		return errors.Errorf("have %d values for %d rows", len(vals), len(t.Rows))
	}
	if t.Has(name) {
		return errors.Errorf("column '%s' already exists", name)
	}
	t.Columns = append(t.Columns[:pos], append([]string{name}, t.Columns[pos:]...)...)
	for i, row := range t.Rows {
		t.Rows[i] = append(row[:pos], append([]string{vals[i]}, row[pos:]...)...)
	}
	return nil
}

// AddColumn appends a column with the same value in every row.
func (t *Table) AddColumn(name, val string) error {
	vals := make([]string, len(t.Rows))
	for i := range vals {
		vals[i] = val
	}
	return t.InsertColumn(len(t.Columns), name, vals)
}

// Rename renames a column.
func (t *Table) Rename(from, to string) error {
	idx := t.Index(from)
	if idx < 0 {
		return errors.Errorf("no column '%s' to rename", from)
	}
	t.Columns[idx] = to
	return nil
}

// Filter returns a copy of t holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row []string) bool) *Table {
	ret := NewTable(t.Columns...)
	ret.Name = t.Name
	for _, row := range t.Rows {
		if keep(row) {
			ret.Rows = append(ret.Rows, row)
		}
	}
	return ret
}
