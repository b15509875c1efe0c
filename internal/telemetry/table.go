package telemetry

import (
	"encoding/json"
	"sort"
)

// Table is a time-indexed wide table: one row per unique millisecond
// timestamp, one column per sensor. A cell either holds a Value (an
// observation, possibly an explicit null) or is absent ("no observation").
// The index is kept in ascending order with no duplicates.
type Table struct {
	columns []string
	colSet  map[string]struct{}
	rows    map[int64]map[string]Value
	index   []int64
	sorted  bool
}

// NewTable creates an empty table with the given column order. Duplicate
// column names are collapsed.
func NewTable(columns []string) *Table {
	t := &Table{
		colSet: make(map[string]struct{}, len(columns)),
		rows:   make(map[int64]map[string]Value),
		sorted: true,
	}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(name string) {
	if _, ok := t.colSet[name]; ok {
		return
	}
	t.colSet[name] = struct{}{}
	t.columns = append(t.columns, name)
}

// Columns returns the column names in their declared order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return len(t.rows) == 0 }

// Set stores an observation for (ts, sensor), creating the row and the
// column as needed. It returns true when an existing cell was replaced
// (the later write wins).
func (t *Table) Set(ts int64, sensor string, v Value) (replaced bool) {
	t.addColumn(sensor)
	row, ok := t.rows[ts]
	if !ok {
		row = make(map[string]Value)
		t.rows[ts] = row
		t.index = append(t.index, ts)
		t.sorted = false
	}
	_, replaced = row[sensor]
	row[sensor] = v
	return replaced
}

// At returns the observation at (ts, sensor). ok is false when the cell
// holds no observation.
func (t *Table) At(ts int64, sensor string) (Value, bool) {
	row, ok := t.rows[ts]
	if !ok {
		return Value{}, false
	}
	v, ok := row[sensor]
	return v, ok
}

// Index returns the sorted, duplicate-free timestamp index.
func (t *Table) Index() []int64 {
	if !t.sorted {
		sort.Slice(t.index, func(i, j int) bool { return t.index[i] < t.index[j] })
		t.sorted = true
	}
	out := make([]int64, len(t.index))
	copy(out, t.index)
	return out
}

// Select returns a new table containing only the given columns, sharing
// no storage with the receiver. Rows with no observation in any selected
// column are dropped.
func (t *Table) Select(columns []string) *Table {
	sub := NewTable(columns)
	for ts, row := range t.rows {
		for _, c := range columns {
			if v, ok := row[c]; ok {
				sub.Set(ts, c, v)
			}
		}
	}
	return sub
}

// Column returns the observed values of one column in index order,
// paired with their timestamps.
func (t *Table) Column(sensor string) (ts []int64, values []Value) {
	for _, i := range t.Index() {
		if v, ok := t.rows[i][sensor]; ok {
			ts = append(ts, i)
			values = append(values, v)
		}
	}
	return ts, values
}

// tableRow is the JSON shape of one row: the timestamp plus the observed
// cells. Absent cells stay absent, which keeps "no observation" distinct
// from an explicit null on the wire.
type tableRow struct {
	Timestamp int64            `json:"timestamp"`
	Values    map[string]Value `json:"values"`
}

// MarshalJSON encodes the table as its column list plus rows in index
// order.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([]tableRow, 0, len(t.rows))
	for _, ts := range t.Index() {
		rows = append(rows, tableRow{Timestamp: ts, Values: t.rows[ts]})
	}
	return json.Marshal(struct {
		Columns []string   `json:"columns"`
		Rows    []tableRow `json:"rows"`
	}{Columns: t.columns, Rows: rows})
}
