package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// ErrTypeMismatch marks an aggregator applied to a column of the wrong
// sensor kind. It is a programmer error, raised before any aggregation
// work starts.
var ErrTypeMismatch = errors.New("aggregator does not match column kind")

// Aggregator reduces the observed values of one column within one window
// to a single value. Kind restricts which columns it may be applied to;
// an empty Kind accepts any column. Fn is never called with an empty
// slice: an empty window stays "no observation".
type Aggregator struct {
	Name string
	Kind SensorKind
	Fn   func(values []Value) Value
}

// AnyTrue aggregates a nominal column: true if at least one true value
// was observed in the window, false otherwise. Explicit nulls count as
// observations but never as true.
func AnyTrue() Aggregator {
	return Aggregator{
		Name: "any",
		Kind: KindNominal,
		Fn: func(values []Value) Value {
			for _, v := range values {
				if b, ok := v.Bool(); ok && b {
					return Bool(true)
				}
			}
			return Bool(false)
		},
	}
}

// Mean aggregates a cardinal column with the arithmetic mean of its
// non-null observations. A window holding only nulls yields null.
func Mean() Aggregator {
	return Aggregator{
		Name: "mean",
		Kind: KindCardinal,
		Fn: func(values []Value) Value {
			var sum float64
			var n int
			for _, v := range values {
				if f, ok := v.Float(); ok {
					sum += f
					n++
				}
			}
			if n == 0 {
				return Null()
			}
			return Float(sum / float64(n))
		},
	}
}

// Count aggregates any column with the number of observations in the
// window, nulls included.
func Count() Aggregator {
	return Aggregator{
		Name: "count",
		Fn: func(values []Value) Value {
			return Float(float64(len(values)))
		},
	}
}

// windowStart floors a millisecond timestamp to its epoch-anchored
// window start, correct for negative timestamps too.
func windowStart(ts, width int64) int64 {
	k := ts / width
	if ts < 0 && ts%width != 0 {
		k--
	}
	return k * width
}

// Downsample bins the table's index into half-open windows
// [k*width, (k+1)*width) anchored at the epoch and aggregates each
// column per window. Cells of empty windows stay "no observation". The
// aggregator's kind is checked against every column (per sensors) before
// any work is done.
func Downsample(t *Table, width time.Duration, agg Aggregator, sensors SensorSet) (*Table, error) {
	widthMs := width.Milliseconds()
	if widthMs <= 0 {
		return nil, fmt.Errorf("window width %s is not positive", width)
	}
	columns := t.Columns()
	if agg.Kind != "" {
		for _, col := range columns {
			kind, ok := sensors.Kind(col)
			if !ok || kind != agg.Kind {
				return nil, fmt.Errorf("%w: %s aggregator on column %q", ErrTypeMismatch, agg.Name, col)
			}
		}
	}

	// window start -> column -> observed values, in index order.
	buckets := make(map[int64]map[string][]Value)
	var starts []int64
	for _, ts := range t.Index() {
		start := windowStart(ts, widthMs)
		bucket, ok := buckets[start]
		if !ok {
			bucket = make(map[string][]Value)
			buckets[start] = bucket
			starts = append(starts, start)
		}
		for _, col := range columns {
			if v, ok := t.At(ts, col); ok {
				bucket[col] = append(bucket[col], v)
			}
		}
	}

	out := NewTable(columns)
	for _, start := range starts {
		for _, col := range columns {
			values := buckets[start][col]
			if len(values) == 0 {
				continue
			}
			out.Set(start, col, agg.Fn(values))
		}
	}
	return out, nil
}

// NominalsCardinals splits a table into its nominal and cardinal
// columns, per the declared sensor set. Columns of unknown sensors end
// up in neither table.
func NominalsCardinals(t *Table, sensors SensorSet) (nominals, cardinals *Table) {
	var nomCols, cardCols []string
	for _, col := range t.Columns() {
		switch sensors[col] {
		case KindNominal:
			nomCols = append(nomCols, col)
		case KindCardinal:
			cardCols = append(cardCols, col)
		}
	}
	return t.Select(nomCols), t.Select(cardCols)
}

// Normalize rescales every column's float observations linearly to
// [0, 1] using that column's own observed min and max. A column with
// zero variance maps to a constant 0.5. Nulls and booleans pass through
// unchanged.
func Normalize(t *Table) *Table {
	out := NewTable(t.Columns())
	for _, col := range t.Columns() {
		ts, values := t.Column(col)
		min, max, seen := 0.0, 0.0, false
		for _, v := range values {
			f, ok := v.Float()
			if !ok {
				continue
			}
			if !seen || f < min {
				min = f
			}
			if !seen || f > max {
				max = f
			}
			seen = true
		}
		span := max - min
		for i, v := range values {
			f, ok := v.Float()
			if !ok {
				out.Set(ts[i], col, v)
				continue
			}
			if span == 0 {
				out.Set(ts[i], col, Float(0.5))
				continue
			}
			out.Set(ts[i], col, Float((f-min)/span))
		}
	}
	return out
}
