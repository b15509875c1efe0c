package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSetLaterWriteWins(t *testing.T) {
	tbl := NewTable([]string{"Gas"})

	assert.False(t, tbl.Set(1000, "Gas", Float(1)))
	assert.True(t, tbl.Set(1000, "Gas", Float(2)))

	v, ok := tbl.At(1000, "Gas")
	require.True(t, ok)
	f, _ := v.Float()
	assert.Equal(t, 2.0, f)

	// Collapsing duplicates never duplicates the index entry.
	assert.Equal(t, []int64{1000}, tbl.Index())
}

func TestTableIndexSorted(t *testing.T) {
	tbl := NewTable([]string{"Gas"})
	for _, ts := range []int64{3000, 1000, 2000, 1000} {
		tbl.Set(ts, "Gas", Float(float64(ts)))
	}
	assert.Equal(t, []int64{1000, 2000, 3000}, tbl.Index())
	assert.Equal(t, 3, tbl.Len())
}

func TestTableNullDistinctFromNoObservation(t *testing.T) {
	tbl := NewTable([]string{"Gas", "Tuer"})
	tbl.Set(1000, "Gas", Null())

	v, ok := tbl.At(1000, "Gas")
	require.True(t, ok, "an explicit null is still an observation")
	assert.True(t, v.IsNull())

	_, ok = tbl.At(1000, "Tuer")
	assert.False(t, ok, "absence of a record is no observation")
}

func TestTableSelect(t *testing.T) {
	tbl := NewTable([]string{"Gas", "Tuer", "Temperatur"})
	tbl.Set(1000, "Gas", Float(1))
	tbl.Set(1000, "Tuer", Bool(true))
	tbl.Set(2000, "Temperatur", Float(21))

	sub := tbl.Select([]string{"Gas", "Tuer"})
	assert.Equal(t, []string{"Gas", "Tuer"}, sub.Columns())
	assert.Equal(t, []int64{1000}, sub.Index(), "rows without observations in the selection are dropped")

	// The subtable shares no storage with its parent.
	sub.Set(1000, "Gas", Float(99))
	v, _ := tbl.At(1000, "Gas")
	f, _ := v.Float()
	assert.Equal(t, 1.0, f)
}

func TestTableMarshalJSON(t *testing.T) {
	tbl := NewTable([]string{"Gas", "Tuer"})
	tbl.Set(2000, "Gas", Null())
	tbl.Set(1000, "Tuer", Bool(true))
	tbl.Set(1000, "Gas", Float(21.5))

	data, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"columns": ["Gas", "Tuer"],
		"rows": [
			{"timestamp": 1000, "values": {"Gas": 21.5, "Tuer": true}},
			{"timestamp": 2000, "values": {"Gas": null}}
		]
	}`, string(data))
}

func TestValueUnmarshal(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`true`), &v))
	b, ok := v.Bool()
	assert.True(t, ok)
	assert.True(t, b)

	require.NoError(t, json.Unmarshal([]byte(`21.5`), &v))
	f, ok := v.Float()
	assert.True(t, ok)
	assert.Equal(t, 21.5, f)

	require.NoError(t, json.Unmarshal([]byte(`null`), &v))
	assert.True(t, v.IsNull())

	assert.Error(t, json.Unmarshal([]byte(`"on"`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &v))
}
