package telemetry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// SensorKind classifies the value domain of a sensor and thereby which
// aggregation functions apply to its column.
type SensorKind string

const (
	// KindNominal sensors report boolean signals (door contact, motion).
	KindNominal SensorKind = "nominal"
	// KindCardinal sensors report real-valued signals (temperature, gas).
	KindCardinal SensorKind = "cardinal"
)

// SensorDescriptor declares a known sensor and its kind.
type SensorDescriptor struct {
	ID   string     `json:"id"`
	Kind SensorKind `json:"kind"`
}

// SensorSet maps sensor IDs to their kind. Loaded once from configuration
// and treated as immutable for the lifetime of a session.
type SensorSet map[string]SensorKind

// IDs returns all sensor IDs in stable (sorted) order.
func (s SensorSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether the given sensor ID is declared.
func (s SensorSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Kind returns the declared kind for a sensor ID.
func (s SensorSet) Kind(id string) (SensorKind, bool) {
	k, ok := s[id]
	return k, ok
}

// Descriptors returns the set as a sorted slice of descriptors.
func (s SensorSet) Descriptors() []SensorDescriptor {
	descs := make([]SensorDescriptor, 0, len(s))
	for _, id := range s.IDs() {
		descs = append(descs, SensorDescriptor{ID: id, Kind: s[id]})
	}
	return descs
}

var tagPattern = regexp.MustCompile(`^(koffer1|koffer2|ssh[0-9]+|haushalt[0-9]+)$`)

// ValidTag reports whether tag matches the remote system's tag grammar:
// "koffer1", "koffer2", "sshN" or "haushaltN".
func ValidTag(tag string) bool {
	return tagPattern.MatchString(tag)
}

// ValueKind discriminates the payload of a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueFloat
)

// Value is a single observed sensor reading: a boolean, a float, or an
// explicitly transmitted null. A Value always stands for an observation;
// the absence of any record for a (timestamp, sensor) pair is modeled by
// cell absence in a Table, never by a Value.
type Value struct {
	kind ValueKind
	b    bool
	f    float64
}

// Null returns an explicit null reading.
func Null() Value { return Value{kind: ValueNull} }

// Bool returns a boolean reading.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// Float returns a real-valued reading.
func Float(f float64) Value { return Value{kind: ValueFloat, f: f} }

// Kind returns the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the reading is an explicit null.
func (v Value) IsNull() bool { return v.kind == ValueNull }

// Bool returns the boolean payload; ok is false for non-boolean values.
func (v Value) Bool() (value, ok bool) { return v.b, v.kind == ValueBool }

// Float returns the float payload; ok is false for non-float values.
func (v Value) Float() (float64, bool) { return v.f, v.kind == ValueFloat }

func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return fmt.Sprintf("%t", v.b)
	case ValueFloat:
		return fmt.Sprintf("%g", v.f)
	default:
		return "null"
	}
}

// MarshalJSON encodes the value as a JSON bool, number or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueBool:
		return json.Marshal(v.b)
	case ValueFloat:
		return json.Marshal(v.f)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON bool, number or null. Anything else
// (strings, arrays, objects) is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(x)
	case float64:
		*v = Float(x)
	default:
		return fmt.Errorf("value %s is neither bool, number nor null", data)
	}
	return nil
}

// RawRecord is a single observation as delivered by the remote source:
// one sensor value at one instant, labeled with the tag it was fetched
// under. Timestamps are milliseconds since the Unix epoch.
type RawRecord struct {
	Timestamp int64  `json:"timestamp"`
	SensorID  string `json:"sensorId"`
	Value     Value  `json:"value"`
	Tag       string `json:"tag"`
}
