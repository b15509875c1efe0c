package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrConfig marks invalid registry configuration: overlapping timeframes,
// misordered open intervals, or identifiers outside the accepted grammar.
// It is fatal at startup and never recovered from.
var ErrConfig = errors.New("invalid box configuration")

// Timeframe binds a physical box to a household and a remote tag for a
// span of time. A zero NewestRecord means the assignment is still open;
// it is resolved against the current time at query time only, so the
// stored configuration stays immutable.
type Timeframe struct {
	Device       string    `json:"device"`
	Household    string    `json:"household"`
	Tag          string    `json:"tag"`
	OldestRecord time.Time `json:"oldestRecord"`
	NewestRecord time.Time `json:"newestRecord,omitzero"`
}

// Open reports whether the timeframe has no upper bound yet.
func (tf Timeframe) Open() bool { return tf.NewestRecord.IsZero() }

// end resolves the upper bound, substituting now for open timeframes.
func (tf Timeframe) end(now time.Time) time.Time {
	if tf.Open() {
		return now
	}
	return tf.NewestRecord
}

// clip intersects the timeframe with [from, to], resolving an open upper
// bound against now. ok is false when the intersection is empty, which
// includes an open timeframe whose OldestRecord the clock has not
// reached yet.
func (tf Timeframe) clip(from, to, now time.Time) (Timeframe, bool) {
	end := tf.end(now)
	if !end.After(tf.OldestRecord) || !from.Before(end) || !tf.OldestRecord.Before(to) {
		return Timeframe{}, false
	}
	if tf.OldestRecord.Before(from) {
		tf.OldestRecord = from
	}
	if end.After(to) {
		end = to
	}
	tf.NewestRecord = end
	return tf, true
}

// TagException declares one known, accepted household/tag naming
// mismatch (typically a long-lived transition the curators chose not to
// re-tag).
type TagException struct {
	Household string
	Tag       string
}

// Registry holds the manually curated box/household/tag assignment
// history. It is validated eagerly on construction and read-only
// afterwards.
type Registry struct {
	sensors     SensorSet
	byDevice    map[string][]Timeframe
	byHousehold map[string][]Timeframe
	exceptions  map[TagException]struct{}
	now         func() time.Time
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock used to resolve open timeframes.
// Intended for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithTagExceptions declares household/tag naming mismatches that
// validation should accept.
func WithTagExceptions(exceptions []TagException) RegistryOption {
	return func(r *Registry) {
		for _, e := range exceptions {
			r.exceptions[e] = struct{}{}
		}
	}
}

// NewRegistry builds and validates a registry from the declared sensor
// set and the per-household timeframes. The Household field of each
// timeframe is taken from its map key.
func NewRegistry(sensors SensorSet, households map[string][]Timeframe, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		sensors:     sensors,
		byDevice:    make(map[string][]Timeframe),
		byHousehold: make(map[string][]Timeframe),
		exceptions:  make(map[TagException]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for household, tfs := range households {
		for _, tf := range tfs {
			tf.Household = household
			if tf.Device == "" {
				return nil, fmt.Errorf("%w: household %s has a timeframe without a device", ErrConfig, household)
			}
			if !ValidTag(tf.Tag) {
				return nil, fmt.Errorf("%w: tag %q of household %s is not valid", ErrConfig, tf.Tag, household)
			}
			if tf.OldestRecord.IsZero() {
				return nil, fmt.Errorf("%w: household %s has a timeframe without an oldest record", ErrConfig, household)
			}
			r.byDevice[tf.Device] = append(r.byDevice[tf.Device], tf)
			r.byHousehold[household] = append(r.byHousehold[household], tf)
		}
	}

	for _, tfs := range r.byDevice {
		sort.Slice(tfs, func(i, j int) bool {
			return tfs[i].OldestRecord.Before(tfs[j].OldestRecord)
		})
	}
	for _, tfs := range r.byHousehold {
		sort.Slice(tfs, func(i, j int) bool {
			return tfs[i].OldestRecord.Before(tfs[j].OldestRecord)
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that no box is assigned to two places at the same
// time: per device, timeframes must be pairwise non-overlapping, with at
// most one open timeframe, and that one chronologically last. The same
// tag appearing on adjacent timeframes is fine (the remote system
// relabels late after a relocation); a time overlap never is.
func (r *Registry) Validate() error {
	for device, tfs := range r.byDevice {
		for i, tf := range tfs {
			if tf.Open() && i != len(tfs)-1 {
				return fmt.Errorf("%w: device %s has an open timeframe (household %s) that is not the last",
					ErrConfig, device, tf.Household)
			}
			if !tf.Open() && !tf.OldestRecord.Before(tf.NewestRecord) {
				return fmt.Errorf("%w: device %s has a timeframe for household %s ending before it starts",
					ErrConfig, device, tf.Household)
			}
			if i == 0 {
				continue
			}
			prev := tfs[i-1]
			if prev.Open() || tf.OldestRecord.Before(prev.NewestRecord) {
				return fmt.Errorf("%w: device %s timeframes for households %s and %s overlap",
					ErrConfig, device, prev.Household, tf.Household)
			}
		}
	}

	// A household-style tag is expected to name the household it records
	// for; anything else must be declared as a known exception.
	for household, tfs := range r.byHousehold {
		for _, tf := range tfs {
			if !strings.HasPrefix(tf.Tag, "haushalt") || tf.Tag == household {
				continue
			}
			if _, ok := r.exceptions[TagException{Household: household, Tag: tf.Tag}]; !ok {
				return fmt.Errorf("%w: household %s records under mismatched tag %q (not a declared exception)",
					ErrConfig, household, tf.Tag)
			}
		}
	}
	return nil
}

// Sensors returns the declared sensor set.
func (r *Registry) Sensors() SensorSet { return r.sensors }

// Devices returns all known device IDs, sorted.
func (r *Registry) Devices() []string {
	devices := make([]string, 0, len(r.byDevice))
	for d := range r.byDevice {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices
}

// Households returns all known household IDs, sorted.
func (r *Registry) Households() []string {
	households := make([]string, 0, len(r.byHousehold))
	for h := range r.byHousehold {
		households = append(households, h)
	}
	sort.Strings(households)
	return households
}

// IntervalsFor returns the device's timeframes overlapping [from, to],
// clipped to that range, in chronological order. Open timeframes are
// resolved against the registry clock; two calls at later wall-clock
// times can only extend the last range, never shrink it.
func (r *Registry) IntervalsFor(device string, from, to time.Time) []Timeframe {
	now := r.now().UTC()
	var out []Timeframe
	for _, tf := range r.byDevice[device] {
		if clipped, ok := tf.clip(from, to, now); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// HouseholdTimeframes returns every timeframe ever assigned to the
// household, across tag changes, in chronological order with open upper
// bounds resolved.
func (r *Registry) HouseholdTimeframes(household string) []Timeframe {
	now := r.now().UTC()
	tfs := r.byHousehold[household]
	out := make([]Timeframe, len(tfs))
	for i, tf := range tfs {
		tf.NewestRecord = tf.end(now)
		out[i] = tf
	}
	return out
}

// TimeframesBySource groups all timeframes by the device they belong to.
func (r *Registry) TimeframesBySource() map[string][]Timeframe {
	out := make(map[string][]Timeframe, len(r.byDevice))
	for device, tfs := range r.byDevice {
		cp := make([]Timeframe, len(tfs))
		copy(cp, tfs)
		out[device] = cp
	}
	return out
}
