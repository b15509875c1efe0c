package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// FetchFailure records one (tag, sensor) fetch that could not contribute
// to an assembly.
type FetchFailure struct {
	Tag      string    `json:"tag"`
	SensorID string    `json:"sensorId"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Err      error     `json:"-"`
	Reason   string    `json:"reason"`
}

// FetchReport accompanies every assembled table: which fetches failed
// (the table is then a partial success) and how many duplicate cells
// were overwritten during the merge.
type FetchReport struct {
	Failures   []FetchFailure `json:"failures,omitempty"`
	Overwrites int            `json:"overwrites"`
}

// Partial reports whether at least one fetch failed.
func (r *FetchReport) Partial() bool { return len(r.Failures) > 0 }

// Assembler resolves a query scope to (tag, interval) pairs through the
// registry, fetches each from the source, and merges the per-sensor
// streams into one time-indexed table.
type Assembler struct {
	registry *Registry
	source   Source
}

// NewAssembler creates an Assembler over a validated registry.
func NewAssembler(registry *Registry, source Source) *Assembler {
	return &Assembler{registry: registry, source: source}
}

// TimeframeRecords fetches and merges every known sensor for a single
// timeframe. A sensor with no records in the range contributes nothing;
// that is not a failure.
func (a *Assembler) TimeframeRecords(ctx context.Context, tf Timeframe) (*Table, *FetchReport, error) {
	table := NewTable(a.registry.Sensors().IDs())
	report := &FetchReport{}
	if err := a.mergeTimeframe(ctx, table, report, tf); err != nil {
		return table, report, err
	}
	a.logReport(report)
	return table, report, nil
}

// AllHouseholdRecords assembles every record ever captured for a
// household, across tag changes. During a transition period records are
// fetched under the old tag, bounded by the household's own timeframe,
// so a re-used tag never leaks another household's data.
func (a *Assembler) AllHouseholdRecords(ctx context.Context, household string) (*Table, *FetchReport, error) {
	return a.assemble(ctx, a.registry.HouseholdTimeframes(household))
}

// AllTimeframeRecords assembles records of every known device whose
// registry intervals overlap [from, to], clipped to that range. A device
// with no configured interval in the range contributes an empty table,
// not a failure.
func (a *Assembler) AllTimeframeRecords(ctx context.Context, from, to time.Time) (*Table, *FetchReport, error) {
	var tfs []Timeframe
	for _, device := range a.registry.Devices() {
		tfs = append(tfs, a.registry.IntervalsFor(device, from, to)...)
	}
	return a.assemble(ctx, tfs)
}

func (a *Assembler) assemble(ctx context.Context, tfs []Timeframe) (*Table, *FetchReport, error) {
	table := NewTable(a.registry.Sensors().IDs())
	report := &FetchReport{}
	for _, tf := range tfs {
		if err := a.mergeTimeframe(ctx, table, report, tf); err != nil {
			// Transport failure: propagate, keeping what was merged so far.
			return table, report, err
		}
	}
	a.logReport(report)
	return table, report, nil
}

// mergeTimeframe fetches each known sensor for one (tag, interval) pair
// and merges the records into the table. Malformed payloads abort only
// the affected sensor fetch and are recorded on the report; transport
// failures abort the whole assembly.
func (a *Assembler) mergeTimeframe(ctx context.Context, table *Table, report *FetchReport, tf Timeframe) error {
	for _, sensorID := range a.registry.Sensors().IDs() {
		records, err := a.source.Historical(ctx, tf.Device, sensorID, tf.Tag, tf.OldestRecord, tf.NewestRecord)
		if err != nil {
			if errors.Is(err, ErrRemoteData) {
				log.Printf("WARNING: unable to obtain records for sensor %q under tag %q: %v", sensorID, tf.Tag, err)
				report.Failures = append(report.Failures, FetchFailure{
					Tag:      tf.Tag,
					SensorID: sensorID,
					From:     tf.OldestRecord,
					To:       tf.NewestRecord,
					Err:      err,
					Reason:   err.Error(),
				})
				continue
			}
			return fmt.Errorf("historical fetch for sensor %q under tag %q: %w", sensorID, tf.Tag, err)
		}
		for _, rec := range records {
			if rec.SensorID != sensorID {
				// The remote echoes the requested path; a mismatch means
				// the payload belongs to a different sensor stream.
				continue
			}
			if table.Set(rec.Timestamp, rec.SensorID, rec.Value) {
				report.Overwrites++
			}
		}
	}
	return nil
}

func (a *Assembler) logReport(report *FetchReport) {
	if report.Overwrites > 0 {
		log.Printf("WARNING: merge overwrote %d duplicate cells (later fetch wins)", report.Overwrites)
	}
}
