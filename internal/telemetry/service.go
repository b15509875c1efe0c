package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Service ties the registry, the remote source and the current-readings
// store together behind the call surface the API and the scheduler use.
type Service struct {
	registry  *Registry
	source    Source
	store     Store
	assembler *Assembler
	now       func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceClock replaces the wall clock. Intended for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service. store may be nil, in which case
// current readings are always fetched live.
func NewService(registry *Registry, source Source, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		registry:  registry,
		source:    source,
		store:     store,
		assembler: NewAssembler(registry, source),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the validated registry for read-only queries.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) checkTag(tag string) error {
	if !ValidTag(tag) {
		return fmt.Errorf("%w: %q", ErrBadTag, tag)
	}
	return nil
}

func (s *Service) checkSensor(sensorID string) error {
	if !s.registry.Sensors().Has(sensorID) {
		return fmt.Errorf("%w: %q", ErrUnknownSensor, sensorID)
	}
	return nil
}

// AllCurrent returns the latest record per sensor of a source,
// preferring the cached set from the last refresh and falling back to a
// live fetch. An empty source queries every accessible source; that
// result is always fetched live since the store caches per source.
func (s *Service) AllCurrent(ctx context.Context, source string) (CurrentSet, error) {
	if source == "" {
		records, err := s.source.AllCurrent(ctx, "")
		if err != nil {
			return CurrentSet{}, err
		}
		return CurrentSet{FetchedAt: s.now().UTC(), Records: records}, nil
	}
	if err := s.checkTag(source); err != nil {
		return CurrentSet{}, err
	}
	if s.store != nil {
		if set, err := s.store.Current(source); err == nil {
			return set, nil
		}
	}
	records, err := s.source.AllCurrent(ctx, source)
	if err != nil {
		return CurrentSet{}, err
	}
	set := CurrentSet{FetchedAt: s.now().UTC(), Records: records}
	if s.store != nil {
		s.store.SaveCurrent(source, set)
	}
	return set, nil
}

// RefreshCurrent fetches the current readings of every known device into
// the store. Per-device failures are logged and skipped; the last error
// is returned so the scheduler can report it.
func (s *Service) RefreshCurrent(ctx context.Context) error {
	if s.store == nil {
		return errors.New("no store configured")
	}
	var lastErr error
	for _, device := range s.registry.Devices() {
		records, err := s.source.AllCurrent(ctx, device)
		if err != nil {
			log.Printf("WARNING: refresh of current readings for %s failed: %v", device, err)
			lastErr = err
			continue
		}
		s.store.SaveCurrent(device, CurrentSet{FetchedAt: s.now().UTC(), Records: records})
	}
	return lastErr
}

func (s *Service) checkSourceAndTag(source, tag string) error {
	if err := s.checkTag(source); err != nil {
		return err
	}
	if tag != "" {
		return s.checkTag(tag)
	}
	return nil
}

// NLatest returns the most recent n records of one sensor.
func (s *Service) NLatest(ctx context.Context, source, sensorID, tag string, n int) ([]RawRecord, error) {
	if err := s.checkSourceAndTag(source, tag); err != nil {
		return nil, err
	}
	if err := s.checkSensor(sensorID); err != nil {
		return nil, err
	}
	return s.source.NLatest(ctx, source, sensorID, tag, n)
}

// Historical returns one sensor's records in [from, to].
func (s *Service) Historical(ctx context.Context, source, sensorID, tag string, from, to time.Time) ([]RawRecord, error) {
	if err := s.checkSourceAndTag(source, tag); err != nil {
		return nil, err
	}
	if err := s.checkSensor(sensorID); err != nil {
		return nil, err
	}
	return s.source.Historical(ctx, source, sensorID, tag, from, to)
}

// PastTimedelta returns one sensor's records from the last d up until
// now.
func (s *Service) PastTimedelta(ctx context.Context, source, sensorID, tag string, d time.Duration) ([]RawRecord, error) {
	now := s.now().UTC()
	return s.Historical(ctx, source, sensorID, tag, now.Add(-d), now)
}

// HouseholdRecords assembles every record ever captured for a household.
func (s *Service) HouseholdRecords(ctx context.Context, household string) (*Table, *FetchReport, error) {
	return s.assembler.AllHouseholdRecords(ctx, household)
}

// TimeframeRecords assembles records of all known devices in [from, to].
func (s *Service) TimeframeRecords(ctx context.Context, from, to time.Time) (*Table, *FetchReport, error) {
	return s.assembler.AllTimeframeRecords(ctx, from, to)
}
