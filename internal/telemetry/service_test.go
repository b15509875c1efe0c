package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal Store for service tests.
type memStore struct {
	sets map[string]CurrentSet
}

func newMemStore() *memStore { return &memStore{sets: make(map[string]CurrentSet)} }

func (m *memStore) SaveCurrent(tag string, set CurrentSet) { m.sets[tag] = set }

func (m *memStore) Current(tag string) (CurrentSet, error) {
	set, ok := m.sets[tag]
	if !ok {
		return CurrentSet{}, errors.New("no cached set")
	}
	return set, nil
}

// currentSource records AllCurrent calls.
type currentSource struct {
	fakeSource
	current map[string][]RawRecord
	fetches []string
}

func (c *currentSource) AllCurrent(_ context.Context, source string) ([]RawRecord, error) {
	c.fetches = append(c.fetches, source)
	return c.current[source], nil
}

func serviceRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(testSensors, map[string][]Timeframe{
		"haushalt01": {{
			Device:       "koffer1",
			Tag:          "ssh1",
			OldestRecord: date("2023-01-01T00:00:00Z"),
		}},
	}, WithClock(fixedClock("2023-06-01T00:00:00Z")))
	require.NoError(t, err)
	return r
}

func TestServiceRejectsUnknownSensorAndBadTag(t *testing.T) {
	svc := NewService(serviceRegistry(t), &fakeSource{}, nil)

	_, err := svc.NLatest(context.Background(), "koffer1", "Lärm", "", 5)
	assert.ErrorIs(t, err, ErrUnknownSensor)

	_, err = svc.NLatest(context.Background(), "shed", "Gas", "", 5)
	assert.ErrorIs(t, err, ErrBadTag)

	_, err = svc.Historical(context.Background(), "koffer1", "Gas", "cellar",
		date("2023-01-01T00:00:00Z"), date("2023-02-01T00:00:00Z"))
	assert.ErrorIs(t, err, ErrBadTag)

	_, err = svc.AllCurrent(context.Background(), "anywhere")
	assert.ErrorIs(t, err, ErrBadTag)
}

func TestServiceAllCurrentPrefersCache(t *testing.T) {
	src := &currentSource{current: map[string][]RawRecord{
		"koffer1": {{Timestamp: 1000, SensorID: "Gas", Value: Float(1), Tag: "koffer1"}},
	}}
	store := newMemStore()
	svc := NewService(serviceRegistry(t), src, store)

	// First call misses the cache and fetches live.
	set, err := svc.AllCurrent(context.Background(), "koffer1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, []string{"koffer1"}, src.fetches)

	// Second call is served from the store.
	_, err = svc.AllCurrent(context.Background(), "koffer1")
	require.NoError(t, err)
	assert.Equal(t, []string{"koffer1"}, src.fetches)
}

func TestServiceAllCurrentEmptySourceQueriesAll(t *testing.T) {
	src := &currentSource{current: map[string][]RawRecord{
		"": {
			{Timestamp: 1000, SensorID: "Gas", Value: Float(1), Tag: "koffer1"},
			{Timestamp: 2000, SensorID: "Tuer", Value: Bool(true), Tag: "koffer2"},
		},
	}}
	store := newMemStore()
	svc := NewService(serviceRegistry(t), src, store)

	set, err := svc.AllCurrent(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, set.Records, 2)
	assert.Equal(t, []string{""}, src.fetches)

	// The all-sources result is never cached and never served stale.
	assert.Empty(t, store.sets)
	_, err = svc.AllCurrent(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, src.fetches)
}

func TestServiceRefreshCurrent(t *testing.T) {
	src := &currentSource{current: map[string][]RawRecord{
		"koffer1": {{Timestamp: 1000, SensorID: "Gas", Value: Float(1), Tag: "koffer1"}},
	}}
	store := newMemStore()
	svc := NewService(serviceRegistry(t), src, store)

	require.NoError(t, svc.RefreshCurrent(context.Background()))
	set, err := store.Current("koffer1")
	require.NoError(t, err)
	assert.Len(t, set.Records, 1)
}

func TestServicePastTimedelta(t *testing.T) {
	now := date("2023-03-01T12:00:00Z")
	src := &fakeSource{records: map[string][]RawRecord{
		"koffer1": {
			{Timestamp: now.Add(-30 * time.Minute).UnixMilli(), SensorID: "Gas", Value: Float(1), Tag: "koffer1"},
			{Timestamp: now.Add(-3 * time.Hour).UnixMilli(), SensorID: "Gas", Value: Float(2), Tag: "koffer1"},
		},
	}}
	svc := NewService(serviceRegistry(t), src, nil,
		WithServiceClock(func() time.Time { return now }))

	records, err := svc.PastTimedelta(context.Background(), "koffer1", "Gas", "", time.Hour)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, now.Add(-30*time.Minute).UnixMilli(), records[0].Timestamp)
}
