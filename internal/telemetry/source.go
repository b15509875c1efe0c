package telemetry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRemoteUnavailable marks a transport failure talking to the
	// remote source. It propagates unchanged; retry policy lives in the
	// transport layer, not here.
	ErrRemoteUnavailable = errors.New("remote source unavailable")

	// ErrRemoteData marks a payload that could not be parsed into raw
	// records. It aborts the affected fetch only.
	ErrRemoteData = errors.New("malformed remote payload")

	// ErrUnknownSensor is returned for sensor IDs outside the declared
	// sensor set.
	ErrUnknownSensor = errors.New("unknown sensor id")

	// ErrBadTag is returned for tags outside the accepted grammar.
	ErrBadTag = errors.New("invalid tag")
)

// Source abstracts the remote telemetry API (e.g. open.INC). source is
// the device the sensor belongs to ("koffer1"), tag is where the remote
// system files its stream; an empty tag defaults to the source. One
// persistent HTTP client is expected to back all calls of a batch; the
// caller owns it, implementations never close it.
type Source interface {
	// Historical returns all records of one sensor whose timestamp falls
	// in [from, to], in delivery order.
	Historical(ctx context.Context, source, sensorID, tag string, from, to time.Time) ([]RawRecord, error)

	// AllCurrent returns the latest record per sensor of the given
	// source. An empty source means every source the session has access
	// to.
	AllCurrent(ctx context.Context, source string) ([]RawRecord, error)

	// NLatest returns the most recent n records of one sensor.
	NLatest(ctx context.Context, source, sensorID, tag string, n int) ([]RawRecord, error)
}

// CurrentSet is one refresh of current readings for a tag.
type CurrentSet struct {
	FetchedAt time.Time   `json:"fetchedAt"`
	Records   []RawRecord `json:"records"`
}

// Store caches current reading sets per tag between refreshes.
type Store interface {
	SaveCurrent(tag string, set CurrentSet)
	Current(tag string) (CurrentSet, error)
}
