// Package openinc implements the telemetry.Source contract against the
// open.INC measurement API.
package openinc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

const sessionHeader = "OD-SESSION"

// Client talks to the open.INC API. The *http.Client is owned by the
// caller and shared across a batch of calls; Client never closes it.
type Client struct {
	baseURL string
	session string
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClock replaces the wall clock used for the live query's "at"
// parameter. Intended for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithBackoff overrides the default retry/backoff settings.
func WithBackoff(b BackoffConfig) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// NewClient creates a Client against baseURL, authenticating every
// request with the given session token. A nil client falls back to
// http.DefaultClient.
func NewClient(client *http.Client, baseURL, session string, opts ...ClientOption) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openinc",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Historical implements telemetry.Source.
func (c *Client) Historical(ctx context.Context, source, sensorID, tag string, from, to time.Time) ([]telemetry.RawRecord, error) {
	if tag == "" {
		tag = source
	}
	u := c.buildURL(
		"historical",
		tag,
		expandSensorID(source, sensorID),
		strconv.FormatInt(from.UnixMilli(), 10),
		strconv.FormatInt(to.UnixMilli(), 10),
	)
	var payload sensorRecord
	if err := c.getJSON(ctx, u, nil, &payload); err != nil {
		return nil, err
	}
	records := payload.flatten(tag)
	log.Printf("obtained %d records for sensor %s, source %s and tag %s between %s and %s",
		len(records), sensorID, source, tag, from.Format(time.RFC3339), to.Format(time.RFC3339))
	return records, nil
}

// NLatest implements telemetry.Source.
func (c *Client) NLatest(ctx context.Context, source, sensorID, tag string, n int) ([]telemetry.RawRecord, error) {
	if tag == "" {
		tag = source
	}
	u := c.buildURL("live", tag, expandSensorID(source, sensorID))
	params := url.Values{}
	params.Set("at", strconv.FormatInt(c.now().UTC().UnixMilli(), 10))
	params.Set("values", strconv.Itoa(n))
	var payload sensorRecord
	if err := c.getJSON(ctx, u, params, &payload); err != nil {
		return nil, err
	}
	return payload.flatten(tag), nil
}

// AllCurrent implements telemetry.Source.
func (c *Client) AllCurrent(ctx context.Context, source string) ([]telemetry.RawRecord, error) {
	parts := []string{"items"}
	if source != "" {
		parts = append(parts, source)
	}
	u := c.buildURL(parts...)
	var payload []sensorRecord
	if err := c.getJSON(ctx, u, nil, &payload); err != nil {
		return nil, err
	}
	var records []telemetry.RawRecord
	for _, sr := range payload {
		records = append(records, sr.flatten(sr.Source)...)
	}
	return records, nil
}

func (c *Client) buildURL(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// expandSensorID rebuilds the remote's fully qualified sensor path,
// e.g. ("koffer1", "Gas") -> "koffer1.sensor.Gas".
func expandSensorID(source, sensorID string) string {
	return fmt.Sprintf("%s.sensor.%s", source, sensorID)
}

// getJSON performs the GET with the session header and resilience
// wrapper, then decodes the body into out. Transport failures map to
// ErrRemoteUnavailable, undecodable payloads to ErrRemoteData.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	buildRequest := func() (*http.Request, error) {
		u := rawURL
		if len(params) > 0 {
			u = rawURL + "?" + params.Encode()
		}
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(sessionHeader, c.session)
		return req, nil
	}

	resp, err := c.do(ctx, buildRequest)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", telemetry.ErrRemoteUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return fmt.Errorf("%w: response from %s is not JSON (%q)", telemetry.ErrRemoteData, rawURL, ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %v", telemetry.ErrRemoteUnavailable, rawURL, err)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "{}" {
		return fmt.Errorf("%w: response from %s is empty", telemetry.ErrRemoteData, rawURL)
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("ERROR: payload from %s failed to parse: %s", rawURL, trimmed)
		return fmt.Errorf("%w: %v", telemetry.ErrRemoteData, err)
	}
	return nil
}

// sensorRecord mirrors the open.INC payload shape.
type sensorRecord struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Values     []valueRecord `json:"values"`
	ValueTypes []valueType   `json:"valueTypes"`
}

type valueRecord struct {
	Date  apiTime           `json:"date"`
	Value []telemetry.Value `json:"value"`
}

type valueType struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// flatten converts the payload to flat raw records, stripping the
// "{source}.sensor." prefix from the sensor ID. Within one payload the
// first value per timestamp wins; later duplicates are dropped, which
// keeps a single fetch deterministic regardless of payload ordering
// quirks.
func (sr sensorRecord) flatten(tag string) []telemetry.RawRecord {
	sensorID := simplifySensorID(sr.ID)
	seen := make(map[int64]struct{}, len(sr.Values))
	var records []telemetry.RawRecord
	for _, vr := range sr.Values {
		for _, v := range vr.Value {
			if _, dup := seen[vr.Date.ms]; dup {
				continue
			}
			seen[vr.Date.ms] = struct{}{}
			records = append(records, telemetry.RawRecord{
				Timestamp: vr.Date.ms,
				SensorID:  sensorID,
				Value:     v,
				Tag:       tag,
			})
		}
	}
	return records
}

// simplifySensorID strips the "<source>.sensor." prefix, e.g.
// "koffer1.sensor.Gas" -> "Gas".
func simplifySensorID(id string) string {
	if i := strings.Index(id, ".sensor."); i >= 0 {
		return id[i+len(".sensor."):]
	}
	return id
}

// apiTime decodes the payload's date field: either epoch milliseconds
// or an RFC 3339 string. Anything else is a data error.
type apiTime struct {
	ms int64
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		if x != float64(int64(x)) {
			return fmt.Errorf("timestamp %v is not integer-coercible", x)
		}
		t.ms = int64(x)
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return fmt.Errorf("timestamp %q is not RFC 3339: %v", x, err)
		}
		t.ms = parsed.UnixMilli()
	default:
		return fmt.Errorf("timestamp %s is neither integer nor string", data)
	}
	return nil
}
