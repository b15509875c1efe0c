package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

// stubSource satisfies telemetry.Source without talking to a remote.
type stubSource struct{}

func (stubSource) Historical(context.Context, string, string, string, time.Time, time.Time) ([]telemetry.RawRecord, error) {
	return nil, nil
}

func (stubSource) AllCurrent(context.Context, string) ([]telemetry.RawRecord, error) {
	return nil, nil
}

func (stubSource) NLatest(context.Context, string, string, string, int) ([]telemetry.RawRecord, error) {
	return []telemetry.RawRecord{
		{Timestamp: 1000, SensorID: "Gas", Value: telemetry.Float(1), Tag: "koffer1"},
	}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	registry, err := telemetry.NewRegistry(
		telemetry.SensorSet{"Gas": telemetry.KindCardinal, "Tuer": telemetry.KindNominal},
		map[string][]telemetry.Timeframe{
			"haushalt01": {{
				Device:       "koffer1",
				Tag:          "ssh1",
				OldestRecord: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			}},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app := fiber.New()
	svc := telemetry.NewService(registry, stubSource{}, nil)
	RegisterRoutes(app, svc)
	return app
}

// TestLiveQueryValidation verifies that the live endpoint enforces its
// required query parameters and the 1-1000 range for `n`.
func TestLiveQueryValidation(t *testing.T) {
	app := newTestApp(t)

	// Missing n parameter should return 400.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/live?source=koffer1&sensor=Gas", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Out-of-range n value should also return 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/live?source=koffer1&sensor=Gas&n=5000", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// A valid request passes through to the service.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/live?source=koffer1&sensor=Gas&n=5", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestCurrentRecordsSourceOptional verifies the current-records endpoint
// answers with and without a source filter.
func TestCurrentRecordsSourceOptional(t *testing.T) {
	app := newTestApp(t)

	// No source filter queries every accessible source.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/current", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/current?source=koffer1", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	// An invalid source name still fails validation.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/current?source=shed", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

// TestUnknownSensorRejected verifies service-level input validation maps
// to a 400 response.
func TestUnknownSensorRejected(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/live?source=koffer1&sensor=Noise&n=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

// TestHistoricalQueryValidation verifies the from/to/past parameter
// contract.
func TestHistoricalQueryValidation(t *testing.T) {
	app := newTestApp(t)

	// Neither past nor from/to given.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/historical?source=koffer1&sensor=Gas", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// from after to.
	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/records/historical?source=koffer1&sensor=Gas&from=2023-02-01T00:00:00Z&to=2023-01-01T00:00:00Z", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// past works on its own.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/historical?source=koffer1&sensor=Gas&past=30m", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestTimeframesEndpoint verifies the registry listing.
func TestTimeframesEndpoint(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeframes", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		BySource map[string][]telemetry.Timeframe `json:"bySource"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.BySource["koffer1"]) != 1 {
		t.Fatalf("expected 1 timeframe for koffer1, got %d", len(body.BySource["koffer1"]))
	}
	if body.BySource["koffer1"][0].Household != "haushalt01" {
		t.Fatalf("expected household haushalt01, got %s", body.BySource["koffer1"][0].Household)
	}
}

// TestHouseholdRecordsDownsampled verifies the assembled-table endpoint
// with a window.
func TestHouseholdRecordsDownsampled(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/households/haushalt01/records?window=5m&normalize=true", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	// normalize without a window is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/households/haushalt01/records?normalize=true", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}
