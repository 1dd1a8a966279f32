package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsched/internal/booking"
	"adsched/internal/cache"
	"adsched/internal/models"
	"adsched/internal/report"
	"adsched/internal/slots"
	"adsched/internal/sweeper"
)

const testSecret = "test-secret"

// memStore backs the whole engine in memory for handler tests.
type memStore struct {
	reservations map[string]models.Reservation
	locations    map[string]models.Location
}

func newMemStore() *memStore {
	return &memStore{
		reservations: make(map[string]models.Reservation),
		locations: map[string]models.Location{
			"Station A": {ID: 1, Name: "Station A", IsActive: true},
		},
	}
}

func (m *memStore) FindOverlapping(ctx context.Context, location string, start, end time.Time, statuses []models.Status, excludeID string) ([]models.Reservation, error) {
	window := models.Interval{Start: start, End: end}
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.LocationName != location || r.ID == excludeID {
			continue
		}
		blocking := false
		for _, s := range statuses {
			if r.Status == s {
				blocking = true
			}
		}
		if blocking && r.Interval().Overlaps(window) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) CreateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error) {
	conflicts, _ := m.FindOverlapping(ctx, r.LocationName, r.StartTime, r.EndTime, models.BlockingStatuses(), "")
	if len(conflicts) > 0 {
		return conflicts, nil
	}
	m.reservations[r.ID] = *r
	return nil, nil
}

func (m *memStore) UpdateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error) {
	conflicts, _ := m.FindOverlapping(ctx, r.LocationName, r.StartTime, r.EndTime, models.BlockingStatuses(), r.ID)
	if len(conflicts) > 0 {
		return conflicts, nil
	}
	m.reservations[r.ID] = *r
	return nil, nil
}

func (m *memStore) DeleteReservation(ctx context.Context, id string) error {
	delete(m.reservations, id)
	return nil
}

func (m *memStore) UpdateReservationStatus(ctx context.Context, id string, from, to models.Status, updatedAt time.Time) (bool, error) {
	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = updatedAt
	m.reservations[id] = r
	return true, nil
}

func (m *memStore) ListByLocation(ctx context.Context, location string) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.LocationName == location {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ActivateDue(ctx context.Context, now time.Time) (int64, error) { return 0, nil }
func (m *memStore) MarkEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) (int64, error) {
	return 0, nil
}

func (m *memStore) ListActiveLocations(ctx context.Context) ([]models.Location, error) {
	var out []models.Location
	for _, loc := range m.locations {
		if loc.IsActive {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetLocationByName(ctx context.Context, name string) (*models.Location, error) {
	loc, ok := m.locations[name]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (m *memStore) SetLocationActive(ctx context.Context, name string, active bool) error {
	loc := m.locations[name]
	loc.IsActive = active
	m.locations[name] = loc
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	return newTestServerLimited(t, 1000, 1000)
}

func newTestServerLimited(t *testing.T, rps float64, burst int) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := zerolog.New(io.Discard)

	service := booking.NewService(store, logger)
	handler := NewHandler(
		service,
		slots.NewFinder(store),
		report.NewReporter(store),
		sweeper.New(store, 0, logger),
		store,
		cache.New(nil, time.Minute, logger),
		logger,
	)
	e := NewRouter(handler, RouterConfig{JWTSecret: testSecret, RequestsPerSecond: rps, Burst: burst})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, store
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": "customer",
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func TestCreateRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndConflictOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearer(t, "owner-1")

	body := `{"location_name":"Station A","start":"2025-12-01T08:00:00Z","end":"2025-12-01T12:00:00Z"}`
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "waiting", created["status"])

	overlap := `{"location_name":"Station A","start":"2025-12-01T10:00:00Z","end":"2025-12-01T14:00:00Z"}`
	resp, conflict := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", token, overlap)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", conflict["code"])
	conflicts, ok := conflict["conflicts"].([]any)
	require.True(t, ok, "conflict response must carry the colliding reservations")
	assert.Len(t, conflicts, 1)
}

func TestTransitionErrorsOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)
	token := bearer(t, "owner-1")

	store.reservations["res-1"] = models.Reservation{
		ID:           "res-1",
		LocationName: "Station A",
		OwnerID:      "owner-1",
		StartTime:    time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC),
		Status:       models.StatusEndingSoon,
	}

	// ending_soon cannot go back to active.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations/res-1/transition", token,
		`{"status":"active"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["code"])

	// Another owner cannot move it at all.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/reservations/res-1/transition",
		bearer(t, "owner-2"), `{"status":"completed"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown id maps to 404.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/reservations/missing/transition", token,
		`{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Completing twice yields the dedicated conflict code.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/reservations/res-1/complete", token, ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/reservations/res-1/complete", token, ``)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_completed", body["code"])
}

func TestAvailableSlotsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	url := fmt.Sprintf("%s/v1/locations/Station A/slots?date=2025-12-01&minutes=60", srv.URL)
	resp, body := doJSON(t, http.MethodGet, strings.ReplaceAll(url, " ", "%20"), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	free, ok := body["slots"].([]any)
	require.True(t, ok)
	assert.Len(t, free, 24)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/locations/StationA/slots?date=bad", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitKeyedPerOwner(t *testing.T) {
	srv, _ := newTestServerLimited(t, 0.001, 2)
	first := bearer(t, "owner-1")
	second := bearer(t, "owner-2")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/reservations", first, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/reservations", first, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/reservations", first, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Same client IP, different owner: a fresh bucket.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/reservations", second, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateMovesReservationToAnotherLocation(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearer(t, "owner-1")

	body := `{"location_name":"Station A","start":"2025-12-01T08:00:00Z","end":"2025-12-01T12:00:00Z"}`
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	resp, updated := doJSON(t, http.MethodPatch, srv.URL+"/v1/reservations/"+id, token,
		`{"location_name":"Station B"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Station B", updated["location_name"])
}

func TestLocationReservationsListing(t *testing.T) {
	srv, store := newTestServer(t)
	token := bearer(t, "owner-1")

	for i, loc := range []string{"Station A", "Station A", "Station B"} {
		store.reservations[fmt.Sprintf("res-%d", i)] = models.Reservation{
			ID:           fmt.Sprintf("res-%d", i),
			LocationName: loc,
			OwnerID:      "owner-1",
			StartTime:    time.Date(2025, 12, 1+i, 8, 0, 0, 0, time.UTC),
			EndTime:      time.Date(2025, 12, 1+i, 12, 0, 0, 0, time.UTC),
			Status:       models.StatusWaiting,
		}
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/locations/Station%20A/reservations", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed, ok := body["reservations"].([]any)
	require.True(t, ok)
	assert.Len(t, listed, 2)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/locations/Station%20A/reservations", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLocationActivationAdmin(t *testing.T) {
	srv, _ := newTestServer(t)
	token := bearer(t, "owner-1")

	resp, loc := doJSON(t, http.MethodPatch, srv.URL+"/v1/admin/locations/Station%20A", token,
		`{"active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, loc["is_active"])

	resp, listing := doJSON(t, http.MethodGet, srv.URL+"/v1/locations", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, listing["locations"])

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/v1/admin/locations/Nowhere", token,
		`{"active":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/v1/admin/locations/Station%20A", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
