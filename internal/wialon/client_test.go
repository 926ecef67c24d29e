package wialon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wialon-connector/internal/models"
	"wialon-connector/internal/platform/state"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(ctx context.Context, key state.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.data[key.String()]
	if !ok {
		return nil, state.ErrNotFound
	}
	return blob, nil
}

func (s *memStore) Set(ctx context.Context, key state.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key.String()] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key state.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key.String())
	return nil
}

func testIntegration(baseURL string) *models.Integration {
	return &models.Integration{
		ID:      uuid.New(),
		Name:    "wialon-test",
		BaseURL: baseURL,
		Configurations: []models.ActionConfiguration{
			{ID: uuid.New(), Action: models.ActionAuth, Data: map[string]any{"token": "vendor-token"}},
			{ID: uuid.New(), Action: models.ActionFetchSamples, Data: map[string]any{"observations_to_extract": 5}},
			{ID: uuid.New(), Action: models.ActionPullObservations, Data: map[string]any{}},
		},
	}
}

func newTestClient(states state.Store) *Client {
	logger := zerolog.Nop()
	sessions := NewSessionManager(states, http.DefaultClient, logger)
	return NewClient(sessions, http.DefaultClient, logger)
}

func seedSession(t *testing.T, states state.Store, integrationID, eid string) {
	t.Helper()
	blob, _ := json.Marshal(sessionState{Eid: eid})
	if err := states.Set(context.Background(), sessionKey(integrationID), blob); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func cachedEid(t *testing.T, states state.Store, integrationID string) (string, bool) {
	t.Helper()
	blob, err := states.Get(context.Background(), sessionKey(integrationID))
	if errors.Is(err, state.ErrNotFound) {
		return "", false
	}
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	var st sessionState
	if err := json.Unmarshal(blob, &st); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return st.Eid, true
}

func svcOf(r *http.Request) string {
	return r.URL.Query().Get("svc")
}

func TestAuthenticateLogsInAndCachesSession(t *testing.T) {
	var logins int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svcOf(r) != "token/login" {
			t.Errorf("unexpected svc %q", svcOf(r))
			return
		}
		logins++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		var params map[string]string
		if err := json.Unmarshal([]byte(r.PostForm.Get("params")), &params); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		if params["token"] != "vendor-token" || params["fl"] != "4" {
			t.Errorf("unexpected login params %v", params)
		}
		json.NewEncoder(w).Encode(map[string]any{"eid": "abc123"})
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")

	sid, err := client.Authenticate(context.Background(), integration)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sid != "abc123" {
		t.Errorf("sid = %q, want abc123", sid)
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if eid, ok := cachedEid(t, states, integration.ID.String()); !ok || eid != "abc123" {
		t.Errorf("cached eid = %q (present=%v), want abc123", eid, ok)
	}
}

func TestAuthenticateReusesCachedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected vendor call %s", r.URL.String())
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	sid, err := client.Authenticate(context.Background(), integration)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sid != "token123" {
		t.Errorf("sid = %q, want token123", sid)
	}
}

func TestAuthenticateSurfacesVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": 8, "reason": "access denied"})
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")

	_, err := client.Authenticate(context.Background(), integration)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 8 || apiErr.Reason != "access denied" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if _, ok := cachedEid(t, states, integration.ID.String()); ok {
		t.Error("session cached after failed login")
	}
}

func TestAuthenticateRecoversFromCorruptCachedSession(t *testing.T) {
	var logins int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svcOf(r) != "token/login" {
			t.Errorf("unexpected svc %q", svcOf(r))
			return
		}
		logins++
		json.NewEncoder(w).Encode(map[string]any{"eid": "fresh"})
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	if err := states.Set(context.Background(), sessionKey(integration.ID.String()), []byte("{not json")); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	sid, err := client.Authenticate(context.Background(), integration)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sid != "fresh" {
		t.Errorf("sid = %q, want fresh", sid)
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if eid, ok := cachedEid(t, states, integration.ID.String()); !ok || eid != "fresh" {
		t.Errorf("cached eid = %q (present=%v), want fresh", eid, ok)
	}
}

func TestAuthenticateRejectsLoginWithoutEid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")

	_, err := client.Authenticate(context.Background(), integration)
	if !errors.Is(err, models.ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
	if _, ok := cachedEid(t, states, integration.ID.String()); ok {
		t.Error("session cached after malformed login response")
	}
}

func TestListPositionsDecodesDevices(t *testing.T) {
	items := `[
		{"id": 734923, "nm": "Truck A", "pos": {"t": 1704110400, "f": 3, "y": -1.2345, "x": 36.789, "c": 90, "z": 1650.5, "s": 40, "sc": 11}},
		{"id": 734924, "nm": "Truck B"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svcOf(r) != "core/search_items" {
			t.Errorf("unexpected svc %q", svcOf(r))
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("sid") != "token123" {
			t.Errorf("sid = %q, want token123", r.PostForm.Get("sid"))
		}
		var params searchParams
		if err := json.Unmarshal([]byte(r.PostForm.Get("params")), &params); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		if params.Spec.ItemsType != "avl_unit" || params.Flags != 1025 || params.Force != 1 {
			t.Errorf("unexpected search params %+v", params)
		}
		w.Write([]byte(`{"searchSpec": {}, "dataFlags": 1025, "totalItemsCount": 2, "items": ` + items + `}`))
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	devices, err := client.ListPositions(context.Background(), integration)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}

	first := devices[0]
	if first.ID != 734923 || first.Name != "Truck A" {
		t.Errorf("first device = %+v", first)
	}
	if first.Position == nil {
		t.Fatal("first device has no position")
	}
	wantAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !first.Position.RecordedAt.Equal(wantAt) {
		t.Errorf("RecordedAt = %v, want %v", first.Position.RecordedAt, wantAt)
	}
	if first.Position.Latitude != -1.2345 || first.Position.Longitude != 36.789 {
		t.Errorf("coordinates = %v, %v", first.Position.Latitude, first.Position.Longitude)
	}
	if first.Position.Speed != 40 || first.Position.Satellites != 11 {
		t.Errorf("speed/satellites = %d/%d", first.Position.Speed, first.Position.Satellites)
	}

	if devices[1].Position != nil {
		t.Errorf("second device position = %+v, want nil", devices[1].Position)
	}
}

func TestListPositionsIgnoresBlankCachedSession(t *testing.T) {
	var logins int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch svcOf(r) {
		case "token/login":
			logins++
			json.NewEncoder(w).Encode(map[string]any{"eid": "fresh"})
		case "core/search_items":
			r.ParseForm()
			if sid := r.PostForm.Get("sid"); sid != "fresh" {
				t.Errorf("sid = %q, want fresh", sid)
			}
			w.Write([]byte(`{"items": [{"id": 1, "nm": "Unit"}]}`))
		default:
			t.Errorf("unexpected svc %q", svcOf(r))
		}
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "")

	devices, err := client.ListPositions(context.Background(), integration)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if eid, ok := cachedEid(t, states, integration.ID.String()); !ok || eid != "fresh" {
		t.Errorf("cached eid = %q (present=%v), want fresh", eid, ok)
	}
}

func TestListPositionsRecoversFromInvalidSession(t *testing.T) {
	var logins, searches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch svcOf(r) {
		case "token/login":
			logins++
			json.NewEncoder(w).Encode(map[string]any{"eid": "fresh"})
		case "core/search_items":
			searches++
			r.ParseForm()
			if r.PostForm.Get("sid") == "stale" {
				json.NewEncoder(w).Encode(map[string]any{"error": 1})
				return
			}
			w.Write([]byte(`{"items": [{"id": 1, "nm": "Unit"}]}`))
		default:
			t.Errorf("unexpected svc %q", svcOf(r))
		}
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "stale")

	devices, err := client.ListPositions(context.Background(), integration)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	if logins != 1 || searches != 2 {
		t.Errorf("logins = %d searches = %d, want 1 and 2", logins, searches)
	}
	if eid, ok := cachedEid(t, states, integration.ID.String()); !ok || eid != "fresh" {
		t.Errorf("cached eid = %q (present=%v), want fresh", eid, ok)
	}
}

func TestListPositionsGivesUpAfterRepeatedInvalidSession(t *testing.T) {
	var logins, searches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch svcOf(r) {
		case "token/login":
			logins++
			json.NewEncoder(w).Encode(map[string]any{"eid": "short-lived"})
		case "core/search_items":
			searches++
			json.NewEncoder(w).Encode(map[string]any{"error": 1})
		default:
			t.Errorf("unexpected svc %q", svcOf(r))
		}
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")

	_, err := client.ListPositions(context.Background(), integration)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if !apiErr.InvalidSession() {
		t.Errorf("apiErr = %+v, want invalid session", apiErr)
	}
	if logins != 3 || searches != 3 {
		t.Errorf("logins = %d searches = %d, want 3 and 3", logins, searches)
	}
	if _, ok := cachedEid(t, states, integration.ID.String()); ok {
		t.Error("rejected session left in cache")
	}
}

func TestListPositionsDoesNotRetryOtherVendorErrors(t *testing.T) {
	var searches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searches++
		json.NewEncoder(w).Encode(map[string]any{"error": 5})
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	_, err := client.ListPositions(context.Background(), integration)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 5 {
		t.Errorf("code = %d, want 5", apiErr.Code)
	}
	if searches != 1 {
		t.Errorf("searches = %d, want 1", searches)
	}
	if eid, ok := cachedEid(t, states, integration.ID.String()); !ok || eid != "token123" {
		t.Errorf("cached eid = %q (present=%v), want untouched token123", eid, ok)
	}
}

func TestListPositionsWrapsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	_, err := client.ListPositions(context.Background(), integration)
	if !models.IsTransportError(err) {
		t.Fatalf("err = %v, want transport error", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestListPositionsRejectsPayloadWithoutItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItemsCount": 0}`))
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	_, err := client.ListPositions(context.Background(), integration)
	if !errors.Is(err, models.ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}

func TestListPositionsRejectsNullItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItemsCount": 0, "items": null}`))
	}))
	defer srv.Close()

	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration(srv.URL + "/")
	seedSession(t, states, integration.ID.String(), "token123")

	_, err := client.ListPositions(context.Background(), integration)
	if !errors.Is(err, models.ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}

func TestListPositionsRequiresAuthConfiguration(t *testing.T) {
	states := newMemStore()
	client := newTestClient(states)
	integration := testIntegration("http://vendor.invalid/")
	integration.Configurations = integration.Configurations[1:]

	_, err := client.ListPositions(context.Background(), integration)
	if !errors.Is(err, models.ErrConfigurationNotFound) {
		t.Fatalf("err = %v, want ErrConfigurationNotFound", err)
	}
}
