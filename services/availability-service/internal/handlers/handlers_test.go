package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/policy"
	"github.com/serenity-care/platform/services/availability-service/internal/storage"
	"github.com/serenity-care/platform/services/availability-service/internal/windows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const provider = "prov-1"

type fixture struct {
	mem     *storage.Memory
	mux     *http.ServeMux
	windows *WindowsHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC) }

	mem := storage.NewMemory()
	policies := policy.NewStaticProvider(availability.DefaultPolicy())
	engine := availability.NewEngine(mem, availability.DefaultPolicy())
	svc := windows.NewService(mem, engine, policies, logger, windows.WithClock(now))

	avail := NewAvailabilityHandler(engine, mem, svc, policies, logger, now)
	win := NewWindowsHandler(svc, policies, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/public/slots", avail.Slots)
	mux.HandleFunc("/api/v1/public/availability/check", avail.Check)
	mux.HandleFunc("/api/v1/windows", win.Collection)
	mux.HandleFunc("/api/v1/windows/update", win.Update)
	mux.HandleFunc("/api/v1/windows/deactivate", win.Deactivate)
	mux.HandleFunc("/api/v1/windows/reactivate", win.Reactivate)
	mux.HandleFunc("/api/v1/windows/resolve", win.Resolve)
	return &fixture{mem: mem, mux: mux, windows: win}
}

func (f *fixture) do(t *testing.T, method, path string, body any, providerID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if providerID != "" {
		req.Header.Set(providerHeader, providerID)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createWindow(t *testing.T, body map[string]any) windows.Change {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/windows", body, provider)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var change windows.Change
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &change))
	return change
}

func mondayNineToFive() map[string]any {
	return map[string]any{"kind": "recurring", "day_of_week": 1, "start_time": "09:00", "end_time": "17:00"}
}

func TestCreateWindow_AppliesPolicyDefaults(t *testing.T) {
	f := newFixture(t)

	change := f.createWindow(t, mondayNineToFive())
	assert.NotEmpty(t, change.Window.ID)
	assert.True(t, change.Window.Active)
	assert.Equal(t, availability.DefaultBufferMinutes, change.Window.BufferMinutes)
	assert.Equal(t, availability.DefaultMinAdvanceHours, change.Window.MinAdvanceHours)
	assert.Equal(t, availability.DefaultMaxAdvanceDays, change.Window.MaxAdvanceDays)
	assert.Equal(t, "UTC", change.Window.Timezone)
	assert.Len(t, f.mem.Events(), 1)
}

func TestCreateWindow_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/windows", mondayNineToFive(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := mondayNineToFive()
	bad["end_time"] = "08:00"
	rec = f.do(t, http.MethodPost, "/api/v1/windows", bad, provider)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "end_time", body["field"])

	rec = f.do(t, http.MethodPost, "/api/v1/windows", map[string]any{"kind": "one_time", "start_time": "09:00", "end_time": "10:00"}, provider)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "date", body["field"])

	rec = f.do(t, http.MethodDelete, "/api/v1/windows", nil, provider)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateWindow_Conflict(t *testing.T) {
	f := newFixture(t)
	first := f.createWindow(t, map[string]any{"kind": "recurring", "day_of_week": 2, "start_time": "09:00", "end_time": "12:00"})

	overlap := map[string]any{"kind": "recurring", "day_of_week": 2, "start_time": "11:00", "end_time": "14:00"}
	rec := f.do(t, http.MethodPost, "/api/v1/windows", overlap, provider)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Conflicts []availability.Window `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, first.Window.ID, resp.Conflicts[0].ID)

	overlap["allow_conflicts"] = true
	change := f.createWindow(t, overlap)
	assert.Len(t, change.Conflicts, 1)
}

func TestWindowLifecycle(t *testing.T) {
	f := newFixture(t)
	created := f.createWindow(t, mondayNineToFive())

	update := mondayNineToFive()
	update["id"] = created.Window.ID
	update["end_time"] = "13:00"
	update["session_types"] = []string{" Individual ", ""}
	rec := f.do(t, http.MethodPut, "/api/v1/windows/update", update, provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var change windows.Change
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &change))
	assert.Equal(t, availability.MustClock("13:00"), change.Window.End)
	assert.Equal(t, []string{"Individual"}, change.Window.SessionTypes)

	rec = f.do(t, http.MethodPost, "/api/v1/windows/deactivate", map[string]any{"id": created.Window.ID}, provider)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/windows", nil, provider)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Windows []availability.Window `json:"windows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Windows)

	rec = f.do(t, http.MethodGet, "/api/v1/windows?include_inactive=true", nil, provider)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Windows, 1)
	assert.False(t, list.Windows[0].Active)

	rec = f.do(t, http.MethodPost, "/api/v1/windows/reactivate", map[string]any{"id": created.Window.ID}, provider)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/windows/deactivate", map[string]any{"id": created.Window.ID}, "other-provider")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/windows/update", mondayNineToFive(), provider)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveDay(t *testing.T) {
	f := newFixture(t)
	f.createWindow(t, mondayNineToFive())
	f.createWindow(t, map[string]any{"kind": "exception", "date": "2025-03-10", "start_time": "11:00", "end_time": "12:00"})

	rec := f.do(t, http.MethodGet, "/api/v1/windows/resolve?date=2025-03-10", nil, provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view struct {
		Recurring  []json.RawMessage `json:"recurring"`
		Exceptions []json.RawMessage `json:"exceptions"`
		Free       []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"free"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Recurring, 1)
	assert.Len(t, view.Exceptions, 1)
	require.Len(t, view.Free, 2)
	assert.Equal(t, "09:00", view.Free[0].Start)
	assert.Equal(t, "11:00", view.Free[0].End)
	assert.Equal(t, "12:00", view.Free[1].Start)

	rec = f.do(t, http.MethodGet, "/api/v1/windows/resolve?date=10-03-2025", nil, provider)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type slotsBody struct {
	SlotDurationMinutes int `json:"slot_duration_minutes"`
	Slots               []struct {
		StartTime  string   `json:"start_time"`
		LocalStart string   `json:"local_start"`
		WindowID   string   `json:"window_id"`
		WindowIDs  []string `json:"window_ids"`
	} `json:"slots"`
}

func localStarts(b slotsBody) []string {
	out := make([]string, 0, len(b.Slots))
	for _, s := range b.Slots {
		out = append(out, s.LocalStart)
	}
	return out
}

func TestSlots(t *testing.T) {
	f := newFixture(t)
	created := f.createWindow(t, mondayNineToFive())

	rec := f.do(t, http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=2025-03-10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body slotsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 60, body.SlotDurationMinutes)
	assert.Equal(t, []string{"09:00", "10:15", "11:30", "12:45", "14:00", "15:15"}, localStarts(body))
	assert.Equal(t, "2025-03-10T09:00:00Z", body.Slots[0].StartTime)
	assert.Equal(t, created.Window.ID, body.Slots[0].WindowID)

	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	f.mem.AddSession(provider, availability.BookedSession{ID: "s1", Start: start, End: start.Add(70 * time.Minute)})

	rec = f.do(t, http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=2025-03-10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = slotsBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"09:00", "10:15", "11:30", "12:45"}, localStarts(body))

	rec = f.do(t, http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=2025-03-10&slot_duration_minutes=90", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = slotsBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 90, body.SlotDurationMinutes)
	assert.Equal(t, []string{"09:00", "10:45"}, localStarts(body))
}

func TestSlots_BadRequests(t *testing.T) {
	f := newFixture(t)

	cases := map[string]string{
		"missing provider": "/api/v1/public/slots?date=2025-03-10",
		"bad date":         "/api/v1/public/slots?provider_id=prov-1&date=March",
		"past date":        "/api/v1/public/slots?provider_id=prov-1&date=2025-03-01",
		"short duration":   "/api/v1/public/slots?provider_id=prov-1&date=2025-03-10&slot_duration_minutes=5",
		"bad duration":     "/api/v1/public/slots?provider_id=prov-1&date=2025-03-10&slot_duration_minutes=abc",
	}
	for name, path := range cases {
		rec := f.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/public/slots?provider_id=nobody&date=2025-03-10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "slots")))
}

func mustField(t *testing.T, raw []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[key]
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	created := f.createWindow(t, mondayNineToFive())

	rec := f.do(t, http.MethodPost, "/api/v1/public/availability/check", map[string]any{
		"provider_id": provider,
		"start_time":  "2025-03-10T09:00:00Z",
		"end_time":    "2025-03-10T10:00:00Z",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Available)
	assert.Equal(t, created.Window.ID, resp.GoverningWindowID)

	rec = f.do(t, http.MethodPost, "/api/v1/public/availability/check", map[string]any{
		"provider_id": provider,
		"start_time":  "2025-03-10T18:00:00Z",
		"end_time":    "2025-03-10T19:00:00Z",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = checkResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)
	assert.Equal(t, string(availability.ReasonOutsideAvailability), resp.Reason)

	rec = f.do(t, http.MethodPost, "/api/v1/public/availability/check", map[string]any{
		"provider_id": provider,
		"start_time":  "2025-03-10T10:00:00Z",
		"end_time":    "2025-03-10T09:00:00Z",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/public/availability/check", map[string]any{
		"provider_id": provider,
		"start_time":  "tomorrow",
		"end_time":    "2025-03-10T09:00:00Z",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
