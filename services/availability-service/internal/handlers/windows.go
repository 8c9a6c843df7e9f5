package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/serenity-care/platform/libs/auth"
	"github.com/serenity-care/platform/libs/httpx"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/policy"
	"github.com/serenity-care/platform/services/availability-service/internal/windows"
)

const providerHeader = auth.ProviderHeader

// WindowService is the window lifecycle used by WindowsHandler.
type WindowService interface {
	Create(ctx context.Context, w availability.Window, allowConflicts bool) (windows.Change, error)
	Update(ctx context.Context, w availability.Window, allowConflicts bool) (windows.Change, error)
	Deactivate(ctx context.Context, providerID, id string) (availability.Window, error)
	Reactivate(ctx context.Context, providerID, id string, allowConflicts bool) (windows.Change, error)
	List(ctx context.Context, providerID string, includeInactive bool) ([]availability.Window, error)
	ResolveDay(ctx context.Context, providerID string, date civil.Date) (windows.DayView, error)
}

// WindowsHandler lets a provider manage their own windows. The caller's
// provider id comes from the X-Provider-Id header, set by the gateway or by
// auth.RequireProvider from a verified token.
type WindowsHandler struct {
	svc      WindowService
	policies policy.Provider
	logger   *slog.Logger
}

func NewWindowsHandler(svc WindowService, policies policy.Provider, logger *slog.Logger) *WindowsHandler {
	return &WindowsHandler{svc: svc, policies: policies, logger: logger}
}

type windowRequest struct {
	ID              string            `json:"id"`
	Kind            availability.Kind `json:"kind"`
	DayOfWeek       *int              `json:"day_of_week"`
	Date            *civil.Date       `json:"date"`
	PeriodStart     *civil.Date       `json:"period_start"`
	PeriodEnd       *civil.Date       `json:"period_end"`
	StartTime       string            `json:"start_time"`
	EndTime         string            `json:"end_time"`
	SessionTypes    []string          `json:"session_types"`
	BufferMinutes   *int              `json:"buffer_minutes"`
	MinAdvanceHours *int              `json:"min_advance_hours"`
	MaxAdvanceDays  *int              `json:"max_advance_days"`
	Timezone        string            `json:"timezone"`
	AllowConflicts  bool              `json:"allow_conflicts"`
}

type idRequest struct {
	ID             string `json:"id"`
	AllowConflicts bool   `json:"allow_conflicts"`
}

type conflictResponse struct {
	Error     string                `json:"error"`
	Conflicts []availability.Window `json:"conflicts"`
}

// Collection lists windows on GET and creates one on POST.
func (h *WindowsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WindowsHandler) list(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	items, err := h.svc.List(r.Context(), providerID, includeInactive)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	if items == nil {
		items = []availability.Window{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"windows": items})
}

func (h *WindowsHandler) create(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	req, ok := decode[windowRequest](w, r)
	if !ok {
		return
	}
	win, err := h.toWindow(r.Context(), providerID, req)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}

	change, err := h.svc.Create(r.Context(), win, req.AllowConflicts)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, change)
}

func (h *WindowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	req, ok := decode[windowRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteFieldError(w, http.StatusBadRequest, "id", "id required")
		return
	}
	win, err := h.toWindow(r.Context(), providerID, req)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	win.ID = strings.TrimSpace(req.ID)

	change, err := h.svc.Update(r.Context(), win, req.AllowConflicts)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, change)
}

func (h *WindowsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	req, ok := decode[idRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteFieldError(w, http.StatusBadRequest, "id", "id required")
		return
	}

	win, err := h.svc.Deactivate(r.Context(), providerID, strings.TrimSpace(req.ID))
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, windows.Change{Window: win})
}

func (h *WindowsHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	req, ok := decode[idRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteFieldError(w, http.StatusBadRequest, "id", "id required")
		return
	}

	change, err := h.svc.Reactivate(r.Context(), providerID, strings.TrimSpace(req.ID), req.AllowConflicts)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, change)
}

// Resolve shows which windows apply on a date and the free time they leave.
func (h *WindowsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		httpx.WriteFieldError(w, http.StatusBadRequest, "date", "date must be YYYY-MM-DD")
		return
	}

	view, err := h.svc.ResolveDay(r.Context(), providerID, date)
	if err != nil {
		h.writeServiceError(w, err, providerID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

// toWindow fills unset booking rules from the provider's policy.
func (h *WindowsHandler) toWindow(ctx context.Context, providerID string, req windowRequest) (availability.Window, error) {
	sched, err := availability.BuildSchedule(req.Kind, req.DayOfWeek, req.Date, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return availability.Window{}, err
	}
	start, err := availability.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		return availability.Window{}, &availability.WindowError{Field: "start_time", Reason: err.Error()}
	}
	end, err := availability.ParseClock(strings.TrimSpace(req.EndTime))
	if err != nil {
		return availability.Window{}, &availability.WindowError{Field: "end_time", Reason: err.Error()}
	}

	defaults, err := h.policies.Defaults(ctx, providerID)
	if err != nil {
		return availability.Window{}, err
	}
	win := availability.Window{
		ProviderID:      providerID,
		Schedule:        sched,
		Start:           start,
		End:             end,
		SessionTypes:    normalizeTypes(req.SessionTypes),
		BufferMinutes:   defaults.BufferMinutes,
		MinAdvanceHours: int(defaults.MinAdvance / time.Hour),
		MaxAdvanceDays:  int(defaults.MaxAdvance / (24 * time.Hour)),
		Timezone:        strings.TrimSpace(req.Timezone),
	}
	if req.BufferMinutes != nil {
		win.BufferMinutes = *req.BufferMinutes
	}
	if req.MinAdvanceHours != nil {
		win.MinAdvanceHours = *req.MinAdvanceHours
	}
	if req.MaxAdvanceDays != nil {
		win.MaxAdvanceDays = *req.MaxAdvanceDays
	}
	if win.Timezone == "" {
		win.Timezone = "UTC"
	}
	return win, nil
}

func (h *WindowsHandler) writeServiceError(w http.ResponseWriter, err error, providerID string) {
	var we *availability.WindowError
	var ce *availability.ConflictError
	switch {
	case errors.As(err, &we):
		httpx.WriteFieldError(w, http.StatusBadRequest, we.Field, we.Error())
	case errors.As(err, &ce):
		httpx.WriteJSON(w, http.StatusConflict, conflictResponse{Error: "window conflicts with existing availability", Conflicts: ce.Conflicts})
	case windows.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "window not found")
	case errors.Is(err, availability.ErrInvalidDate):
		httpx.WriteFieldError(w, http.StatusBadRequest, "date", err.Error())
	default:
		h.logger.Error("window operation failed", "provider_id", providerID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func requireProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	providerID := strings.TrimSpace(r.Header.Get(providerHeader))
	if providerID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "X-Provider-Id header required")
		return "", false
	}
	return providerID, true
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return v, false
	}
	return v, true
}

func normalizeTypes(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
