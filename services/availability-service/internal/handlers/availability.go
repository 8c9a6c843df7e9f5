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
	"github.com/serenity-care/platform/libs/httpx"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BookedLister returns sessions already booked for a provider.
type BookedLister interface {
	ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]availability.BookedSession, error)
}

// BookingChecker validates a booking request against a consistent snapshot.
type BookingChecker interface {
	Check(ctx context.Context, req availability.BookingRequest) (availability.Verdict, error)
}

// AvailabilityHandler serves the public slot listing and booking check.
type AvailabilityHandler struct {
	engine   *availability.Engine
	sessions BookedLister
	checker  BookingChecker
	policies policy.Provider
	logger   *slog.Logger
	now      func() time.Time
	verdicts metric.Int64Counter
}

func NewAvailabilityHandler(engine *availability.Engine, sessions BookedLister, checker BookingChecker, policies policy.Provider, logger *slog.Logger, now func() time.Time) *AvailabilityHandler {
	if now == nil {
		now = time.Now
	}
	verdicts, err := otel.Meter("availability-service").Int64Counter("availability.check.verdicts",
		metric.WithDescription("Booking checks by outcome"))
	if err != nil {
		logger.Warn("verdict counter unavailable", "err", err)
	}
	return &AvailabilityHandler{
		engine:   engine,
		sessions: sessions,
		checker:  checker,
		policies: policies,
		logger:   logger,
		now:      now,
		verdicts: verdicts,
	}
}

type slotItem struct {
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	LocalStart   string   `json:"local_start"`
	LocalEnd     string   `json:"local_end"`
	Timezone     string   `json:"timezone"`
	WindowID     string   `json:"window_id"`
	WindowIDs    []string `json:"window_ids"`
	SessionTypes []string `json:"session_types,omitempty"`
}

type slotsResponse struct {
	ProviderID          string     `json:"provider_id"`
	Date                civil.Date `json:"date"`
	SessionType         string     `json:"session_type,omitempty"`
	SlotDurationMinutes int        `json:"slot_duration_minutes"`
	Slots               []slotItem `json:"slots"`
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	if providerID == "" {
		httpx.WriteFieldError(w, http.StatusBadRequest, "provider_id", "provider_id required")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httpx.WriteFieldError(w, http.StatusBadRequest, "date", "date must be YYYY-MM-DD")
		return
	}
	sessionType := strings.TrimSpace(q.Get("session_type"))

	ctx := r.Context()
	defaults, err := h.policies.Defaults(ctx, providerID)
	if err != nil {
		h.logger.Error("policy lookup failed", "provider_id", providerID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "policy lookup failed")
		return
	}
	engine := h.engine.WithDefaults(defaults)

	duration := engine.Defaults().SlotDurationMinutes
	if raw := strings.TrimSpace(q.Get("slot_duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < availability.MinWindowMinutes || n > availability.MaxWindowMinutes {
			httpx.WriteFieldError(w, http.StatusBadRequest, "slot_duration_minutes", "slot_duration_minutes must be between 15 and 720")
			return
		}
		duration = n
	}

	now := h.now()
	resolved, err := engine.ResolveWindows(ctx, providerID, date, availability.ResolveOptions{
		SessionType: sessionType,
		FutureOnly:  true,
		Now:         now,
	})
	if err != nil {
		if errors.Is(err, availability.ErrInvalidDate) {
			httpx.WriteFieldError(w, http.StatusBadRequest, "date", err.Error())
			return
		}
		h.logger.Error("resolve windows failed", "provider_id", providerID, "date", date.String(), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to resolve availability")
		return
	}

	slots := engine.GenerateSlots(resolved, duration)
	if len(slots) > 0 {
		from := slots[0].StartsAt.Add(-24 * time.Hour)
		to := slots[len(slots)-1].EndsAt.Add(24 * time.Hour)
		booked, err := h.sessions.ListBookedIntervals(ctx, providerID, from, to)
		if err != nil {
			h.logger.Error("list booked sessions failed", "provider_id", providerID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to load booked sessions")
			return
		}
		slots = availability.FilterBookable(slots, now, booked)
	}

	resp := slotsResponse{
		ProviderID:          providerID,
		Date:                date,
		SessionType:         sessionType,
		SlotDurationMinutes: duration,
		Slots:               make([]slotItem, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime:    s.StartsAt.UTC().Format(time.RFC3339),
			EndTime:      s.EndsAt.UTC().Format(time.RFC3339),
			LocalStart:   availability.Clock(s.Interval.Start).String(),
			LocalEnd:     availability.Clock(s.Interval.End).String(),
			Timezone:     s.Timezone,
			WindowID:     s.SourceWindowID,
			WindowIDs:    s.SourceWindowIDs,
			SessionTypes: s.AllowedSessionTypes,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type checkRequest struct {
	ProviderID      string `json:"provider_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	SessionType     string `json:"session_type"`
	IgnoreSessionID string `json:"ignore_session_id"`
}

type checkResponse struct {
	Available         bool   `json:"available"`
	Reason            string `json:"reason,omitempty"`
	GoverningWindowID string `json:"governing_window_id,omitempty"`
}

func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		httpx.WriteFieldError(w, http.StatusBadRequest, "provider_id", "provider_id required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteFieldError(w, http.StatusBadRequest, "start_time", "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		httpx.WriteFieldError(w, http.StatusBadRequest, "end_time", "invalid end_time")
		return
	}

	verdict, err := h.checker.Check(r.Context(), availability.BookingRequest{
		ProviderID:      req.ProviderID,
		Start:           start,
		End:             end,
		SessionType:     strings.TrimSpace(req.SessionType),
		Now:             h.now(),
		IgnoreSessionID: strings.TrimSpace(req.IgnoreSessionID),
	})
	if err != nil {
		if errors.Is(err, availability.ErrInvalidRequest) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("availability check failed", "provider_id", req.ProviderID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "availability check failed")
		return
	}

	outcome := string(verdict.Reason)
	if verdict.Available {
		outcome = "available"
	}
	if h.verdicts != nil {
		h.verdicts.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	httpx.WriteJSON(w, http.StatusOK, checkResponse{
		Available:         verdict.Available,
		Reason:            string(verdict.Reason),
		GoverningWindowID: verdict.GoverningWindowID,
	})
}
