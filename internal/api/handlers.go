// Package api exposes the activity tracker over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/observability"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/stats"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/timerange"
)

// Clock returns the current instant.
type Clock func() time.Time

// Handler coordinates HTTP requests with the lifecycle and the aggregator.
type Handler struct {
	lifecycle *domain.Lifecycle
	ledger    domain.Ledger
	types     *catalog.Registry
	clock     Clock
	location  *time.Location
	logger    *zap.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithLocation sets the report timezone used when a request names none.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler. The ledger must be the one backing lifecycle.
func NewHandler(lifecycle *domain.Lifecycle, ledger domain.Ledger, types *catalog.Registry, opts ...Option) *Handler {
	h := &Handler{
		lifecycle: lifecycle,
		ledger:    ledger,
		types:     types,
		clock:     time.Now,
		location:  time.UTC,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router serving every endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/activity-types", h.listActivityTypes)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Post("/activities", h.startActivity)
			r.Post("/activities/complete", h.completeActivity)
			r.Get("/users/{userID}/ongoing", h.ongoingActivity)
			r.Get("/stats", h.chatStats)
		})
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listActivityTypes(w http.ResponseWriter, _ *http.Request) {
	all := h.types.All()
	items := make([]ActivityTypeView, 0, len(all))
	for _, t := range all {
		items = append(items, ActivityTypeView{
			Code:               t.Code,
			DisplayName:        t.DisplayName,
			Emoji:              t.Emoji,
			MaxDurationSeconds: t.MaxDurationSeconds,
		})
	}
	writeJSON(w, http.StatusOK, ListActivityTypesResponse{Items: items})
}

func (h *Handler) startActivity(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chatID")
	if !ok {
		return
	}

	var req StartActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.lifecycle.Start(r.Context(), domain.StartInput{
		UserID:       req.UserID,
		UserFullName: strings.TrimSpace(req.UserFullName),
		ChatID:       chatID,
		ChatTitle:    req.ChatTitle,
		ActivityType: req.ActivityType,
		Now:          h.clock(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	observability.RecordStarted(activity.ActivityType)
	writeJSON(w, http.StatusCreated, toOngoingView(*activity, 0))
}

func (h *Handler) completeActivity(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chatID")
	if !ok {
		return
	}

	var req CompleteActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	record, err := h.lifecycle.Complete(r.Context(), req.UserID, chatID, h.clock())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	observability.RecordCompleted(record.ActivityType, string(record.Status), record.DurationSeconds)
	writeJSON(w, http.StatusOK, toCompletedView(*record))
}

func (h *Handler) ongoingActivity(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chatID")
	if !ok {
		return
	}
	userID, ok := pathInt(w, r, "userID")
	if !ok {
		return
	}

	view, err := h.lifecycle.Ongoing(r.Context(), userID, chatID, h.clock())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOngoingView(view.Activity, view.ElapsedSeconds))
}

func (h *Handler) chatStats(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chatID")
	if !ok {
		return
	}

	query := r.URL.Query()
	preset := query.Get("preset")
	if preset == "" {
		preset = string(timerange.Today)
	}

	loc := h.location
	if tz := query.Get("tz"); tz != "" {
		parsed, err := timerange.LoadLocation(tz)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		loc = parsed
	}

	window, err := timerange.Resolve(preset, h.clock(), loc)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	records, err := h.ledger.QueryCompleted(r.Context(), chatID, window)
	if err != nil {
		h.writeDomainError(w, r, &domain.InfrastructureError{Op: "query completed", Err: err})
		return
	}

	opts := []stats.Option{stats.WithLocation(loc)}
	if flag(query.Get("hourly")) {
		opts = append(opts, stats.WithHourly())
	}
	if flag(query.Get("daily")) {
		opts = append(opts, stats.WithDaily())
	}
	result := stats.NewAggregator(h.types, opts...).Aggregate(records)

	writeJSON(w, http.StatusOK, StatsResponse{
		ChatID:   chatID,
		Preset:   preset,
		Timezone: loc.String(),
		Window:   WindowView{Start: window.Start, End: window.End},
		Result:   result,
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		observability.RecordRejected("conflict")
		resp := ErrorResponse{Type: "conflict", Detail: err.Error()}
		if conflict.Existing.ID != "" {
			view := toOngoingView(conflict.Existing, conflict.ElapsedSeconds)
			resp.Ongoing = &view
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, domain.ErrValidation):
		observability.RecordRejected("validation")
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		observability.RecordRejected("not_found")
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		observability.RecordRejected("infrastructure")
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid "+name)
		return 0, false
	}
	return value, true
}

func flag(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
