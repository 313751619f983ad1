// Package admin exposes document lifecycle operations and manual reminder
// ticks over an authenticated HTTP API.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
	"github.com/louisbranch/docwatch/internal/platform/logging"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
	"github.com/louisbranch/docwatch/internal/services/documents/scheduler"
)

// Service is the lifecycle surface the admin API drives.
type Service interface {
	Onboard(ctx context.Context, input domain.OnboardInput) (domain.Holder, []domain.Instance, error)
	HolderDocuments(ctx context.Context, holderID string) ([]domain.Instance, error)
	HolderDeadlines(ctx context.Context, holderID string) (domain.DerivedDeadlines, domain.Rules, error)
	DeleteHolder(ctx context.Context, holderID string) error
	Document(ctx context.Context, id string) (domain.Instance, error)
	History(ctx context.Context, id string) ([]domain.HistoryRecord, error)
	UpdateExpiry(ctx context.Context, id string, expiry domain.Date, actor domain.Actor, note string) error
	PauseByHolder(ctx context.Context, id string, note string) error
	MarkExtendedByAdmin(ctx context.Context, id string, note string) error
	PauseByAdmin(ctx context.Context, id string, note string) error
	ConfirmTravel(ctx context.Context, id string, inCountry bool) error
	SetNotifications(ctx context.Context, id string, enabled bool) error
}

// TickTrigger runs a reminder tick on demand.
type TickTrigger interface {
	TriggerTick(ctx context.Context) (scheduler.TickReport, error)
}

// Verifier validates admin bearer tokens.
type Verifier interface {
	Verify(raw string) (adminauth.Claims, error)
}

// Handler wires admin endpoints to the lifecycle service.
type Handler struct {
	service  Service
	ticks    TickTrigger
	verifier Verifier
	metrics  http.Handler
	logger   logrus.FieldLogger
}

// Deps holds Handler collaborators. Ticks and Metrics are optional.
type Deps struct {
	Service  Service
	Ticks    TickTrigger
	Verifier Verifier
	Metrics  http.Handler
	Logger   logrus.FieldLogger
}

// New constructs an admin handler.
func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		service:  deps.Service,
		ticks:    deps.Ticks,
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Router returns the HTTP handler serving every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		h.Register(r)
	})
	return r
}

// Register mounts the admin routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/holders", h.handleOnboard)
	r.Get("/holders/{holderID}/documents", h.handleHolderDocuments)
	r.Get("/holders/{holderID}/deadlines", h.handleHolderDeadlines)
	r.Delete("/holders/{holderID}", h.handleDeleteHolder)

	r.Put("/documents/{documentID}/expiry", h.handleUpdateExpiry)
	r.Post("/documents/{documentID}/pause", h.handlePauseByHolder)
	r.Post("/documents/{documentID}/extended", h.handleMarkExtended)
	r.Post("/documents/{documentID}/admin-pause", h.handlePauseByAdmin)
	r.Post("/documents/{documentID}/travel", h.handleConfirmTravel)
	r.Put("/documents/{documentID}/notifications", h.handleSetNotifications)
	r.Get("/documents/{documentID}/history", h.handleHistory)

	r.Post("/ticks", h.handleTriggerTick)
}

func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	holder, created, err := h.service.Onboard(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, onboardResponse{
		Holder:    holderFromDomain(holder),
		Documents: documentsFromDomain(created),
	})
}

func (h *Handler) handleHolderDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.HolderDocuments(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentListResponse{Documents: documentsFromDomain(docs)})
}

func (h *Handler) handleHolderDeadlines(w http.ResponseWriter, r *http.Request) {
	deadlines, rules, err := h.service.HolderDeadlines(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deadlinesFromDomain(deadlines, rules))
}

func (h *Handler) handleDeleteHolder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteHolder(r.Context(), chi.URLParam(r, "holderID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateExpiry(w http.ResponseWriter, r *http.Request) {
	var req expiryRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, err := domain.ParseDate(req.ExpiryDate)
	if err != nil {
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeInvalidArgument, "expiry_date must be YYYY-MM-DD", err))
		return
	}
	actor := domain.Actor(strings.TrimSpace(req.Actor))
	if actor == "" {
		actor = domain.ActorAdmin
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.UpdateExpiry(ctx, id, expiry, actor, req.Note)
	})
}

func (h *Handler) handlePauseByHolder(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.PauseByHolder(ctx, id, req.Note)
	})
}

func (h *Handler) handleMarkExtended(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.MarkExtendedByAdmin(ctx, id, req.Note)
	})
}

func (h *Handler) handlePauseByAdmin(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.PauseByAdmin(ctx, id, req.Note)
	})
}

func (h *Handler) handleConfirmTravel(w http.ResponseWriter, r *http.Request) {
	var req travelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.InCountry == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "in_country is required"))
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.ConfirmTravel(ctx, id, *req.InCountry)
	})
}

func (h *Handler) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "enabled is required"))
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) error {
		return h.service.SetNotifications(ctx, id, *req.Enabled)
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.History(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: historyFromDomain(records)})
}

func (h *Handler) handleTriggerTick(w http.ResponseWriter, r *http.Request) {
	if h.ticks == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errorBody{Code: "UNAVAILABLE", Message: "scheduler is not running"}})
		return
	}
	report, err := h.ticks.TriggerTick(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrTickInProgress):
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeConflict, "reminder tick already in progress", err))
		return
	case errors.Is(err, scheduler.ErrRunnerStopped):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errorBody{Code: "UNAVAILABLE", Message: "scheduler is stopping"}})
		return
	case err != nil:
		h.writeError(w, r, apperrors.Wrap(apperrors.CodePersistenceFailure, "reminder tick failed", err))
		return
	}
	writeJSON(w, http.StatusOK, tickFromReport(report))
}

// transition runs a lifecycle operation and answers with the document's new
// state. Operations on a missing document succeed without effect and answer
// 204.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "documentID")
	if err := apply(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.service.Document(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentFromDomain(doc))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("admin request")
	})
}
