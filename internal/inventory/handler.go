package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// Handler exposes stock mutation endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds the inventory HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

// MountRoutes attaches inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/items/{id}", h.getItem)
		r.Post("/items/{id}/movements", h.postMovement)
		r.Post("/items/{id}/replenish-picking", h.replenishPicking)
		r.Post("/items/{id}/discrepancies", h.recordDiscrepancy)
		r.Post("/discrepancies/{id}/resolve", h.resolveDiscrepancy)
	})
}

type movementRequest struct {
	Type   MovementType `json:"type" validate:"required,oneof=add remove"`
	Amount int          `json:"amount" validate:"gt=0"`
	Bin    Bin          `json:"bin" validate:"omitempty,oneof=picking overstock"`
	Reason string       `json:"reason" validate:"max=500"`
}

type replenishRequest struct {
	Amount int `json:"amount" validate:"gt=0"`
}

type discrepancyRequest struct {
	CountedQuantity int    `json:"counted_quantity" validate:"gte=0"`
	Reason          string `json:"reason" validate:"max=500"`
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	org, ok := organization(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), org, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item, "health": Classify(item)})
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	org, ok := organization(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	mv, err := h.service.PostMovement(r.Context(), org, MovementInput{
		ItemID:         chi.URLParam(r, "id"),
		Type:           req.Type,
		Amount:         req.Amount,
		Bin:            req.Bin,
		Reason:         req.Reason,
		UserID:         shared.UserFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) replenishPicking(w http.ResponseWriter, r *http.Request) {
	org, ok := organization(w, r)
	if !ok {
		return
	}
	var req replenishRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.ReplenishPickingBin(r.Context(), org, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) recordDiscrepancy(w http.ResponseWriter, r *http.Request) {
	org, ok := organization(w, r)
	if !ok {
		return
	}
	var req discrepancyRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.RecordDiscrepancy(r.Context(), org, DiscrepancyInput{
		ItemID:          chi.URLParam(r, "id"),
		CountedQuantity: req.CountedQuantity,
		Reason:          req.Reason,
		ReportedBy:      shared.UserFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) resolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	org, ok := organization(w, r)
	if !ok {
		return
	}
	if err := h.service.ResolveDiscrepancy(r.Context(), org, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(w, r, dest); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return false
	}
	return true
}

func organization(w http.ResponseWriter, r *http.Request) (string, bool) {
	org := shared.OrganizationFromContext(r.Context())
	if org == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, shared.ErrOrganizationRequired))
		return "", false
	}
	return org, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrDiscrepancyNotPending):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidMovementType):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrConflict, err))
	default:
		h.logger.Error("inventory request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
