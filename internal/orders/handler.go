package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// Handler exposes order lifecycle endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds the orders HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

// MountRoutes attaches order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Patch("/{id}/status", h.updateStatus)
	})
}

type statusRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	org := shared.OrganizationFromContext(r.Context())
	if org == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, shared.ErrOrganizationRequired))
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.UpdateStatus(r.Context(), org, id, req.Status); err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
		case errors.Is(err, ErrInvalidTransition):
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrConflict, err))
		default:
			h.logger.Error("update order status", slog.String("order_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}
