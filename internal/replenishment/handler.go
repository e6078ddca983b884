package replenishment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
)

const requestTimeout = 30 * time.Second

// Handler exposes manual replenishment endpoints.
type Handler struct {
	runner     *Runner
	membership MembershipChecker
	enabled    func(organizationID string) bool
	logger     *slog.Logger
}

// NewHandler constructs the replenishment HTTP handler. enabled supplies the
// configured auto-reorder switch per organization.
func NewHandler(runner *Runner, membership MembershipChecker, enabled func(organizationID string) bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, membership: membership, enabled: enabled, logger: logger}
}

// MountRoutes attaches replenishment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/replenishment", func(r chi.Router) {
		r.Get("/preview", h.handlePreview)
		r.Post("/run", h.handleRun)
	})
}

type failureView struct {
	ItemID string `json:"item_id"`
	Stage  Stage  `json:"stage"`
	Error  string `json:"error"`
}

type runResponse struct {
	RunResult
	Failures []failureView `json:"failures"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	org, ok := h.authorize(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	decisions, err := h.runner.Preview(ctx, org)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"organization_id": org,
		"enabled":         h.isEnabled(org),
		"decisions":       decisions,
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	org, ok := h.authorize(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	result, err := h.runner.Run(ctx, RunInput{OrganizationID: org, Enabled: h.isEnabled(org)})
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := runResponse{RunResult: result, Failures: make([]failureView, 0, len(result.Failures))}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, failureView{ItemID: f.ItemID, Stage: f.Stage, Error: f.Err.Error()})
	}
	h.logger.Info("manual replenishment run",
		slog.String("organization_id", org),
		slog.String("user_id", shared.UserFromContext(r.Context())),
		slog.Int("orders", len(result.Orders)),
		slog.Int("failures", len(result.Failures)))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	org := shared.OrganizationFromContext(r.Context())
	if org == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, shared.ErrOrganizationRequired))
		return "", false
	}
	user := shared.UserFromContext(r.Context())
	if user == "" {
		httpx.RespondError(w, fmt.Errorf("%w: user required", httpx.ErrUnauthorized))
		return "", false
	}
	if err := authorize(r.Context(), h.membership, org, user); err != nil {
		if errors.Is(err, shared.ErrForbidden) {
			httpx.RespondError(w, fmt.Errorf("%w: replenishment requires admin or manager", httpx.ErrForbidden))
			return "", false
		}
		h.respondError(w, err)
		return "", false
	}
	return org, true
}

func (h *Handler) isEnabled(org string) bool {
	return h.enabled != nil && h.enabled(org)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, snapshot.ErrFetch) || errors.Is(err, snapshot.ErrNotReady) {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnavailable, err))
		return
	}
	h.logger.Error("replenishment request", slog.Any("error", err))
	httpx.RespondError(w, err)
}
