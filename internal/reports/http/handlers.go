package reportshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/shared"
)

const requestTimeout = 5 * time.Second

// ViewModel aliases the report view model for handler signatures.
type ViewModel = reports.ViewModel

// ReportService is the data contract used by the handler.
type ReportService interface {
	Report(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error)
	Refresh(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error)
}

// Handler serves report endpoints as JSON and CSV.
type Handler struct {
	logger  *slog.Logger
	service ReportService
	csvPool sync.Pool
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

type envelope struct {
	OrganizationID  string    `json:"organization_id"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	AsOf            time.Time `json:"as_of"`
	Data            any       `json:"data"`
}

type lowStock struct {
	Low           []reports.StockAlert   `json:"low_stock"`
	Out           []reports.StockAlert   `json:"out_of_stock"`
	PickingAlerts []reports.PickingAlert `json:"picking_alerts"`
}

func (h *Handler) section(pick func(vm *ViewModel) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vm, ok := h.load(w, r, h.service.Report)
		if !ok {
			return
		}
		httpx.JSON(w, http.StatusOK, envelope{
			OrganizationID:  vm.OrganizationID,
			SnapshotVersion: vm.SnapshotVersion,
			AsOf:            vm.AsOf,
			Data:            pick(vm),
		})
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	vm, ok := h.load(w, r, h.service.Refresh)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, envelope{
		OrganizationID:  vm.OrganizationID,
		SnapshotVersion: vm.SnapshotVersion,
		AsOf:            vm.AsOf,
		Data:            vm,
	})
}

func (h *Handler) handleValuationCSV(w http.ResponseWriter, r *http.Request) {
	h.writeCSV(w, r, "valuation", func(buf io.Writer, vm *ViewModel) error {
		return reports.WriteValuationCSV(buf, vm.Valuation)
	})
}

func (h *Handler) handleLowStockCSV(w http.ResponseWriter, r *http.Request) {
	h.writeCSV(w, r, "low-stock", func(buf io.Writer, vm *ViewModel) error {
		alerts := append(append([]reports.StockAlert(nil), vm.OutOfStock...), vm.LowStock...)
		return reports.WriteStockAlertsCSV(buf, alerts)
	})
}

func (h *Handler) handleMovementsCSV(w http.ResponseWriter, r *http.Request) {
	h.writeCSV(w, r, "movements", func(buf io.Writer, vm *ViewModel) error {
		return reports.WriteMovementsCSV(buf, vm.Movements)
	})
}

func (h *Handler) writeCSV(w http.ResponseWriter, r *http.Request, name string, write func(io.Writer, *ViewModel) error) {
	vm, ok := h.load(w, r, h.service.Report)
	if !ok {
		return
	}
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := write(buf, vm); err != nil {
		h.handleServerError(w, "write "+name+" csv", err)
		return
	}
	filename := fmt.Sprintf("%s-%s.csv", name, vm.AsOf.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

type loadFunc func(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error)

func (h *Handler) load(w http.ResponseWriter, r *http.Request, fn loadFunc) (*ViewModel, bool) {
	org := shared.OrganizationFromContext(r.Context())
	if org == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, shared.ErrOrganizationRequired))
		return nil, false
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vm, err := fn(ctx, org, filters)
	switch {
	case err == nil:
		return vm, true
	case errors.Is(err, reports.ErrInvalidFilters):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	case errors.Is(err, reports.ErrNotReady):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnavailable, err))
	case errors.Is(err, reports.ErrStale):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrConflict, err))
	default:
		h.handleServerError(w, "load report", err)
	}
	return nil, false
}

func (h *Handler) handleServerError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseFilters(r *http.Request) (reports.Filters, error) {
	q := r.URL.Query()
	var f reports.Filters
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, ok := shared.ParseDate(raw)
		if !ok {
			return f, fmt.Errorf("invalid from date %q", raw)
		}
		f.From = &t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, ok := shared.ParseDate(raw)
		if !ok {
			return f, fmt.Errorf("invalid to date %q", raw)
		}
		f.To = &t
	}
	f.GroupBy = reports.GroupBy(strings.TrimSpace(q.Get("group_by")))
	f.OrderType = orders.Type(strings.TrimSpace(q.Get("type")))
	for _, s := range q["status"] {
		f.OrderStatuses = append(f.OrderStatuses, orders.Status(s))
	}
	f.Categories = nonEmpty(q["category"])
	f.FolderIDs = nonEmpty(q["folder"])
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
