package reportshttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// MountRoutes registers report endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, fmt.Errorf("%w: export limit reached", httpx.ErrRateLimited))
		}),
	)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.section(func(vm *ViewModel) any { return vm }))
		r.Get("/dashboard", h.section(func(vm *ViewModel) any { return vm.Dashboard }))
		r.Get("/valuation", h.section(func(vm *ViewModel) any { return vm.Valuation }))
		r.Get("/low-stock", h.section(func(vm *ViewModel) any { return lowStock{Low: vm.LowStock, Out: vm.OutOfStock, PickingAlerts: vm.PickingAlerts} }))
		r.Get("/sales/customers", h.section(func(vm *ViewModel) any { return vm.SalesByCustomer }))
		r.Get("/sales/products", h.section(func(vm *ViewModel) any { return vm.SalesByProduct }))
		r.Get("/purchases/vendors", h.section(func(vm *ViewModel) any { return vm.PurchasesByVendor }))
		r.Get("/profitability", h.section(func(vm *ViewModel) any { return vm.Profitability }))
		r.Get("/movements", h.section(func(vm *ViewModel) any { return vm.Movements }))
		r.Get("/discrepancies", h.section(func(vm *ViewModel) any { return vm.Digest }))
		r.Get("/forecast", h.section(func(vm *ViewModel) any { return vm.Forecast }))
		r.Get("/activity", h.section(func(vm *ViewModel) any { return vm.RecentActivity }))
		r.Get("/due-soon", h.section(func(vm *ViewModel) any { return vm.DueSoon }))
		r.Get("/orders/status", h.section(func(vm *ViewModel) any { return vm.StatusBreakdown }))
		r.Post("/refresh", h.handleRefresh)

		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/valuation/export.csv", h.handleValuationCSV)
			gr.Get("/low-stock/export.csv", h.handleLowStockCSV)
			gr.Get("/movements/export.csv", h.handleMovementsCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if org := shared.OrganizationFromContext(r.Context()); org != "" {
		if user := strings.TrimSpace(shared.UserFromContext(r.Context())); user != "" {
			return "user:" + org + ":" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
