package reportshttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/shared"
)

type stubService struct {
	vm      *reports.ViewModel
	err     error
	filters reports.Filters
	org     string
}

func (s *stubService) Report(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error) {
	s.org, s.filters = organizationID, f
	if s.err != nil {
		return nil, s.err
	}
	return s.vm, nil
}

func (s *stubService) Refresh(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error) {
	return s.Report(ctx, organizationID, f)
}

func sampleViewModel() *reports.ViewModel {
	return &reports.ViewModel{
		OrganizationID:  "org-1",
		SnapshotVersion: 3,
		AsOf:            time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Dashboard: reports.DashboardSummary{
			TotalStockValue: decimal.RequireFromString("11.00"),
			ItemCount:       3,
		},
		Valuation: reports.Valuation{
			GroupBy:    reports.GroupByCategory,
			TotalValue: decimal.RequireFromString("11.00"),
			TotalUnits: 9,
			Buckets: []reports.ValuationBucket{
				{Key: "Hardware", Label: "Hardware", Value: decimal.RequireFromString("6.00"), Units: 4, ItemCount: 2, Percentage: decimal.RequireFromString("54.55")},
			},
		},
	}
}

func newTestRouter(svc ReportService) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithOrganization(req.Context(), req.Header.Get("X-Organization-ID"))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, org string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if org != "" {
		req.Header.Set("X-Organization-ID", org)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDashboardEnvelope(t *testing.T) {
	svc := &stubService{vm: sampleViewModel()}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/reports/dashboard?from=2024-01-01&to=2024-01-31&status=Processing&status=Shipped&category=Hardware&limit=5", "org-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OrganizationID  string                   `json:"organization_id"`
		SnapshotVersion uint64                   `json:"snapshot_version"`
		Data            reports.DashboardSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "org-1", body.OrganizationID)
	require.EqualValues(t, 3, body.SnapshotVersion)
	require.Equal(t, "11.00", body.Data.TotalStockValue.StringFixed(2))

	require.Equal(t, "org-1", svc.org)
	require.NotNil(t, svc.filters.From)
	require.NotNil(t, svc.filters.To)
	require.Equal(t, []orders.Status{orders.StatusProcessing, orders.StatusShipped}, svc.filters.OrderStatuses)
	require.Equal(t, []string{"Hardware"}, svc.filters.Categories)
	require.Equal(t, 5, svc.filters.Limit)
}

func TestReportErrorsMapToProblems(t *testing.T) {
	cases := []struct {
		name   string
		target string
		org    string
		err    error
		status int
	}{
		{name: "missing tenant", target: "/reports/valuation", status: http.StatusBadRequest},
		{name: "bad date", target: "/reports/valuation?from=yesterday", org: "org-1", status: http.StatusBadRequest},
		{name: "bad limit", target: "/reports/valuation?limit=ten", org: "org-1", status: http.StatusBadRequest},
		{name: "invalid filters", target: "/reports/valuation", org: "org-1", err: reports.ErrInvalidFilters, status: http.StatusBadRequest},
		{name: "not ready", target: "/reports/valuation", org: "org-1", err: reports.ErrNotReady, status: http.StatusServiceUnavailable},
		{name: "internal", target: "/reports/valuation", org: "org-1", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(&stubService{vm: sampleViewModel(), err: tc.err})
			rec := do(t, h, http.MethodGet, tc.target, tc.org)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRefreshSuperseded(t *testing.T) {
	h := newTestRouter(&stubService{err: reports.ErrStale})
	rec := do(t, h, http.MethodPost, "/reports/refresh", "org-1")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestValuationCSVExport(t *testing.T) {
	h := newTestRouter(&stubService{vm: sampleViewModel()})
	rec := do(t, h, http.MethodGet, "/reports/valuation/export.csv", "org-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "valuation-2024-01-15.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Hardware,2,4,6.00,54.55", lines[1])
	require.Equal(t, "Total,,9,11.00,100.00", lines[2])
}
