package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/inventory"
	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/replenishment"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
)

func seedTenant(t *testing.T, st *store.Memory, org string) {
	t.Helper()
	ctx := context.Background()
	vendor := "V1"
	item := inventory.Item{
		ID:                  "A",
		Name:                "Widget",
		PickingBinQuantity:  2,
		ReorderLevel:        5,
		UnitCost:            decimal.RequireFromString("1.00"),
		VendorID:            &vendor,
		AutoReorderEnabled:  true,
		AutoReorderQuantity: 20,
	}
	item.Normalize()
	require.NoError(t, st.Insert(ctx, org, store.TableItems, item.Record()))
	require.NoError(t, st.Insert(ctx, org, store.TableVendors, store.Record{"id": "V1", "name": "Parts Co"}))
}

func countOrders(t *testing.T, st *store.Memory, org string) int {
	t.Helper()
	n, err := st.Count(context.Background(), org, store.TableOrders, store.Query{})
	require.NoError(t, err)
	return int(n)
}

func TestReplenishmentScanAcrossOrganizations(t *testing.T) {
	st := store.NewMemory()
	seedTenant(t, st, "org-1")
	seedTenant(t, st, "org-2")

	loader := snapshot.NewLoader(st, nil)
	runner := replenishment.NewRunner(replenishment.RunnerConfig{
		Source:  loader,
		Markers: replenishment.NewMemoryMarkerStore(time.Hour),
		Orders:  orders.NewService(st, nil, nil),
		Metrics: replenishment.NewMetrics(prometheus.NewRegistry()),
	})
	job := &ReplenishmentScanJob{
		Loader:        loader,
		Runner:        runner,
		Organizations: st,
		Enabled:       func(org string) bool { return org == "org-1" },
		Metrics:       jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}

	task, err := NewReplenishmentScanTask(ReplenishmentScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 1, countOrders(t, st, "org-1"))
	require.Equal(t, 0, countOrders(t, st, "org-2"))

	bad := asynq.NewTask(TaskReplenishmentScan, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type recordingReports struct {
	calls map[string][]reports.GroupBy
}

func (r *recordingReports) Report(ctx context.Context, org string, f reports.Filters) (*reports.ViewModel, error) {
	r.calls[org] = append(r.calls[org], f.GroupBy)
	return &reports.ViewModel{OrganizationID: org}, nil
}

func TestReportsWarmupSingleOrganization(t *testing.T) {
	st := store.NewMemory()
	seedTenant(t, st, "org-1")
	rec := &recordingReports{calls: map[string][]reports.GroupBy{}}
	job := &ReportsWarmupJob{
		Loader:  snapshot.NewLoader(st, nil),
		Reports: rec,
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}

	task, err := NewReportsWarmupTask(ReportsWarmupPayload{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []reports.GroupBy{reports.GroupByCategory, reports.GroupByFolder}, rec.calls["org-1"])

	all, err := NewReportsWarmupTask(ReportsWarmupPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), all))
}

type stubCleaner struct{ olderThan time.Duration }

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 2, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, IdempotencyCleanupHandler(cleaner, nil)(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"failed":0}`, rec.Body.String())
}

type stubEnqueuer struct {
	orgs []string
	err  error
}

func (s *stubEnqueuer) EnqueueReplenishmentScan(ctx context.Context, organizationID string) (*asynq.TaskInfo, error) {
	s.orgs = append(s.orgs, organizationID)
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestManualScanEnqueuesForTenant(t *testing.T) {
	enq := &stubEnqueuer{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if org := req.Header.Get("X-Organization-ID"); org != "" {
				req = req.WithContext(shared.ContextWithOrganization(req.Context(), org))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(nil, enq, nil).MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/replenishment/scan", nil)
	req.Header.Set("X-Organization-ID", "org-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"queued":true,"task_id":"task-1"}`, rec.Body.String())
	require.Equal(t, []string{"org-1"}, enq.orgs)

	enq.err = asynq.ErrDuplicateTask
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"queued":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/replenishment/scan", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
