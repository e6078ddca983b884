package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/store"
)

// ReportBuilder computes and caches a report view.
type ReportBuilder interface {
	Report(ctx context.Context, organizationID string, f reports.Filters) (*reports.ViewModel, error)
}

// ReportsWarmupJob pre-populates the report cache with the default views.
type ReportsWarmupJob struct {
	Loader        SnapshotLoader
	Reports       ReportBuilder
	Organizations store.OrganizationLister
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

var warmupViews = []reports.Filters{
	{GroupBy: reports.GroupByCategory},
	{GroupBy: reports.GroupByFolder},
}

// Handle processes TaskReportsWarmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil || j.Loader == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	orgs, err := scope(ctx, payload.OrganizationID, j.Organizations)
	if err != nil {
		resultErr = err
		logger.Error("load warmup scopes", slog.Any("error", err))
		return resultErr
	}

	warmed := 0
	for _, org := range orgs {
		if err := j.warm(ctx, org); err != nil {
			resultErr = err
			logger.Error("warm organization", slog.String("organization_id", org), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}
	j.metrics().AddProcessed(TaskReportsWarmup, warmed)
	logger.Info("completed reports warmup", slog.Int("organizations", warmed))
	return resultErr
}

func (j *ReportsWarmupJob) warm(ctx context.Context, org string) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if _, err := j.Loader.Load(scopeCtx, org); err != nil {
		return err
	}
	for _, f := range warmupViews {
		if _, err := j.Reports.Report(scopeCtx, org, f); err != nil {
			return err
		}
	}
	return nil
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
