package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
	"github.com/stockroom/stockroom/internal/replenishment"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotLoader refreshes an organization's snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context, organizationID string) (snapshot.Snapshot, error)
}

// ReplenishmentRunner runs one auto-reorder evaluation.
type ReplenishmentRunner interface {
	Run(ctx context.Context, in replenishment.RunInput) (replenishment.RunResult, error)
}

// ReplenishmentScanJob reloads snapshots and runs auto-reorder on a schedule.
type ReplenishmentScanJob struct {
	Loader        SnapshotLoader
	Runner        ReplenishmentRunner
	Organizations store.OrganizationLister
	Enabled       func(organizationID string) bool
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// Handle processes TaskReplenishmentScan tasks.
func (j *ReplenishmentScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil || j.Loader == nil {
		return errors.New("replenishment scan: handler not configured")
	}
	var payload ReplenishmentScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReplenishmentScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	orgs, err := scope(ctx, payload.OrganizationID, j.Organizations)
	if err != nil {
		resultErr = err
		logger.Error("load scan scopes", slog.Any("error", err))
		return resultErr
	}

	start := time.Now()
	placed := 0
	var errs []error
	for _, org := range orgs {
		n, err := j.scan(ctx, org)
		placed += n
		if err != nil {
			logger.Error("scan organization", slog.String("organization_id", org), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	j.metrics().AddProcessed(TaskReplenishmentScan, placed)
	logger.Info("completed replenishment scan",
		slog.Int("organizations", len(orgs)),
		slog.Int("orders", placed),
		slog.Duration("duration", time.Since(start)))
	resultErr = errors.Join(errs...)
	return resultErr
}

func (j *ReplenishmentScanJob) scan(ctx context.Context, org string) (int, error) {
	scopeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := j.Loader.Load(scopeCtx, org); err != nil {
		return 0, fmt.Errorf("%s: %w", org, err)
	}
	enabled := j.Enabled != nil && j.Enabled(org)
	result, err := j.Runner.Run(scopeCtx, replenishment.RunInput{OrganizationID: org, Enabled: enabled})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", org, err)
	}
	if len(result.Failures) > 0 {
		j.logger().Warn("replenishment failures",
			slog.String("organization_id", org),
			slog.Int("failures", len(result.Failures)),
			slog.Any("error", result.Err()))
	}
	return len(result.Orders), nil
}

func (j *ReplenishmentScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReplenishmentScan))
	}
	return slog.Default().With(slog.String("job", TaskReplenishmentScan))
}

func (j *ReplenishmentScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// scope returns the single requested organization or every listed one.
func scope(ctx context.Context, organizationID string, lister store.OrganizationLister) ([]string, error) {
	if organizationID != "" {
		return []string{organizationID}, nil
	}
	if lister == nil {
		return nil, errors.New("jobs: organization lister not configured")
	}
	return lister.Organizations(ctx)
}
