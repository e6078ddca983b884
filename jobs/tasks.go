package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReplenishmentScan evaluates auto-reorder for one or all organizations.
	TaskReplenishmentScan = "replenishment:scan"
	// TaskReportsWarmup pre-computes default report views.
	TaskReportsWarmup = "reports:warmup"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReplenishmentScanPayload scopes a scan. An empty organization scans every
// organization with auto-reorder items.
type ReplenishmentScanPayload struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

// NewReplenishmentScanTask constructs the scan task.
func NewReplenishmentScanTask(payload ReplenishmentScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplenishmentScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// ReportsWarmupPayload scopes a warmup like ReplenishmentScanPayload.
type ReportsWarmupPayload struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

// NewReportsWarmupTask constructs the warmup task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the retention.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
