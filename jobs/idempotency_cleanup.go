package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyCleaner removes idempotency keys older than a retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupHandler builds the TaskIdempotencyCleanup handler.
func IdempotencyCleanupHandler(cleaner KeyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OlderThan <= 0 {
			payload.OlderThan = 7 * 24 * time.Hour
		}
		if cleaner == nil {
			return nil
		}
		pruned, err := cleaner.Cleanup(ctx, payload.OlderThan)
		err = defaultJobMetrics.Track(TaskIdempotencyCleanup).End(err)
		if logger != nil {
			if err != nil {
				logger.Error("idempotency cleanup", slog.Any("error", err))
			} else {
				logger.Info("pruned idempotency keys",
					slog.Int64("pruned", pruned),
					slog.Duration("older_than", payload.OlderThan),
					slog.String("job", TaskIdempotencyCleanup))
			}
		}
		return err
	}
}
