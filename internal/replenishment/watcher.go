package replenishment

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stockroom/stockroom/internal/snapshot"
)

// Watcher runs the Runner whenever a snapshot is published. Publishes that
// arrive while a run for the same organization is in flight collapse into a
// single follow-up run.
type Watcher struct {
	ctx     context.Context
	runner  *Runner
	enabled func(organizationID string) bool
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]bool
	pending map[string]bool
	wg      sync.WaitGroup
}

// NewWatcher constructs a Watcher. Runs stop when ctx ends.
func NewWatcher(ctx context.Context, runner *Runner, enabled func(organizationID string) bool, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		ctx:     ctx,
		runner:  runner,
		enabled: enabled,
		logger:  logger.With(slog.String("component", "replenishment_watcher")),
		running: make(map[string]bool),
		pending: make(map[string]bool),
	}
}

// SnapshotPublished is a snapshot.Listener.
func (w *Watcher) SnapshotPublished(snap snapshot.Snapshot) {
	org := snap.OrganizationID
	if org == "" || w.ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	if w.running[org] {
		w.pending[org] = true
		w.mu.Unlock()
		return
	}
	w.running[org] = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.loop(org)
}

// Wait blocks until in-flight runs finish.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) loop(org string) {
	defer w.wg.Done()
	for {
		w.runOnce(org)

		w.mu.Lock()
		if !w.pending[org] || w.ctx.Err() != nil {
			delete(w.running, org)
			delete(w.pending, org)
			w.mu.Unlock()
			return
		}
		delete(w.pending, org)
		w.mu.Unlock()
	}
}

func (w *Watcher) runOnce(org string) {
	enabled := w.enabled != nil && w.enabled(org)
	result, err := w.runner.Run(w.ctx, RunInput{OrganizationID: org, Enabled: enabled})
	if err != nil {
		w.logger.Error("replenishment run", slog.String("organization_id", org), slog.Any("error", err))
		return
	}
	if len(result.Failures) > 0 {
		w.logger.Warn("replenishment run finished with failures",
			slog.String("organization_id", org),
			slog.Int("failures", len(result.Failures)),
			slog.Any("error", result.Err()))
	}
}
