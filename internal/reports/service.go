package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
)

// ErrStale is returned by Refresh when a newer refresh for the same
// organization started before this one finished.
var ErrStale = errors.New("reports: response superseded")

// Service serves view models with caching, request collapsing and a
// stale-response guard.
type Service struct {
	source   snapshot.Source
	computer *Computer
	counter  Counter
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewService wires the report service. counter and cache may be nil.
func NewService(source snapshot.Source, computer *Computer, counter Counter, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if computer == nil {
		computer = NewComputer(logger, nil)
	}
	return &Service{
		source:      source,
		computer:    computer,
		counter:     counter,
		cache:       cache,
		logger:      logger.With(slog.String("component", "reports")),
		generations: make(map[string]uint64),
	}
}

// Report returns the view model for the organization's current snapshot.
func (s *Service) Report(ctx context.Context, organizationID string, f Filters) (*ViewModel, error) {
	snap, err := s.snapshot(ctx, organizationID, f)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, organizationID, "view", strconv.FormatUint(snap.Version, 10), f.Key())
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return s.build(ctx, snap, f)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var vm ViewModel
		hit, err := s.cache.FetchJSON(ctx, key, &vm, func(ctx context.Context) (any, error) {
			return s.build(ctx, snap, f)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Debug("report served", slog.String("organization_id", organizationID), slog.Bool("cache_hit", hit))
		return &vm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ViewModel), nil
}

// Refresh recomputes bypassing the cache and stores the result, unless a
// later Refresh for the organization has started meanwhile.
func (s *Service) Refresh(ctx context.Context, organizationID string, f Filters) (*ViewModel, error) {
	gen := s.nextGeneration(organizationID)
	snap, err := s.snapshot(ctx, organizationID, f)
	if err != nil {
		return nil, err
	}
	vm, err := s.build(ctx, snap, f)
	if err != nil {
		return nil, err
	}
	if !s.latest(organizationID, gen) {
		s.logger.Debug("discarding stale report", slog.String("organization_id", organizationID), slog.Uint64("generation", gen))
		return nil, ErrStale
	}
	if key, err := s.cache.BuildKey(ctx, organizationID, "view", strconv.FormatUint(snap.Version, 10), f.Key()); err == nil {
		if err := s.cache.Store(ctx, key, vm); err != nil {
			s.logger.Warn("report cache write failed", slog.Any("error", err))
		}
	}
	return vm, nil
}

// Invalidate drops cached view models for the organization.
func (s *Service) Invalidate(ctx context.Context, organizationID string) error {
	return s.cache.Bump(ctx, organizationID)
}

// SnapshotPublished is a snapshot.Listener that invalidates the cache.
func (s *Service) SnapshotPublished(snap snapshot.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Invalidate(ctx, snap.OrganizationID); err != nil {
		s.logger.Warn("report cache bump failed", slog.String("organization_id", snap.OrganizationID), slog.Any("error", err))
	}
}

func (s *Service) snapshot(ctx context.Context, organizationID string, f Filters) (snapshot.Snapshot, error) {
	if organizationID == "" {
		return snapshot.Snapshot{}, shared.ErrOrganizationRequired
	}
	if err := f.Validate(); err != nil {
		return snapshot.Snapshot{}, err
	}
	snap, err := s.source.Snapshot(ctx, organizationID)
	if err != nil {
		if errors.Is(err, snapshot.ErrFetch) || errors.Is(err, snapshot.ErrNotReady) {
			return snapshot.Snapshot{}, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return snapshot.Snapshot{}, err
	}
	return snap, nil
}

// build computes the view model and the remote digest concurrently.
func (s *Service) build(ctx context.Context, snap snapshot.Snapshot, f Filters) (*ViewModel, error) {
	var (
		vm     *ViewModel
		digest *Digest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vm, err = s.computer.Compute(snap, f)
		return err
	})
	if s.counter != nil {
		g.Go(func() error {
			var err error
			digest, err = ComputeDigest(gctx, s.counter, snap.OrganizationID, f.Range())
			if err != nil {
				return fmt.Errorf("reports: digest: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	vm.Digest = digest
	return vm, nil
}

func (s *Service) nextGeneration(organizationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[organizationID]++
	return s.generations[organizationID]
}

func (s *Service) latest(organizationID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[organizationID] == gen
}
