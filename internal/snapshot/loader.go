package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/refdata"
	"github.com/stockroom/stockroom/internal/store"
)

var (
	// ErrFetch wraps a collection that failed to load.
	ErrFetch = errors.New("snapshot: fetch failed")
	// ErrNotReady indicates no snapshot has been published for the organization.
	ErrNotReady = errors.New("snapshot: not ready")
)

// Source hands out the current snapshot for an organization.
type Source interface {
	Snapshot(ctx context.Context, organizationID string) (Snapshot, error)
}

// Listener is invoked after every published snapshot.
type Listener func(Snapshot)

// Loader fetches, owns and patches snapshots.
type Loader struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	maxAge time.Duration
	reload singleflight.Group

	mu        sync.RWMutex
	current   map[string]Snapshot
	listeners []Listener
	follower  *follower
}

// Option customises a Loader.
type Option func(*Loader)

// WithMaxAge makes Snapshot refetch an organization whose last full load is
// older than d. Zero keeps snapshots until realtime changes replace them.
func WithMaxAge(d time.Duration) Option {
	return func(l *Loader) { l.maxAge = d }
}

// NewLoader constructs a Loader over st.
func NewLoader(st store.Store, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		store:   st,
		logger:  logger.With(slog.String("component", "snapshot")),
		now:     func() time.Time { return time.Now().UTC() },
		current: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnPublish registers fn for every future publish.
func (l *Loader) OnPublish(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Ready reports whether a complete snapshot exists for organizationID.
func (l *Loader) Ready(organizationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.current[organizationID]
	return ok
}

// Current returns the published snapshot without fetching.
func (l *Loader) Current(organizationID string) (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap, ok := l.current[organizationID]
	return snap, ok
}

// Snapshot implements Source: the published snapshot, loading it first if
// none exists yet or if it outlived the max age. A failed refetch of an
// expired snapshot falls back to the one already published.
func (l *Loader) Snapshot(ctx context.Context, organizationID string) (Snapshot, error) {
	snap, ok := l.Current(organizationID)
	if ok && !l.expired(snap) {
		return snap, nil
	}
	v, err, _ := l.reload.Do(organizationID, func() (any, error) {
		return l.Load(ctx, organizationID)
	})
	if err != nil {
		if ok {
			l.logger.Warn("serving expired snapshot",
				slog.String("organization_id", organizationID),
				slog.Time("fetched_at", snap.FetchedAt),
				slog.Any("error", err))
			return snap, nil
		}
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (l *Loader) expired(snap Snapshot) bool {
	return l.maxAge > 0 && l.now().Sub(snap.FetchedAt) >= l.maxAge
}

// Organizations lists organizations with a published snapshot.
func (l *Loader) Organizations() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.current))
	for org := range l.current {
		out = append(out, org)
	}
	return out
}

// Load fetches every collection concurrently and publishes the result only
// when all of them succeeded.
func (l *Loader) Load(ctx context.Context, organizationID string) (Snapshot, error) {
	if organizationID == "" {
		return Snapshot{}, store.ErrOrganizationRequired
	}
	next := Snapshot{OrganizationID: organizationID}

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(table store.Table, dest any) {
		g.Go(func() error {
			if err := l.store.Select(gctx, organizationID, table, store.Query{}, dest); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrFetch, table, err)
			}
			return nil
		})
	}
	fetch(store.TableItems, &next.Items)
	fetch(store.TableOrders, &next.Orders)
	fetch(store.TableMovements, &next.Movements)
	fetch(store.TableDiscrepancies, &next.Discrepancies)
	fetch(store.TableActivities, &next.Activity)
	fetch(store.TableFolders, &next.Folders)
	fetch(store.TableVendors, &next.Vendors)
	fetch(store.TableCustomers, &next.Customers)
	fetch(store.TableProfiles, &next.Profiles)
	if err := g.Wait(); err != nil {
		l.logger.Error("snapshot load failed", slog.String("organization_id", organizationID), slog.Any("error", err))
		return Snapshot{}, err
	}
	for i := range next.Items {
		next.Items[i].Normalize()
	}
	next.LoadedAt = l.now()
	next.FetchedAt = next.LoadedAt
	snap := l.publish(func(prev Snapshot, _ bool) (Snapshot, bool) {
		next.Version = prev.Version + 1
		return next, true
	}, organizationID)
	l.follow(organizationID)
	return snap, nil
}

// Apply patches the owned snapshot with one realtime change. Changes for
// organizations without a snapshot are ignored; they are picked up on load.
// A resync change reloads the organization, and a change without a row
// payload is completed from the store first.
func (l *Loader) Apply(ctx context.Context, change store.Change) error {
	if !l.Ready(change.OrganizationID) {
		return nil
	}
	if change.Type == store.ChangeResync {
		_, err := l.Load(ctx, change.OrganizationID)
		return err
	}
	change, err := l.hydrate(ctx, change)
	if err != nil {
		return err
	}
	var decodeErr error
	l.publish(func(prev Snapshot, ok bool) (Snapshot, bool) {
		if !ok {
			return prev, false
		}
		next := prev
		changed, err := patch(&next, change)
		if err != nil {
			decodeErr = err
			return prev, false
		}
		if !changed {
			return prev, false
		}
		next.Version = prev.Version + 1
		next.LoadedAt = l.now()
		return next, true
	}, change.OrganizationID)
	return decodeErr
}

// Watch subscribes to feed and applies changes for organizationID until ctx
// ends or the feed closes.
func (l *Loader) Watch(ctx context.Context, feed store.Feed, organizationID string) error {
	changes, err := feed.Subscribe(ctx, organizationID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if err := l.Apply(ctx, change); err != nil {
				l.logger.Warn("change not applied",
					slog.String("organization_id", change.OrganizationID),
					slog.String("table", string(change.Table)),
					slog.Any("error", err))
			}
		}
	}
}

func (l *Loader) publish(fn func(prev Snapshot, ok bool) (Snapshot, bool), organizationID string) Snapshot {
	l.mu.Lock()
	prev, ok := l.current[organizationID]
	next, changed := fn(prev, ok)
	if !changed {
		l.mu.Unlock()
		return prev
	}
	l.current[organizationID] = next
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// hydrate fills in the row of a change that only carries its id. A row that
// is gone by the time it is read back is treated as deleted.
func (l *Loader) hydrate(ctx context.Context, change store.Change) (store.Change, error) {
	if len(change.Row) > 0 || change.ID == "" {
		return change, nil
	}
	idOnly, err := json.Marshal(map[string]string{"id": change.ID})
	if err != nil {
		return change, err
	}
	if change.Type == store.ChangeDelete {
		change.Row = idOnly
		return change, nil
	}
	dest := rowsOf(change.Table)
	if dest == nil {
		return change, nil
	}
	if err := l.store.Select(ctx, change.OrganizationID, change.Table, store.Where("id", change.ID), dest); err != nil {
		return change, fmt.Errorf("%w: %s %s: %w", ErrFetch, change.Table, change.ID, err)
	}
	raw, err := json.Marshal(dest)
	if err != nil {
		return change, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return change, err
	}
	if len(rows) == 0 {
		change.Type = store.ChangeDelete
		change.Row = idOnly
		return change, nil
	}
	change.Row = rows[0]
	return change, nil
}

func rowsOf(table store.Table) any {
	switch table {
	case store.TableItems:
		return &[]inventory.Item{}
	case store.TableOrders:
		return &[]orders.Order{}
	case store.TableMovements:
		return &[]inventory.Movement{}
	case store.TableDiscrepancies:
		return &[]inventory.Discrepancy{}
	case store.TableActivities:
		return &[]inventory.Activity{}
	case store.TableFolders:
		return &[]refdata.Folder{}
	case store.TableVendors:
		return &[]refdata.Vendor{}
	case store.TableCustomers:
		return &[]refdata.Customer{}
	case store.TableProfiles:
		return &[]refdata.Profile{}
	}
	return nil
}

func patch(snap *Snapshot, change store.Change) (bool, error) {
	switch change.Table {
	case store.TableItems:
		var row inventory.Item
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		row.Normalize()
		snap.Items = apply(snap.Items, row, change.Type, func(i inventory.Item) string { return i.ID })
	case store.TableOrders:
		var row orders.Order
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Orders = apply(snap.Orders, row, change.Type, func(o orders.Order) string { return o.ID })
	case store.TableMovements:
		var row inventory.Movement
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Movements = apply(snap.Movements, row, change.Type, func(m inventory.Movement) string { return m.ID })
	case store.TableDiscrepancies:
		var row inventory.Discrepancy
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Discrepancies = apply(snap.Discrepancies, row, change.Type, func(d inventory.Discrepancy) string { return d.ID })
	case store.TableActivities:
		var row inventory.Activity
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Activity = apply(snap.Activity, row, change.Type, func(a inventory.Activity) string { return a.ID })
	case store.TableFolders:
		var row refdata.Folder
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Folders = apply(snap.Folders, row, change.Type, func(f refdata.Folder) string { return f.ID })
	case store.TableVendors:
		var row refdata.Vendor
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Vendors = apply(snap.Vendors, row, change.Type, func(v refdata.Vendor) string { return v.ID })
	case store.TableCustomers:
		var row refdata.Customer
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Customers = apply(snap.Customers, row, change.Type, func(c refdata.Customer) string { return c.ID })
	case store.TableProfiles:
		var row refdata.Profile
		if err := change.Decode(&row); err != nil {
			return false, err
		}
		snap.Profiles = apply(snap.Profiles, row, change.Type, func(p refdata.Profile) string { return p.ID })
	default:
		return false, nil
	}
	return true, nil
}

// apply returns a new slice with row inserted, replaced or removed by id.
// The input slice is never written.
func apply[T any](list []T, row T, kind store.ChangeType, id func(T) string) []T {
	key := id(row)
	out := make([]T, 0, len(list)+1)
	found := false
	for _, existing := range list {
		if id(existing) != key {
			out = append(out, existing)
			continue
		}
		found = true
		if kind != store.ChangeDelete {
			out = append(out, row)
		}
	}
	if !found && kind != store.ChangeDelete {
		out = append(out, row)
	}
	return out
}
