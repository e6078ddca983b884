package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/store"
)

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	item := inventory.Item{ID: "A", Name: "Widget", PickingBinQuantity: 2, ReorderLevel: 5, UnitCost: decimal.NewFromInt(3)}
	item.Normalize()
	require.NoError(t, st.Insert(ctx, "org-1", store.TableItems, item.Record()))
	require.NoError(t, st.Insert(ctx, "org-1", store.TableVendors, store.Record{"id": "V1", "name": "Parts Co"}))
	require.NoError(t, st.Insert(ctx, "org-1", store.TableProfiles, store.Record{"id": "u1", "full_name": "Dana", "role": "admin"}))
	require.NoError(t, st.Insert(ctx, "org-2", store.TableItems, store.Record{"id": "Z", "quantity": 1}))
	return st
}

func TestLoadPublishesCompleteSnapshot(t *testing.T) {
	st := seeded(t)
	l := NewLoader(st, nil)
	require.False(t, l.Ready("org-1"))

	snap, err := l.Snapshot(context.Background(), "org-1")
	require.NoError(t, err)
	require.True(t, l.Ready("org-1"))
	require.EqualValues(t, 1, snap.Version)
	require.Len(t, snap.Items, 1)
	require.Equal(t, "A", snap.Items[0].ID)
	require.Equal(t, 2, snap.Items[0].Quantity)
	require.Len(t, snap.Vendors, 1)
	require.True(t, snap.HasReferenceData())
	require.Equal(t, "Dana", snap.Resolver(nil).UserName("u1"))
}

func TestLoadFailureKeepsNotReady(t *testing.T) {
	st := seeded(t)
	st.Fail = func(op string, table store.Table) error {
		if table == store.TableMovements {
			return errors.New("timeout")
		}
		return nil
	}
	l := NewLoader(st, nil)
	_, err := l.Load(context.Background(), "org-1")
	require.ErrorIs(t, err, ErrFetch)
	require.False(t, l.Ready("org-1"))
}

func TestApplyIsCopyOnWrite(t *testing.T) {
	st := seeded(t)
	l := NewLoader(st, nil)
	var published atomic.Int32
	l.OnPublish(func(Snapshot) { published.Add(1) })

	first, err := l.Load(context.Background(), "org-1")
	require.NoError(t, err)

	_, err = st.Update(context.Background(), "org-1", store.TableItems, store.Record{"overstock_quantity": 10, "quantity": 12}, store.Where("id", "A"))
	require.NoError(t, err)

	var rows []inventory.Item
	require.NoError(t, st.Select(context.Background(), "org-1", store.TableItems, store.Query{}, &rows))
	change := store.Change{Table: store.TableItems, Type: store.ChangeUpdate, OrganizationID: "org-1"}
	change.Row = mustJSON(t, rows[0].Record())
	require.NoError(t, l.Apply(context.Background(), change))

	second, ok := l.Current("org-1")
	require.True(t, ok)
	require.EqualValues(t, 2, second.Version)
	require.Equal(t, 12, second.Items[0].Quantity)
	require.Equal(t, 2, first.Items[0].Quantity)
	require.EqualValues(t, 2, published.Load())

	del := store.Change{Table: store.TableItems, Type: store.ChangeDelete, OrganizationID: "org-1", Row: []byte(`{"id":"A"}`)}
	require.NoError(t, l.Apply(context.Background(), del))
	third, _ := l.Current("org-1")
	require.Empty(t, third.Items)
	require.Len(t, second.Items, 1)

	require.NoError(t, l.Apply(context.Background(), store.Change{Table: store.TableItems, Type: store.ChangeInsert, OrganizationID: "org-9", Row: []byte(`{"id":"X"}`)}))
	require.False(t, l.Ready("org-9"))
}

func TestWatchAppliesFeedChanges(t *testing.T) {
	st := seeded(t)
	l := NewLoader(st, nil)
	_, err := l.Load(context.Background(), "org-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, st, "org-1") }()

	require.Eventually(t, func() bool {
		_ = st.Insert(context.Background(), "org-1", store.TableFolders, store.Record{"id": "f1", "name": "Aisle 1"})
		snap, _ := l.Current("org-1")
		return len(snap.Folders) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestFollowWatchesLazilyLoadedOrganizations(t *testing.T) {
	st := seeded(t)
	l := NewLoader(st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Follow(ctx, st)

	_, err := l.Snapshot(context.Background(), "org-2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = st.Insert(context.Background(), "org-2", store.TableVendors, store.Record{"id": "V9", "name": "Bolts Ltd"})
		snap, _ := l.Current("org-2")
		return len(snap.Vendors) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestSnapshotRefetchesAfterMaxAge(t *testing.T) {
	st := seeded(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	l := NewLoader(st, nil, WithMaxAge(time.Minute))
	l.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := l.Snapshot(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, 2, first.Items[0].Quantity)

	_, err = st.Update(ctx, "org-1", store.TableItems, store.Record{"overstock_quantity": 48, "quantity": 50}, store.Where("id", "A"))
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	cached, err := l.Snapshot(ctx, "org-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, cached.Version)

	now = now.Add(time.Minute)
	fresh, err := l.Snapshot(ctx, "org-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, fresh.Version)
	require.Equal(t, 50, fresh.Items[0].Quantity)
	require.Equal(t, now, fresh.FetchedAt)

	st.Fail = func(string, store.Table) error { return errors.New("db down") }
	now = now.Add(2 * time.Minute)
	stale, err := l.Snapshot(ctx, "org-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, stale.Version)
}

func TestResyncReloadsFollowedOrganizations(t *testing.T) {
	st := seeded(t)
	hub := store.NewHub()
	l := NewLoader(st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Follow(ctx, hub)

	_, err := l.Snapshot(ctx, "org-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("org-1") == 1 }, time.Second, 5*time.Millisecond)

	_, err = st.Update(ctx, "org-1", store.TableItems, store.Record{"overstock_quantity": 8, "quantity": 10}, store.Where("id", "A"))
	require.NoError(t, err)
	snap, _ := l.Current("org-1")
	require.Equal(t, 2, snap.Items[0].Quantity)

	hub.Resync()
	require.Eventually(t, func() bool {
		snap, _ := l.Current("org-1")
		return snap.Items[0].Quantity == 10
	}, time.Second, 5*time.Millisecond)
}

func TestApplyReadsBackChangesWithoutRow(t *testing.T) {
	st := seeded(t)
	st.OmitRows = true
	l := NewLoader(st, nil)
	ctx := context.Background()
	_, err := l.Load(ctx, "org-1")
	require.NoError(t, err)

	_, err = st.Update(ctx, "org-1", store.TableItems, store.Record{"overstock_quantity": 3, "quantity": 5}, store.Where("id", "A"))
	require.NoError(t, err)
	require.NoError(t, l.Apply(ctx, store.Change{Table: store.TableItems, Type: store.ChangeUpdate, OrganizationID: "org-1", ID: "A"}))
	snap, _ := l.Current("org-1")
	require.Equal(t, 5, snap.Items[0].Quantity)

	_, err = st.Delete(ctx, "org-1", store.TableItems, store.Where("id", "A"))
	require.NoError(t, err)
	require.NoError(t, l.Apply(ctx, store.Change{Table: store.TableItems, Type: store.ChangeUpdate, OrganizationID: "org-1", ID: "A"}))
	snap, _ = l.Current("org-1")
	require.Empty(t, snap.Items)

	require.NoError(t, l.Apply(ctx, store.Change{Table: store.TableVendors, Type: store.ChangeDelete, OrganizationID: "org-1", ID: "V1"}))
	snap, _ = l.Current("org-1")
	require.Empty(t, snap.Vendors)
}
