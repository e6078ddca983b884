package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

const org = "org-1"

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, organizationID, key, module string) error {
	if m.keys[organizationID+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[organizationID+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, organizationID, key string) error {
	delete(m.keys, organizationID+key)
	return nil
}

func seedItem(t *testing.T, st *store.Memory, picking, overstock int) Item {
	t.Helper()
	folder := "f1"
	item := Item{
		ID:                 "item-1",
		Name:               "Widget",
		SKU:                "W-1",
		Category:           "Hardware",
		FolderID:           &folder,
		PickingBinQuantity: picking,
		OverstockQuantity:  overstock,
		ReorderLevel:       5,
		UnitCost:           decimal.RequireFromString("2.50"),
	}
	item.Normalize()
	require.NoError(t, st.Insert(context.Background(), org, store.TableItems, item.Record()))
	return item
}

func TestClassify(t *testing.T) {
	cases := []struct {
		qty, level int
		want       Health
	}{
		{0, 5, HealthOut},
		{1, 5, HealthLow},
		{5, 5, HealthLow},
		{6, 5, HealthInStock},
		{0, 0, HealthOut},
		{3, 0, HealthInStock},
	}
	for _, tc := range cases {
		got := Classify(Item{Quantity: tc.qty, ReorderLevel: tc.level})
		require.Equal(t, tc.want, got, "qty=%d level=%d", tc.qty, tc.level)
	}
	require.True(t, AtOrBelowReorderLevel(Item{Quantity: 0, ReorderLevel: 5}))
	require.False(t, IsLowStock(Item{Quantity: 0, ReorderLevel: 5}))
}

func TestItemValidate(t *testing.T) {
	item := Item{PickingBinQuantity: 2, OverstockQuantity: 3, Quantity: 4}
	require.ErrorIs(t, item.Validate(), ErrQuantityMismatch)
	item.Normalize()
	require.NoError(t, item.Validate())
	item.OverstockQuantity = -1
	item.Normalize()
	require.ErrorIs(t, item.Validate(), ErrNegativeStock)
}

func TestPostMovementKeepsBinsConsistent(t *testing.T) {
	st := store.NewMemory()
	seedItem(t, st, 4, 10)
	svc := NewService(st, nil, nil)
	ctx := context.Background()

	mv, err := svc.PostMovement(ctx, org, MovementInput{ItemID: "item-1", Type: MovementRemove, Amount: 3, Bin: BinPicking, UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 14, mv.OldQuantity)
	require.Equal(t, 11, mv.NewQuantity)
	require.Equal(t, "f1", mv.Folder())

	item, err := svc.Get(ctx, org, "item-1")
	require.NoError(t, err)
	require.Equal(t, 1, item.PickingBinQuantity)
	require.Equal(t, 10, item.OverstockQuantity)
	require.Equal(t, 11, item.Quantity)
	require.NoError(t, item.Validate())

	var movements []Movement
	require.NoError(t, st.Select(ctx, org, store.TableMovements, store.Query{}, &movements))
	require.Len(t, movements, 1)
	require.NoError(t, movements[0].Validate())

	_, err = svc.PostMovement(ctx, org, MovementInput{ItemID: "item-1", Type: MovementRemove, Amount: 2, Bin: BinPicking})
	require.ErrorIs(t, err, ErrNegativeStock)

	_, err = svc.PostMovement(ctx, org, MovementInput{ItemID: "missing", Type: MovementAdd, Amount: 1})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestPostMovementIdempotency(t *testing.T) {
	st := store.NewMemory()
	seedItem(t, st, 0, 0)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(st, idem, nil)
	ctx := context.Background()

	input := MovementInput{ItemID: "item-1", Type: MovementAdd, Amount: 5, IdempotencyKey: "rcv-1"}
	_, err := svc.PostMovement(ctx, org, input)
	require.NoError(t, err)
	_, err = svc.PostMovement(ctx, org, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	st.Fail = func(op string, table store.Table) error {
		if op == "update" {
			return errors.New("boom")
		}
		return nil
	}
	_, err = svc.PostMovement(ctx, org, MovementInput{ItemID: "item-1", Type: MovementAdd, Amount: 1, IdempotencyKey: "rcv-2"})
	require.Error(t, err)
	require.False(t, idem.keys[org+"rcv-2"])
}

func TestReplenishPickingBin(t *testing.T) {
	st := store.NewMemory()
	seedItem(t, st, 1, 6)
	svc := NewService(st, nil, nil)
	ctx := context.Background()

	item, err := svc.ReplenishPickingBin(ctx, org, "item-1", 4)
	require.NoError(t, err)
	require.Equal(t, 5, item.PickingBinQuantity)
	require.Equal(t, 2, item.OverstockQuantity)
	require.Equal(t, 7, item.Quantity)

	_, err = svc.ReplenishPickingBin(ctx, org, "item-1", 3)
	require.ErrorIs(t, err, ErrNegativeStock)
}

func TestRecordDiscrepancyRaisesIssue(t *testing.T) {
	st := store.NewMemory()
	seedItem(t, st, 2, 8)
	svc := NewService(st, nil, nil)
	ctx := context.Background()

	d, err := svc.RecordDiscrepancy(ctx, org, DiscrepancyInput{ItemID: "item-1", CountedQuantity: 7, ReportedBy: "u1"})
	require.NoError(t, err)
	require.Equal(t, -3, d.Difference)
	require.Equal(t, DiscrepancyPending, d.Status)

	var events []Activity
	require.NoError(t, st.Select(ctx, org, store.TableActivities, store.Where("category", ActivityIssueReported), &events))
	require.Len(t, events, 1)

	require.NoError(t, svc.ResolveDiscrepancy(ctx, org, d.ID))
	require.ErrorIs(t, svc.ResolveDiscrepancy(ctx, org, d.ID), ErrDiscrepancyNotPending)
}

func TestPostMovementRollsBackWhenMovementNotRecorded(t *testing.T) {
	st := store.NewMemory()
	seedItem(t, st, 2, 10)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(st, idem, nil)
	ctx := context.Background()

	st.Fail = func(op string, table store.Table) error {
		if op == "insert" && table == store.TableMovements {
			return errors.New("boom")
		}
		return nil
	}
	input := MovementInput{ItemID: "item-1", Type: MovementAdd, Amount: 5, IdempotencyKey: "k1"}
	_, err := svc.PostMovement(ctx, org, input)
	require.Error(t, err)

	item, err := svc.Get(ctx, org, "item-1")
	require.NoError(t, err)
	require.Equal(t, 12, item.Quantity)
	require.Equal(t, 10, item.OverstockQuantity)

	st.Fail = nil
	mv, err := svc.PostMovement(ctx, org, input)
	require.NoError(t, err)
	require.Equal(t, 17, mv.NewQuantity)

	item, err = svc.Get(ctx, org, "item-1")
	require.NoError(t, err)
	require.Equal(t, 17, item.Quantity)
	n, err := st.Count(ctx, org, store.TableMovements, store.Query{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
