package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// IdempotencyPort guards client-supplied movement codes against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, organizationID, key, module string) error
	Delete(ctx context.Context, organizationID, key string) error
}

// Bin selects which side of an item a movement touches.
type Bin string

const (
	BinPicking   Bin = "picking"
	BinOverstock Bin = "overstock"
)

// MovementInput describes a stock add or remove.
type MovementInput struct {
	ItemID         string
	Type           MovementType
	Amount         int
	Bin            Bin
	Reason         string
	UserID         string
	IdempotencyKey string
}

// DiscrepancyInput describes a physical count that disagrees with stock.
type DiscrepancyInput struct {
	ItemID          string
	CountedQuantity int
	Reason          string
	ReportedBy      string
}

// Service applies stock mutations through the external store.
type Service struct {
	store       store.Store
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. idem may be nil.
func NewService(st store.Store, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, idempotency: idem, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get loads one item.
func (s *Service) Get(ctx context.Context, organizationID, itemID string) (Item, error) {
	var items []Item
	if err := s.store.Select(ctx, organizationID, store.TableItems, store.Where("id", itemID), &items); err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, ErrItemNotFound
	}
	return items[0], nil
}

// PostMovement adds or removes stock from one bin of an item and records the
// movement. Overstock is the default bin.
func (s *Service) PostMovement(ctx context.Context, organizationID string, input MovementInput) (Movement, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return Movement{}, errors.New("inventory: item required")
	}
	if input.Amount <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Type != MovementAdd && input.Type != MovementRemove {
		return Movement{}, ErrInvalidMovementType
	}
	if input.Bin == "" {
		input.Bin = BinOverstock
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, organizationID, input.IdempotencyKey, shared.ModuleInventory); err != nil {
			return Movement{}, err
		}
	}

	mv, err := s.postMovement(ctx, organizationID, input)
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, organizationID, input.IdempotencyKey)
		}
		return Movement{}, err
	}
	return mv, nil
}

func (s *Service) postMovement(ctx context.Context, organizationID string, input MovementInput) (Movement, error) {
	item, err := s.Get(ctx, organizationID, input.ItemID)
	if err != nil {
		return Movement{}, err
	}
	before := item

	delta := input.Amount
	if input.Type == MovementRemove {
		delta = -delta
	}
	switch input.Bin {
	case BinPicking:
		item.PickingBinQuantity += delta
	case BinOverstock:
		item.OverstockQuantity += delta
	default:
		return Movement{}, fmt.Errorf("inventory: unknown bin %q", input.Bin)
	}
	item.Normalize()
	now := s.now()
	item.LastUpdated.Time, item.LastUpdated.Valid = now, true
	if err := item.Validate(); err != nil {
		return Movement{}, err
	}

	mv := Movement{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		ItemID:         item.ID,
		FolderID:       item.FolderID,
		Type:           input.Type,
		Amount:         input.Amount,
		OldQuantity:    before.Quantity,
		NewQuantity:    item.Quantity,
		Reason:         input.Reason,
		UserID:         input.UserID,
	}
	mv.Timestamp.Time, mv.Timestamp.Valid = now, true
	if err := mv.Validate(); err != nil {
		return Movement{}, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := compareAndSwap(ctx, tx, organizationID, before, item); err != nil {
			return err
		}
		if err := tx.Insert(ctx, organizationID, store.TableMovements, mv.Record()); err != nil {
			return fmt.Errorf("inventory: record movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.logger.Debug("movement posted",
		slog.String("organization_id", organizationID),
		slog.String("item_id", item.ID),
		slog.String("type", string(mv.Type)),
		slog.Int("amount", mv.Amount),
		slog.Int("new_quantity", mv.NewQuantity))
	return mv, nil
}

// ReplenishPickingBin moves amount units from overstock into the picking
// bin. Total quantity does not change.
func (s *Service) ReplenishPickingBin(ctx context.Context, organizationID, itemID string, amount int) (Item, error) {
	if amount <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.Get(ctx, organizationID, itemID)
	if err != nil {
		return Item{}, err
	}
	before := item
	if item.OverstockQuantity < amount {
		return Item{}, ErrNegativeStock
	}
	item.OverstockQuantity -= amount
	item.PickingBinQuantity += amount
	item.Normalize()
	item.LastUpdated.Time, item.LastUpdated.Valid = s.now(), true
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	if err := compareAndSwap(ctx, s.store, organizationID, before, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// RecordDiscrepancy logs a counted quantity that differs from stock and
// raises an "Issue Reported" activity entry.
func (s *Service) RecordDiscrepancy(ctx context.Context, organizationID string, input DiscrepancyInput) (Discrepancy, error) {
	if input.CountedQuantity < 0 {
		return Discrepancy{}, ErrInvalidQuantity
	}
	item, err := s.Get(ctx, organizationID, input.ItemID)
	if err != nil {
		return Discrepancy{}, err
	}
	now := s.now()
	d := Discrepancy{
		ID:               uuid.NewString(),
		OrganizationID:   organizationID,
		ItemID:           item.ID,
		FolderID:         item.FolderID,
		OriginalQuantity: item.Quantity,
		CountedQuantity:  input.CountedQuantity,
		Difference:       input.CountedQuantity - item.Quantity,
		Status:           DiscrepancyPending,
		Reason:           input.Reason,
		ReportedBy:       input.ReportedBy,
	}
	d.CreatedAt.Time, d.CreatedAt.Valid = now, true
	if err := s.store.Insert(ctx, organizationID, store.TableDiscrepancies, d.Record()); err != nil {
		return Discrepancy{}, fmt.Errorf("inventory: record discrepancy: %w", err)
	}

	itemID := item.ID
	act := Activity{
		ID:          uuid.NewString(),
		Category:    ActivityIssueReported,
		ItemID:      &itemID,
		UserID:      input.ReportedBy,
		Description: fmt.Sprintf("Count for %s differs by %d", item.Name, d.Difference),
	}
	act.Timestamp.Time, act.Timestamp.Valid = now, true
	if err := s.store.Insert(ctx, organizationID, store.TableActivities, act.Record()); err != nil {
		s.logger.Warn("activity not recorded", slog.String("discrepancy_id", d.ID), slog.Any("error", err))
	}
	return d, nil
}

// ResolveDiscrepancy marks a pending discrepancy resolved.
func (s *Service) ResolveDiscrepancy(ctx context.Context, organizationID, discrepancyID string) error {
	n, err := s.store.Update(ctx, organizationID, store.TableDiscrepancies,
		store.Record{"status": string(DiscrepancyResolved)},
		store.Query{Eq: map[string]any{"id": discrepancyID, "status": string(DiscrepancyPending)}})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDiscrepancyNotPending
	}
	return nil
}

// compareAndSwap writes the new bin quantities only if the stored row still
// carries the quantities that were read.
func compareAndSwap(ctx context.Context, st store.Store, organizationID string, before, after Item) error {
	n, err := st.Update(ctx, organizationID, store.TableItems, after.QuantityRecord(), store.Query{Eq: map[string]any{
		"id":                   before.ID,
		"picking_bin_quantity": before.PickingBinQuantity,
		"overstock_quantity":   before.OverstockQuantity,
	}})
	if err != nil {
		return fmt.Errorf("inventory: update item: %w", err)
	}
	if n == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// ErrDiscrepancyNotPending indicates the discrepancy is missing or already resolved.
var ErrDiscrepancyNotPending = errors.New("inventory: discrepancy not pending")
