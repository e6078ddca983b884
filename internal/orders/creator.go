package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/store"
)

// Draft is the request to create an order.
type Draft struct {
	OrganizationID  string      `json:"organization_id" validate:"required"`
	Type            Type        `json:"type" validate:"required,oneof=Sales Purchase"`
	CounterpartName string      `json:"counterpart_name" validate:"required"`
	CustomerID      *string     `json:"customer_id,omitempty"`
	VendorID        *string     `json:"vendor_id,omitempty"`
	DueDate         shared.Date `json:"due_date"`
	Items           []POItem    `json:"items" validate:"required,min=1,dive"`
	Notes           string      `json:"notes,omitempty"`
	// DedupeKey, when set, makes creation idempotent per organization.
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// Creator creates orders.
type Creator interface {
	CreateOrder(ctx context.Context, draft Draft) (Order, error)
}

// IdempotencyPort records dedupe keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, organizationID, key, module string) error
	Delete(ctx context.Context, organizationID, key string) error
}

// Service persists orders through the store.
type Service struct {
	store       store.Store
	idempotency IdempotencyPort
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. idem may be nil.
func NewService(st store.Store, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		idempotency: idem,
		validate:    validator.New(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the draft, derives totals from its lines and inserts
// a New Order.
func (s *Service) CreateOrder(ctx context.Context, draft Draft) (Order, error) {
	if err := s.validate.Struct(draft); err != nil {
		return Order{}, fmt.Errorf("orders: invalid draft: %w", err)
	}
	for _, it := range draft.Items {
		if it.UnitPrice.IsNegative() {
			return Order{}, errors.New("orders: unit price must not be negative")
		}
	}
	if draft.DedupeKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, draft.OrganizationID, draft.DedupeKey, shared.ModuleOrders); err != nil {
			return Order{}, err
		}
	}

	now := s.now()
	id := uuid.New()
	order := Order{
		ID:              id.String(),
		OrganizationID:  draft.OrganizationID,
		OrderNumber:     orderNumber(draft.Type, now, id),
		Type:            draft.Type,
		CounterpartName: strings.TrimSpace(draft.CounterpartName),
		CustomerID:      draft.CustomerID,
		VendorID:        draft.VendorID,
		Status:          StatusNew,
		DueDate:         draft.DueDate,
		Items:           draft.Items,
		Notes:           draft.Notes,
	}
	order.OrderDate = shared.NewDate(now)
	order.TotalAmount = order.LineTotal()
	for _, it := range draft.Items {
		order.ItemCount += it.Quantity
	}

	if err := s.store.Insert(ctx, draft.OrganizationID, store.TableOrders, order.Record()); err != nil {
		if draft.DedupeKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, draft.OrganizationID, draft.DedupeKey)
		}
		return Order{}, fmt.Errorf("orders: insert: %w", err)
	}
	s.logger.Info("order created",
		slog.String("organization_id", order.OrganizationID),
		slog.String("order_id", order.ID),
		slog.String("type", string(order.Type)),
		slog.String("total", order.TotalAmount.StringFixed(2)))
	return order, nil
}

// UpdateStatus moves an order along the status progression.
func (s *Service) UpdateStatus(ctx context.Context, organizationID, orderID string, to Status) error {
	var found []Order
	if err := s.store.Select(ctx, organizationID, store.TableOrders, store.Where("id", orderID), &found); err != nil {
		return err
	}
	if len(found) == 0 {
		return ErrOrderNotFound
	}
	from := found[0].Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	n, err := s.store.Update(ctx, organizationID, store.TableOrders,
		store.Record{"status": string(to)},
		store.Query{Eq: map[string]any{"id": orderID, "status": string(from)}})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}
	return nil
}

func orderNumber(t Type, now time.Time, id uuid.UUID) string {
	prefix := "SO"
	if t == TypePurchase {
		prefix = "PO"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), strings.ToUpper(id.String()[:6]))
}
