package reports

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/shared"
)

// GroupBy selects the valuation bucket key.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByFolder   GroupBy = "folder"
)

const (
	defaultLimit = 20
	forecastDays = 30
)

// Filters narrows every sub-report. Item filters (Categories, FolderIDs)
// apply to inventory-derived reports; order filters apply to rollups.
type Filters struct {
	From          *time.Time      `json:"from,omitempty"`
	To            *time.Time      `json:"to,omitempty"`
	GroupBy       GroupBy         `json:"group_by,omitempty" validate:"omitempty,oneof=category folder"`
	OrderStatuses []orders.Status `json:"order_statuses,omitempty" validate:"omitempty,dive,oneof='New Order' Processing Packed Shipped 'On Hold' Problem Archived"`
	OrderType     orders.Type     `json:"order_type,omitempty" validate:"omitempty,oneof=Sales Purchase"`
	Categories    []string        `json:"categories,omitempty" validate:"omitempty,dive,required"`
	FolderIDs     []string        `json:"folder_ids,omitempty" validate:"omitempty,dive,required"`
	Limit         int             `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

// ErrInvalidFilters wraps filter validation failures.
var ErrInvalidFilters = errors.New("reports: invalid filters")

var validate = validator.New()

// Validate checks enumerations and range ordering.
func (f Filters) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilters, err)
	}
	if f.From != nil && f.To != nil && f.To.Before(shared.StartOfDay(*f.From)) {
		return fmt.Errorf("%w: to before from", ErrInvalidFilters)
	}
	return nil
}

// Range returns the date range view of From/To.
func (f Filters) Range() shared.DateRange {
	return shared.DateRange{From: f.From, To: f.To}
}

// normalized fills defaults and sorts set-like fields.
func (f Filters) normalized() Filters {
	out := f
	if out.GroupBy == "" {
		out.GroupBy = GroupByCategory
	}
	if out.Limit == 0 {
		out.Limit = defaultLimit
	}
	out.OrderStatuses = slices.Clone(f.OrderStatuses)
	slices.Sort(out.OrderStatuses)
	out.Categories = slices.Clone(f.Categories)
	slices.Sort(out.Categories)
	out.FolderIDs = slices.Clone(f.FolderIDs)
	slices.Sort(out.FolderIDs)
	return out
}

// Key is a stable digest of the normalized filters.
func (f Filters) Key() string {
	raw, _ := json.Marshal(f.normalized())
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

func (f Filters) matchesCategory(category string) bool {
	return len(f.Categories) == 0 || slices.Contains(f.Categories, category)
}

func (f Filters) matchesFolder(folderID string) bool {
	return len(f.FolderIDs) == 0 || slices.Contains(f.FolderIDs, folderID)
}

func (f Filters) matchesOrder(o orders.Order) bool {
	if f.OrderType != "" && o.Type != f.OrderType {
		return false
	}
	return len(f.OrderStatuses) == 0 || slices.Contains(f.OrderStatuses, o.Status)
}
