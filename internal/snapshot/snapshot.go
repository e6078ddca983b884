// Package snapshot owns the per-organization in-memory view the engines
// compute from. Snapshots are immutable once published; realtime changes
// produce a new copy with a higher version.
package snapshot

import (
	"log/slog"
	"time"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/refdata"
)

// Snapshot is one organization's collections at a point in time.
type Snapshot struct {
	OrganizationID string
	Version        uint64
	LoadedAt       time.Time // moves with every change
	FetchedAt      time.Time // last full load

	Items         []inventory.Item
	Orders        []orders.Order
	Movements     []inventory.Movement
	Discrepancies []inventory.Discrepancy
	Activity      []inventory.Activity
	Folders       []refdata.Folder
	Vendors       []refdata.Vendor
	Customers     []refdata.Customer
	Profiles      []refdata.Profile
}

// Resolver indexes the snapshot's reference data.
func (s Snapshot) Resolver(logger *slog.Logger) *refdata.Resolver {
	return refdata.NewResolver(s.OrganizationID, s.Folders, s.Vendors, s.Customers, s.Profiles, logger)
}

// HasReferenceData reports whether the organization and its profiles are known.
func (s Snapshot) HasReferenceData() bool {
	return s.OrganizationID != "" && len(s.Profiles) > 0
}
