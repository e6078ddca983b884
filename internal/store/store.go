// Package store exposes the tenant-scoped data store the engines read from
// and write through. Every call is bound to a single organization.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Table names a tenant-scoped collection.
type Table string

const (
	TableItems         Table = "inventory_items"
	TableOrders        Table = "orders"
	TableMovements     Table = "stock_movements"
	TableFolders       Table = "folders"
	TableVendors       Table = "vendors"
	TableCustomers     Table = "customers"
	TableProfiles      Table = "profiles"
	TableDiscrepancies Table = "discrepancy_logs"
	TableActivities    Table = "activity_events"
	TableNotifications Table = "notifications"
)

// OrganizationColumn is the tenant boundary present on every table.
const OrganizationColumn = "organization_id"

// Record is a column/value map used for writes.
type Record map[string]any

// Range restricts a timestamp column to [From, To]. Zero bounds are open.
type Range struct {
	Column string
	From   time.Time
	To     time.Time
}

// Query filters rows inside an organization. Eq values that are slices are
// matched with IN.
type Query struct {
	Eq      map[string]any
	Range   *Range
	OrderBy []string
	Limit   uint64
}

// Where is a shorthand for an equality-only query.
func Where(column string, value any) Query {
	return Query{Eq: map[string]any{column: value}}
}

// Store is the tenant-scoped CRUD and aggregate contract.
type Store interface {
	// Select loads matching rows into dest, a pointer to a slice of structs.
	Select(ctx context.Context, organizationID string, table Table, q Query, dest any) error
	Count(ctx context.Context, organizationID string, table Table, q Query) (int64, error)
	Insert(ctx context.Context, organizationID string, table Table, row Record) error
	Update(ctx context.Context, organizationID string, table Table, values Record, q Query) (int64, error)
	Delete(ctx context.Context, organizationID string, table Table, q Query) (int64, error)
	// WithTx runs fn against a Store whose writes commit together or not at
	// all. Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// OrganizationLister enumerates tenants with auto-reorder enabled items.
type OrganizationLister interface {
	Organizations(ctx context.Context) ([]string, error)
}

// ChangeType enumerates realtime event kinds.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeResync asks subscribers to reload the organization because changes
// may have been missed.
const ChangeResync ChangeType = "resync"

// Change is a realtime push for one row. Row may be omitted, in which case
// ID names the row and subscribers read it back from the store.
type Change struct {
	Table          Table           `json:"table"`
	Type           ChangeType      `json:"type"`
	OrganizationID string          `json:"organization_id"`
	ID             string          `json:"id,omitempty"`
	Row            json.RawMessage `json:"row,omitempty"`
}

// Decode unmarshals the changed row.
func (c Change) Decode(dest any) error {
	if len(c.Row) == 0 {
		return ErrEmptyRow
	}
	return json.Unmarshal(c.Row, dest)
}

// Feed delivers realtime changes for one organization until ctx ends.
type Feed interface {
	Subscribe(ctx context.Context, organizationID string) (<-chan Change, error)
}

var (
	// ErrOrganizationRequired occurs when a call is not tenant scoped.
	ErrOrganizationRequired = errors.New("store: organization required")
	// ErrUnknownTable occurs for tables outside the schema.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrEmptyRow indicates a change without payload.
	ErrEmptyRow = errors.New("store: change has no row")
)

var knownTables = map[Table]struct{}{
	TableItems: {}, TableOrders: {}, TableMovements: {}, TableFolders: {},
	TableVendors: {}, TableCustomers: {}, TableProfiles: {},
	TableDiscrepancies: {}, TableActivities: {}, TableNotifications: {},
}

func checkScope(organizationID string, table Table) error {
	if organizationID == "" {
		return ErrOrganizationRequired
	}
	if _, ok := knownTables[table]; !ok {
		return ErrUnknownTable
	}
	return nil
}
