package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/shared"
)

// Memory is an in-process Store and Feed used by tests and local runs.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	rows map[string]map[Table][]Record
	hub  *Hub

	// Fail, when set, is consulted before every call; a non-nil error is
	// returned as the call result.
	Fail func(op string, table Table) error

	// OmitRows drops row payloads from published changes, leaving only the id,
	// the way the Postgres trigger does.
	OmitRows bool
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]map[Table][]Record), hub: NewHub()}
}

// Subscribe implements Feed.
func (m *Memory) Subscribe(ctx context.Context, organizationID string) (<-chan Change, error) {
	return m.hub.Subscribe(ctx, organizationID)
}

// Select implements Store.
func (m *Memory) Select(ctx context.Context, organizationID string, table Table, q Query, dest any) error {
	if err := m.guard("select", organizationID, table); err != nil {
		return err
	}
	m.mu.RLock()
	matched := m.match(organizationID, table, q)
	m.mu.RUnlock()

	sortRecords(matched, q.OrderBy)
	if q.Limit > 0 && uint64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}
	raw, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", table, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("store: decode %s: %w", table, err)
	}
	return nil
}

// Count implements Store.
func (m *Memory) Count(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	if err := m.guard("count", organizationID, table); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.match(organizationID, table, q))), nil
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, organizationID string, table Table, row Record) error {
	changes, err := m.insert(organizationID, table, row)
	if err != nil {
		return err
	}
	m.emit(changes)
	return nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, organizationID string, table Table, values Record, q Query) (int64, error) {
	changes, err := m.update(organizationID, table, values, q)
	if err != nil {
		return 0, err
	}
	m.emit(changes)
	return int64(len(changes)), nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	changes, err := m.delete(organizationID, table, q)
	if err != nil {
		return 0, err
	}
	m.emit(changes)
	return int64(len(changes)), nil
}

// WithTx implements Store. Transactions are serialized; a failed fn restores
// every table to its state before the call and publishes nothing.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	saved := make(map[string]map[Table][]Record, len(m.rows))
	for org, tables := range m.rows {
		saved[org] = make(map[Table][]Record, len(tables))
		for table, recs := range tables {
			cp := make([]Record, len(recs))
			for i, rec := range recs {
				cp[i] = copyRecord(rec)
			}
			saved[org][table] = cp
		}
	}
	m.mu.RUnlock()

	tx := &memoryTx{m: m}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		m.rows = saved
		m.mu.Unlock()
		return err
	}
	m.emit(tx.pending)
	return nil
}

func (m *Memory) insert(organizationID string, table Table, row Record) ([]Change, error) {
	if err := m.guard("insert", organizationID, table); err != nil {
		return nil, err
	}
	rec := make(Record, len(row)+1)
	for k, v := range row {
		rec[k] = v
	}
	rec[OrganizationColumn] = organizationID
	m.mu.Lock()
	if m.rows[organizationID] == nil {
		m.rows[organizationID] = make(map[Table][]Record)
	}
	m.rows[organizationID][table] = append(m.rows[organizationID][table], rec)
	m.mu.Unlock()
	return []Change{m.change(ChangeInsert, organizationID, table, rec)}, nil
}

func (m *Memory) update(organizationID string, table Table, values Record, q Query) ([]Change, error) {
	if err := m.guard("update", organizationID, table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var changes []Change
	for _, rec := range m.rows[organizationID][table] {
		if !matches(rec, q) {
			continue
		}
		for k, v := range values {
			if k == OrganizationColumn {
				continue
			}
			rec[k] = v
		}
		changes = append(changes, m.change(ChangeUpdate, organizationID, table, rec))
	}
	return changes, nil
}

func (m *Memory) delete(organizationID string, table Table, q Query) ([]Change, error) {
	if err := m.guard("delete", organizationID, table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[organizationID][table]
	kept := rows[:0]
	var changes []Change
	for _, rec := range rows {
		if matches(rec, q) {
			changes = append(changes, m.change(ChangeDelete, organizationID, table, rec))
			continue
		}
		kept = append(kept, rec)
	}
	if m.rows[organizationID] != nil {
		m.rows[organizationID][table] = kept
	}
	return changes, nil
}

// memoryTx buffers change events until the enclosing WithTx commits.
type memoryTx struct {
	m       *Memory
	pending []Change
}

func (tx *memoryTx) Select(ctx context.Context, organizationID string, table Table, q Query, dest any) error {
	return tx.m.Select(ctx, organizationID, table, q, dest)
}

func (tx *memoryTx) Count(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	return tx.m.Count(ctx, organizationID, table, q)
}

func (tx *memoryTx) Insert(ctx context.Context, organizationID string, table Table, row Record) error {
	changes, err := tx.m.insert(organizationID, table, row)
	tx.pending = append(tx.pending, changes...)
	return err
}

func (tx *memoryTx) Update(ctx context.Context, organizationID string, table Table, values Record, q Query) (int64, error) {
	changes, err := tx.m.update(organizationID, table, values, q)
	tx.pending = append(tx.pending, changes...)
	return int64(len(changes)), err
}

func (tx *memoryTx) Delete(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	changes, err := tx.m.delete(organizationID, table, q)
	tx.pending = append(tx.pending, changes...)
	return int64(len(changes)), err
}

func (tx *memoryTx) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

// Organizations implements OrganizationLister.
func (m *Memory) Organizations(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var orgs []string
	for org, tables := range m.rows {
		for _, rec := range tables[TableItems] {
			if enabled, _ := rec["auto_reorder_enabled"].(bool); enabled {
				orgs = append(orgs, org)
				break
			}
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}

func (m *Memory) guard(op, organizationID string, table Table) error {
	if err := checkScope(organizationID, table); err != nil {
		return err
	}
	if m.Fail != nil {
		return m.Fail(op, table)
	}
	return nil
}

func (m *Memory) match(organizationID string, table Table, q Query) []Record {
	var out []Record
	for _, rec := range m.rows[organizationID][table] {
		if matches(rec, q) {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

func (m *Memory) change(kind ChangeType, organizationID string, table Table, rec Record) Change {
	id, _ := rec["id"].(string)
	if m.OmitRows {
		return Change{Table: table, Type: kind, OrganizationID: organizationID, ID: id}
	}
	raw, _ := json.Marshal(rec)
	return Change{Table: table, Type: kind, OrganizationID: organizationID, ID: id, Row: raw}
}

func (m *Memory) emit(changes []Change) {
	for _, c := range changes {
		m.hub.Publish(c)
	}
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func matches(rec Record, q Query) bool {
	for col, want := range q.Eq {
		got, ok := rec[col]
		if !ok {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	if q.Range != nil && q.Range.Column != "" {
		t, ok := asTime(rec[q.Range.Column])
		if !ok {
			return false
		}
		if !q.Range.From.IsZero() && t.Before(q.Range.From) {
			return false
		}
		if !q.Range.To.IsZero() && t.After(q.Range.To) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	rv := reflect.ValueOf(want)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if scalarEqual(got, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return scalarEqual(got, want)
}

func scalarEqual(a, b any) bool {
	return fmt.Sprint(indirect(a)) == fmt.Sprint(indirect(b))
}

func indirect(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	case shared.Date:
		return val.Time, val.Valid
	case string:
		return shared.ParseDate(val)
	default:
		return time.Time{}, false
	}
}

func sortRecords(recs []Record, orderBy []string) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, clause := range orderBy {
			fields := strings.Fields(clause)
			if len(fields) == 0 {
				continue
			}
			desc := len(fields) > 1 && strings.EqualFold(fields[1], "desc")
			c := compareValues(recs[i][fields[0]], recs[j][fields[0]])
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if da, ok := a.(decimal.Decimal); ok {
		if db, ok := b.(decimal.Decimal); ok {
			return da.Cmp(db)
		}
	}
	if ia, ok := a.(int); ok {
		if ib, ok := b.(int); ok {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
