package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// Idempotency modules. A key is unique per organization and module.
const (
	ModuleOrders    = "orders"
	ModuleInventory = "inventory"
)

const uniqueViolation = "23505"

// ErrIdempotencyConflict indicates the key was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Execer is the slice of pgxpool.Pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore records processed keys in idempotency_keys.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store over a pool or transaction.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// CheckAndInsert claims key for the organization and module. A second claim
// returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, organizationID, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	if strings.TrimSpace(organizationID) == "" {
		return ErrOrganizationRequired
	}
	if key == "" || module == "" {
		return fmt.Errorf("idempotency: key and module required")
	}
	query, args, err := psql.Insert("idempotency_keys").
		Columns("organization_id", "key", "module", "created_at").
		Values(organizationID, key, module, s.now()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("idempotency: insert: %w", err)
	}
	return nil
}

// Delete releases a key after the guarded work failed.
func (s *IdempotencyStore) Delete(ctx context.Context, organizationID, key string) error {
	if s == nil || s.db == nil || key == "" {
		return nil
	}
	query, args, err := psql.Delete("idempotency_keys").
		Where(sq.Eq{"organization_id": organizationID, "key": key}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, query, args...)
	return err
}

// Cleanup prunes keys older than olderThan and returns how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query, args, err := psql.Delete("idempotency_keys").
		Where(sq.Lt{"created_at": s.now().Add(-olderThan)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
