package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recorder) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Message)
	}
	return out
}

func TestStoreNotifierInsertsRow(t *testing.T) {
	st := store.NewMemory()
	n := NewStoreNotifier(st, nil)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, Notification{OrganizationID: "org-1", Message: "Reorder placed"}))
	require.ErrorIs(t, n.Notify(ctx, Notification{OrganizationID: "org-1", Message: " "}), ErrEmptyMessage)
	require.ErrorIs(t, n.Notify(ctx, Notification{Message: "x"}), store.ErrOrganizationRequired)

	var rows []Notification
	require.NoError(t, st.Select(ctx, "org-1", store.TableNotifications, store.Query{}, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, SeverityInfo, rows[0].Severity)
	require.NotEmpty(t, rows[0].ID)
	require.False(t, rows[0].CreatedAt.IsZero())
}

func TestCoalescerSummarisesBurst(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(rec, CoalescerConfig{Threshold: 2, Window: time.Minute}, nil)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Notify(ctx, Notification{OrganizationID: "org-1", Message: "order failed", Severity: SeverityError}))
	}
	require.Len(t, rec.messages(), 2)

	// other tenants are counted separately
	require.NoError(t, c.Notify(ctx, Notification{OrganizationID: "org-2", Message: "order failed", Severity: SeverityError}))
	require.Len(t, rec.messages(), 3)

	require.NoError(t, c.Notify(ctx, Notification{OrganizationID: "org-1", Message: "Reorder placed", Severity: SeverityInfo}))
	require.Equal(t, []string{"order failed", "order failed", "order failed", "3 more failures", "Reorder placed"}, rec.messages())
}

func TestCoalescerFlushesClosedWindow(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(rec, CoalescerConfig{Threshold: 1, Window: time.Minute}, nil)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Notify(ctx, Notification{OrganizationID: "org-1", Message: "boom", Severity: SeverityError}))
	}
	c.Flush(ctx)
	require.Equal(t, []string{"boom"}, rec.messages())

	now = now.Add(time.Minute)
	c.Flush(ctx)
	require.Equal(t, []string{"boom", "2 more failures"}, rec.messages())

	// a new window lets failures through again
	require.NoError(t, c.Notify(ctx, Notification{OrganizationID: "org-1", Message: "boom", Severity: SeverityError}))
	require.Equal(t, []string{"boom", "2 more failures", "boom"}, rec.messages())
}
