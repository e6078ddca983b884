package replenishment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseMarkers(t *testing.T, s MarkerStore) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Reserve(ctx, org, "A", "r-1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Reserve(ctx, org, "A", "r-2")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, org, []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, map[string]Marker{"A": Requested("r-1")}, got)

	require.NoError(t, s.Release(ctx, org, "A", "r-2"))
	got, err = s.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Equal(t, Requested("r-1"), got["A"])

	require.NoError(t, s.Release(ctx, org, "A", "r-1"))
	got, err = s.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Empty(t, got)

	ok, err = s.Reserve(ctx, org, "A", "r-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Fulfill(ctx, org, "A"))
	got, err = s.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Equal(t, Fulfilled(), got["A"])

	ok, err = s.Reserve(ctx, org, "A", "r-4")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Clear(ctx, org, "A"))
	got, err = s.Get(ctx, org, []string{"A"})
	require.NoError(t, err)
	require.Empty(t, got)

	ok, err = s.Reserve(ctx, "org-2", "A", "r-5")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisMarkerStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisMarkerStore(client, time.Hour)
	exerciseMarkers(t, s)

	ok, err := s.Reserve(context.Background(), org, "B", "r-1")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Hour)
	ok, err = s.Reserve(context.Background(), org, "B", "r-2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryMarkerStore(t *testing.T) {
	s := NewMemoryMarkerStore(time.Hour)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	exerciseMarkers(t, s)

	ok, err := s.Reserve(context.Background(), org, "B", "r-1")
	require.NoError(t, err)
	require.True(t, ok)
	now = now.Add(2 * time.Hour)
	ok, err = s.Reserve(context.Background(), org, "B", "r-2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNilRedisMarkerStore(t *testing.T) {
	var s *RedisMarkerStore
	_, err := s.Get(context.Background(), org, []string{"A"})
	require.ErrorIs(t, err, ErrMarkersUnavailable)
}
