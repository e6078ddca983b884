package replenishment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/store"
)

func TestWatcherRunsOnPublish(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(ctx, h.runner, func(org string) bool { return org == "org-1" }, nil)
	h.loader.OnPublish(w.SnapshotPublished)

	item := reorderItem("A", 2, 0, "V1")
	require.NoError(t, h.st.Insert(ctx, org, store.TableItems, item.Record()))
	_, err := h.loader.Load(ctx, org)
	require.NoError(t, err)
	w.Wait()

	_, err = h.loader.Load(ctx, org)
	require.NoError(t, err)
	w.Wait()

	require.Len(t, h.orders(t), 1)
}
