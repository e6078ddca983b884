package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangeTriggerPublishesIDOnly(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_stockroom.sql"))
	require.NoError(t, err)
	sql := string(raw)
	require.Contains(t, sql, "'id', rec.id")
	require.NotContains(t, sql, "row_to_json")
}
