package shared

import "fmt"

// ReorderMarkerKey builds redis keys for per-item replenishment markers.
func ReorderMarkerKey(organizationID, itemID string) string {
	return fmt.Sprintf("replenishment:%s:item:%s", organizationID, itemID)
}
