// ABOUTME: Shared extract-stage filtering for source adapters
// ABOUTME: Window, dedup, ordering, and batch-cap application
package sources

import (
	"sort"

	"github.com/harperreed/commsync/models"
)

// filterAndCap applies the shared tail of every adapter's Extract: drop
// items outside the window or already synced, order newest-first, and
// truncate to the batch cap. A cap of zero or less means uncapped.
func filterAndCap(items []models.CanonicalItem, window TimeRange, synced SyncedSet, cap int) []models.CanonicalItem {
	kept := make([]models.CanonicalItem, 0, len(items))
	for _, item := range items {
		if !window.Contains(item.Timestamp) {
			continue
		}
		if synced != nil && synced.Contains(item.ExternalID) {
			continue
		}
		kept = append(kept, item)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})

	if cap > 0 && len(kept) > cap {
		kept = kept[:cap]
	}
	return kept
}
