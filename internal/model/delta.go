package model

// SpotChanges computes the per-class net seat delta between a booking's
// old and new class lists: -1 for every old entry, +1 for every new one.
// A class present in both nets to zero, so swapping a booking onto the
// same class never triggers a capacity re-check and never releases a seat
// a concurrent booking could steal. Capacity is validated only on classes
// whose delta is positive; the deltas are applied all together, after
// every positive one has passed.
func SpotChanges(oldIDs, newIDs []string) map[string]int {
	changes := make(map[string]int, len(oldIDs)+len(newIDs))
	for _, id := range oldIDs {
		changes[id]--
	}
	for _, id := range newIDs {
		changes[id]++
	}
	return changes
}

// HasDuplicateIDs reports whether the same class id appears more than once.
func HasDuplicateIDs(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
