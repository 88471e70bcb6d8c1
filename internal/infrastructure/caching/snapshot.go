package caching

// SnapshotItem captures one key's pre-mutation state, including the case
// where no entry existed at all.
type SnapshotItem struct {
	Entry   Entry
	Existed bool
}

// Snapshot captures the current state of the given keys in one pass.
// Returned entries are copies; values remain immutable by the store's
// ownership rule, so rollback restores them byte-for-byte.
func (s *Store) Snapshot(keys []Key) map[string]SnapshotItem {
	snap := make(map[string]SnapshotItem, len(keys))

	s.mu.Lock()
	for _, key := range keys {
		canon := key.Canonical()
		if e, ok := s.entries[canon]; ok {
			snap[canon] = SnapshotItem{Entry: *e, Existed: true}
		} else {
			snap[canon] = SnapshotItem{Entry: Entry{Key: key}, Existed: false}
		}
	}
	s.mu.Unlock()

	return snap
}

// RestoreSnapshot puts every snapshotted key back to its captured state.
// Keys that had no entry at snapshot time are removed outright, which also
// cancels any fetch the rolled-back mutation may have provoked.
func (s *Store) RestoreSnapshot(snap map[string]SnapshotItem) {
	for _, item := range snap {
		if item.Existed {
			s.Restore(item.Entry)
		} else {
			s.Remove(item.Entry.Key)
		}
	}
}
