package mixer

import "fmt"

// Reconcile merges a fresh snapshot into the previously held records and their slots.
//
// Records still present in the snapshot keep their position and their slot,
// with volume and mute taken from the snapshot. Records missing from the snapshot
// are dropped together with their slot. Snapshot entries not yet known are appended
// in snapshot order, each with a new slot. When the snapshot repeats an ID only the
// first entry counts.
//
// The inputs are not modified. records and slots must have the same length.
func Reconcile(records []StreamRecord, slots []*UiSlot, snapshot []StreamSnapshot) ([]StreamRecord, []*UiSlot) {
	if len(records) != len(slots) {
		panic(fmt.Sprintf("mixer: reconcile called with %d records but %d slots", len(records), len(slots)))
	}

	// first occurrence of each id in the snapshot
	fresh := make(map[uint32]int, len(snapshot))
	for i, entry := range snapshot {
		if _, ok := fresh[entry.ID]; !ok {
			fresh[entry.ID] = i
		}
	}

	nextRecords := make([]StreamRecord, 0, len(snapshot))
	nextSlots := make([]*UiSlot, 0, len(snapshot))
	present := make(map[uint32]struct{}, len(snapshot))

	// update or prune, in existing order
	for i, record := range records {
		idx, ok := fresh[record.ID]
		if !ok {
			continue
		}

		// a stale local list could hold the same id twice; keep the first
		if _, dup := present[record.ID]; dup {
			continue
		}

		record.VolumeLevel = snapshot[idx].VolumeLevel
		record.Muted = snapshot[idx].Muted

		nextRecords = append(nextRecords, record)
		nextSlots = append(nextSlots, slots[i])
		present[record.ID] = struct{}{}
	}

	// append newcomers, in snapshot order
	for _, entry := range snapshot {
		if _, ok := present[entry.ID]; ok {
			continue
		}

		nextRecords = append(nextRecords, newStreamRecord(entry))
		nextSlots = append(nextSlots, &UiSlot{})
		present[entry.ID] = struct{}{}
	}

	return nextRecords, nextSlots
}
