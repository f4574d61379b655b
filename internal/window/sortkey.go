// Package window maintains the ordered, deduplicated in-memory slice of a
// conversation's messages, keeps it consistent with the local store and the
// update bus, and emits minimal change-sets for the UI.
package window

import (
	"sort"

	"github.com/emberchat/ember/internal/models"
)

// CompareMessages orders two messages by sort key, ascending: timestamp,
// then global id, then per-conversation message id. Returns -1, 0 or +1.
// Uncommitted optimistic sends carry global id 0 and fall back to the later
// tie-breaks; fully equal keys are resolved by insertion offset, which the
// stable sort preserves.
func CompareMessages(a, b *models.Message) int {
	if a.Date.Before(b.Date) {
		return -1
	}
	if a.Date.After(b.Date) {
		return 1
	}
	if a.GlobalID != b.GlobalID {
		if a.GlobalID < b.GlobalID {
			return -1
		}
		return 1
	}
	if a.MessageID != b.MessageID {
		if a.MessageID < b.MessageID {
			return -1
		}
		return 1
	}
	return 0
}

// StableSort sorts a batch in presentation order: ascending sort key, or
// descending when reversed. The sort is stable, so messages with identical
// keys keep their original relative offsets.
func StableSort(batch []models.Message, reversed bool) {
	sort.SliceStable(batch, func(i, j int) bool {
		c := CompareMessages(&batch[i], &batch[j])
		if reversed {
			return c > 0
		}
		return c < 0
	})
}
