package window

import (
	"time"

	"github.com/emberchat/ember/internal/models"
)

// MergedMessages concatenates a fetched batch onto the existing window
// contents, at the head when prepend is true. It does not sort or dedup;
// callers pre-dedup the batch and pick prepend so that the sort invariant
// holds when both inputs are individually sorted and non-overlapping.
func MergedMessages(existing, batch []models.Message, prepend bool) []models.Message {
	if len(batch) == 0 {
		return existing
	}
	merged := make([]models.Message, 0, len(existing)+len(batch))
	if prepend {
		merged = append(merged, batch...)
		merged = append(merged, existing...)
	} else {
		merged = append(merged, existing...)
		merged = append(merged, batch...)
	}
	return merged
}

// BatchDedupedAtCursor removes from batch any message already present in
// existing at exactly the cursor timestamp, preserving batch order.
//
// Pagination on an inclusive timestamp cursor re-fetches messages whose
// timestamp equals the cursor; those are the only possible duplicates, so
// the dedup is scoped to that timestamp rather than diffing the whole
// window.
func BatchDedupedAtCursor(batch, existing []models.Message, cursor time.Time) []models.Message {
	var atCursor map[int64]struct{}
	for i := range existing {
		if existing[i].Date.Equal(cursor) {
			if atCursor == nil {
				atCursor = make(map[int64]struct{})
			}
			atCursor[existing[i].MessageID] = struct{}{}
		}
	}
	if len(atCursor) == 0 {
		return batch
	}

	deduped := batch[:0:0]
	for i := range batch {
		if _, dup := atCursor[batch[i].MessageID]; dup && batch[i].Date.Equal(cursor) {
			continue
		}
		deduped = append(deduped, batch[i])
	}
	return deduped
}
