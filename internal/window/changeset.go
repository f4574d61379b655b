package window

import "github.com/emberchat/ember/internal/models"

// ChangeKind categorizes UI-facing change-sets.
type ChangeKind string

const (
	ChangeKindAdded   ChangeKind = "added"
	ChangeKindUpdated ChangeKind = "updated"
	ChangeKindDeleted ChangeKind = "deleted"
	ChangeKindReload  ChangeKind = "reload"
)

// Change is the minimal diff handed to the UI after a window mutation.
// Indices are presentation-order row indices: post-insert positions for
// Added/Updated, pre-removal positions for Deleted.
type Change struct {
	Kind ChangeKind

	// Messages is set for Added and Updated.
	Messages []models.Message

	// Indices is set for Added, Updated and Deleted.
	Indices []int

	// GlobalIDs identifies removed rows for Deleted. Zero entries mark
	// messages that were never committed by the server.
	GlobalIDs []int64

	Animated bool
}

// Observer receives change-sets. Exactly one observer is registered per
// controller; callbacks run on the goroutine that applied the mutation.
type Observer func(change Change)
