package models

// UpdateKind categorizes message mutations broadcast on the update bus.
type UpdateKind string

const (
	// UpdateKindAdd carries newly arrived messages.
	UpdateKindAdd UpdateKind = "message.add"

	// UpdateKindUpdate carries an in-place change to one message
	// (edit text, delivery status).
	UpdateKindUpdate UpdateKind = "message.update"

	// UpdateKindDelete carries the per-conversation ids of removed messages.
	UpdateKindDelete UpdateKind = "message.delete"

	// UpdateKindReload signals that the conversation's local history changed
	// wholesale and windows should refresh.
	UpdateKindReload UpdateKind = "message.reload"
)

// Update is one mutation event on the update bus. Exactly the fields for its
// Kind are set; the rest are zero.
type Update struct {
	Kind UpdateKind `json:"kind"`

	// Peer is the conversation the mutation applies to.
	Peer Peer `json:"peer"`

	// Messages is set for UpdateKindAdd.
	Messages []Message `json:"messages,omitempty"`

	// Message is set for UpdateKindUpdate.
	Message *Message `json:"message,omitempty"`

	// MessageIDs is set for UpdateKindDelete (per-conversation ids).
	MessageIDs []int64 `json:"message_ids,omitempty"`

	// Animated hints the UI to animate the resulting change.
	Animated bool `json:"animated,omitempty"`
}
