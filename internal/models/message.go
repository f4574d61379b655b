package models

import "time"

// MessageStatus tracks delivery state for outgoing messages.
type MessageStatus string

const (
	MessageStatusSending MessageStatus = "sending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// Message is one entry in a conversation.
//
// MessageID is unique within the peer and assigned by the server, or locally
// for optimistic sends before the server confirms. GlobalID is unique across
// all conversations and is zero until the server commits the message; once
// set it is the stable identity the UI keys rows on. Identity and ordering
// fields never change after commit; Text, Status and EditDate may change via
// update events.
type Message struct {
	// Peer is the conversation this message belongs to.
	Peer Peer `json:"peer"`

	// MessageID is the per-conversation sequence id.
	MessageID int64 `json:"message_id"`

	// GlobalID is the cross-conversation id, zero for uncommitted messages.
	GlobalID int64 `json:"global_id,omitempty"`

	// RandomID correlates an optimistic send with the server's ack.
	RandomID string `json:"random_id,omitempty"`

	// FromID is the sender's user id.
	FromID int64 `json:"from_id"`

	// Date is the message timestamp assigned at send time.
	Date time.Time `json:"date"`

	// Out marks messages sent by the local user.
	Out bool `json:"out,omitempty"`

	Text     string        `json:"text"`
	Status   MessageStatus `json:"status,omitempty"`
	EditDate *time.Time    `json:"edit_date,omitempty"`
}

// Committed reports whether the server has assigned a global id.
func (m *Message) Committed() bool {
	return m.GlobalID != 0
}

// Edited reports whether the message text has been edited.
func (m *Message) Edited() bool {
	return m.EditDate != nil
}
