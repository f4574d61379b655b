// Package models defines the core data types shared across Ember.
package models

import "fmt"

// PeerKind distinguishes the two conversation namespaces.
type PeerKind string

const (
	// PeerKindUser is a direct conversation with another user.
	PeerKindUser PeerKind = "user"

	// PeerKindChat is a group thread.
	PeerKindChat PeerKind = "chat"
)

// Peer identifies one conversation. Message ids are scoped to a peer.
type Peer struct {
	Kind PeerKind `json:"kind"`
	ID   int64    `json:"id"`
}

// UserPeer returns the peer for a direct conversation with userID.
func UserPeer(userID int64) Peer {
	return Peer{Kind: PeerKindUser, ID: userID}
}

// ChatPeer returns the peer for a group thread.
func ChatPeer(chatID int64) Peer {
	return Peer{Kind: PeerKindChat, ID: chatID}
}

// String renders the peer as "kind:id", e.g. "user:42".
func (p Peer) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// IsZero reports whether the peer is unset.
func (p Peer) IsZero() bool {
	return p.Kind == "" && p.ID == 0
}
