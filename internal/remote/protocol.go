// Package remote implements the websocket client for the message API and the
// gateway that lands server pushes in the local store before broadcasting
// them on the update bus.
package remote

import (
	"fmt"

	"github.com/emberchat/ember/internal/models"
)

// Frame type tags on the wire.
const (
	frameConnectionInit  = "connectionInit"
	frameConnectionOpen  = "connectionOpen"
	frameConnectionError = "connectionError"
	frameGetHistory      = "getChatHistory"
	frameRPCResult       = "rpcResult"
	frameRPCError        = "rpcError"
	frameUpdate          = "update"
)

// clientMessage is one frame from client to server. Frames carry a unique id
// for RPC correlation and a monotonic per-connection seq.
type clientMessage struct {
	ID   uint64 `json:"id"`
	Seq  uint32 `json:"seq"`
	Type string `json:"type"`

	// connectionInit
	Token         string `json:"token,omitempty"`
	ClientVersion string `json:"client_version,omitempty"`

	// getChatHistory
	Peer     *models.Peer `json:"peer,omitempty"`
	CursorID int64        `json:"cursor_id,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}

// serverMessage is one frame from server to client.
type serverMessage struct {
	Type  string `json:"type"`
	ReqID uint64 `json:"req_id,omitempty"`

	// rpcError
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// rpcResult for getChatHistory
	Messages []models.Message `json:"messages,omitempty"`
	HasMore  bool             `json:"has_more,omitempty"`

	// update
	Update *ServerUpdate `json:"update,omitempty"`
}

// Server push kinds.
const (
	PushNewMessage         = "newMessage"
	PushEditMessage        = "editMessage"
	PushDeleteMessages     = "deleteMessages"
	PushHistoryInvalidated = "historyInvalidated"
)

// ServerUpdate is one push from the server: a mutation that has not yet been
// applied to the local store.
type ServerUpdate struct {
	Kind string      `json:"kind"`
	Peer models.Peer `json:"peer"`

	// newMessage
	Messages []models.Message `json:"messages,omitempty"`

	// editMessage
	Message *models.Message `json:"message,omitempty"`

	// deleteMessages
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// FetchResult is one page of remote history.
type FetchResult struct {
	Messages []models.Message
	HasMore  bool
}

// RPCError is a typed error returned by the server for one call.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
