package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberchat/ember/internal/models"
)

var upgrader = websocket.Upgrader{}

// fakeServer speaks just enough of the realtime protocol to dial against.
type fakeServer struct {
	t     *testing.T
	token string

	// serve handles frames after a successful connection init.
	serve func(conn *websocket.Conn, msg clientMessage)
}

func (s *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var init clientMessage
	if err := conn.ReadJSON(&init); err != nil {
		s.t.Errorf("read init failed: %v", err)
		return
	}
	if init.Type != frameConnectionInit {
		s.t.Errorf("first frame type = %q, want %q", init.Type, frameConnectionInit)
		return
	}
	if init.Token != s.token {
		_ = conn.WriteJSON(serverMessage{Type: frameConnectionError, Message: "bad token"})
		return
	}
	if err := conn.WriteJSON(serverMessage{Type: frameConnectionOpen}); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if s.serve != nil {
			s.serve(conn, msg)
		}
	}
}

func startFakeServer(t *testing.T, srv *fakeServer) string {
	t.Helper()
	srv.t = t
	hs := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestClientDialHandshake(t *testing.T) {
	url := startFakeServer(t, &fakeServer{token: "secret"})

	client, err := Dial(context.Background(), Config{URL: url, Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()
}

func TestClientDialRejectedToken(t *testing.T) {
	url := startFakeServer(t, &fakeServer{token: "secret"})

	_, err := Dial(context.Background(), Config{URL: url, Token: "wrong"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClientFetchMessages(t *testing.T) {
	peer := models.ChatPeer(12)
	srv := &fakeServer{
		token: "secret",
		serve: func(conn *websocket.Conn, msg clientMessage) {
			if msg.Type != frameGetHistory {
				return
			}
			if msg.Peer == nil || *msg.Peer != peer {
				_ = conn.WriteJSON(serverMessage{Type: frameRPCError, ReqID: msg.ID, Code: 400, Message: "bad peer"})
				return
			}
			_ = conn.WriteJSON(serverMessage{
				Type:  frameRPCResult,
				ReqID: msg.ID,
				Messages: []models.Message{
					{Peer: peer, MessageID: 2, GlobalID: 5002, Date: time.Unix(1700000120, 0).UTC(), Text: "two"},
					{Peer: peer, MessageID: 1, GlobalID: 5001, Date: time.Unix(1700000060, 0).UTC(), Text: "one"},
				},
				HasMore: true,
			})
		},
	}
	url := startFakeServer(t, srv)

	client, err := Dial(context.Background(), Config{URL: url, Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	res, err := client.FetchMessages(context.Background(), peer, 0, 50)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(res.Messages))
	}
	if res.Messages[0].Text != "two" || res.Messages[1].Text != "one" {
		t.Errorf("messages = %+v, want descending two, one", res.Messages)
	}
	if !res.HasMore {
		t.Error("HasMore = false, want true")
	}
}

func TestClientFetchMessagesRPCError(t *testing.T) {
	srv := &fakeServer{
		token: "secret",
		serve: func(conn *websocket.Conn, msg clientMessage) {
			_ = conn.WriteJSON(serverMessage{Type: frameRPCError, ReqID: msg.ID, Code: 420, Message: "flood wait"})
		},
	}
	url := startFakeServer(t, srv)

	client, err := Dial(context.Background(), Config{URL: url, Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	_, err = client.FetchMessages(context.Background(), models.UserPeer(1), 0, 10)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("FetchMessages() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != 420 {
		t.Errorf("code = %d, want 420", rpcErr.Code)
	}
}

func TestClientReceivesUpdates(t *testing.T) {
	peer := models.UserPeer(3)
	srv := &fakeServer{
		token: "secret",
		serve: func(conn *websocket.Conn, msg clientMessage) {
			// Any RPC triggers a push first, then the reply.
			_ = conn.WriteJSON(serverMessage{
				Type: frameUpdate,
				Update: &ServerUpdate{
					Kind: PushNewMessage,
					Peer: peer,
					Messages: []models.Message{
						{Peer: peer, MessageID: 8, Text: "pushed"},
					},
				},
			})
			_ = conn.WriteJSON(serverMessage{Type: frameRPCResult, ReqID: msg.ID})
		},
	}
	url := startFakeServer(t, srv)

	client, err := Dial(context.Background(), Config{URL: url, Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if _, err := client.FetchMessages(context.Background(), peer, 0, 1); err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}

	select {
	case upd := <-client.Updates():
		if upd.Kind != PushNewMessage {
			t.Errorf("kind = %q, want %q", upd.Kind, PushNewMessage)
		}
		if len(upd.Messages) != 1 || upd.Messages[0].Text != "pushed" {
			t.Errorf("messages = %+v, want one pushed message", upd.Messages)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestClientCloseFailsInFlightCalls(t *testing.T) {
	release := make(chan struct{})
	srv := &fakeServer{
		token: "secret",
		serve: func(conn *websocket.Conn, msg clientMessage) {
			<-release
		},
	}
	url := startFakeServer(t, srv)

	client, err := Dial(context.Background(), Config{URL: url, Token: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := client.FetchMessages(context.Background(), models.UserPeer(1), 0, 10)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = client.Close()
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("FetchMessages() error = %v, want ErrConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for in-flight call to fail")
	}
}
