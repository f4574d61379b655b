package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/models"
)

const (
	clientVersion      = "0.1.0"
	defaultDialTimeout = 10 * time.Second
	updateBufferSize   = 64
)

// Client errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrConnectionFailed = errors.New("connection rejected by server")
)

// Config configures a realtime connection.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://api.example.test/realtime.
	URL string

	// Token authenticates the session during connection init.
	Token string

	// DialTimeout bounds the handshake; <= 0 uses 10s.
	DialTimeout time.Duration
}

// Client is a realtime connection to the message API. RPC calls are
// correlated by frame id; unsolicited update frames stream on Updates.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	seq     uint32
	nextID  uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan serverMessage
	closed    bool

	updates chan ServerUpdate
}

// Dial connects, authenticates and starts the read loop. The handshake sends
// a connectionInit frame and waits for the server's connectionOpen.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	logger := logging.Component("remote")
	logger.Debug().Str("url", logging.Redact(cfg.URL)).Msg("dialing realtime endpoint")

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", logging.Redact(cfg.URL), err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan serverMessage),
		updates: make(chan ServerUpdate, updateBufferSize),
	}

	if err := c.handshake(cfg.Token, timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// handshake runs before the read loop starts, so it reads the connection
// directly.
func (c *Client) handshake(token string, timeout time.Duration) error {
	if err := c.send(clientMessage{
		Type:          frameConnectionInit,
		Token:         token,
		ClientVersion: clientVersion,
	}); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("handshake read failed: %w", err)
		}
		switch msg.Type {
		case frameConnectionOpen:
			return nil
		case frameConnectionError:
			return fmt.Errorf("%w: %s", ErrConnectionFailed, msg.Message)
		}
	}
}

// FetchMessages requests one page of a conversation's history. A zero
// cursorID pages descending from the newest message; otherwise pages
// descending from cursorID (exclusive).
func (c *Client) FetchMessages(ctx context.Context, peer models.Peer, cursorID int64, limit int) (FetchResult, error) {
	ch := make(chan serverMessage, 1)
	id := c.register(ch)
	defer c.unregister(id)

	if err := c.send(clientMessage{
		ID:       id,
		Type:     frameGetHistory,
		Peer:     &peer,
		CursorID: cursorID,
		Limit:    limit,
	}); err != nil {
		return FetchResult{}, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return FetchResult{}, ErrConnectionClosed
		}
		if msg.Type == frameRPCError {
			return FetchResult{}, &RPCError{Code: msg.Code, Message: msg.Message}
		}
		return FetchResult{Messages: msg.Messages, HasMore: msg.HasMore}, nil
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	}
}

// Updates streams server pushes. The channel closes when the connection
// drops.
func (c *Client) Updates() <-chan ServerUpdate {
	return c.updates
}

// Close tears down the connection; in-flight calls fail with
// ErrConnectionClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(m clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.seq++
	m.Seq = c.seq
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", m.Type, err)
	}
	return nil
}

func (c *Client) register(ch chan serverMessage) uint64 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.nextID++
	id := c.nextID
	if !c.closed {
		c.pending[id] = ch
	} else {
		close(ch)
	}
	return id
}

func (c *Client) unregister(id uint64) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, id)
}

func (c *Client) readLoop() {
	defer c.teardown()

	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("realtime connection lost")
			}
			return
		}

		switch msg.Type {
		case frameRPCResult, frameRPCError:
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ReqID]
			if ok {
				delete(c.pending, msg.ReqID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- msg
			}
		case frameUpdate:
			if msg.Update == nil {
				continue
			}
			select {
			case c.updates <- *msg.Update:
			default:
				// Backpressure: drop the oldest rather than block the
				// read loop; the gateway reconciles on reconnect.
				select {
				case <-c.updates:
				default:
				}
				c.updates <- *msg.Update
			}
		}
	}
}

func (c *Client) teardown() {
	c.pendingMu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	close(c.updates)
}
