package websocket

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	keepalivePeriod = idleTimeout * 9 / 10
	maxRequestSize  = 4096
	sendBuffer      = 256
)

var errMalformedRequest = errors.New("invalid message format")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one WebSocket connection subscribed to statistic updates
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a request sent by the peer
type ClientMessage struct {
	Type     string `json:"type"`
	StatName string `json:"stat_name,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

// enqueue queues data without blocking and reports whether it was accepted
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": errMsg},
		Timestamp: time.Now(),
	})
}

// nextRequest blocks for the next peer frame. A frame that is not a request yields
// errMalformedRequest and leaves the connection usable.
func (c *Client) nextRequest() (*ClientMessage, error) {
	_, r, err := c.conn.NextReader()
	if err != nil {
		return nil, err
	}
	var msg ClientMessage
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errMalformedRequest
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, errMalformedRequest
		}
		return nil, err
	}
	return &msg, nil
}

// readPump serves peer requests until the connection fails, then leaves the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxRequestSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		msg, err := c.nextRequest()
		switch {
		case errors.Is(err, errMalformedRequest):
			c.logger.Warn("invalid message format")
			c.sendError(err.Error())
		case err != nil:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		default:
			c.handleMessage(msg)
		}
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if msg.StatName == "" {
			c.sendError("stat_name required for " + msg.Type)
			return
		}
		c.hub.changeSubscription(c, msg.StatName, msg.Type == MessageTypeSubscribe)

	case MessageTypePing:
		c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
		c.sendError("unknown message type")
	}
}

// writePump drains the send queue one frame per message and pings the peer while idle
func (c *Client) writePump() {
	keepalive := time.NewTicker(keepalivePeriod)
	defer func() {
		keepalive.Stop()
		c.conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// Closed by the hub on unregister or stop
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-keepalive.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the connection to the hub
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	client.logger.Debug("new websocket connection")
}
