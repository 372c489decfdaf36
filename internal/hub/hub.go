// Package hub fans message events out to stream connections subscribed to a
// sender phone.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

// AllSenders subscribes a connection to every sender phone.
const AllSenders = "*"

// Connection is a single stream connection.
type Connection struct {
	ID          string
	SenderPhone string
	Conn        *websocket.Conn
	Send        chan []byte
	hub         *Hub
	mu          sync.Mutex

	sendMu sync.Mutex
	closed bool
}

// closeSend closes Send once; later direct sends are rejected.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub manages stream connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Topics maps a normalized sender phone to the set of connection IDs
	topics map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *topicMessage
	done       chan struct{}

	mu sync.RWMutex
}

type topicMessage struct {
	SenderPhone string
	Data        []byte
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		topics:      make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *topicMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.subscribeLocked(conn, conn.SenderPhone)
			topic := conn.SenderPhone
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Str("sender_phone", topic).Msg("stream connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unsubscribeLocked(conn)
				conn.closeSend()
			}
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Msg("stream connection unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *topicMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[string]bool)
	for id := range h.topics[msg.SenderPhone] {
		targets[id] = true
	}
	for id := range h.topics[AllSenders] {
		targets[id] = true
	}
	for id := range targets {
		conn, ok := h.connections[id]
		if !ok {
			continue
		}
		select {
		case conn.Send <- msg.Data:
		default:
			log.Warn().Str("conn_id", id).Msg("stream connection buffer full, closing")
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		delete(h.connections, id)
		conn.closeSend()
	}
	h.topics = make(map[string]map[string]bool)
}

func (h *Hub) subscribeLocked(conn *Connection, senderPhone string) {
	conn.SenderPhone = senderPhone
	if senderPhone == "" {
		return
	}
	if h.topics[senderPhone] == nil {
		h.topics[senderPhone] = make(map[string]bool)
	}
	h.topics[senderPhone][conn.ID] = true
}

func (h *Hub) unsubscribeLocked(conn *Connection) {
	if conn.SenderPhone == "" || h.topics[conn.SenderPhone] == nil {
		return
	}
	delete(h.topics[conn.SenderPhone], conn.ID)
	if len(h.topics[conn.SenderPhone]) == 0 {
		delete(h.topics, conn.SenderPhone)
	}
}

// NewConnection creates a connection subscribed to senderPhone. It is not
// registered until Register is called.
func (h *Hub) NewConnection(ws *websocket.Conn, senderPhone string) *Connection {
	return &Connection{
		ID:          "conn_" + uuid.New().String(),
		SenderPhone: Topic(senderPhone),
		Conn:        ws,
		Send:        make(chan []byte, 256),
		hub:         h,
	}
}

// Register adds a connection. After Run has returned it closes conn.Send
// instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Subscribe moves a connection to another sender phone.
func (h *Hub) Subscribe(conn *Connection, senderPhone string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(conn)
	h.subscribeLocked(conn, Topic(senderPhone))
}

// PublishEvent implements service.Publisher. It never blocks; events are
// dropped when the broadcast queue is full.
func (h *Hub) PublishEvent(senderPhone string, evt domain.MessageEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode message event")
		return
	}
	select {
	case h.broadcast <- &topicMessage{SenderPhone: Topic(senderPhone), Data: data}:
	default:
		log.Warn().Str("type", string(evt.Type)).Msg("event queue full, dropping event")
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.sendMu.Lock()
	defer conn.sendMu.Unlock()
	if conn.closed {
		return ErrClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Subscribers returns the number of connections receiving events for
// senderPhone, including those subscribed to all senders.
func (h *Hub) Subscribers(senderPhone string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.topics[Topic(senderPhone)])
	if Topic(senderPhone) != AllSenders {
		n += len(h.topics[AllSenders])
	}
	return n
}

// Topic returns the subscription key for a sender phone.
func Topic(senderPhone string) string {
	if senderPhone == "" || senderPhone == AllSenders {
		return AllSenders
	}
	return phone.Normalize(senderPhone)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrClosed is returned when sending to a connection the hub has closed.
var ErrClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
