// Package ws serves the message-event stream over WebSocket.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/hub"
)

// Server handles stream connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, h *hub.Hub) *Server {
	return &Server{
		cfg: cfg,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the stream route.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/stream", s.HandleStream)
}

// HandleStream upgrades the request and subscribes the connection to the
// sender_phone query parameter (all senders when absent).
func (s *Server) HandleStream(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade stream connection")
		return err
	}

	conn := s.hub.NewConnection(ws, c.QueryParam("sender_phone"))
	s.sendControl(conn, TypeSubscribed, conn.SenderPhone)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.StreamMaxMessage)

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.StreamReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.StreamReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("stream read failed")
			}
			break
		}
		s.handleMessage(conn, message)
	}
}

func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.StreamPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.StreamWriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("stream write failed")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.StreamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		s.hub.Subscribe(conn, msg.SenderPhone)
		s.sendControl(conn, TypeSubscribed, hub.Topic(msg.SenderPhone))
	case TypePing:
		s.sendControl(conn, TypePong, "")
	default:
		s.sendError(conn, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendControl(conn *hub.Connection, msgType, senderPhone string) {
	s.hub.SendJSONToConnection(conn, ControlMessage{
		Type:        msgType,
		Ts:          time.Now().UnixMilli(),
		SenderPhone: senderPhone,
	})
}

func (s *Server) sendError(conn *hub.Connection, message string) {
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		Type:    TypeError,
		Ts:      time.Now().UnixMilli(),
		Code:    ErrorCodeInvalidMessage,
		Message: message,
	})
}
