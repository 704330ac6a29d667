// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tkgch/daifugo/internal/game"
)

// Server is the session router's shared state: the room registry plus the
// mapping from player IDs to live connections. Rooms call back into
// SendToPlayer to deliver payloads; the router owns nothing of the game
// state itself.
type Server struct {
	Logger *logrus.Logger
	Rooms  *game.RoomStore

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// NewServer builds a router around a room registry.
func NewServer(logger *logrus.Logger, rooms *game.RoomStore) *Server {
	return &Server{
		Logger:  logger,
		Rooms:   rooms,
		clients: make(map[uuid.UUID]*client),
	}
}

// client is one live WebSocket participant. Outbound payloads go through
// a buffered channel drained by a single write pump, which keeps the
// per-connection delivery order equal to the mutation order.
type client struct {
	out    chan interface{}
	logger *logrus.Logger
}

// send pushes a payload onto the client's outbound queue without
// blocking. A full or abandoned queue drops the message; the next state
// broadcast supersedes it anyway.
func (c *client) send(payload interface{}) {
	select {
	case c.out <- payload:
	default:
		c.logger.Warn("client outbound queue full, dropping message")
	}
}

// SendToPlayer delivers a JSON-serializable payload to one player's
// connection. This is the send capability rooms are wired with; unknown
// player IDs (already disconnected) are dropped silently.
func (s *Server) SendToPlayer(playerID uuid.UUID, payload interface{}) {
	s.mu.Lock()
	c, ok := s.clients[playerID]
	s.mu.Unlock()
	if ok {
		c.send(payload)
	}
}

func (s *Server) registerClient(playerID uuid.UUID, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[playerID] = c
}

func (s *Server) unregisterClient(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, playerID)
}

// writePump drains a client's outbound queue onto the WebSocket, one
// writer per connection. Exits when the context is cancelled or a write
// fails; the read loop notices the broken connection and cleans up.
func writePump(ctx context.Context, ws *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.out:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				c.logger.Warnf("failed to marshal outbound message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.logger.Debugf("write failed, stopping write pump: %v", err)
				return
			}
		}
	}
}
