// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/tkgch/daifugo/internal/card"
	"github.com/tkgch/daifugo/internal/game"
	"github.com/tkgch/daifugo/internal/middleware"
)

// ClientEvent is the envelope for every inbound WebSocket message. The
// type discriminator selects the operation; the remaining fields are
// per-type and ignored otherwise.
type ClientEvent struct {
	Type      string      `json:"type"`
	Name      string      `json:"name,omitempty"`
	RoomCode  string      `json:"roomCode,omitempty"`
	GameLimit int         `json:"gameLimit,omitempty"`
	Cards     []card.Card `json:"cards,omitempty"`
	Decision  bool        `json:"decision,omitempty"`
}

// session is one connection's binding to a room and player, established
// at create/join time and immutable afterwards. A connection cannot
// switch rooms without reconnecting.
type session struct {
	roomCode string
	playerID uuid.UUID
	bound    bool
}

// WSHandler upgrades the connection and runs the session read loop. Each
// connection maps to at most one (room, player) pair; in-room events from
// unbound connections are silently ignored.
func WSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // tighten for production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer ws.Close(websocket.StatusInternalError, "handler finished")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl := &client{
			out:    make(chan interface{}, 32),
			logger: s.Logger,
		}
		go writePump(ctx, ws, cl)

		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr)
		sess := &session{}
		readErr := s.readEvents(ctx, ws, cl, sess)

		// Cleanup: a disconnect is a first-class state transition, not an
		// error. Removing the player may delete the room.
		if sess.bound {
			s.unregisterClient(sess.playerID)
			if room, ok := s.Rooms.GetRoom(sess.roomCode); ok {
				room.RemovePlayer(sess.playerID)
			}
		}
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, readErr)
	}
}

// readEvents reads and dispatches client events until the connection
// closes or the context is cancelled. Returns nil on a clean close.
func (s *Server) readEvents(ctx context.Context, ws *websocket.Conn, cl *client, sess *session) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			cl.send(errorPayload("invalid JSON"))
			continue
		}
		s.dispatch(cl, sess, ev)
	}
}

// dispatch routes one client event to the matching room operation.
func (s *Server) dispatch(cl *client, sess *session, ev ClientEvent) {
	switch ev.Type {
	case "createRoom":
		s.handleCreate(cl, sess, ev)
	case "joinRoom":
		s.handleJoin(cl, sess, ev)
	case "startGame":
		if room, pid, ok := s.boundRoom(sess); ok {
			room.StartRound(pid)
		}
	case "playCards":
		if room, pid, ok := s.boundRoom(sess); ok {
			room.PlayCards(pid, normalizeCards(ev.Cards))
		}
	case "pass":
		if room, pid, ok := s.boundRoom(sess); ok {
			room.Pass(pid)
		}
	case "continueGame":
		if room, pid, ok := s.boundRoom(sess); ok {
			room.ContinueGame(pid, ev.Decision)
		}
	case "ping":
		cl.send(map[string]string{"type": "pong"})
	default:
		cl.send(errorPayload("unknown event type: " + ev.Type))
	}
}

func (s *Server) handleCreate(cl *client, sess *session, ev ClientEvent) {
	if sess.bound {
		cl.send(errorPayload("already in a room"))
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		cl.send(errorPayload("a display name is required"))
		return
	}
	if ev.GameLimit < 0 {
		cl.send(errorPayload("game limit must be zero or positive"))
		return
	}

	room, host, err := s.Rooms.CreateRoom(name, ev.GameLimit)
	if err != nil {
		cl.send(errorPayload(err.Error()))
		return
	}
	s.bind(cl, sess, room, host.ID)
}

func (s *Server) handleJoin(cl *client, sess *session, ev ClientEvent) {
	if sess.bound {
		cl.send(errorPayload("already in a room"))
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		cl.send(errorPayload("a display name is required"))
		return
	}

	room, p, err := s.Rooms.JoinRoom(ev.RoomCode, name)
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		cl.send(errorPayload("room " + ev.RoomCode + " does not exist"))
		return
	case err != nil:
		cl.send(errorPayload(err.Error()))
		return
	}
	s.bind(cl, sess, room, p.ID)
}

// bind fixes the connection's (room, player) pair, wires the room's send
// capability on first use, and syncs the initial view to the new player.
func (s *Server) bind(cl *client, sess *session, room *game.Room, playerID uuid.UUID) {
	room.Mu.Lock()
	if room.SendFn == nil {
		room.SendFn = s.SendToPlayer
	}
	room.Mu.Unlock()

	s.registerClient(playerID, cl)
	sess.bound = true
	sess.roomCode = room.Code
	sess.playerID = playerID
	room.SyncPlayer(playerID)
}

// boundRoom resolves the session's room, silently ignoring in-room events
// from connections that never joined one.
func (s *Server) boundRoom(sess *session) (*game.Room, uuid.UUID, bool) {
	if !sess.bound {
		return nil, uuid.Nil, false
	}
	room, ok := s.Rooms.GetRoom(sess.roomCode)
	if !ok {
		return nil, uuid.Nil, false
	}
	return room, sess.playerID, true
}

// normalizeCards recomputes each card's value from its rank; clients only
// send suit and rank, and values are never trusted off the wire.
func normalizeCards(cards []card.Card) []card.Card {
	out := make([]card.Card, len(cards))
	for i, c := range cards {
		out[i] = card.New(c.Suit, c.Rank)
	}
	return out
}

func errorPayload(message string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "errorMessage",
		"message": message,
	}
}
