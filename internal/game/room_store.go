// internal/game/room_store.go
package game

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tkgch/daifugo/internal/journal"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "0123456789"
)

// ErrRoomNotFound is returned for lookups against codes with no live room.
var ErrRoomNotFound = errors.New("room not found")

// RoomStore manages live rooms in memory, keyed by code. The store lock
// only guards the code->room map; gameplay mutation happens under each
// room's own lock, so rooms proceed fully in parallel.
type RoomStore struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	logger *logrus.Logger
	jr     *journal.Journal
}

// RoomSummary is the listing projection for one live room.
type RoomSummary struct {
	Code    string    `json:"code"`
	State   RoomState `json:"state"`
	Players int       `json:"players"`
}

// NewRoomStore returns an in-memory registry. logger may be nil.
func NewRoomStore(logger *logrus.Logger, jr *journal.Journal) *RoomStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &RoomStore{
		rooms:  make(map[string]*Room),
		logger: logger,
		jr:     jr,
	}
}

// CreateRoom allocates an unused code, constructs the room, and seats the
// host as its first player.
func (s *RoomStore) CreateRoom(hostName string, limit int) (*Room, *Player, error) {
	s.mu.Lock()
	code := s.generateCodeUnsafe()
	room := NewRoom(code, limit, s.logger, s.jr)
	room.OnEmpty = func(code string) {
		s.DeleteRoom(code)
	}
	s.rooms[code] = room
	s.mu.Unlock()

	host, err := room.AddPlayer(hostName)
	if err != nil {
		// Fresh empty rooms always accept the host; treat a failure as a
		// bug and drop the room again.
		s.DeleteRoom(code)
		return nil, nil, err
	}
	s.logger.Infof("Room %s created by %s (limit %d).", code, hostName, limit)
	return room, host, nil
}

// JoinRoom seats a player in an existing room. Capacity and state
// constraints are delegated to Room.AddPlayer.
func (s *RoomStore) JoinRoom(code, name string) (*Room, *Player, error) {
	room, ok := s.GetRoom(code)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	p, err := room.AddPlayer(name)
	if err != nil {
		return nil, nil, err
	}
	return room, p, nil
}

// GetRoom retrieves a live room by code.
func (s *RoomStore) GetRoom(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	return r, ok
}

// DeleteRoom removes a room from the registry. Its code becomes
// reassignable afterwards.
func (s *RoomStore) DeleteRoom(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		s.logger.Infof("Room %s deleted.", code)
	}
}

// Rooms lists the live rooms for debugging and the listing endpoint.
func (s *RoomStore) Rooms() []RoomSummary {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.Mu.Lock()
		out = append(out, RoomSummary{Code: r.Code, State: r.State, Players: len(r.Players)})
		r.Mu.Unlock()
	}
	return out
}

// generateCodeUnsafe picks a numeric code not currently in use.
// Assumes the store lock is held.
func (s *RoomStore) generateCodeUnsafe() string {
	for {
		buf := make([]byte, roomCodeLength)
		for i := range buf {
			buf[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
		}
		code := string(buf)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}
