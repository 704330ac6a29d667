// internal/game/view.go
package game

import (
	"github.com/google/uuid"

	"github.com/tkgch/daifugo/internal/card"
)

// PlayerView is one seat as seen by a specific recipient. Hand contents
// are only present for the recipient's own seat; everyone else sees a
// count. This asymmetry is the information-hiding contract of the wire
// protocol.
type PlayerView struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	HandCount int          `json:"handCount"`
	Hand      []card.Card  `json:"hand,omitempty"`
	Status    PlayerStatus `json:"status"`
	Role      Role         `json:"role"`
	Rank      int          `json:"rank,omitempty"`
	IsHost    bool         `json:"isHost"`
	IsTurn    bool         `json:"isTurn"`
}

// StateView is the personalized room snapshot sent after every mutation.
type StateView struct {
	Type        string       `json:"type"` // always "updateState"
	RoomCode    string       `json:"roomCode"`
	State       RoomState    `json:"state"`
	You         uuid.UUID    `json:"you"`
	Field       []card.Card  `json:"field"`
	LastPlayBy  uuid.UUID    `json:"lastPlayBy,omitempty"`
	Round       int          `json:"round"`
	RoundLimit  int          `json:"roundLimit"`
	Players     []PlayerView `json:"players"`
	CurrentTurn uuid.UUID    `json:"currentTurn,omitempty"`
}

// buildViewUnsafe renders the room from one player's perspective.
// Assumes lock is held.
func (r *Room) buildViewUnsafe(forPlayer uuid.UUID) StateView {
	view := StateView{
		Type:       "updateState",
		RoomCode:   r.Code,
		State:      r.State,
		You:        forPlayer,
		Field:      r.Field,
		Round:      r.RoundsPlayed,
		RoundLimit: r.RoundLimit,
	}
	if r.LastPlay != nil {
		view.LastPlayBy = r.LastPlay.PlayerID
	}
	if r.TurnIndex >= 0 && r.TurnIndex < len(r.Players) {
		view.CurrentTurn = r.Players[r.TurnIndex].ID
	}

	view.Players = make([]PlayerView, 0, len(r.Players))
	for i, p := range r.Players {
		pv := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			HandCount: len(p.Hand),
			Status:    p.Status,
			Role:      p.Role,
			Rank:      p.Rank,
			IsHost:    p.ID == r.HostID,
			IsTurn:    i == r.TurnIndex,
		}
		if p.ID == forPlayer {
			pv.Hand = p.Hand
		}
		view.Players = append(view.Players, pv)
	}
	return view
}
