// internal/game/player.go
package game

import (
	"github.com/google/uuid"

	"github.com/tkgch/daifugo/internal/card"
)

// PlayerStatus tracks where a player stands within the current round.
type PlayerStatus string

const (
	StatusPlaying  PlayerStatus = "playing"
	StatusPassed   PlayerStatus = "passed"
	StatusFinished PlayerStatus = "finished"
)

// Role is the rank-based role assigned at round end, driving the card
// exchange at the start of the next round.
type Role string

const (
	RoleCommoner Role = "commoner"
	RoleRichest  Role = "richest"
	RolePoorest  Role = "poorest"
)

// Player is one seat in a room. The ID is ephemeral and connection-scoped;
// it is minted when the player joins and dies with the connection. The
// hand is owned exclusively by the room holding this player and is only
// mutated by room operations under the room lock.
type Player struct {
	ID     uuid.UUID
	Name   string
	Hand   []card.Card
	Status PlayerStatus
	Role   Role
	Rank   int // finishing position within the round, 0 = not finished
}

// removeCards takes the given cards out of the player's hand by
// (suit, rank) identity, one occurrence per requested card. Callers
// validate presence first; missing cards are silently skipped.
func (p *Player) removeCards(cards []card.Card) {
	for _, c := range cards {
		for i, held := range p.Hand {
			if held.Suit == c.Suit && held.Rank == c.Rank {
				p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
				break
			}
		}
	}
}
