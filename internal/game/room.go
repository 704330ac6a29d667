// internal/game/room.go
package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tkgch/daifugo/internal/card"
	"github.com/tkgch/daifugo/internal/journal"
)

// MaxPlayers is the seat limit per room.
const MaxPlayers = 4

// RoomState is the lifecycle phase of a room.
type RoomState string

const (
	StateWaiting  RoomState = "waiting"
	StatePlaying  RoomState = "playing"
	StateExchange RoomState = "exchange"
	StateFinished RoomState = "finished"
)

// Join rejections surfaced to the requesting connection.
var (
	ErrRoomFull        = errors.New("room is full")
	ErrRoomNotJoinable = errors.New("room is not accepting players right now")
)

// LastPlay snapshots the most recent non-pass play on the field.
type LastPlay struct {
	PlayerID uuid.UUID
	Cards    []card.Card
}

// Room owns the full lifecycle of one game: membership, host assignment,
// round and series progression, rank/role assignment, and card exchange.
// All state is guarded by Mu; two events for the same room are never
// applied concurrently. Rooms share no mutable state with each other.
//
// Deferred phase transitions (finished->exchange, exchange->playing,
// series-over reset) run on time.AfterFunc callbacks that re-acquire the
// lock and verify the room's epoch before acting, so a timer scheduled
// before a reset or deletion becomes a no-op instead of corrupting a
// later round.
type Room struct {
	Code    string
	Players []*Player // seating order, fixed at join time
	State   RoomState

	TurnIndex int // seat of the current turn holder, -1 when none
	Field     []card.Card
	LastPlay  *LastPlay
	PassCount int

	RoundsPlayed int
	RoundLimit   int // 0 = endless series, host decides after each round
	HostID       uuid.UUID

	// Ranks is the finishing order (player IDs) for the current round.
	// Entries persist until the round ends even if the player leaves.
	Ranks []uuid.UUID

	// Delays for deferred phase transitions. Overridable in tests.
	ExchangeDelay time.Duration
	DealDelay     time.Duration
	ResetDelay    time.Duration

	// SendFn delivers a JSON-serializable payload to one player's
	// connection. Injected by the session router; nil drops the send.
	SendFn func(playerID uuid.UUID, payload interface{})

	// OnEmpty is invoked after the last player leaves, typically wired to
	// the registry's delete.
	OnEmpty func(code string)

	logger  *logrus.Logger
	journal *journal.Journal

	epoch   int // bumped on every reset/teardown, checked by timers
	deleted bool

	Mu sync.Mutex
}

// NewRoom builds an empty room in the waiting state. logger may be nil.
func NewRoom(code string, limit int, logger *logrus.Logger, jr *journal.Journal) *Room {
	if logger == nil {
		logger = logrus.New()
	}
	return &Room{
		Code:          code,
		State:         StateWaiting,
		TurnIndex:     -1,
		RoundLimit:    limit,
		ExchangeDelay: 5 * time.Second,
		DealDelay:     3 * time.Second,
		ResetDelay:    5 * time.Second,
		logger:        logger,
		journal:       jr,
	}
}

// AddPlayer seats a new player. The first player becomes host. Returns
// ErrRoomFull or ErrRoomNotJoinable without mutating on rejection.
func (r *Room) AddPlayer(name string) (*Player, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	if r.State != StateWaiting {
		return nil, ErrRoomNotJoinable
	}

	p := &Player{
		ID:     uuid.New(),
		Name:   name,
		Status: StatusPlaying,
		Role:   RoleCommoner,
	}
	r.Players = append(r.Players, p)
	if len(r.Players) == 1 {
		r.HostID = p.ID
	}

	r.logger.Infof("Room %s: player %s (%s) joined (%d seated).", r.Code, p.ID, p.Name, len(r.Players))
	r.recordAction(p.ID, "player_join", map[string]interface{}{"name": name})
	r.systemMessageUnsafe(name + " joined the room")
	r.broadcastStateUnsafe()
	return p, nil
}

// StartRound begins a new round. Host-only, requires the waiting state
// and at least two seated players.
func (r *Room) StartRound(actorID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if actorID != r.HostID {
		r.sendErrorUnsafe(actorID, "only the host can start the game")
		return
	}
	if r.State != StateWaiting {
		r.sendErrorUnsafe(actorID, "the game has already started")
		return
	}
	if len(r.Players) < 2 {
		r.sendErrorUnsafe(actorID, "need at least 2 players to start")
		return
	}

	r.startRoundUnsafe()
	r.recordAction(actorID, "round_start", map[string]interface{}{"round": r.RoundsPlayed})
	r.broadcastStateUnsafe()
}

// startRoundUnsafe deals a fresh round and moves the room into playing.
// Assumes lock is held.
func (r *Room) startRoundUnsafe() {
	r.RoundsPlayed++
	r.Field = nil
	r.LastPlay = nil
	r.PassCount = 0
	r.Ranks = nil

	for _, p := range r.Players {
		p.Status = StatusPlaying
		p.Rank = 0
	}

	deck := card.NewDeck()
	card.Shuffle(deck)
	hands := card.Deal(deck, len(r.Players))
	for i, p := range r.Players {
		p.Hand = hands[i]
		card.SortHand(p.Hand)
	}

	// The poorest player from the prior round leads; otherwise a random
	// seat does.
	start := -1
	for i, p := range r.Players {
		if p.Role == RolePoorest {
			start = i
			break
		}
	}
	if start < 0 {
		start = rand.Intn(len(r.Players))
	}
	r.TurnIndex = start
	r.State = StatePlaying
	r.logger.Infof("Room %s: round %d started, %s leads.", r.Code, r.RoundsPlayed, r.Players[start].Name)
}

// PlayCards applies a play attempt by the current turn holder. Rejections
// are reported to the actor only; room state and the other players are
// untouched.
func (r *Room) PlayCards(actorID uuid.UUID, cards []card.Card) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State != StatePlaying {
		r.sendErrorUnsafe(actorID, "no round is in progress")
		return
	}
	seat := r.seatOfUnsafe(actorID)
	if seat < 0 {
		return
	}
	if seat != r.TurnIndex {
		r.sendErrorUnsafe(actorID, "it's not your turn")
		return
	}
	actor := r.Players[seat]

	if err := card.ValidatePlay(cards, actor.Hand, r.Field); err != nil {
		r.sendErrorUnsafe(actorID, err.Error())
		return
	}

	actor.removeCards(cards)
	r.Field = cards
	r.LastPlay = &LastPlay{PlayerID: actorID, Cards: cards}
	actor.Status = StatusPlaying // clear a stale passed flag
	r.PassCount = 0

	r.recordAction(actorID, "play_cards", map[string]interface{}{"cards": cards})

	// Clear-on-8: any 8 wipes the field and the same player leads again.
	clearedByEight := card.HasRank(cards, "8")
	if clearedByEight {
		r.Field = nil
		r.LastPlay = nil
		r.systemMessageUnsafe(actor.Name + " cleared the field with an 8")
	}

	if len(actor.Hand) == 0 {
		r.finishPlayerUnsafe(actor)
	}

	if countByStatus(r.Players, StatusPlaying) <= 1 {
		r.endRoundUnsafe()
		return
	}

	if !clearedByEight || actor.Status != StatusPlaying {
		r.advanceTurnUnsafe(seat)
	}
	r.broadcastStateUnsafe()
}

// Pass marks the current turn holder as passed. When every remaining
// active player has passed in a row, the table clears and the turn
// returns to whoever made the last play.
func (r *Room) Pass(actorID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State != StatePlaying {
		r.sendErrorUnsafe(actorID, "no round is in progress")
		return
	}
	seat := r.seatOfUnsafe(actorID)
	if seat < 0 {
		return
	}
	if seat != r.TurnIndex {
		r.sendErrorUnsafe(actorID, "it's not your turn")
		return
	}

	r.Players[seat].Status = StatusPassed
	r.PassCount++
	r.recordAction(actorID, "pass", nil)

	if r.PassCount >= countByStatus(r.Players, StatusPlaying) {
		// Everyone still in the round has passed: clear the table and
		// hand the lead back to the last player who played.
		var leadID uuid.UUID
		if r.LastPlay != nil {
			leadID = r.LastPlay.PlayerID
		}
		r.Field = nil
		r.LastPlay = nil
		r.PassCount = 0
		for _, p := range r.Players {
			if p.Status != StatusFinished {
				p.Status = StatusPlaying
			}
		}
		if lead := r.seatOfUnsafe(leadID); lead >= 0 && r.Players[lead].Status == StatusPlaying {
			r.TurnIndex = lead
		} else {
			r.advanceTurnUnsafe(r.TurnIndex)
		}
		r.systemMessageUnsafe("everyone passed, the field is cleared")
	} else {
		r.advanceTurnUnsafe(seat)
	}
	r.broadcastStateUnsafe()
}

// ContinueGame applies the host's continue/end decision after a round in
// an endless (limit=0) series.
func (r *Room) ContinueGame(actorID uuid.UUID, decision bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if actorID != r.HostID {
		r.sendErrorUnsafe(actorID, "only the host can decide")
		return
	}
	if r.State != StateFinished || r.RoundLimit != 0 {
		r.sendErrorUnsafe(actorID, "there is no continue decision pending")
		return
	}

	r.recordAction(actorID, "continue_decision", map[string]interface{}{"continue": decision})
	if decision {
		r.startExchangePhaseUnsafe()
		return
	}
	r.resetToWaitingUnsafe()
	r.systemMessageUnsafe("the host ended the series")
	r.broadcastStateUnsafe()
}

// RemovePlayer unseats a player at any state (disconnects land here).
// Host reassigns to the first remaining seat; an unplayable round is
// aborted back to waiting; an empty room signals OnEmpty for deletion.
func (r *Room) RemovePlayer(playerID uuid.UUID) {
	r.Mu.Lock()

	seat := r.seatOfUnsafe(playerID)
	if seat < 0 {
		r.Mu.Unlock()
		return
	}
	leaving := r.Players[seat]
	wasHost := playerID == r.HostID
	wasTurn := seat == r.TurnIndex

	r.Players = append(r.Players[:seat], r.Players[seat+1:]...)
	r.logger.Infof("Room %s: player %s (%s) left (%d seated).", r.Code, playerID, leaving.Name, len(r.Players))
	r.recordAction(playerID, "player_leave", nil)

	if len(r.Players) == 0 {
		r.deleted = true
		r.epoch++
		onEmpty := r.OnEmpty
		r.Mu.Unlock()
		if onEmpty != nil {
			onEmpty(r.Code)
		}
		return
	}
	defer r.Mu.Unlock()

	r.systemMessageUnsafe(leaving.Name + " left the room")
	if wasHost {
		r.HostID = r.Players[0].ID
		r.systemMessageUnsafe(r.Players[0].Name + " is now the host")
	}
	if seat < r.TurnIndex {
		r.TurnIndex--
	}

	if r.State != StateWaiting && len(r.Players) < 2 {
		// The round is unplayable; abort it rather than trying to resume.
		r.resetToWaitingUnsafe()
		r.systemMessageUnsafe("not enough players, returning to the lobby")
		r.broadcastStateUnsafe()
		return
	}

	if r.State == StatePlaying {
		if countByStatus(r.Players, StatusPlaying) <= 1 {
			r.endRoundUnsafe()
			return
		}
		if wasTurn {
			// The seat after the removed one now sits at the removed
			// index; scan from just before it.
			if idx, ok := nextTurn(r.Players, seat-1); ok {
				r.TurnIndex = idx
			}
		}
	}
	r.broadcastStateUnsafe()
}

// SyncPlayer sends the current personalized view to one player. The
// router calls this right after binding a connection, because the join
// broadcast can race the connection's registration.
func (r *Room) SyncPlayer(playerID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.seatOfUnsafe(playerID) < 0 {
		return
	}
	r.sendToUnsafe(playerID, r.buildViewUnsafe(playerID))
}

// advanceTurnUnsafe moves the turn to the next playing seat after from.
// A sequencer miss during active play is an invariant violation: it is
// logged and the round is force-reset instead of crashing the room.
// Assumes lock is held.
func (r *Room) advanceTurnUnsafe(from int) {
	idx, ok := nextTurn(r.Players, from)
	if !ok {
		r.logger.Errorf("Room %s: no eligible next player during active play, force-resetting round.", r.Code)
		r.resetToWaitingUnsafe()
		r.systemMessageUnsafe("the round was reset due to an internal error")
		return
	}
	r.TurnIndex = idx
}

// finishPlayerUnsafe records a player emptying their hand: next finishing
// rank and an entry in the round's rank order. Assumes lock is held.
func (r *Room) finishPlayerUnsafe(p *Player) {
	p.Status = StatusFinished
	p.Rank = len(r.Ranks) + 1
	r.Ranks = append(r.Ranks, p.ID)
	r.logger.Infof("Room %s: %s finished at rank %d.", r.Code, p.Name, p.Rank)
}

// endRoundUnsafe closes the round: the last active player auto-finishes,
// roles are recomputed from the finishing order, and the round-limit
// policy decides what happens next. Assumes lock is held.
func (r *Room) endRoundUnsafe() {
	for _, p := range r.Players {
		if p.Status == StatusPlaying {
			r.finishPlayerUnsafe(p)
		}
	}
	r.TurnIndex = -1
	r.State = StateFinished

	for _, p := range r.Players {
		p.Role = RoleCommoner
	}
	if len(r.Ranks) > 0 {
		if p := r.playerByIDUnsafe(r.Ranks[0]); p != nil {
			p.Role = RoleRichest
		}
		// The poorest role is only assigned with more than two players.
		if len(r.Players) > 2 {
			if p := r.playerByIDUnsafe(r.Ranks[len(r.Ranks)-1]); p != nil {
				p.Role = RolePoorest
			}
		}
	}

	r.logger.Infof("Room %s: round %d over (%d/%d).", r.Code, r.RoundsPlayed, r.RoundsPlayed, r.RoundLimit)
	r.recordAction(uuid.Nil, "round_end", map[string]interface{}{"round": r.RoundsPlayed})
	r.broadcastStateUnsafe()

	switch {
	case r.RoundLimit != 0 && r.RoundsPlayed >= r.RoundLimit:
		r.broadcastUnsafe(map[string]interface{}{
			"type":    "seriesOver",
			"message": "the series is over, thanks for playing",
		})
		r.systemMessageUnsafe("series over")
		r.scheduleUnsafe(r.ResetDelay, func() {
			r.resetToWaitingUnsafe()
			r.broadcastStateUnsafe()
		})
	case r.RoundLimit == 0:
		// Endless series: only the host decides whether to go on.
		r.sendToUnsafe(r.HostID, map[string]interface{}{"type": "showContinueModal"})
	default:
		r.scheduleUnsafe(r.ExchangeDelay, r.startExchangePhaseUnsafe)
	}
}

// startExchangePhaseUnsafe enters the exchange phase, or skips straight
// to the next deal when no rich/poor pairing exists. Assumes lock is held.
func (r *Room) startExchangePhaseUnsafe() {
	richest := r.playerByRoleUnsafe(RoleRichest)
	poorest := r.playerByRoleUnsafe(RolePoorest)
	if richest == nil || poorest == nil || len(r.Players) < 2 {
		r.startRoundUnsafe()
		r.broadcastStateUnsafe()
		return
	}

	r.State = StateExchange
	r.broadcastStateUnsafe()
	r.scheduleUnsafe(r.ExchangeDelay, func() {
		r.performExchangeUnsafe(richest.ID, poorest.ID)
	})
}

// performExchangeUnsafe transfers the poorest player's two highest cards
// to the richest and the richest player's two lowest back, then schedules
// the next deal. Both sides are computed from pre-transfer hands.
// Assumes lock is held.
func (r *Room) performExchangeUnsafe(richestID, poorestID uuid.UUID) {
	if r.State != StateExchange {
		return
	}
	richest := r.playerByIDUnsafe(richestID)
	poorest := r.playerByIDUnsafe(poorestID)
	if richest == nil || poorest == nil {
		// One side left during the delay; deal without an exchange.
		r.startRoundUnsafe()
		r.broadcastStateUnsafe()
		return
	}

	card.SortHand(poorest.Hand)
	card.SortHand(richest.Hand)
	tribute := topCards(poorest.Hand, 2)
	change := bottomCards(richest.Hand, 2)

	poorest.removeCards(tribute)
	richest.Hand = append(richest.Hand, tribute...)
	richest.removeCards(change)
	poorest.Hand = append(poorest.Hand, change...)
	card.SortHand(poorest.Hand)
	card.SortHand(richest.Hand)

	r.recordAction(uuid.Nil, "card_exchange", map[string]interface{}{
		"richest": richestID.String(),
		"poorest": poorestID.String(),
	})
	r.systemMessageUnsafe(poorest.Name + " paid tribute to " + richest.Name)
	r.broadcastStateUnsafe()

	r.scheduleUnsafe(r.DealDelay, func() {
		if r.State != StateExchange {
			return
		}
		r.startRoundUnsafe()
		r.broadcastStateUnsafe()
	})
}

// resetToWaitingUnsafe returns the room to the lobby state, retaining
// players but clearing all round and series progress. Pending deferred
// transitions are invalidated by bumping the epoch. Assumes lock is held.
func (r *Room) resetToWaitingUnsafe() {
	r.epoch++
	r.State = StateWaiting
	r.TurnIndex = -1
	r.Field = nil
	r.LastPlay = nil
	r.PassCount = 0
	r.Ranks = nil
	r.RoundsPlayed = 0
	for _, p := range r.Players {
		p.Hand = nil
		p.Status = StatusPlaying
		p.Role = RoleCommoner
		p.Rank = 0
	}
}

// scheduleUnsafe arms a deferred transition. The callback runs with the
// lock held only if the room still exists and no reset has happened since
// scheduling; otherwise the timer is stale and fires into a no-op.
// Assumes lock is held.
func (r *Room) scheduleUnsafe(delay time.Duration, fn func()) {
	epoch := r.epoch
	time.AfterFunc(delay, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.deleted || r.epoch != epoch {
			r.logger.Debugf("Room %s: stale timer fired, ignoring.", r.Code)
			return
		}
		fn()
	})
}

// seatOfUnsafe returns the seat index for a player ID, -1 if unseated.
// Assumes lock is held.
func (r *Room) seatOfUnsafe(playerID uuid.UUID) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// playerByIDUnsafe returns the seated player with the given ID, or nil.
// Assumes lock is held.
func (r *Room) playerByIDUnsafe(playerID uuid.UUID) *Player {
	if i := r.seatOfUnsafe(playerID); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// playerByRoleUnsafe returns the first seated player holding the role, or
// nil. Assumes lock is held.
func (r *Room) playerByRoleUnsafe(role Role) *Player {
	for _, p := range r.Players {
		if p.Role == role {
			return p
		}
	}
	return nil
}

// sendToUnsafe delivers a payload to one player. Assumes lock is held.
func (r *Room) sendToUnsafe(playerID uuid.UUID, payload interface{}) {
	if r.SendFn != nil {
		r.SendFn(playerID, payload)
	}
}

// sendErrorUnsafe reports a rejection to the offending player only.
// Assumes lock is held.
func (r *Room) sendErrorUnsafe(playerID uuid.UUID, message string) {
	r.sendToUnsafe(playerID, map[string]interface{}{
		"type":    "errorMessage",
		"message": message,
	})
}

// systemMessageUnsafe broadcasts an informational message room-wide.
// Assumes lock is held.
func (r *Room) systemMessageUnsafe(message string) {
	r.broadcastUnsafe(map[string]interface{}{
		"type":    "systemMessage",
		"message": message,
	})
}

// broadcastUnsafe sends the same payload to every seated player.
// Assumes lock is held.
func (r *Room) broadcastUnsafe(payload interface{}) {
	for _, p := range r.Players {
		r.sendToUnsafe(p.ID, payload)
	}
}

// broadcastStateUnsafe renders one personalized view per seated player
// and delivers each view only to its owner. Assumes lock is held.
func (r *Room) broadcastStateUnsafe() {
	for _, p := range r.Players {
		r.sendToUnsafe(p.ID, r.buildViewUnsafe(p.ID))
	}
}

// recordAction pushes an action record onto the journal asynchronously.
// Safe to call with a nil journal. Assumes lock is held (reads Code only).
func (r *Room) recordAction(actorID uuid.UUID, action string, payload map[string]interface{}) {
	if r.journal == nil {
		return
	}
	rec := journal.ActionRecord{
		RoomCode: r.Code,
		Action:   action,
		Payload:  payload,
	}
	if actorID != uuid.Nil {
		rec.ActorID = actorID.String()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.journal.Record(ctx, rec); err != nil {
			r.logger.Warnf("Room %s: failed to journal %s: %v", r.Code, action, err)
		}
	}()
}

// topCards returns the n highest-value cards of a sorted hand.
func topCards(hand []card.Card, n int) []card.Card {
	if n > len(hand) {
		n = len(hand)
	}
	out := make([]card.Card, n)
	copy(out, hand[len(hand)-n:])
	return out
}

// bottomCards returns the n lowest-value cards of a sorted hand.
func bottomCards(hand []card.Card, n int) []card.Card {
	if n > len(hand) {
		n = len(hand)
	}
	out := make([]card.Card, n)
	copy(out, hand[:n])
	return out
}
