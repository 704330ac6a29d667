// internal/game/room_test.go
package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkgch/daifugo/internal/card"
)

// mockSink collects per-player payloads instead of sending them over WS.
type mockSink struct {
	mu     sync.Mutex
	events map[uuid.UUID][]interface{}
}

func newMockSink() *mockSink {
	return &mockSink{events: make(map[uuid.UUID][]interface{})}
}

func (m *mockSink) send(playerID uuid.UUID, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[playerID] = append(m.events[playerID], payload)
}

// lastOfType returns the most recent payload of the given message type sent
// to a player, matching both untyped maps and state views.
func (m *mockSink) lastOfType(playerID uuid.UUID, msgType string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events[playerID]
	for i := len(events) - 1; i >= 0; i-- {
		switch ev := events[i].(type) {
		case map[string]interface{}:
			if ev["type"] == msgType {
				return ev
			}
		case StateView:
			if ev.Type == msgType {
				return ev
			}
		}
	}
	return nil
}

func (m *mockSink) lastView(playerID uuid.UUID) *StateView {
	if v, ok := m.lastOfType(playerID, "updateState").(StateView); ok {
		return &v
	}
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// setupRoom seats n players in a fresh room. Deferred transitions are
// pushed out to an hour so tests observe stable state; timing tests
// shorten the delays explicitly.
func setupRoom(t *testing.T, n, limit int) (*Room, *mockSink) {
	t.Helper()
	room := NewRoom("123456", limit, testLogger(), nil)
	room.ExchangeDelay = time.Hour
	room.DealDelay = time.Hour
	room.ResetDelay = time.Hour
	sink := newMockSink()
	room.SendFn = sink.send

	for i := 0; i < n; i++ {
		_, err := room.AddPlayer(fmt.Sprintf("player%d", i))
		require.NoError(t, err)
	}
	return room, sink
}

// forcePlaying puts the room into a deterministic mid-round position.
func forcePlaying(room *Room, hands [][]card.Card, turn int) {
	room.Mu.Lock()
	defer room.Mu.Unlock()
	room.State = StatePlaying
	if room.RoundsPlayed == 0 {
		room.RoundsPlayed = 1
	}
	for i, p := range room.Players {
		p.Hand = hands[i]
		p.Status = StatusPlaying
	}
	room.TurnIndex = turn
	room.Field = nil
	room.LastPlay = nil
	room.PassCount = 0
	room.Ranks = nil
}

func TestAddPlayerHostAndLimits(t *testing.T) {
	room, _ := setupRoom(t, 4, 3)
	assert.Equal(t, room.Players[0].ID, room.HostID)

	_, err := room.AddPlayer("fifth")
	assert.ErrorIs(t, err, ErrRoomFull)

	room2, _ := setupRoom(t, 2, 3)
	room2.StartRound(room2.HostID)
	_, err = room2.AddPlayer("latecomer")
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestStartRoundDealsEverything(t *testing.T) {
	room, sink := setupRoom(t, 3, 3)
	room.StartRound(room.HostID)

	room.Mu.Lock()
	assert.Equal(t, StatePlaying, room.State)
	assert.Equal(t, 1, room.RoundsPlayed)
	assert.GreaterOrEqual(t, room.TurnIndex, 0)
	assert.Less(t, room.TurnIndex, 3)
	total := 0
	for _, p := range room.Players {
		total += len(p.Hand)
		assert.Equal(t, StatusPlaying, p.Status)
	}
	room.Mu.Unlock()
	assert.Equal(t, 53, total)

	// Each player's view carries only their own hand.
	a := room.Players[0]
	view := sink.lastView(a.ID)
	require.NotNil(t, view)
	for i, pv := range view.Players {
		assert.Equal(t, len(room.Players[i].Hand), pv.HandCount)
		if pv.ID == a.ID {
			assert.Len(t, pv.Hand, len(a.Hand))
		} else {
			assert.Nil(t, pv.Hand)
		}
	}
}

func TestStartRoundRejections(t *testing.T) {
	room, sink := setupRoom(t, 2, 3)
	guest := room.Players[1]

	room.StartRound(guest.ID)
	require.NotNil(t, sink.lastOfType(guest.ID, "errorMessage"))
	room.Mu.Lock()
	assert.Equal(t, StateWaiting, room.State)
	room.Mu.Unlock()

	solo, soloSink := setupRoom(t, 1, 3)
	solo.StartRound(solo.HostID)
	require.NotNil(t, soloSink.lastOfType(solo.HostID, "errorMessage"))
	solo.Mu.Lock()
	assert.Equal(t, StateWaiting, solo.State)
	solo.Mu.Unlock()
}

func TestPlayCardsOutOfTurn(t *testing.T) {
	room, sink := setupRoom(t, 2, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "9")},
	}, 0)
	b := room.Players[1]

	room.PlayCards(b.ID, []card.Card{card.New(card.SuitHearts, "9")})

	require.NotNil(t, sink.lastOfType(b.ID, "errorMessage"))
	room.Mu.Lock()
	assert.Nil(t, room.Field)
	assert.Len(t, b.Hand, 1)
	assert.Equal(t, 0, room.TurnIndex)
	room.Mu.Unlock()
}

func TestPlayCardsAppliesAndAdvances(t *testing.T) {
	room, _ := setupRoom(t, 3, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5"), card.New(card.SuitClubs, "9")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	a := room.Players[0]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "5")})

	room.Mu.Lock()
	require.Len(t, room.Field, 1)
	assert.Equal(t, "5", room.Field[0].Rank)
	require.NotNil(t, room.LastPlay)
	assert.Equal(t, a.ID, room.LastPlay.PlayerID)
	assert.Len(t, a.Hand, 1)
	assert.Equal(t, 1, room.TurnIndex)

	// Card conservation: hands plus field still account for every card.
	total := len(room.Field)
	for _, p := range room.Players {
		total += len(p.Hand)
	}
	room.Mu.Unlock()
	assert.Equal(t, 6, total)
}

func TestClearOnEightRetainsTurn(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "8"), card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "9"), card.New(card.SuitHearts, "J")},
	}, 0)
	a := room.Players[0]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "8")})

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Nil(t, room.Field)
	assert.Nil(t, room.LastPlay)
	assert.Equal(t, 0, room.TurnIndex, "the eight player leads again")
	assert.Equal(t, StatePlaying, room.State)
}

func TestClearOnEightAsFinishingPlay(t *testing.T) {
	// Finishing on an 8 cannot retain the turn; it moves on.
	room, _ := setupRoom(t, 3, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "8")},
		{card.New(card.SuitHearts, "9"), card.New(card.SuitHearts, "J")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	a := room.Players[0]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "8")})

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StatusFinished, a.Status)
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, StatePlaying, room.State)
	assert.Equal(t, 1, room.TurnIndex)
}

func TestPassClearsFieldWhenAllPassed(t *testing.T) {
	room, _ := setupRoom(t, 3, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5"), card.New(card.SuitClubs, "9")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	a, b, c := room.Players[0], room.Players[1], room.Players[2]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "5")})
	room.Pass(b.ID)
	room.Pass(c.ID)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Nil(t, room.Field)
	assert.Nil(t, room.LastPlay)
	assert.Equal(t, 0, room.PassCount)
	assert.Equal(t, 0, room.TurnIndex, "lead returns to the last play's owner")
	for _, p := range []*Player{a, b, c} {
		assert.Equal(t, StatusPlaying, p.Status)
	}
}

func TestRoundEndAutoFinishAndRoles(t *testing.T) {
	room, _ := setupRoom(t, 3, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	a, b, c := room.Players[0], room.Players[1], room.Players[2]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "5")})
	room.PlayCards(b.ID, []card.Card{card.New(card.SuitHearts, "J")})

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StateFinished, room.State)
	assert.Equal(t, -1, room.TurnIndex)
	require.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, room.Ranks)
	assert.Equal(t, StatusFinished, c.Status, "last active player auto-finishes")
	assert.Equal(t, 3, c.Rank)
	assert.Len(t, c.Hand, 2, "auto-finished hand keeps its cards until the next deal")

	assert.Equal(t, RoleRichest, a.Role)
	assert.Equal(t, RoleCommoner, b.Role)
	assert.Equal(t, RolePoorest, c.Role)
}

func TestNoPoorestRoleWithTwoPlayers(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
	}, 0)
	a, b := room.Players[0], room.Players[1]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "5")})

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StateFinished, room.State)
	assert.Equal(t, RoleRichest, a.Role)
	assert.Equal(t, RoleCommoner, b.Role)
}

func TestSeriesOverResetsAfterDelay(t *testing.T) {
	room, sink := setupRoom(t, 2, 1)
	room.ResetDelay = 20 * time.Millisecond
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
	}, 0)
	a := room.Players[0]

	room.PlayCards(a.ID, []card.Card{card.New(card.SuitClubs, "5")})
	require.NotNil(t, sink.lastOfType(a.ID, "seriesOver"))

	require.Eventually(t, func() bool {
		room.Mu.Lock()
		defer room.Mu.Unlock()
		return room.State == StateWaiting && room.RoundsPlayed == 0
	}, time.Second, 5*time.Millisecond)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	for _, p := range room.Players {
		assert.Nil(t, p.Hand)
		assert.Equal(t, RoleCommoner, p.Role)
	}
}

func TestContinueDecision(t *testing.T) {
	room, sink := setupRoom(t, 2, 0)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
	}, 0)
	host := room.Players[0]
	guest := room.Players[1]

	room.PlayCards(host.ID, []card.Card{card.New(card.SuitClubs, "5")})

	// Only the host is prompted.
	require.NotNil(t, sink.lastOfType(host.ID, "showContinueModal"))
	assert.Nil(t, sink.lastOfType(guest.ID, "showContinueModal"))

	// A guest cannot decide.
	room.ContinueGame(guest.ID, true)
	require.NotNil(t, sink.lastOfType(guest.ID, "errorMessage"))
	room.Mu.Lock()
	assert.Equal(t, StateFinished, room.State)
	room.Mu.Unlock()

	room.ContinueGame(host.ID, false)
	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StateWaiting, room.State)
	assert.Equal(t, 0, room.RoundsPlayed)
}

func TestContinueSkipsExchangeWithTwoPlayers(t *testing.T) {
	// Two players never produce a poorest role, so continuing deals the
	// next round immediately.
	room, _ := setupRoom(t, 2, 0)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
	}, 0)
	host := room.Players[0]

	room.PlayCards(host.ID, []card.Card{card.New(card.SuitClubs, "5")})
	room.ContinueGame(host.ID, true)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StatePlaying, room.State)
	assert.Equal(t, 2, room.RoundsPlayed)
	total := 0
	for _, p := range room.Players {
		total += len(p.Hand)
	}
	assert.Equal(t, 53, total)
}

func TestContinueRunsExchangePipeline(t *testing.T) {
	room, _ := setupRoom(t, 3, 0)
	room.ExchangeDelay = 10 * time.Millisecond
	room.DealDelay = 10 * time.Millisecond
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	host := room.Players[0]
	poorest := room.Players[2]

	room.PlayCards(host.ID, []card.Card{card.New(card.SuitClubs, "5")})
	room.PlayCards(room.Players[1].ID, []card.Card{card.New(card.SuitHearts, "J")})
	room.ContinueGame(host.ID, true)

	room.Mu.Lock()
	assert.Equal(t, StateExchange, room.State)
	room.Mu.Unlock()

	require.Eventually(t, func() bool {
		room.Mu.Lock()
		defer room.Mu.Unlock()
		return room.State == StatePlaying && room.RoundsPlayed == 2
	}, time.Second, 5*time.Millisecond)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, poorest.ID, room.Players[room.TurnIndex].ID, "poorest leads the next round")
}

func TestExchangeTransfersCards(t *testing.T) {
	room, _ := setupRoom(t, 3, 3)
	rich, mid, poor := room.Players[0], room.Players[1], room.Players[2]

	room.Mu.Lock()
	room.State = StateExchange
	rich.Role = RoleRichest
	poor.Role = RolePoorest
	rich.Hand = []card.Card{
		card.New(card.SuitDiamonds, "5"),
		card.New(card.SuitDiamonds, "6"),
		card.New(card.SuitDiamonds, "Q"),
		card.New(card.SuitDiamonds, "K"),
	}
	mid.Hand = []card.Card{card.New(card.SuitHearts, "7")}
	poor.Hand = []card.Card{
		card.New(card.SuitClubs, "3"),
		card.New(card.SuitClubs, "4"),
		card.New(card.SuitClubs, "A"),
		card.New(card.SuitClubs, "2"),
	}
	room.performExchangeUnsafe(rich.ID, poor.ID)
	room.Mu.Unlock()

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.ElementsMatch(t, []card.Card{
		card.New(card.SuitDiamonds, "Q"),
		card.New(card.SuitDiamonds, "K"),
		card.New(card.SuitClubs, "A"),
		card.New(card.SuitClubs, "2"),
	}, rich.Hand, "richest keeps their top cards and gains the tribute")
	assert.ElementsMatch(t, []card.Card{
		card.New(card.SuitClubs, "3"),
		card.New(card.SuitClubs, "4"),
		card.New(card.SuitDiamonds, "5"),
		card.New(card.SuitDiamonds, "6"),
	}, poor.Hand, "poorest receives the richest's lowest cards")
	assert.Len(t, mid.Hand, 1, "bystanders are untouched")
}

func TestRemovePlayerHostAndTurnTransfer(t *testing.T) {
	room, _ := setupRoom(t, 3, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5"), card.New(card.SuitClubs, "9")},
		{card.New(card.SuitHearts, "J"), card.New(card.SuitHearts, "K")},
		{card.New(card.SuitSpades, "3"), card.New(card.SuitSpades, "4")},
	}, 0)
	host, b, c := room.Players[0], room.Players[1], room.Players[2]

	room.RemovePlayer(host.ID)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, b.ID, room.HostID, "host moves to the first remaining seat")
	assert.Equal(t, StatePlaying, room.State, "round continues with two players left")
	assert.Equal(t, b.ID, room.Players[room.TurnIndex].ID, "turn moves past the removed seat")
	assert.Len(t, room.Players, 2)
	assert.Equal(t, c.ID, room.Players[1].ID)
}

func TestRemovePlayerBelowMinimumResets(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J")},
	}, 0)

	room.RemovePlayer(room.Players[1].ID)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, StateWaiting, room.State)
	assert.Equal(t, 0, room.RoundsPlayed)
	assert.Equal(t, -1, room.TurnIndex)
	assert.Nil(t, room.Players[0].Hand)
}

func TestRemoveLastPlayerSignalsEmpty(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)
	var emptied []string
	room.OnEmpty = func(code string) { emptied = append(emptied, code) }

	room.RemovePlayer(room.Players[0].ID)
	assert.Empty(t, emptied)

	room.RemovePlayer(room.Players[0].ID)
	assert.Equal(t, []string{"123456"}, emptied)
}

func TestRemoveUnknownPlayerIsNoop(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)
	room.RemovePlayer(uuid.New())

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Len(t, room.Players, 2)
	assert.Equal(t, StateWaiting, room.State)
}

func TestStaleTimerIgnoredAfterReset(t *testing.T) {
	room, _ := setupRoom(t, 2, 3)

	fired := make(chan struct{}, 1)
	room.Mu.Lock()
	room.scheduleUnsafe(10*time.Millisecond, func() {
		fired <- struct{}{}
	})
	room.resetToWaitingUnsafe() // bumps the epoch, invalidating the timer
	room.Mu.Unlock()

	select {
	case <-fired:
		t.Fatal("stale timer callback ran after a reset")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSyncPlayerSendsPersonalView(t *testing.T) {
	room, sink := setupRoom(t, 2, 3)
	forcePlaying(room, [][]card.Card{
		{card.New(card.SuitClubs, "5")},
		{card.New(card.SuitHearts, "J")},
	}, 0)
	a, b := room.Players[0], room.Players[1]

	room.SyncPlayer(b.ID)

	view := sink.lastView(b.ID)
	require.NotNil(t, view)
	assert.Equal(t, b.ID, view.You)
	for _, pv := range view.Players {
		if pv.ID == b.ID {
			assert.Equal(t, []card.Card{card.New(card.SuitHearts, "J")}, pv.Hand)
		} else {
			assert.Nil(t, pv.Hand)
			assert.Equal(t, pv.ID, a.ID)
		}
	}

	// Unknown players get nothing.
	room.SyncPlayer(uuid.New())
}
