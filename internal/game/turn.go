// internal/game/turn.go
package game

// nextTurn scans forward circularly from fromIndex+1 and returns the seat
// of the first player whose status is playing. The second return value is
// false when no such player exists, which callers must treat as
// round-over; hitting it mid-round indicates a prior bug upstream.
//
// fromIndex itself may refer to a seat that is no longer eligible (the
// player just finished or passed); the sequencer only reads statuses and
// never mutates.
func nextTurn(players []*Player, fromIndex int) (int, bool) {
	n := len(players)
	if n == 0 {
		return 0, false
	}
	for offset := 1; offset <= n; offset++ {
		idx := ((fromIndex+offset)%n + n) % n
		if players[idx].Status == StatusPlaying {
			return idx, true
		}
	}
	return 0, false
}

// countByStatus returns how many players currently hold the given status.
func countByStatus(players []*Player, status PlayerStatus) int {
	count := 0
	for _, p := range players {
		if p.Status == status {
			count++
		}
	}
	return count
}
