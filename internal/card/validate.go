// internal/card/validate.go
package card

import "errors"

// Rejection reasons returned by ValidatePlay, ordered by check priority.
// They are player-facing: callers forward the message to the offending
// client and leave room state untouched.
var (
	ErrEmptySelection = errors.New("no cards selected")
	ErrCardNotInHand  = errors.New("selected card is not in your hand")
	ErrMixedRanks     = errors.New("all cards in a play must share one rank")
	ErrCountMismatch  = errors.New("play must match the number of cards on the field")
	ErrTooWeak        = errors.New("play must be stronger than the field")
)

// ValidatePlay decides whether attempt is a legal play given the actor's
// hand and the cards currently on the field. Checks run in a fixed order
// and short-circuit on the first failure. The function is pure: it never
// mutates hand or field; the room applies the removal on success.
func ValidatePlay(attempt, hand, field []Card) error {
	if len(attempt) == 0 {
		return ErrEmptySelection
	}

	// Multiset containment by (suit, rank) identity. Duplicates in the
	// attempt beyond the hand's count must fail.
	held := make(map[Card]int, len(hand))
	for _, c := range hand {
		held[Card{Suit: c.Suit, Rank: c.Rank, Value: c.Value}]++
	}
	for _, c := range attempt {
		key := Card{Suit: c.Suit, Rank: c.Rank, Value: c.Value}
		if held[key] == 0 {
			return ErrCardNotInHand
		}
		held[key]--
	}

	// All non-joker cards must share the anchor rank.
	anchor := ""
	for _, c := range attempt {
		if c.Rank == RankJoker {
			continue
		}
		if anchor == "" {
			anchor = c.Rank
		} else if c.Rank != anchor {
			return ErrMixedRanks
		}
	}

	if len(field) > 0 {
		if len(attempt) != len(field) {
			return ErrCountMismatch
		}
		if AnchorValue(attempt) <= AnchorValue(field) {
			return ErrTooWeak
		}
	}
	return nil
}
