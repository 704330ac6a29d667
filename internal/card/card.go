// internal/card/card.go
package card

import (
	"math/rand"
	"sort"
	"time"
)

// Suit identifies a card's suit. The joker carries its own pseudo-suit so
// that (Suit, Rank) uniquely identifies every card in the 53-card deck.
type Suit string

const (
	SuitClubs    Suit = "clubs"
	SuitDiamonds Suit = "diamonds"
	SuitHearts   Suit = "hearts"
	SuitSpades   Suit = "spades"
	SuitJoker    Suit = "joker"
)

// RankJoker is the rank string used for the single joker.
const RankJoker = "joker"

// Card is an immutable rank/suit/value triple. Value is the Daifugo
// strength: 3 is weakest (1), 2 is the strongest numbered rank (13), and
// the joker beats everything (15). Suit never affects strength, only the
// deterministic sort order of a hand.
type Card struct {
	Suit  Suit   `json:"suit"`
	Rank  string `json:"rank"`
	Value int    `json:"value"`
}

// ranks in deck enumeration order, weakest to strongest.
var ranks = []string{"3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A", "2"}

var rankValues = map[string]int{
	"3": 1, "4": 2, "5": 3, "6": 4, "7": 5, "8": 6, "9": 7, "10": 8,
	"J": 9, "Q": 10, "K": 11, "A": 12, "2": 13,
	RankJoker: 15,
}

// suitOrder is the fixed tie-break used when sorting hands. The ordering
// itself is cosmetic; it only has to be total and stable.
var suitOrder = map[Suit]int{
	SuitClubs:    0,
	SuitDiamonds: 1,
	SuitHearts:   2,
	SuitSpades:   3,
	SuitJoker:    4,
}

// ValueOf returns the strength for a rank, or 0 for an unknown rank.
func ValueOf(rank string) int {
	return rankValues[rank]
}

// New builds a card for the given suit and rank with its fixed value.
func New(suit Suit, rank string) Card {
	return Card{Suit: suit, Rank: rank, Value: rankValues[rank]}
}

// NewDeck returns the full 53-card deck (4 suits x 13 ranks plus one
// joker) in fixed enumeration order. Callers shuffle before dealing.
func NewDeck() []Card {
	deck := make([]Card, 0, 53)
	for _, suit := range []Suit{SuitClubs, SuitDiamonds, SuitHearts, SuitSpades} {
		for _, rank := range ranks {
			deck = append(deck, New(suit, rank))
		}
	}
	deck = append(deck, New(SuitJoker, RankJoker))
	return deck
}

// Shuffle permutes the deck in place with a Fisher-Yates shuffle, uniform
// over all orderings.
func Shuffle(deck []Card) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// Deal splits the deck round-robin into n hands starting from hand 0.
// With 53 cards the hand sizes differ by at most one.
func Deal(deck []Card, n int) [][]Card {
	hands := make([][]Card, n)
	for i := range hands {
		hands[i] = make([]Card, 0, len(deck)/n+1)
	}
	for i, c := range deck {
		hands[i%n] = append(hands[i%n], c)
	}
	return hands
}

// SortHand orders a hand in place by value ascending, breaking ties with
// the fixed suit order. The ordering is total: no two distinct deck cards
// compare equal.
func SortHand(hand []Card) {
	sort.SliceStable(hand, func(i, j int) bool {
		if hand[i].Value != hand[j].Value {
			return hand[i].Value < hand[j].Value
		}
		return suitOrder[hand[i].Suit] < suitOrder[hand[j].Suit]
	})
}

// HasRank reports whether any card in cards carries the given rank.
func HasRank(cards []Card, rank string) bool {
	for _, c := range cards {
		if c.Rank == rank {
			return true
		}
	}
	return false
}

// AnchorValue returns the strength a set of cards plays at: the value of
// the first non-joker card, or the joker value when the set is all jokers.
// Returns 0 for an empty set.
func AnchorValue(cards []Card) int {
	if len(cards) == 0 {
		return 0
	}
	for _, c := range cards {
		if c.Rank != RankJoker {
			return c.Value
		}
	}
	return cards[0].Value
}
