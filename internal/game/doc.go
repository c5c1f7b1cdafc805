// Package game holds the data model of a hotelling session: the roles taken
// by each slot, the economic parameters, the mutable record of the turn being
// played and the append-only history of settled turns.
//
// # Turns
//
// A Store keeps exactly one Turn as its current state and a slice of settled
// turns. The current turn number is always the length of the history:
//
//	s := game.NewStore(params, rng)
//	s.Number()          // 0
//	s.Settle(false)     // turn 0 is appended, firms swap status
//	s.Number()          // 1
//	past, _ := s.At(0)  // the snapshot clients replay from
//
// Settling copies the current turn into the history, swaps the Active and
// Passive firm statuses and clears the per-turn report flags. Economic values
// (prices, positions, cumulative scores) carry over to the next turn.
//
// # Economics
//
// Utility and Profit reproduce the scoring of the original experiment. They
// are pure functions of a Turn and the session Params; the request router
// decides when to apply them.
package game
