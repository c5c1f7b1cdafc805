package game

import (
	"fmt"
	rand "math/rand/v2"
)

// Store is the turn store: the current turn and the history of settled ones.
// It is not safe for concurrent use; a single owner mutates it.
type Store struct {
	params  Params
	Current Turn
	History []Turn
}

// NewStore opens turn 0. Starting firm positions and prices are drawn from rng.
func NewStore(p Params, rng *rand.Rand) *Store {
	cur := newTurn(p)
	for i := range cur.FirmPositions {
		cur.FirmPositions[i] = rng.IntN(p.Positions)
		cur.FirmPrices[i] = 1 + rng.IntN(p.Prices)
	}
	return &Store{params: p, Current: cur}
}

// RestoreStore rebuilds a store from persisted state.
func RestoreStore(p Params, current Turn, history []Turn) (*Store, error) {
	if !current.Validate(p) {
		return nil, fmt.Errorf("current turn does not match parameters")
	}
	for i, h := range history {
		if !h.Validate(p) {
			return nil, fmt.Errorf("history turn %d does not match parameters", i)
		}
	}
	return &Store{params: p, Current: current, History: history}, nil
}

// Params returns the session parameters.
func (s *Store) Params() Params { return s.params }

// Number is the current turn number, equal to the history length.
func (s *Store) Number() int { return len(s.History) }

// At returns the settled turn t.
func (s *Store) At(t int) (Turn, bool) {
	if t < 0 || t >= len(s.History) {
		return Turn{}, false
	}
	return s.History[t], true
}

// Previous returns the last settled turn, if any.
func (s *Store) Previous() (Turn, bool) {
	return s.At(len(s.History) - 1)
}

// Settle closes the current turn: it is appended to the history, firms swap
// status and the report flags are cleared. closing marks the final turn.
func (s *Store) Settle(closing bool) {
	snap := s.Current.Clone()
	snap.GameEnding = closing
	s.History = append(s.History, snap)

	for i, st := range s.Current.FirmStatuses {
		s.Current.FirmStatuses[i] = st.Swap()
	}
	s.Current.Reports = newReports(s.params)
	s.Current.GameEnding = false
}
