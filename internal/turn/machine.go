// Package turn implements the state machine that tracks how far the current
// turn has progressed. Guards are pure functions of aggregate facts, so the
// order in which clients report does not matter; the machine is re-evaluated
// after every mutation and fires every transition whose guard holds.
package turn

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Phase is a state of the machine. Phases are ordered within a turn.
type Phase int

const (
	AwaitingInit Phase = iota
	AwaitingActiveMove
	ActiveMoved
	AllReacted
	TurnSettled
	GameEnded
)

var phaseNames = map[Phase]string{
	AwaitingInit:       "awaiting_init",
	AwaitingActiveMove: "awaiting_active_move",
	ActiveMoved:        "active_moved",
	AllReacted:         "all_reacted",
	TurnSettled:        "turn_settled",
	GameEnded:          "game_ended",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	if _, ok := phaseNames[p]; !ok {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Facts are the aggregate counts the guards read.
type Facts interface {
	// InitDone reports that every slot resolved an identity and the session is ready.
	InitDone() bool
	ActiveMoved() bool
	CustomersReplied() int
	Customers() int
	FirmResultsFetched() bool
}

// Settler closes a turn. closing is true when the game ends with it.
type Settler interface {
	Settle(closing bool)
}

// Transition records one fired edge.
type Transition struct {
	From, To Phase
}

// Machine is not safe for concurrent use; it belongs to the request router.
type Machine struct {
	phase         Phase
	stopRequested bool
	// closing is latched on entering AllReacted and decides how the turn settles.
	closing bool
	logger  *log.Logger
}

// New returns a machine waiting for initialisation.
func New(logger *log.Logger) *Machine {
	return Restore(AwaitingInit, false, false, logger)
}

// Restore returns a machine resumed from a persisted phase. A snapshot taken
// mid-settlement resumes at the start of the next turn. closing only counts
// when the turn was restored in AllReacted.
func Restore(phase Phase, stopRequested, closing bool, logger *log.Logger) *Machine {
	if phase == TurnSettled {
		phase = AwaitingActiveMove
	}
	return &Machine{
		phase:         phase,
		stopRequested: stopRequested,
		closing:       phase == AllReacted && closing,
		logger:        logger.WithPrefix("turn"),
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Ended reports whether the game is over.
func (m *Machine) Ended() bool { return m.phase == GameEnded }

// Open reports whether the gate for a class of calls is open in the current
// turn: the machine has reached gate and the game is still running.
func (m *Machine) Open(gate Phase) bool {
	return m.phase != GameEnded && m.phase >= gate
}

// RequestStop lets the running turn finish, then ends the game instead of
// opening a new turn. Before the first turn opens the next Evaluate ends the
// game directly.
func (m *Machine) RequestStop() {
	if !m.stopRequested {
		m.logger.Info("Stop requested, game ends after the current turn", "phase", m.phase)
	}
	m.stopRequested = true
}

// StopRequested reports whether a stop is pending or done.
func (m *Machine) StopRequested() bool { return m.stopRequested }

// Closing reports whether the turn in progress is the last one. It is fixed
// when the turn enters AllReacted; a stop requested later ends the next turn.
func (m *Machine) Closing() bool { return m.closing }

// Evaluate fires every transition whose guard holds, in order, settling the
// turn through s when all results are fetched.
func (m *Machine) Evaluate(f Facts, s Settler) []Transition {
	var fired []Transition
	for {
		next, ok := m.next(f)
		if !ok {
			return fired
		}
		fired = append(fired, m.enter(next))

		switch next {
		case AllReacted:
			m.closing = m.stopRequested
		case TurnSettled:
			closing := m.closing
			m.closing = false
			s.Settle(closing)
			if closing {
				fired = append(fired, m.enter(GameEnded))
				return fired
			}
			fired = append(fired, m.enter(AwaitingActiveMove))
		}
	}
}

func (m *Machine) next(f Facts) (Phase, bool) {
	switch m.phase {
	case AwaitingInit:
		// No turn has started, so a stop ends the session at once.
		if m.stopRequested {
			return GameEnded, true
		}
		return AwaitingActiveMove, f.InitDone()
	case AwaitingActiveMove:
		return ActiveMoved, f.ActiveMoved()
	case ActiveMoved:
		return AllReacted, f.CustomersReplied() == f.Customers()
	case AllReacted:
		return TurnSettled, f.FirmResultsFetched()
	default:
		return 0, false
	}
}

func (m *Machine) enter(p Phase) Transition {
	t := Transition{From: m.phase, To: p}
	m.phase = p
	m.logger.Debug("Phase change", "from", t.From, "to", t.To)
	return t
}
