package bot

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/hotelling/internal/game"
)

// FirmView is what an active firm knows when it picks a move.
type FirmView struct {
	Turn     int
	Position int
	Price    int
	// OpponentKnown is false until the firm has seen a move of its opponent.
	OpponentKnown    bool
	OpponentPosition int
	OpponentPrice    int
	Positions        int
	Prices           int
}

// CustomerView is what a customer knows when it picks a firm.
type CustomerView struct {
	Turn               int
	Position           int
	ExplorationCost    int
	UtilityConsumption int
	FirmPositions      []int
	FirmPrices         []int
	Positions          int
}

// Policy decides the moves of a bot.
type Policy interface {
	FirmMove(v FirmView) (position, price int, err error)
	CustomerChoice(v CustomerView) (extraView, firm int, err error)
}

// Policy names accepted by NewPolicy.
const (
	PolicyRandom = "random"
	PolicyGreedy = "greedy"
	PolicyLua    = "lua"
)

// NewPolicy builds a policy by name. script is the Lua source file for the
// lua policy.
func NewPolicy(name string, rng *rand.Rand, script string) (Policy, error) {
	switch name {
	case PolicyRandom:
		return &RandomPolicy{rng: rng}, nil
	case PolicyGreedy:
		return GreedyPolicy{}, nil
	case PolicyLua:
		if script == "" {
			return nil, fmt.Errorf("lua policy needs a script")
		}
		return LoadLuaPolicy(script)
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// RandomPolicy plays like the lab's test bots: firms draw a uniform move,
// customers draw a view radius and buy the cheapest firm in sight.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

func (p *RandomPolicy) FirmMove(v FirmView) (int, int, error) {
	return p.rng.IntN(v.Positions), 1 + p.rng.IntN(v.Prices), nil
}

func (p *RandomPolicy) CustomerChoice(v CustomerView) (int, int, error) {
	view := p.rng.IntN(v.Positions)

	best, cheapest := []int(nil), 0
	for f, x := range v.FirmPositions {
		if abs(x-v.Position) > view {
			continue
		}
		switch price := v.FirmPrices[f]; {
		case best == nil || price < cheapest:
			best, cheapest = []int{f}, price
		case price == cheapest:
			best = append(best, f)
		}
	}
	if best == nil {
		return view, game.NoFirm, nil
	}
	return view, best[p.rng.IntN(len(best))], nil
}

// GreedyPolicy plays a myopic best response. Customers look exactly as far
// as the firm that leaves them the most utility and stay home when no firm
// is worth it. Active firms undercut their opponent next to the centre of
// the line.
type GreedyPolicy struct{}

func (GreedyPolicy) FirmMove(v FirmView) (int, int, error) {
	centre := v.Positions / 2
	if !v.OpponentKnown {
		return centre, max(1, (v.Prices+1)/2), nil
	}

	position := centre
	if v.OpponentPosition == centre {
		// Share the centre from the longer side.
		position = centre + 1
		if position >= v.Positions {
			position = centre - 1
		}
		position = max(position, 0)
	}
	return position, max(1, v.OpponentPrice-1), nil
}

func (GreedyPolicy) CustomerChoice(v CustomerView) (int, int, error) {
	bestView, bestFirm, bestUtility := 0, game.NoFirm, 0
	for f, x := range v.FirmPositions {
		d := abs(x - v.Position)
		if d >= v.Positions {
			continue
		}
		u := v.UtilityConsumption - v.FirmPrices[f] - v.ExplorationCost*d
		if u > bestUtility {
			bestView, bestFirm, bestUtility = d, f, u
		}
	}
	return bestView, bestFirm, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
