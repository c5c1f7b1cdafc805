package game

import (
	"fmt"
	rand "math/rand/v2"
)

// Params are the economic constants of a session.
type Params struct {
	Firms              int `json:"n_firms"`
	Customers          int `json:"n_customers"`
	Positions          int `json:"n_positions"`
	Prices             int `json:"n_prices"`
	ExplorationCost    int `json:"exploration_cost"`
	UtilityConsumption int `json:"utility_consumption"`
}

// DefaultParams mirrors the parameters shipped with the original experiment.
func DefaultParams() Params {
	return Params{
		Firms:              2,
		Customers:          20,
		Positions:          21,
		Prices:             11,
		ExplorationCost:    1,
		UtilityConsumption: 20,
	}
}

// Agents is the number of slots in a session.
func (p Params) Agents() int {
	return p.Firms + p.Customers
}

// Validate checks the parameters can host a game.
func (p Params) Validate() error {
	if p.Firms != 2 {
		return fmt.Errorf("n_firms must be 2, got %d", p.Firms)
	}
	if p.Customers < 1 {
		return fmt.Errorf("n_customers must be positive, got %d", p.Customers)
	}
	if p.Positions <= p.Customers {
		return fmt.Errorf("n_positions (%d) must exceed n_customers (%d)", p.Positions, p.Customers)
	}
	if p.Prices < 1 {
		return fmt.Errorf("n_prices must be positive, got %d", p.Prices)
	}
	if p.ExplorationCost < 0 || p.UtilityConsumption < 0 {
		return fmt.Errorf("exploration_cost and utility_consumption must not be negative")
	}
	return nil
}

// ValidPosition reports whether x lies on the line.
func (p Params) ValidPosition(x int) bool {
	return x >= 0 && x < p.Positions
}

// ValidPrice reports whether price is within [1, n_prices].
func (p Params) ValidPrice(price int) bool {
	return price >= 1 && price <= p.Prices
}

// CustomerPosition is the fixed location of customer i.
func (p Params) CustomerPosition(i int) int {
	return i + 1
}

// Roles returns the role of every slot: firms first, then customers,
// shuffled by rng when it is not nil.
func (p Params) Roles(rng *rand.Rand) []Role {
	roles := make([]Role, 0, p.Agents())
	for range p.Firms {
		roles = append(roles, RoleFirm)
	}
	for range p.Customers {
		roles = append(roles, RoleCustomer)
	}
	if rng != nil {
		rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })
	}
	return roles
}
