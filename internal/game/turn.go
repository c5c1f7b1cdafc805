package game

import "slices"

// NoFirm is the choice of a customer who buys from nobody.
const NoFirm = -1

// Reports records which slots already supplied their input or fetched their
// result for the turn in progress. They drive the turn machine and make
// write calls idempotent.
type Reports struct {
	ActiveMoved     bool   `json:"active_moved"`
	CustomerReplied []bool `json:"customer_replied"`
	FirmResults     []bool `json:"firm_results"`
}

// Turn is one record of a session's facts. The store keeps one mutable Turn
// for the turn in progress; settled turns are frozen copies.
type Turn struct {
	FirmPositions         []int    `json:"firm_positions"`
	FirmPrices            []int    `json:"firm_prices"`
	FirmStatuses          []Status `json:"firm_statuses"`
	FirmClients           []int    `json:"firm_clients"`
	FirmProfits           []int    `json:"firm_profits"`
	FirmCumulativeProfits []int    `json:"firm_cumulative_profits"`

	CustomerExtraViews          []int `json:"customer_extra_view_choices"`
	CustomerFirmChoices         []int `json:"customer_firm_choices"`
	CustomerUtilities           []int `json:"customer_utility"`
	CustomerCumulativeUtilities []int `json:"customer_cumulative_utility"`

	// GameEnding is set on the last settled turn of a session.
	GameEnding bool    `json:"game_ending,omitempty"`
	Reports    Reports `json:"reports"`
}

func newTurn(p Params) Turn {
	t := Turn{
		FirmPositions:         make([]int, p.Firms),
		FirmPrices:            make([]int, p.Firms),
		FirmStatuses:          make([]Status, p.Firms),
		FirmClients:           make([]int, p.Firms),
		FirmProfits:           make([]int, p.Firms),
		FirmCumulativeProfits: make([]int, p.Firms),

		CustomerExtraViews:          make([]int, p.Customers),
		CustomerFirmChoices:         make([]int, p.Customers),
		CustomerUtilities:           make([]int, p.Customers),
		CustomerCumulativeUtilities: make([]int, p.Customers),
	}
	for i := range t.FirmStatuses {
		t.FirmStatuses[i] = StatusPassive
	}
	t.FirmStatuses[0] = StatusActive
	for i := range t.CustomerFirmChoices {
		t.CustomerFirmChoices[i] = NoFirm
	}
	t.Reports = newReports(p)
	return t
}

func newReports(p Params) Reports {
	return Reports{
		CustomerReplied: make([]bool, p.Customers),
		FirmResults:     make([]bool, p.Firms),
	}
}

// Clone returns a deep copy.
func (t Turn) Clone() Turn {
	c := t
	c.FirmPositions = slices.Clone(t.FirmPositions)
	c.FirmPrices = slices.Clone(t.FirmPrices)
	c.FirmStatuses = slices.Clone(t.FirmStatuses)
	c.FirmClients = slices.Clone(t.FirmClients)
	c.FirmProfits = slices.Clone(t.FirmProfits)
	c.FirmCumulativeProfits = slices.Clone(t.FirmCumulativeProfits)
	c.CustomerExtraViews = slices.Clone(t.CustomerExtraViews)
	c.CustomerFirmChoices = slices.Clone(t.CustomerFirmChoices)
	c.CustomerUtilities = slices.Clone(t.CustomerUtilities)
	c.CustomerCumulativeUtilities = slices.Clone(t.CustomerCumulativeUtilities)
	c.Reports.CustomerReplied = slices.Clone(t.Reports.CustomerReplied)
	c.Reports.FirmResults = slices.Clone(t.Reports.FirmResults)
	return c
}

// ActiveFirm returns the index of the firm moving this turn, or -1.
func (t Turn) ActiveFirm() int {
	return slices.Index(t.FirmStatuses, StatusActive)
}

// Opponent returns the other firm's index.
func (t Turn) Opponent(firm int) int {
	return (firm + 1) % len(t.FirmStatuses)
}

// CustomersReplied counts customers that committed a choice.
func (t Turn) CustomersReplied() int {
	n := 0
	for _, ok := range t.Reports.CustomerReplied {
		if ok {
			n++
		}
	}
	return n
}

// FirmResultsFetched reports whether every firm fetched its result.
func (t Turn) FirmResultsFetched() bool {
	return !slices.Contains(t.Reports.FirmResults, false)
}

// Validate checks slice lengths against p, used when restoring a snapshot.
func (t Turn) Validate(p Params) bool {
	firms := [][]int{t.FirmPositions, t.FirmPrices, t.FirmClients, t.FirmProfits, t.FirmCumulativeProfits}
	for _, s := range firms {
		if len(s) != p.Firms {
			return false
		}
	}
	customers := [][]int{t.CustomerExtraViews, t.CustomerFirmChoices, t.CustomerUtilities, t.CustomerCumulativeUtilities}
	for _, s := range customers {
		if len(s) != p.Customers {
			return false
		}
	}
	return len(t.FirmStatuses) == p.Firms &&
		len(t.Reports.CustomerReplied) == p.Customers &&
		len(t.Reports.FirmResults) == p.Firms
}
