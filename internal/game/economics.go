package game

// Utility is what customer gets from choosing firm with a view radius of
// extraView. Exploring costs exploration_cost per unit of radius whether or
// not the customer buys.
func Utility(p Params, t Turn, extraView, firm int) int {
	cost := p.ExplorationCost * extraView
	if firm == NoFirm {
		return -cost
	}
	return p.UtilityConsumption - t.FirmPrices[firm] - cost
}

// Clients counts the customers that chose firm.
func Clients(t Turn, firm int) int {
	n := 0
	for _, c := range t.CustomerFirmChoices {
		if c == firm {
			n++
		}
	}
	return n
}

// Profit is the revenue of firm for the turn: clients times price.
func Profit(t Turn, firm int) int {
	return Clients(t, firm) * t.FirmPrices[firm]
}

// Distance is the gap between the two firms.
func Distance(t Turn) int {
	if len(t.FirmPositions) < 2 {
		return 0
	}
	d := t.FirmPositions[0] - t.FirmPositions[1]
	if d < 0 {
		d = -d
	}
	return d
}
