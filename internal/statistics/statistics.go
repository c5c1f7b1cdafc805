// Package statistics summarises the history of a session: how far apart the
// firms settled, how far customers looked and what everybody earned.
package statistics

import (
	"math"
	"sort"

	"github.com/lox/hotelling/internal/game"
)

// Series accumulates one numeric measure over turns.
type Series struct {
	N      int
	Sum    float64
	Sum2   float64 // Sum of squares for variance calculation
	Values []float64
}

// Add incorporates a new observation.
func (s *Series) Add(v float64) {
	s.N++
	s.Sum += v
	s.Sum2 += v * v
	s.Values = append(s.Values, v)
}

// Mean returns the arithmetic mean
func (s *Series) Mean() float64 {
	if s.N == 0 {
		return 0
	}
	return s.Sum / float64(s.N)
}

// Variance returns the sample variance
func (s *Series) Variance() float64 {
	if s.N < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.Sum2 - float64(s.N)*mean*mean) / float64(s.N-1)
}

// StdDev returns the sample standard deviation
func (s *Series) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Median returns the median observation
func (s *Series) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// TurnStats summarises one settled turn.
type TurnStats struct {
	Turn          int     `yaml:"turn"`
	Distance      int     `yaml:"distance"`
	Positions     []int   `yaml:"positions,flow"`
	Prices        []int   `yaml:"prices,flow"`
	Profits       []int   `yaml:"profits,flow"`
	MeanExtraView float64 `yaml:"mean_extra_view"`
	MeanUtility   float64 `yaml:"mean_utility"`
	Unserved      int     `yaml:"unserved"`
	GameEnding    bool    `yaml:"game_ending,omitempty"`
}

// SeriesSummary is the printable form of a Series.
type SeriesSummary struct {
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
	Median float64 `yaml:"median"`
}

func (s *Series) Summary() SeriesSummary {
	return SeriesSummary{Mean: s.Mean(), StdDev: s.StdDev(), Median: s.Median()}
}

// Report is the statistics of a whole session.
type Report struct {
	Turns       int           `yaml:"turns"`
	Distance    SeriesSummary `yaml:"distance"`
	ExtraView   SeriesSummary `yaml:"extra_view"`
	Utility     SeriesSummary `yaml:"utility"`
	TotalProfit []int         `yaml:"total_profit,flow"`
	PerTurn     []TurnStats   `yaml:"per_turn,omitempty"`
}

// ForTurn computes the statistics of settled turn n.
func ForTurn(n int, h game.Turn) TurnStats {
	st := TurnStats{
		Turn:       n,
		Distance:   game.Distance(h),
		Positions:  append([]int(nil), h.FirmPositions...),
		Prices:     append([]int(nil), h.FirmPrices...),
		Profits:    append([]int(nil), h.FirmProfits...),
		GameEnding: h.GameEnding,
	}
	if c := len(h.CustomerExtraViews); c > 0 {
		views, utility := 0, 0
		for i := range h.CustomerExtraViews {
			views += h.CustomerExtraViews[i]
			utility += h.CustomerUtilities[i]
			if h.CustomerFirmChoices[i] == game.NoFirm {
				st.Unserved++
			}
		}
		st.MeanExtraView = float64(views) / float64(c)
		st.MeanUtility = float64(utility) / float64(c)
	}
	return st
}

// Compute builds the report for a history. perTurn keeps the turn by turn
// breakdown.
func Compute(history []game.Turn, perTurn bool) Report {
	var distance, views, utility Series
	r := Report{Turns: len(history)}

	for n, h := range history {
		st := ForTurn(n, h)
		distance.Add(float64(st.Distance))
		views.Add(st.MeanExtraView)
		utility.Add(st.MeanUtility)
		if perTurn {
			r.PerTurn = append(r.PerTurn, st)
		}
	}
	if len(history) > 0 {
		r.TotalProfit = append([]int(nil), history[len(history)-1].FirmCumulativeProfits...)
	}

	r.Distance = distance.Summary()
	r.ExtraView = views.Summary()
	r.Utility = utility.Summary()
	return r
}
