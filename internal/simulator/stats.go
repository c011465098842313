package simulator

import (
	"math"
	"slices"

	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
)

// Result is the outcome of one simulated round.
type Result struct {
	RoundID   string          `json:"roundId"`
	Reason    string          `json:"reason"`
	Players   int             `json:"players"`
	Draws     int             `json:"draws"`
	Pool      prize.Amount    `json:"pool"`
	Residual  prize.Amount    `json:"residual"`
	Winners   []engine.Winner `json:"winners,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
}

// Statistics accumulates round results
type Statistics struct {
	Results []Result

	Completed int
	Cancelled int

	SumDraws  float64
	SumDraws2 float64 // Sum of squares for variance calculation

	Paid  prize.Amount
	House prize.Amount

	// Patterns counts winning patterns by name. Split pots count each
	// winner.
	Patterns map[string]int
	// Wins counts wins by player.
	Wins map[string]int
}

// Add records one round.
func (s *Statistics) Add(r Result) {
	s.Results = append(s.Results, r)
	if r.Cancelled {
		s.Cancelled++
		return
	}

	s.Completed++
	d := float64(r.Draws)
	s.SumDraws += d
	s.SumDraws2 += d * d
	s.House += r.Residual

	if s.Patterns == nil {
		s.Patterns = make(map[string]int)
		s.Wins = make(map[string]int)
	}
	for _, w := range r.Winners {
		s.Paid += w.Share
		s.Patterns[w.Pattern]++
		s.Wins[w.PlayerID]++
	}
}

// Rounds returns the number of rounds recorded.
func (s *Statistics) Rounds() int { return len(s.Results) }

// MeanDraws returns the mean number of draws per completed round
func (s *Statistics) MeanDraws() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.SumDraws / float64(s.Completed)
}

// VarianceDraws returns the sample variance of draws per completed round
func (s *Statistics) VarianceDraws() float64 {
	if s.Completed < 2 {
		return 0
	}
	mean := s.MeanDraws()
	return (s.SumDraws2 - float64(s.Completed)*mean*mean) / float64(s.Completed-1)
}

// StdDevDraws returns the sample standard deviation of draws per round
func (s *Statistics) StdDevDraws() float64 {
	return math.Sqrt(s.VarianceDraws())
}

// PatternNames returns the winning pattern names, most frequent first.
func (s *Statistics) PatternNames() []string {
	names := make([]string, 0, len(s.Patterns))
	for name := range s.Patterns {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := s.Patterns[b] - s.Patterns[a]; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		return 1
	})
	return names
}
