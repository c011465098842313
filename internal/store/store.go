// Package store persists completed rounds for later lookup.
package store

import (
	"errors"
	"slices"

	"github.com/lox/bingohall/internal/engine"
)

// ErrRoundNotFound is returned when a round is not found
var ErrRoundNotFound = errors.New("round not found")

// DefaultListLimit is used when ListRecent is given a non-positive limit.
const DefaultListLimit = 20

func validateSnapshot(round engine.RoundSnapshot) error {
	if round.ID == "" {
		return errors.New("round ID cannot be empty")
	}
	if round.EndedAt.IsZero() {
		return errors.New("round has not ended")
	}
	return nil
}

// newestFirst orders snapshots by end time, most recent first.
func newestFirst(rounds []engine.RoundSnapshot) {
	slices.SortStableFunc(rounds, func(a, b engine.RoundSnapshot) int {
		return b.EndedAt.Compare(a.EndedAt)
	})
}
