// Package draw picks bingo numbers without replacement.
package draw

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"time"
)

// ErrExhausted is returned once every number in the universe has been drawn.
var ErrExhausted = errors.New("draw universe exhausted")

// Drawer draws uniformly from [Min, Max] excluding numbers already drawn.
// It keeps no state of its own; the caller owns the drawn set.
//
// A Drawer is not safe for concurrent use because the underlying rand.Rand
// is not; the round engine serialises every draw.
type Drawer struct {
	min, max int
	rng      *rand.Rand
}

// New returns a drawer over [lo, hi] using rng. A nil rng falls back to a
// time-seeded generator.
func New(lo, hi int, rng *rand.Rand) (*Drawer, error) {
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("invalid draw universe %d-%d", lo, hi)
	}
	if rng == nil {
		rng = NewRand(time.Now().UnixNano())
	}
	return &Drawer{min: lo, max: hi, rng: rng}, nil
}

// Size returns how many numbers the universe holds.
func (d *Drawer) Size() int { return d.max - d.min + 1 }

// Remaining returns how many numbers have not been drawn yet.
func (d *Drawer) Remaining(drawn map[int]struct{}) int {
	n := 0
	for v := d.min; v <= d.max; v++ {
		if _, ok := drawn[v]; !ok {
			n++
		}
	}
	return n
}

// Draw returns a number not present in drawn, or ErrExhausted when the
// complement is empty. It never mutates drawn.
func (d *Drawer) Draw(drawn map[int]struct{}) (int, error) {
	available := make([]int, 0, d.Size())
	for v := d.min; v <= d.max; v++ {
		if _, ok := drawn[v]; !ok {
			available = append(available, v)
		}
	}
	if len(available) == 0 {
		return 0, ErrExhausted
	}
	return available[d.rng.IntN(len(available))], nil
}
