package card

import "slices"

// Parameters of the linear congruential generator used for card seeds.
// The modulus admits a full period with these constants, so every column
// eventually sees each value in its range.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

type lcg struct{ state int64 }

func newLCG(seed int64) *lcg {
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	return &lcg{state: s}
}

// next returns a value in [0, 1).
func (g *lcg) next() float64 {
	g.state = (g.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(g.state) / lcgModulus
}

// Generate builds the card for seed using the default layout.
func Generate(seed int) Card {
	return DefaultLayout().Generate(seed)
}

// Generate builds a card as a pure function of seed. Any integer is a valid
// seed, including zero and negative values: the seed is reduced into the
// generator's range first, so the same seed always yields the same card.
// The card's Number is the seed itself.
//
// The layout must have passed Validate.
func (l Layout) Generate(seed int) Card {
	rng := newLCG(int64(seed))
	columns := make([][]Cell, l.Size)

	for col, r := range l.Columns {
		values := make([]int, 0, l.Size)
		for len(values) < l.Size {
			n := r.Min + int(rng.next()*float64(r.Width()))
			if !slices.Contains(values, n) {
				values = append(values, n)
			}
		}
		slices.Sort(values)

		cells := make([]Cell, l.Size)
		for row, v := range values {
			cells[row] = Number(v)
		}
		columns[col] = cells
	}

	if l.HasFree() {
		columns[l.Centre()][l.Centre()] = Free()
	}

	return Card{Number: seed, Columns: columns}
}
