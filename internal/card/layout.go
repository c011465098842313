package card

import (
	"errors"
	"fmt"
	"slices"
)

// Column describes the numeric sub-range a card column draws from.
type Column struct {
	Label string
	Min   int
	Max   int
}

// Width returns the number of values the column range admits.
func (c Column) Width() int { return c.Max - c.Min + 1 }

// Layout is the card shape: a Size x Size grid whose columns draw from
// disjoint ranges. The centre cell is free when Size is odd.
type Layout struct {
	Size    int
	Columns []Column
}

var (
	ErrInvalidLayout = errors.New("invalid card layout")
	ErrInvalidCard   = errors.New("invalid card")
)

// DefaultLayout returns the classic 75-ball B/I/N/G/O layout.
func DefaultLayout() Layout {
	return Layout{
		Size: 5,
		Columns: []Column{
			{Label: "B", Min: 1, Max: 15},
			{Label: "I", Min: 16, Max: 30},
			{Label: "N", Min: 31, Max: 45},
			{Label: "G", Min: 46, Max: 60},
			{Label: "O", Min: 61, Max: 75},
		},
	}
}

// Validate checks the layout is usable for card generation.
func (l Layout) Validate() error {
	if l.Size < 1 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidLayout, l.Size)
	}
	if len(l.Columns) != l.Size {
		return fmt.Errorf("%w: %d columns for a %dx%d grid", ErrInvalidLayout, len(l.Columns), l.Size, l.Size)
	}

	sorted := slices.Clone(l.Columns)
	slices.SortFunc(sorted, func(a, b Column) int { return a.Min - b.Min })
	for i, c := range sorted {
		if c.Min < 1 || c.Max < c.Min {
			return fmt.Errorf("%w: column %q has range %d-%d", ErrInvalidLayout, c.Label, c.Min, c.Max)
		}
		if c.Width() < l.Size {
			return fmt.Errorf("%w: column %q range %d-%d cannot hold %d distinct values",
				ErrInvalidLayout, c.Label, c.Min, c.Max, l.Size)
		}
		if i > 0 && c.Min <= sorted[i-1].Max {
			return fmt.Errorf("%w: column %q overlaps column %q", ErrInvalidLayout, c.Label, sorted[i-1].Label)
		}
	}
	return nil
}

// Universe returns the lowest and highest number any column can hold.
func (l Layout) Universe() (lo, hi int) {
	for i, c := range l.Columns {
		if i == 0 || c.Min < lo {
			lo = c.Min
		}
		if c.Max > hi {
			hi = c.Max
		}
	}
	return lo, hi
}

// HasFree reports whether cards in this layout carry a free centre.
func (l Layout) HasFree() bool { return l.Size%2 == 1 }

// Centre returns the index of the centre row and column.
func (l Layout) Centre() int { return l.Size / 2 }

// LetterFor returns the label of the column whose range contains n, or ""
// when n falls outside every column.
func (l Layout) LetterFor(n int) string {
	for _, c := range l.Columns {
		if n >= c.Min && n <= c.Max {
			return c.Label
		}
	}
	return ""
}

// Call formats a drawn number the way a caller announces it, e.g. "B-12".
func (l Layout) Call(n int) string {
	if letter := l.LetterFor(n); letter != "" {
		return fmt.Sprintf("%s-%d", letter, n)
	}
	return fmt.Sprintf("%d", n)
}

// ValidateCard checks that c is structurally valid for this layout.
func (l Layout) ValidateCard(c Card) error {
	if c.Size() != l.Size {
		return fmt.Errorf("%w: size %d, want %d", ErrInvalidCard, c.Size(), l.Size)
	}
	for col, column := range c.Columns {
		if len(column) != l.Size {
			return fmt.Errorf("%w: column %d has %d cells", ErrInvalidCard, col, len(column))
		}
		seen := make(map[int]struct{}, l.Size)
		for row, cell := range column {
			if l.HasFree() && row == l.Centre() && col == l.Centre() {
				if !cell.IsFree() {
					return fmt.Errorf("%w: centre cell is %s", ErrInvalidCard, cell)
				}
				continue
			}
			v, ok := cell.Value()
			if !ok {
				return fmt.Errorf("%w: free cell at row %d column %d", ErrInvalidCard, row, col)
			}
			r := l.Columns[col]
			if v < r.Min || v > r.Max {
				return fmt.Errorf("%w: %d outside column %q range %d-%d", ErrInvalidCard, v, r.Label, r.Min, r.Max)
			}
			if _, dup := seen[v]; dup {
				return fmt.Errorf("%w: %d repeated in column %q", ErrInvalidCard, v, r.Label)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}
