package card

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// CellKind distinguishes numbered cells from the free centre square.
type CellKind uint8

const (
	CellNumber CellKind = iota
	CellFree
)

// Cell is a single square on a card. The zero value is not a valid cell;
// construct cells with Number or Free.
type Cell struct {
	kind  CellKind
	value int
}

// Number returns a numbered cell.
func Number(n int) Cell { return Cell{kind: CellNumber, value: n} }

// Free returns the free sentinel cell.
func Free() Cell { return Cell{kind: CellFree} }

// Kind reports whether the cell is numbered or free.
func (c Cell) Kind() CellKind { return c.kind }

// IsFree reports whether the cell is the free sentinel.
func (c Cell) IsFree() bool { return c.kind == CellFree }

// Value returns the cell's number and true, or 0 and false for the free cell.
func (c Cell) Value() (int, bool) {
	if c.kind == CellFree {
		return 0, false
	}
	return c.value, true
}

// String renders the cell as its number or "FREE".
func (c Cell) String() string {
	if c.kind == CellFree {
		return "FREE"
	}
	return strconv.Itoa(c.value)
}

// MarshalText encodes the cell the same way String does so that cards
// serialise to readable JSON.
func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a cell previously encoded by MarshalText.
func (c *Cell) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "FREE" {
		*c = Free()
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid cell %q: %w", s, err)
	}
	*c = Number(n)
	return nil
}

// Card is a square grid stored column-major: Columns[col][row].
type Card struct {
	Number  int      `json:"number"`
	Columns [][]Cell `json:"columns"`
}

// Size returns the grid dimension.
func (c Card) Size() int { return len(c.Columns) }

// At returns the cell at the given row and column.
func (c Card) At(row, col int) Cell { return c.Columns[col][row] }

// Contains reports whether n appears as a numbered cell.
func (c Card) Contains(n int) bool {
	for _, column := range c.Columns {
		for _, cell := range column {
			if v, ok := cell.Value(); ok && v == n {
				return true
			}
		}
	}
	return false
}

// Numbers returns every numbered cell in column-major order.
func (c Card) Numbers() []int {
	out := make([]int, 0, len(c.Columns)*len(c.Columns))
	for _, column := range c.Columns {
		for _, cell := range column {
			if v, ok := cell.Value(); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// Equal reports whether two cards have identical cells.
func (c Card) Equal(other Card) bool {
	if c.Number != other.Number || len(c.Columns) != len(other.Columns) {
		return false
	}
	for i := range c.Columns {
		if !slices.Equal(c.Columns[i], other.Columns[i]) {
			return false
		}
	}
	return true
}

// String renders the card row by row, for logs and debugging.
func (c Card) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "card #%d\n", c.Number)
	for row := 0; row < c.Size(); row++ {
		for col := 0; col < c.Size(); col++ {
			if col > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%4s", c.At(row, col))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
