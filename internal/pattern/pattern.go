// Package pattern decides whether a marked card forms a winning pattern.
//
// Patterns are evaluated in a fixed order so results are reproducible when a
// card satisfies several at once: rows top to bottom, columns left to right,
// the main diagonal, the anti-diagonal, the four corners, then full house.
// Only the first match is reported by Evaluate.
package pattern

import (
	"fmt"

	"github.com/lox/bingohall/internal/card"
)

// Kind identifies a family of winning patterns.
type Kind uint8

const (
	Row Kind = iota + 1
	Column
	MainDiagonal
	AntiDiagonal
	FourCorners
	FullHouse
)

func (k Kind) String() string {
	switch k {
	case Row:
		return "horizontal-line"
	case Column:
		return "vertical-line"
	case MainDiagonal:
		return "diagonal-main"
	case AntiDiagonal:
		return "diagonal-anti"
	case FourCorners:
		return "four-corners"
	case FullHouse:
		return "full-house"
	default:
		return "unknown"
	}
}

// Pattern is a specific winning configuration. Index is the zero-based row
// or column for Row and Column patterns and zero otherwise. Label is the
// column label used when naming column patterns.
type Pattern struct {
	Kind  Kind   `json:"kind"`
	Index int    `json:"index"`
	Label string `json:"label,omitempty"`
}

// Name returns the stable, human readable pattern name, e.g.
// "horizontal-line-1", "vertical-line-B", "four-corners".
func (p Pattern) Name() string {
	switch p.Kind {
	case Row:
		return fmt.Sprintf("horizontal-line-%d", p.Index+1)
	case Column:
		if p.Label != "" {
			return "vertical-line-" + p.Label
		}
		return fmt.Sprintf("vertical-line-%d", p.Index+1)
	default:
		return p.Kind.String()
	}
}

func (p Pattern) String() string { return p.Name() }

// Marked is the set of numbers a player has marked.
type Marked map[int]struct{}

// Has reports whether n is marked.
func (m Marked) Has(n int) bool {
	_, ok := m[n]
	return ok
}

// Detector evaluates cards for a given layout. The layout supplies column
// labels for pattern names.
type Detector struct {
	layout card.Layout
}

// NewDetector returns a detector for cards in layout.
func NewDetector(layout card.Layout) *Detector {
	return &Detector{layout: layout}
}

// Evaluate returns the first pattern satisfied by c given marked.
func (d *Detector) Evaluate(c card.Card, marked Marked) (Pattern, bool) {
	for _, p := range d.candidates(c.Size()) {
		if satisfied(c, marked, cells(c.Size(), p)) {
			return p, true
		}
	}
	return Pattern{}, false
}

// EvaluateAll returns every satisfied pattern in evaluation order.
func (d *Detector) EvaluateAll(c card.Card, marked Marked) []Pattern {
	var out []Pattern
	for _, p := range d.candidates(c.Size()) {
		if satisfied(c, marked, cells(c.Size(), p)) {
			out = append(out, p)
		}
	}
	return out
}

// Numbers returns the numbered cells that make up p on c, skipping the
// free cell.
func Numbers(c card.Card, p Pattern) []int {
	var out []int
	for _, pos := range cells(c.Size(), p) {
		if v, ok := c.At(pos.row, pos.col).Value(); ok {
			out = append(out, v)
		}
	}
	return out
}

// Evaluate checks c against the default layout.
func Evaluate(c card.Card, marked Marked) (Pattern, bool) {
	return NewDetector(card.DefaultLayout()).Evaluate(c, marked)
}

func (d *Detector) candidates(size int) []Pattern {
	out := make([]Pattern, 0, 2*size+4)
	for row := 0; row < size; row++ {
		out = append(out, Pattern{Kind: Row, Index: row})
	}
	for col := 0; col < size; col++ {
		p := Pattern{Kind: Column, Index: col}
		if col < len(d.layout.Columns) {
			p.Label = d.layout.Columns[col].Label
		}
		out = append(out, p)
	}
	return append(out,
		Pattern{Kind: MainDiagonal},
		Pattern{Kind: AntiDiagonal},
		Pattern{Kind: FourCorners},
		Pattern{Kind: FullHouse},
	)
}

type position struct{ row, col int }

func cells(size int, p Pattern) []position {
	var out []position
	switch p.Kind {
	case Row:
		for col := 0; col < size; col++ {
			out = append(out, position{p.Index, col})
		}
	case Column:
		for row := 0; row < size; row++ {
			out = append(out, position{row, p.Index})
		}
	case MainDiagonal:
		for i := 0; i < size; i++ {
			out = append(out, position{i, i})
		}
	case AntiDiagonal:
		for i := 0; i < size; i++ {
			out = append(out, position{i, size - 1 - i})
		}
	case FourCorners:
		last := size - 1
		out = append(out, position{0, 0}, position{0, last}, position{last, 0}, position{last, last})
	case FullHouse:
		for row := 0; row < size; row++ {
			for col := 0; col < size; col++ {
				out = append(out, position{row, col})
			}
		}
	}
	return out
}

func satisfied(c card.Card, marked Marked, positions []position) bool {
	for _, pos := range positions {
		cell := c.At(pos.row, pos.col)
		switch cell.Kind() {
		case card.CellFree:
			continue
		case card.CellNumber:
			v, _ := cell.Value()
			if !marked.Has(v) {
				return false
			}
		}
	}
	return true
}
