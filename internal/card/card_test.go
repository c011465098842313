package card

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	first := Generate(42)
	for i := 0; i < 10; i++ {
		again := Generate(42)
		require.True(t, first.Equal(again), "generate(42) run %d differs:\n%s\n%s", i, first, again)
	}
}

func TestGenerateColumnRanges(t *testing.T) {
	t.Parallel()

	layout := DefaultLayout()
	seeds := []int{0, 1, 42, 400, -1, -233281, 1 << 40}

	for _, seed := range seeds {
		c := layout.Generate(seed)
		require.NoError(t, layout.ValidateCard(c), "seed %d", seed)

		for col, column := range c.Columns {
			r := layout.Columns[col]
			seen := map[int]bool{}
			for row, cell := range column {
				if row == 2 && col == 2 {
					assert.True(t, cell.IsFree(), "seed %d: centre must be free", seed)
					continue
				}
				v, ok := cell.Value()
				require.True(t, ok, "seed %d: only the centre may be free", seed)
				assert.GreaterOrEqual(t, v, r.Min)
				assert.LessOrEqual(t, v, r.Max)
				assert.False(t, seen[v], "seed %d: %d repeated in column %s", seed, v, r.Label)
				seen[v] = true
			}
		}
	}
}

func TestGenerateColumnsSorted(t *testing.T) {
	t.Parallel()

	c := Generate(7)
	for col, column := range c.Columns {
		prev := 0
		for _, cell := range column {
			v, ok := cell.Value()
			if !ok {
				continue
			}
			assert.Greater(t, v, prev, "column %d not ascending", col)
			prev = v
		}
	}
}

func TestGenerateSeed42FirstColumn(t *testing.T) {
	t.Parallel()

	c := Generate(42)
	assert.Equal(t, 42, c.Number)
	for _, cell := range c.Columns[0] {
		v, ok := cell.Value()
		require.True(t, ok)
		assert.True(t, v >= 1 && v <= 15, "column B value %d out of range", v)
	}
}

func TestNegativeSeedsAreDeterministic(t *testing.T) {
	t.Parallel()

	a := Generate(-5)
	b := Generate(-5)
	assert.True(t, a.Equal(b))
	assert.NoError(t, DefaultLayout().ValidateCard(a))
}

func TestDifferentSeedsDiffer(t *testing.T) {
	t.Parallel()

	assert.False(t, Generate(1).Equal(Generate(2)))
}

func TestCardContainsAndNumbers(t *testing.T) {
	t.Parallel()

	c := Generate(3)
	nums := c.Numbers()
	assert.Len(t, nums, 24)
	for _, n := range nums {
		assert.True(t, c.Contains(n))
	}
	assert.False(t, c.Contains(0))
	assert.False(t, c.Contains(76))
}

func TestCellJSONRoundTrip(t *testing.T) {
	t.Parallel()

	c := Generate(11)
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FREE"`)

	var decoded Card
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, c.Equal(decoded))
}

func TestLayoutValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{name: "default", layout: DefaultLayout()},
		{
			name:    "column count mismatch",
			layout:  Layout{Size: 5, Columns: DefaultLayout().Columns[:4]},
			wantErr: true,
		},
		{
			name: "range too narrow",
			layout: Layout{Size: 3, Columns: []Column{
				{Label: "A", Min: 1, Max: 2},
				{Label: "B", Min: 3, Max: 10},
				{Label: "C", Min: 11, Max: 20},
			}},
			wantErr: true,
		},
		{
			name: "overlapping ranges",
			layout: Layout{Size: 3, Columns: []Column{
				{Label: "A", Min: 1, Max: 10},
				{Label: "B", Min: 10, Max: 20},
				{Label: "C", Min: 21, Max: 30},
			}},
			wantErr: true,
		},
		{
			name: "even grid without free cell",
			layout: Layout{Size: 4, Columns: []Column{
				{Label: "A", Min: 1, Max: 10},
				{Label: "B", Min: 11, Max: 20},
				{Label: "C", Min: 21, Max: 30},
				{Label: "D", Min: 31, Max: 40},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.layout.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLayout)
				return
			}
			require.NoError(t, err)
			c := tt.layout.Generate(9)
			assert.NoError(t, tt.layout.ValidateCard(c))
		})
	}
}

func TestEvenLayoutHasNoFreeCell(t *testing.T) {
	t.Parallel()

	l := Layout{Size: 4, Columns: []Column{
		{Label: "A", Min: 1, Max: 10},
		{Label: "B", Min: 11, Max: 20},
		{Label: "C", Min: 21, Max: 30},
		{Label: "D", Min: 31, Max: 40},
	}}
	assert.Len(t, l.Generate(5).Numbers(), 16)
}

func TestLetterForAndCall(t *testing.T) {
	t.Parallel()

	l := DefaultLayout()
	assert.Equal(t, "B", l.LetterFor(1))
	assert.Equal(t, "N", l.LetterFor(45))
	assert.Equal(t, "O", l.LetterFor(75))
	assert.Equal(t, "", l.LetterFor(76))
	assert.Equal(t, "G-52", l.Call(52))

	lo, hi := l.Universe()
	assert.Equal(t, 1, lo)
	assert.Equal(t, 75, hi)
}

func TestValidateCardRejectsTampering(t *testing.T) {
	t.Parallel()

	l := DefaultLayout()
	c := l.Generate(12)
	c.Columns[0][0] = Number(99)
	assert.ErrorIs(t, l.ValidateCard(c), ErrInvalidCard)

	c = l.Generate(12)
	c.Columns[2][2] = Number(33)
	assert.ErrorIs(t, l.ValidateCard(c), ErrInvalidCard)
}
