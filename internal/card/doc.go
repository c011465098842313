// Package card generates and validates bingo cards.
//
// A card is a square grid whose columns each draw from a disjoint numeric
// range. Cards are reproducible: Generate is a pure function of its seed, so
// a card number is enough to rebuild a player's card without storing it.
//
//	layout := card.DefaultLayout()
//	c := layout.Generate(42)
//	fmt.Println(c)
//
// The centre cell of odd-sized cards is the free sentinel, modelled as a
// distinct Cell kind rather than a magic number.
package card
