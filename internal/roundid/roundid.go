// Package roundid generates sortable round identifiers.
//
// IDs are UUIDv7 values encoded as 26 lowercase characters of Crockford's
// base32, so they sort by creation time both as strings and as UUIDs.
package roundid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the number of characters in an encoded ID.
const Length = 26

// Generator creates round IDs, optionally from a fixed entropy source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading entropy from r. A nil reader uses
// crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// New creates a round ID from crypto/rand.
func New() string {
	return NewGenerator(nil).New()
}

// New creates a round ID. It panics only if the entropy source fails, which
// for crypto/rand means the process cannot continue safely anyway.
func (g *Generator) New() string {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewV7FromReader(g.rand)
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		panic("roundid: " + err.Error())
	}
	return Encode(id)
}

// Encode renders a UUID as a 26-character base32 string.
func Encode(id uuid.UUID) string {
	result := make([]byte, Length)
	// 130 bits of output for 128 bits of input: the two leading bits are
	// always zero, which is why the first character never exceeds '7'.
	for i := 0; i < Length; i++ {
		bitOffset := i*5 - 2
		var value uint8
		for b := 0; b < 5; b++ {
			bit := bitOffset + b
			if bit < 0 {
				continue
			}
			if id[bit/8]&(0x80>>(bit%8)) != 0 {
				value |= 0x10 >> b
			}
		}
		result[i] = alphabet[value]
	}
	return string(result)
}

// Decode parses an ID produced by Encode.
func Decode(s string) (uuid.UUID, error) {
	var id uuid.UUID
	if err := Validate(s); err != nil {
		return id, err
	}
	for i := 0; i < Length; i++ {
		value := uint8(strings.IndexByte(alphabet, s[i]))
		for b := 0; b < 5; b++ {
			bit := i*5 - 2 + b
			if bit < 0 {
				continue
			}
			if value&(0x10>>b) != 0 {
				id[bit/8] |= 0x80 >> (bit % 8)
			}
		}
	}
	return id, nil
}

// Validate checks if a round ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("round ID must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("round ID first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}
