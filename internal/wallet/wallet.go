// Package wallet implements the engine's wallet gateway: stake debits,
// prize credits and refunds, backed by Redis or by memory.
package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
)

// EntryType distinguishes ledger movements.
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// Entry is one ledger line.
type Entry struct {
	Type    EntryType    `json:"type"`
	Amount  prize.Amount `json:"amount"`
	Balance prize.Amount `json:"balance"`
	At      time.Time    `json:"at"`
}

var ErrInvalidAmount = errors.New("amount must be positive")

func insufficient(playerID string, balance, amount prize.Amount) error {
	return fmt.Errorf("%w: %s has %d, needs %d", engine.ErrInsufficientFunds, playerID, balance, amount)
}

func validate(playerID string, amount prize.Amount) error {
	if playerID == "" {
		return errors.New("player ID cannot be empty")
	}
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	return nil
}
