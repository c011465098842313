package engine

//go:generate mockgen -package=mocks -destination=mocks/mock_gateway.go github.com/lox/bingohall/internal/engine Wallet,Store

import (
	"context"

	"github.com/lox/bingohall/internal/prize"
)

// Wallet moves stakes and prizes. Implementations return an error wrapping
// ErrInsufficientFunds when a debit cannot be covered.
type Wallet interface {
	Debit(ctx context.Context, playerID string, amount prize.Amount) error
	Credit(ctx context.Context, playerID string, amount prize.Amount) error
}

// Store receives settled rounds. The engine calls it asynchronously and
// only logs failures.
type Store interface {
	SaveCompletedRound(ctx context.Context, round RoundSnapshot) error
}
