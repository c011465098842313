// Package prize computes prize pools and splits them between winners.
//
// Amounts are integers in the smallest currency unit. Splitting floors each
// share to a whole unit; the remainder is retained by the house and reported
// as Residual rather than redistributed.
package prize

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a sum of money in the smallest currency unit.
type Amount int64

// Decimal converts a to a decimal value in minor units.
func (a Amount) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(a)) }

var hundred = decimal.NewFromInt(100)

// Pool returns the share of stakes allocated to winners, floored to a whole
// unit. percent is expressed out of 100.
func Pool(stakes Amount, percent decimal.Decimal) Amount {
	if stakes <= 0 || !percent.IsPositive() {
		return 0
	}
	return Amount(stakes.Decimal().Mul(percent).Div(hundred).Floor().IntPart())
}

// ValidatePercent checks that a payout percentage lies within 0-100.
func ValidatePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return fmt.Errorf("payout percentage %s outside 0-100", percent)
	}
	return nil
}

// Share is one winner's portion of a settled pool.
type Share struct {
	PlayerID string `json:"playerId"`
	Amount   Amount `json:"amount"`
}

// Settlement is the immutable result of splitting a pool.
type Settlement struct {
	Pool     Amount  `json:"pool"`
	Shares   []Share `json:"shares"`
	Residual Amount  `json:"residual"`
}

// Paid returns the total distributed to winners.
func (s Settlement) Paid() Amount {
	var total Amount
	for _, sh := range s.Shares {
		total += sh.Amount
	}
	return total
}

// Distribute splits pool equally between winners. With no winners nothing
// is distributed and the whole pool is reported as residual.
func Distribute(pool Amount, winners []string) Settlement {
	s := Settlement{Pool: pool, Shares: make([]Share, 0, len(winners))}
	if len(winners) == 0 || pool <= 0 {
		s.Residual = max(pool, 0)
		for _, w := range winners {
			s.Shares = append(s.Shares, Share{PlayerID: w})
		}
		return s
	}

	each := pool / Amount(len(winners))
	for _, w := range winners {
		s.Shares = append(s.Shares, Share{PlayerID: w, Amount: each})
	}
	s.Residual = pool - each*Amount(len(winners))
	return s
}
