package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/prize"
	"github.com/shopspring/decimal"
)

// Config holds the tunable parameters of a round. Every round copies the
// configuration that is live when it is created, so edits made through
// Engine.UpdateConfig only take effect from the next round.
type Config struct {
	DrawInterval          time.Duration
	CountdownDuration     time.Duration
	CardSelectionDuration time.Duration
	AnnouncementDuration  time.Duration
	MaxRoundDuration      time.Duration

	MinPlayers int
	MaxPlayers int

	// MaxCards bounds selectable card numbers to 1..MaxCards.
	MaxCards int
	// MaxDraws ends a round without a winner after this many draws. Zero
	// means the whole universe may be drawn.
	MaxDraws int

	BetAmount     prize.Amount
	PayoutPercent decimal.Decimal

	Layout card.Layout
}

// Validation bounds.
const (
	MinDrawInterval          = time.Second
	MaxDrawInterval          = 30 * time.Second
	MinAnnouncementDuration  = time.Second
	MaxAnnouncementDuration  = 30 * time.Second
	MinCardSelectionDuration = 5 * time.Second
	MaxCardSelectionDuration = 120 * time.Second
	MinCountdownDuration     = time.Second
	MaxCountdownDuration     = 30 * time.Second
	MinRoundDuration         = 30 * time.Second
	MaxRoundDuration         = 10 * time.Minute
	MaxPlayersLimit          = 1000
)

var ErrInvalidConfig = errors.New("invalid engine config")

// DefaultConfig returns the reference configuration: a 75-ball 5x5 game
// drawing every five seconds with an 85% payout.
func DefaultConfig() Config {
	return Config{
		DrawInterval:          5 * time.Second,
		CountdownDuration:     5 * time.Second,
		CardSelectionDuration: 30 * time.Second,
		AnnouncementDuration:  5 * time.Second,
		MaxRoundDuration:      5 * time.Minute,
		MinPlayers:            2,
		MaxPlayers:            400,
		MaxCards:              400,
		BetAmount:             10,
		PayoutPercent:         decimal.NewFromInt(85),
		Layout:                card.DefaultLayout(),
	}
}

// Validate checks every option against its permitted range.
func (c Config) Validate() error {
	var errs []error
	within := func(name string, v, lo, hi time.Duration) {
		if v < lo || v > hi {
			errs = append(errs, fmt.Errorf("%s must be between %s and %s, got %s", name, lo, hi, v))
		}
	}

	within("draw interval", c.DrawInterval, MinDrawInterval, MaxDrawInterval)
	within("announcement duration", c.AnnouncementDuration, MinAnnouncementDuration, MaxAnnouncementDuration)
	within("card selection duration", c.CardSelectionDuration, MinCardSelectionDuration, MaxCardSelectionDuration)
	within("countdown duration", c.CountdownDuration, MinCountdownDuration, MaxCountdownDuration)
	within("max round duration", c.MaxRoundDuration, MinRoundDuration, MaxRoundDuration)

	if c.MaxPlayers < 2 || c.MaxPlayers > MaxPlayersLimit {
		errs = append(errs, fmt.Errorf("max players must be between 2 and %d, got %d", MaxPlayersLimit, c.MaxPlayers))
	}
	if c.MinPlayers < 1 || c.MinPlayers > c.MaxPlayers {
		errs = append(errs, fmt.Errorf("min players must be between 1 and max players (%d), got %d", c.MaxPlayers, c.MinPlayers))
	}
	if c.MaxCards < c.MaxPlayers {
		errs = append(errs, fmt.Errorf("max cards (%d) must be at least max players (%d)", c.MaxCards, c.MaxPlayers))
	}
	if c.BetAmount < 0 {
		errs = append(errs, fmt.Errorf("bet amount must not be negative, got %d", c.BetAmount))
	}
	if err := prize.ValidatePercent(c.PayoutPercent); err != nil {
		errs = append(errs, err)
	}
	if err := c.Layout.Validate(); err != nil {
		errs = append(errs, err)
	} else {
		lo, hi := c.Layout.Universe()
		if c.MaxDraws < 0 || c.MaxDraws > hi-lo+1 {
			errs = append(errs, fmt.Errorf("max draws must be between 0 and %d, got %d", hi-lo+1, c.MaxDraws))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// clone returns a deep copy so a round's snapshot never aliases the live
// configuration.
func (c Config) clone() Config {
	c.Layout.Columns = slices.Clone(c.Layout.Columns)
	return c
}
