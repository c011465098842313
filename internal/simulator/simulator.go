// Package simulator drives an engine with scripted players and collects
// per-round outcomes.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/lox/bingohall/internal/engine"
)

// Rounds is the part of the engine the simulator plays against.
type Rounds interface {
	Join(ctx context.Context, req engine.JoinRequest) (engine.JoinResult, error)
	Claim(playerID string) error
	Status() engine.Status
	Bus() engine.EventBus
}

// Config holds configuration for running simulations
type Config struct {
	// Rounds is the number of completed or cancelled rounds to observe.
	Rounds  int
	Players []string
	// MaxCards is the highest card number players pick from. Zero takes
	// the lowest free card.
	MaxCards int
	Seed     int64
	Logger   *log.Logger
}

// Simulator runs scripted players through engine rounds
type Simulator struct {
	config Config
	rounds Rounds
	rng    *rand.Rand
	logger *log.Logger
}

// New creates a new simulator with the given configuration
func New(rounds Rounds, config Config) *Simulator {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Simulator{
		config: config,
		rounds: rounds,
		rng:    rand.New(rand.NewPCG(uint64(config.Seed), uint64(config.Seed)^0x9e3779b97f4a7c15)),
		logger: logger.WithPrefix("simulator"),
	}
}

// Run plays until the configured number of rounds has ended and returns
// what happened in each.
func (s *Simulator) Run(ctx context.Context) (*Statistics, error) {
	if s.config.Rounds <= 0 {
		return nil, errors.New("rounds must be positive")
	}
	if len(s.config.Players) == 0 {
		return nil, errors.New("at least one player is required")
	}

	events := make(chan engine.Event, 1024)
	unsubscribe := s.rounds.Bus().Subscribe(engine.SubscriberFunc(func(ev engine.Event) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("Dropping event, simulator is behind", "type", ev.EventType())
		}
	}))
	defer unsubscribe()

	stats := &Statistics{}
	joined := make(map[string]int)
	if st := s.rounds.Status(); st.Phase == engine.PhaseCardSelection && !st.Halted {
		joined[st.RoundID] = s.joinAll(ctx, st.RoundID)
	}

	for stats.Rounds() < s.config.Rounds {
		var ev engine.Event
		select {
		case ev = <-events:
		case <-ctx.Done():
			return stats, ctx.Err()
		}

		switch ev := ev.(type) {
		case engine.PhaseChangedEvent:
			if _, seen := joined[ev.Round]; !seen && ev.Phase == engine.PhaseCardSelection {
				joined[ev.Round] = s.joinAll(ctx, ev.Round)
			}
		case engine.RoundEndedEvent:
			for _, w := range ev.Winners {
				if err := s.rounds.Claim(w.PlayerID); err != nil {
					s.logger.Debug("Claim failed", "round", ev.Round, "player", w.PlayerID, "error", err)
				}
			}
			stats.Add(Result{
				RoundID:  ev.Round,
				Reason:   string(ev.Reason),
				Players:  joined[ev.Round],
				Draws:    len(ev.DrawnNumbers),
				Pool:     ev.PrizePool,
				Residual: ev.Residual,
				Winners:  ev.Winners,
			})
			delete(joined, ev.Round)
		case engine.RoundCancelledEvent:
			stats.Add(Result{
				RoundID:   ev.Round,
				Reason:    ev.Reason,
				Players:   joined[ev.Round],
				Cancelled: true,
			})
			delete(joined, ev.Round)
		}
	}
	return stats, nil
}

// joinAll seats every player that can afford the round and returns how
// many made it.
func (s *Simulator) joinAll(ctx context.Context, roundID string) int {
	seated := 0
	for _, id := range s.config.Players {
		req := engine.JoinRequest{PlayerID: id}
		if s.config.MaxCards > 0 {
			n := 1 + s.rng.IntN(s.config.MaxCards)
			req.CardNumber = &n
		}

		_, err := s.rounds.Join(ctx, req)
		if errors.Is(err, engine.ErrCardTaken) {
			req.CardNumber = nil
			_, err = s.rounds.Join(ctx, req)
		}
		switch {
		case err == nil:
			seated++
		case errors.Is(err, engine.ErrInsufficientFunds):
			s.logger.Info("Player is out of funds", "round", roundID, "player", id)
		default:
			s.logger.Debug("Join failed", "round", roundID, "player", id, "error", err)
		}
	}
	s.logger.Debug("Players seated", "round", roundID, "seated", seated)
	return seated
}

// Summary renders a one-line description of stats.
func Summary(stats *Statistics) string {
	return fmt.Sprintf("%d rounds (%d completed, %d cancelled), %.1f ± %.1f draws, %d paid, %d house",
		stats.Rounds(), stats.Completed, stats.Cancelled, stats.MeanDraws(), stats.StdDevDraws(),
		stats.Paid, stats.House)
}
