package engine

import (
	"context"
	"errors"

	"github.com/lox/bingohall/internal/pattern"
	"github.com/lox/bingohall/internal/prize"
)

// Join enters the player into the round in card selection. The stake is
// debited without the engine lock held; if the round moved on while the
// debit was in flight the stake is credited back before Join returns.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	if req.PlayerID == "" {
		return JoinResult{}, rejectf(ErrUnknownPlayer, "player id is required")
	}

	e.mu.Lock()
	r, cardNumber, err := e.reserve(req)
	e.mu.Unlock()
	if err != nil {
		return JoinResult{}, err
	}

	bet := r.settings.BetAmount
	if bet > 0 {
		if err := e.wallet.Debit(ctx, req.PlayerID, bet); err != nil {
			e.mu.Lock()
			delete(r.reserved, req.PlayerID)
			e.mu.Unlock()

			if errors.Is(err, ErrInsufficientFunds) {
				return JoinResult{}, rejectf(ErrInsufficientFunds, "insufficient funds for a stake of %d", bet)
			}
			e.logger.Error("Stake debit failed", "round", r.id, "player", req.PlayerID, "error", err)
			return JoinResult{}, external(err, "could not take stake")
		}
	}

	e.mu.Lock()
	res, err := e.commitJoin(r, req, cardNumber, bet)
	e.mu.Unlock()

	if err != nil && bet > 0 {
		if cerr := e.wallet.Credit(context.WithoutCancel(ctx), req.PlayerID, bet); cerr != nil {
			e.logger.Error("Join compensation failed", "round", r.id, "player", req.PlayerID, "amount", bet, "error", cerr)
		}
	}
	return res, err
}

// reserve validates a join and holds its seat and card number while the
// stake is debited. Must hold e.mu.
func (e *Engine) reserve(req JoinRequest) (*round, int, error) {
	if err := e.checkRunning(); err != nil {
		return nil, 0, err
	}
	r := e.round
	if r.phase != PhaseCardSelection {
		return nil, 0, rejectf(ErrWrongPhase, "cannot join during %s", r.phase)
	}
	if _, ok := r.byID[req.PlayerID]; ok {
		return nil, 0, rejectf(ErrAlreadyJoined, "player %s has already joined this round", req.PlayerID)
	}
	if _, ok := r.reserved[req.PlayerID]; ok {
		return nil, 0, rejectf(ErrAlreadyJoined, "player %s is already joining this round", req.PlayerID)
	}
	if r.seats() >= r.settings.MaxPlayers {
		return nil, 0, exhaustedf(ErrRoundFull, "round is full (%d players)", r.settings.MaxPlayers)
	}

	var n int
	if req.CardNumber != nil {
		n = *req.CardNumber
		if n < 1 || n > r.settings.MaxCards {
			return nil, 0, rejectf(ErrInvalidCardNumber, "card number must be between 1 and %d", r.settings.MaxCards)
		}
		if r.cardTaken(n) {
			return nil, 0, rejectf(ErrCardTaken, "card %d is already taken", n)
		}
	} else {
		var ok bool
		if n, ok = r.lowestFreeCard(); !ok {
			return nil, 0, exhaustedf(ErrRoundFull, "no cards left")
		}
	}

	r.reserved[req.PlayerID] = n
	return r, n, nil
}

// commitJoin seats a player whose stake has been taken. Must hold e.mu.
func (e *Engine) commitJoin(r *round, req JoinRequest, cardNumber int, bet prize.Amount) (JoinResult, error) {
	delete(r.reserved, req.PlayerID)
	if err := e.checkRunning(); err != nil {
		return JoinResult{}, err
	}
	if e.round != r || r.phase != PhaseCardSelection {
		e.logger.Warn("Join lost race with phase change", "round", r.id, "player", req.PlayerID)
		return JoinResult{}, rejectf(ErrWrongPhase, "card selection closed while joining")
	}

	p := &player{
		id:         req.PlayerID,
		card:       r.settings.Layout.Generate(cardNumber),
		stake:      bet,
		marked:     make(pattern.Marked),
		manualMark: req.ManualMark,
		joinedAt:   e.clock.Now(),
	}
	r.players = append(r.players, p)
	r.byID[p.id] = p
	r.cards[cardNumber] = p.id
	r.stakes += bet
	r.recomputePool()

	e.publish(PlayerJoinedEvent{
		Header:      e.header(r),
		PlayerID:    p.id,
		CardNumber:  cardNumber,
		PlayerCount: len(r.players),
		PrizePool:   r.pool,
	})
	e.logger.Info("Player joined", "round", r.id, "player", p.id, "card", cardNumber,
		"players", len(r.players), "pool", r.pool)

	return JoinResult{RoundID: r.id, Player: p.snapshot(), PrizePool: r.pool}, nil
}

// Leave withdraws a player during card selection and refunds the stake.
func (e *Engine) Leave(ctx context.Context, playerID string) error {
	e.mu.Lock()
	if err := e.checkRunning(); err != nil {
		e.mu.Unlock()
		return err
	}
	r := e.round
	if r.phase != PhaseCardSelection {
		e.mu.Unlock()
		return rejectf(ErrWrongPhase, "cannot leave during %s", r.phase)
	}
	p := r.removePlayer(playerID)
	if p == nil {
		e.mu.Unlock()
		return rejectf(ErrUnknownPlayer, "player %s is not in this round", playerID)
	}
	e.publish(PlayerLeftEvent{
		Header:      e.header(r),
		PlayerID:    playerID,
		PlayerCount: len(r.players),
		PrizePool:   r.pool,
	})
	e.logger.Info("Player left", "round", r.id, "player", playerID, "players", len(r.players))
	e.mu.Unlock()

	if p.stake > 0 {
		if err := e.wallet.Credit(ctx, playerID, p.stake); err != nil {
			e.logger.Error("Refund failed", "round", r.id, "player", playerID, "amount", p.stake, "error", err)
			return external(err, "left the round but the refund failed")
		}
	}
	return nil
}

// Mark records a drawn number on a player's card. Only valid while the
// round is active. A mark that completes a pattern ends the round.
func (e *Engine) Mark(playerID string, number int) (MarkResult, error) {
	e.mu.Lock()
	res, err := e.mark(playerID, number)
	tasks := e.takePending()
	e.mu.Unlock()
	e.dispatch(tasks)
	return res, err
}

func (e *Engine) mark(playerID string, n int) (MarkResult, error) {
	if err := e.checkRunning(); err != nil {
		return MarkResult{}, err
	}
	r := e.round
	if r.phase != PhaseActive {
		return MarkResult{}, rejectf(ErrWrongPhase, "numbers can only be marked while the round is active")
	}
	p, ok := r.byID[playerID]
	if !ok {
		return MarkResult{}, rejectf(ErrUnknownPlayer, "player %s is not in this round", playerID)
	}
	if lo, hi := r.settings.Layout.Universe(); n < lo || n > hi {
		return MarkResult{}, rejectf(ErrNumberOutOfRange, "number %d is outside %d-%d", n, lo, hi)
	}
	if _, drawn := r.drawnSet[n]; !drawn {
		return MarkResult{}, rejectf(ErrNumberNotDrawn, "number %d has not been drawn", n)
	}
	if !p.card.Contains(n) {
		return MarkResult{}, rejectf(ErrNumberNotOnCard, "number %d is not on card %d", n, p.card.Number)
	}
	if p.marked.Has(n) {
		return MarkResult{}, rejectf(ErrAlreadyMarked, "number %d is already marked", n)
	}

	p.marked[n] = struct{}{}
	res := MarkResult{Marked: p.snapshot().Marked}

	if pat, ok := r.detector.Evaluate(p.card, p.marked); ok {
		p.won = true
		p.pattern = pat
		res.Won = true
		res.Pattern = pat.Name()
		e.finish(EndWinner, []*player{p})
	}
	return res, nil
}

// Claim acknowledges a win the engine has already detected.
func (e *Engine) Claim(playerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning(); err != nil {
		return err
	}
	r := e.round
	switch r.phase {
	case PhaseAnnouncing:
	case PhaseActive:
		return rejectf(ErrNoWinToClaim, "no win has been detected yet")
	default:
		return rejectf(ErrWrongPhase, "cannot claim during %s", r.phase)
	}

	p, ok := r.byID[playerID]
	if !ok {
		return rejectf(ErrUnknownPlayer, "player %s is not in this round", playerID)
	}
	if !p.won {
		return rejectf(ErrNoWinToClaim, "player %s did not win this round", playerID)
	}
	if p.claimed {
		return rejectf(ErrAlreadyClaimed, "win already claimed")
	}
	p.claimed = true

	e.publish(WinClaimedEvent{Header: e.header(r), PlayerID: playerID, Pattern: p.pattern.Name()})
	e.logger.Info("Win claimed", "round", r.id, "player", playerID, "pattern", p.pattern.Name())
	return nil
}
