// Package engine runs the recurring bingo round: card selection, countdown,
// drawing, announcement and the next round, driven by phase timers.
//
// All round state is owned by a single Engine and mutated under its lock.
// Timer callbacks and player intents take the same lock, so a draw, a mark
// and a join are never interleaved. Wallet and store calls are collected
// while the lock is held and dispatched once it is released.
package engine

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/bingohall/internal/clock"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/pattern"
	"github.com/lox/bingohall/internal/prize"
	"github.com/lox/bingohall/internal/roundid"
	"golang.org/x/sync/errgroup"
)

// DefaultDispatchLimit caps concurrent wallet and store calls.
const DefaultDispatchLimit = 16

// Options configures a new Engine.
type Options struct {
	Config Config
	Clock  quartz.Clock
	Wallet Wallet
	Store  Store
	Logger *log.Logger
	Bus    EventBus
	// Seed fixes the draw order. Zero seeds from the clock.
	Seed int64
	// IDs generates round identifiers; nil uses crypto/rand.
	IDs           *roundid.Generator
	DispatchLimit int
}

// task is a gateway call deferred until the engine lock is released.
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Engine is the round state machine.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	clock  quartz.Clock
	timers *clock.Timers
	wallet Wallet
	store  Store
	bus    EventBus
	logger *log.Logger
	rng    *rand.Rand
	ids    *roundid.Generator

	round   *round
	epoch   uint64
	started bool
	stopped bool
	err     error
	pending []task

	done     chan struct{}
	doneOnce sync.Once

	gatewayCtx     context.Context
	dispatchMu     sync.Mutex
	dispatchClosed bool
	group          errgroup.Group
}

// New creates an engine. It does not start a round until Start is called.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Wallet == nil {
		return nil, errors.New("engine: wallet gateway is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: store gateway is required")
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	if opts.Seed == 0 {
		opts.Seed = opts.Clock.Now().UnixNano()
	}
	if opts.IDs == nil {
		opts.IDs = roundid.NewGenerator(nil)
	}
	if opts.DispatchLimit <= 0 {
		opts.DispatchLimit = DefaultDispatchLimit
	}

	e := &Engine{
		cfg:        opts.Config.clone(),
		clock:      opts.Clock,
		timers:     clock.NewTimers(opts.Clock),
		wallet:     opts.Wallet,
		store:      opts.Store,
		bus:        opts.Bus,
		logger:     opts.Logger.WithPrefix("engine"),
		rng:        draw.NewRand(opts.Seed),
		ids:        opts.IDs,
		done:       make(chan struct{}),
		gatewayCtx: context.Background(),
	}
	e.group.SetLimit(opts.DispatchLimit)
	return e, nil
}

// Start opens the first round. Cancelling ctx stops the engine; gateway
// calls keep ctx's values but not its cancellation so in-flight credits
// are allowed to finish.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineHalted
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.gatewayCtx = context.WithoutCancel(ctx)
	e.logger.Info("Engine starting", "min_players", e.cfg.MinPlayers, "max_players", e.cfg.MaxPlayers, "bet", e.cfg.BetAmount)
	e.startRound()
	tasks := e.takePending()
	e.mu.Unlock()
	e.dispatch(tasks)

	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.done:
		}
	}()
	return nil
}

// Stop cancels every timer, rejects further intents and waits for
// dispatched gateway calls to return. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		e.timers.StopAll()
		e.closeDone()
		e.logger.Info("Engine stopped")
	}
	e.mu.Unlock()

	e.dispatchMu.Lock()
	e.dispatchClosed = true
	e.dispatchMu.Unlock()
	_ = e.group.Wait()
}

// Done is closed when the engine stops or halts.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the invariant violation that halted the engine, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Bus returns the event bus the engine publishes to.
func (e *Engine) Bus() EventBus { return e.bus }

// Config returns the live configuration used for the next round.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.clone()
}

// UpdateConfig replaces the live configuration. The current round keeps
// the settings it was created with.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.clone()
	e.logger.Info("Configuration updated, applies from next round",
		"bet", cfg.BetAmount, "payout", cfg.PayoutPercent, "min_players", cfg.MinPlayers)
	return nil
}

// Status summarises the current round.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{Phase: PhaseIdle, Halted: e.stopped}
	r := e.round
	if r == nil {
		return s
	}
	s.RoundID = r.id
	s.Phase = r.phase
	s.Players = len(r.players)
	s.MinPlayers = r.settings.MinPlayers
	s.MaxPlayers = r.settings.MaxPlayers
	s.Drawn = append([]int(nil), r.drawn...)
	if len(r.drawn) > 0 {
		s.LastNumber = r.drawn[len(r.drawn)-1]
	}
	s.PrizePool = r.pool
	s.BetAmount = r.settings.BetAmount
	if !e.stopped {
		s.ETA = max(r.deadline.Sub(e.clock.Now()), 0)
		s.ETASeconds = Seconds(s.ETA)
	}
	return s
}

// Snapshot returns a copy of the current round.
func (e *Engine) Snapshot() (RoundSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return RoundSnapshot{}, false
	}
	return e.round.snapshot(), true
}

func (e *Engine) checkRunning() error {
	if e.stopped {
		if e.err != nil {
			return fmt.Errorf("%w: %w", ErrEngineHalted, e.err)
		}
		return ErrEngineHalted
	}
	if !e.started || e.round == nil {
		return ErrNotStarted
	}
	return nil
}

func (e *Engine) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// halt stops the engine after an invariant violation. Must hold e.mu.
func (e *Engine) halt(err error) {
	if e.err != nil {
		return
	}
	e.err = err
	e.stopped = true
	e.timers.StopAll()
	e.closeDone()
	e.logger.Error("Engine halted", "error", err)
}

func (e *Engine) header(r *round) Header {
	return Header{Round: r.id, Phase: r.phase, At: e.clock.Now()}
}

func (e *Engine) publish(ev Event) {
	e.bus.Publish(ev)
}

// arm schedules fn under the engine lock. The callback is dropped if the
// phase has moved on since it was armed.
func (e *Engine) arm(d time.Duration, name string, fn func()) {
	epoch := e.epoch
	e.timers.After(d, func() {
		e.mu.Lock()
		if e.stopped || epoch != e.epoch {
			e.mu.Unlock()
			return
		}
		fn()
		tasks := e.takePending()
		e.mu.Unlock()
		e.dispatch(tasks)
	}, "engine", name)
}

// transition cancels the previous phase's timers and publishes exactly one
// PhaseChanged event.
func (e *Engine) transition(to Phase, eta time.Duration) {
	r := e.round
	e.timers.StopAll()
	e.epoch++

	from := r.phase
	r.phase = to
	r.deadline = e.clock.Now().Add(eta)

	e.publish(PhaseChangedEvent{Header: e.header(r), From: from, ETA: eta, ETASeconds: Seconds(eta)})
	e.logger.Info("Phase changed", "round", r.id, "from", from, "to", to, "eta", eta)
}

func (e *Engine) startRound() {
	if prev := e.round; prev != nil {
		switch prev.phase {
		case PhaseAnnouncing, PhaseCancelled:
		case PhaseCardSelection:
			if len(prev.players) > 0 {
				e.halt(invariantf("round %s replaced with %d seated players", prev.id, len(prev.players)))
				return
			}
		default:
			e.halt(invariantf("round %s replaced while %s", prev.id, prev.phase))
			return
		}
	}

	settings := e.cfg.clone()
	lo, hi := settings.Layout.Universe()
	drawer, err := draw.New(lo, hi, e.rng)
	if err != nil {
		e.halt(fmt.Errorf("create drawer: %w", err))
		return
	}

	e.round = newRound(e.ids.New(), settings, drawer, e.clock.Now())
	e.logger.Debug("Round created", "round", e.round.id, "bet", settings.BetAmount, "payout", settings.PayoutPercent)

	e.transition(PhaseCardSelection, settings.CardSelectionDuration)
	e.arm(settings.CardSelectionDuration, "card-selection", e.onCardSelectionExpired)
}

func (e *Engine) onCardSelectionExpired() {
	r := e.round
	if len(r.players) == 0 {
		e.logger.Debug("No players joined, restarting card selection", "round", r.id)
		e.startRound()
		return
	}
	e.transition(PhaseCountdown, r.settings.CountdownDuration)
	e.arm(r.settings.CountdownDuration, "countdown", e.onCountdownExpired)
}

func (e *Engine) onCountdownExpired() {
	r := e.round
	if len(r.players) < r.settings.MinPlayers {
		e.cancel("insufficient players")
		return
	}

	r.startedAt = e.clock.Now()
	e.transition(PhaseActive, r.settings.MaxRoundDuration)
	e.arm(r.settings.MaxRoundDuration, "max-duration", func() { e.finish(EndMaxDuration, nil) })
	e.arm(r.settings.DrawInterval, "draw", e.onDrawTick)
}

func (e *Engine) cancel(reason string) {
	r := e.round
	e.transition(PhaseCancelled, 0)
	r.endedAt = e.clock.Now()

	refunds := make([]prize.Share, 0, len(r.players))
	for _, p := range r.players {
		if p.stake > 0 {
			refunds = append(refunds, prize.Share{PlayerID: p.id, Amount: p.stake})
			e.credit(p.id, p.stake, "refund")
		}
	}

	e.publish(RoundCancelledEvent{Header: e.header(r), Reason: reason, Refunds: refunds})
	e.logger.Info("Round cancelled", "round", r.id, "reason", reason, "players", len(r.players), "refunds", len(refunds))
	e.startRound()
}

func (e *Engine) onDrawTick() {
	r := e.round
	n, err := r.drawer.Draw(r.drawnSet)
	if errors.Is(err, draw.ErrExhausted) {
		e.finish(EndExhausted, nil)
		return
	}
	if err != nil {
		e.halt(fmt.Errorf("draw: %w", err))
		return
	}
	if _, dup := r.drawnSet[n]; dup {
		e.halt(invariantf("number %d drawn twice in round %s", n, r.id))
		return
	}

	r.drawn = append(r.drawn, n)
	r.drawnSet[n] = struct{}{}
	e.publish(NumberDrawnEvent{Header: e.header(r), Number: n, Call: r.settings.Layout.Call(n), TotalDrawn: len(r.drawn)})
	e.logger.Debug("Number drawn", "round", r.id, "call", r.settings.Layout.Call(n), "total", len(r.drawn))

	var winners []*player
	for _, p := range r.players {
		if !p.manualMark && p.card.Contains(n) {
			p.marked[n] = struct{}{}
		}
		if pat, ok := r.detector.Evaluate(p.card, p.marked); ok {
			p.won = true
			p.pattern = pat
			winners = append(winners, p)
		}
	}

	switch {
	case len(winners) > 0:
		e.finish(EndWinner, winners)
	case r.settings.MaxDraws > 0 && len(r.drawn) >= r.settings.MaxDraws:
		e.finish(EndDrawLimit, nil)
	default:
		e.arm(r.settings.DrawInterval, "draw", e.onDrawTick)
	}
}

// finish settles the active round and moves it to Announcing. The
// transition cancels the draw and max-duration timers.
func (e *Engine) finish(reason EndReason, winners []*player) {
	r := e.round
	if r.settlement != nil {
		e.halt(invariantf("round %s settled twice", r.id))
		return
	}

	ids := make([]string, len(winners))
	for i, p := range winners {
		ids[i] = p.id
	}
	settlement := prize.Distribute(r.pool, ids)
	r.settlement = &settlement
	r.endReason = reason
	r.endedAt = e.clock.Now()
	for i, p := range winners {
		p.share = settlement.Shares[i].Amount
		r.winners = append(r.winners, Winner{
			PlayerID:   p.id,
			CardNumber: p.card.Number,
			Pattern:    p.pattern.Name(),
			Numbers:    pattern.Numbers(p.card, p.pattern),
			Share:      p.share,
		})
	}

	e.transition(PhaseAnnouncing, r.settings.AnnouncementDuration)
	e.publish(RoundEndedEvent{
		Header:       e.header(r),
		Reason:       reason,
		Winners:      append([]Winner(nil), r.winners...),
		DrawnNumbers: append([]int(nil), r.drawn...),
		PrizePool:    r.pool,
		Residual:     settlement.Residual,
	})
	e.logger.Info("Round ended", "round", r.id, "reason", reason, "winners", len(winners),
		"drawn", len(r.drawn), "pool", r.pool, "residual", settlement.Residual)

	for _, p := range winners {
		if p.share > 0 {
			e.credit(p.id, p.share, "prize")
		}
	}
	snap := r.snapshot()
	e.pending = append(e.pending, task{name: "save round", fn: func(ctx context.Context) error {
		if err := e.store.SaveCompletedRound(ctx, snap); err != nil {
			return fmt.Errorf("save round %s: %w", snap.ID, err)
		}
		return nil
	}})

	e.arm(r.settings.AnnouncementDuration, "announcement", e.startRound)
}

func (e *Engine) credit(playerID string, amount prize.Amount, why string) {
	e.pending = append(e.pending, task{name: why, fn: func(ctx context.Context) error {
		if err := e.wallet.Credit(ctx, playerID, amount); err != nil {
			return fmt.Errorf("credit %d to %s: %w", amount, playerID, err)
		}
		return nil
	}})
}

func (e *Engine) takePending() []task {
	tasks := e.pending
	e.pending = nil
	return tasks
}

// dispatch runs gateway calls without the engine lock. Failures are logged
// and left to the gateway; they never reach the phase timers.
func (e *Engine) dispatch(tasks []task) {
	if len(tasks) == 0 {
		return
	}
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	if e.dispatchClosed {
		for _, t := range tasks {
			e.logger.Warn("Dropping gateway call after shutdown", "task", t.name)
		}
		return
	}
	for _, t := range tasks {
		e.group.Go(func() error {
			if err := t.fn(e.gatewayCtx); err != nil {
				e.logger.Error("Gateway call failed", "task", t.name, "error", err)
			}
			return nil
		})
	}
}
