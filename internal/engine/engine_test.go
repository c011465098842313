package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/engine/mocks"
	"github.com/lox/bingohall/internal/prize"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFullRoundCycleSplitsPoolBetweenSimultaneousWinners(t *testing.T) {
	t.Parallel()
	cfg := pairConfig()
	cfg.BetAmount = 59
	h := newHarness(t, cfg)
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.start()

	first := h.engine.Status()
	require.Equal(t, engine.PhaseCardSelection, first.Phase)
	assert.Equal(t, 10*time.Second, first.ETA)
	assert.Equal(t, 10, first.ETASeconds)

	alice := h.join("alice", cardNo(1), false)
	bob := h.join("bob", nil, false)
	assert.Equal(t, 2, bob.Player.CardNumber, "lowest free card is assigned")
	assert.Equal(t, prize.Amount(100), bob.PrizePool, "floor(118 * 85%)")
	assert.Equal(t, alice.RoundID, bob.RoundID)

	assert.Equal(t, 10*time.Second, h.advance())
	assert.Equal(t, engine.PhaseCountdown, h.engine.Status().Phase)

	assert.Equal(t, 5*time.Second, h.advance())
	assert.Equal(t, engine.PhaseActive, h.engine.Status().Phase)

	h.advance()
	assert.Equal(t, engine.PhaseActive, h.engine.Status().Phase, "one number never completes a pattern")
	h.advance()
	require.Equal(t, engine.PhaseAnnouncing, h.engine.Status().Phase)

	ended := eventsOf[engine.RoundEndedEvent](h.events)
	require.Len(t, ended, 1)
	assert.Equal(t, engine.EndWinner, ended[0].Reason)
	assert.Equal(t, prize.Amount(100), ended[0].PrizePool)
	assert.Equal(t, prize.Amount(0), ended[0].Residual)
	assert.Len(t, ended[0].DrawnNumbers, 2)
	require.Len(t, ended[0].Winners, 2)
	for _, w := range ended[0].Winners {
		assert.Equal(t, prize.Amount(50), w.Share)
		assert.NotEmpty(t, w.Pattern)
		assert.Len(t, w.Numbers, 2)
	}

	// The draw timer was cancelled with the transition, so the next timer
	// is the announcement.
	assert.Equal(t, 3*time.Second, h.advance())
	next := h.engine.Status()
	assert.Equal(t, engine.PhaseCardSelection, next.Phase)
	assert.NotEqual(t, first.RoundID, next.RoundID)
	assert.Zero(t, next.Players)

	h.engine.Stop()
	assert.Equal(t, prize.Amount(91), h.balance("alice"))
	assert.Equal(t, prize.Amount(91), h.balance("bob"))

	saved, err := h.store.GetRound(context.Background(), first.RoundID)
	require.NoError(t, err)
	assert.Equal(t, engine.EndWinner, saved.EndReason)
	assert.Len(t, saved.Winners, 2)

	assert.Equal(t, []engine.Phase{
		engine.PhaseCardSelection,
		engine.PhaseCountdown,
		engine.PhaseActive,
		engine.PhaseAnnouncing,
		engine.PhaseCardSelection,
	}, h.events.phases())
}

func TestPhaseEventsFormAChainPerRound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, pairConfig())
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, false)
	h.advanceTo(engine.PhaseAnnouncing)
	h.advance()

	prev := map[string]engine.Phase{}
	current := ""
	for _, ev := range eventsOf[engine.PhaseChangedEvent](h.events) {
		if ev.RoundID() != current {
			assert.Equal(t, engine.PhaseIdle, ev.From, "a new round starts from idle")
			_, seen := prev[ev.RoundID()]
			assert.False(t, seen, "round %s resumed after another round started", ev.RoundID())
			current = ev.RoundID()
		} else {
			assert.Equal(t, prev[current], ev.From)
		}
		prev[current] = ev.Phase
	}
	assert.Len(t, prev, 2)
}

func TestCancelledWhenBelowMinimumPlayers(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MinPlayers = 2
	h := newHarness(t, cfg)
	h.fund("alice", 100)
	h.start()
	roundID := h.join("alice", nil, false).RoundID
	assert.Equal(t, prize.Amount(90), h.balance("alice"))

	h.advance()
	require.Equal(t, engine.PhaseCountdown, h.engine.Status().Phase, "one player is enough to reach countdown")

	h.advance()
	status := h.engine.Status()
	assert.Equal(t, engine.PhaseCardSelection, status.Phase)
	assert.NotEqual(t, roundID, status.RoundID)

	cancelled := eventsOf[engine.RoundCancelledEvent](h.events)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "insufficient players", cancelled[0].Reason)
	assert.Equal(t, roundID, cancelled[0].RoundID())
	assert.Equal(t, []prize.Share{{PlayerID: "alice", Amount: 10}}, cancelled[0].Refunds)

	assert.Equal(t, []engine.Phase{
		engine.PhaseCardSelection,
		engine.PhaseCountdown,
		engine.PhaseCancelled,
		engine.PhaseCardSelection,
	}, h.events.phases())

	h.engine.Stop()
	assert.Equal(t, prize.Amount(100), h.balance("alice"), "stake refunded")
	assert.Empty(t, eventsOf[engine.RoundEndedEvent](h.events))
}

func TestEmptyCardSelectionRestarts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start()
	first := h.engine.Status().RoundID

	assert.Equal(t, 10*time.Second, h.advance())
	status := h.engine.Status()
	assert.Equal(t, engine.PhaseCardSelection, status.Phase)
	assert.NotEqual(t, first, status.RoundID)
	assert.Empty(t, eventsOf[engine.RoundCancelledEvent](h.events))
}

func TestExhaustedUniverseEndsWithoutWinner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, true)

	h.advanceTo(engine.PhaseAnnouncing)

	drawn := eventsOf[engine.NumberDrawnEvent](h.events)
	require.Len(t, drawn, 75)
	seen := map[int]bool{}
	for i, ev := range drawn {
		assert.False(t, seen[ev.Number], "number %d drawn twice", ev.Number)
		seen[ev.Number] = true
		assert.Equal(t, i+1, ev.TotalDrawn)
		assert.GreaterOrEqual(t, ev.Number, 1)
		assert.LessOrEqual(t, ev.Number, 75)
	}

	ended := eventsOf[engine.RoundEndedEvent](h.events)
	require.Len(t, ended, 1)
	assert.Equal(t, engine.EndExhausted, ended[0].Reason)
	assert.Empty(t, ended[0].Winners)
	assert.Equal(t, prize.Amount(8), ended[0].PrizePool)
	assert.Equal(t, prize.Amount(8), ended[0].Residual, "undistributed pool is reported")
}

func TestMaxDurationCancelsDrawTimer(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DrawInterval = 20 * time.Second
	cfg.MaxRoundDuration = 30 * time.Second
	cfg.AnnouncementDuration = 15 * time.Second
	h := newHarness(t, cfg)
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, true)
	h.advanceTo(engine.PhaseActive)

	assert.Equal(t, 20*time.Second, h.advance())
	assert.Equal(t, 10*time.Second, h.advance())
	require.Equal(t, engine.PhaseAnnouncing, h.engine.Status().Phase)

	ended := eventsOf[engine.RoundEndedEvent](h.events)
	require.Len(t, ended, 1)
	assert.Equal(t, engine.EndMaxDuration, ended[0].Reason)
	assert.Len(t, ended[0].DrawnNumbers, 1)

	// A stray draw would fire 10s from now; the announcement fires at 15s.
	assert.Equal(t, 15*time.Second, h.advance())
	assert.Len(t, eventsOf[engine.NumberDrawnEvent](h.events), 1)
}

func TestDrawLimitEndsRound(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxDraws = 3
	h := newHarness(t, cfg)
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, true)
	h.advanceTo(engine.PhaseAnnouncing)

	ended := eventsOf[engine.RoundEndedEvent](h.events)
	require.Len(t, ended, 1)
	assert.Equal(t, engine.EndDrawLimit, ended[0].Reason)
	assert.Len(t, ended[0].DrawnNumbers, 3)
}

func TestJoinValidation(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxPlayers = 2
	cfg.MaxCards = 3
	h := newHarness(t, cfg)
	for _, p := range []string{"alice", "bob", "carol"} {
		h.fund(p, 100)
	}
	h.start()

	join := func(id string, card *int) error {
		_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: id, CardNumber: card})
		return err
	}

	assert.ErrorIs(t, join("alice", cardNo(0)), engine.ErrInvalidCardNumber)
	assert.ErrorIs(t, join("alice", cardNo(4)), engine.ErrInvalidCardNumber)
	assert.ErrorIs(t, join("", nil), engine.ErrUnknownPlayer)
	require.NoError(t, join("alice", cardNo(2)))
	assert.ErrorIs(t, join("bob", cardNo(2)), engine.ErrCardTaken)
	assert.ErrorIs(t, join("alice", nil), engine.ErrAlreadyJoined)
	require.NoError(t, join("bob", nil))

	err := join("carol", nil)
	require.ErrorIs(t, err, engine.ErrRoundFull)
	var ie *engine.IntentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, engine.KindExhausted, ie.Kind)
	assert.NotEmpty(t, ie.Error())

	snap, ok := h.engine.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, 2, snap.Players[0].CardNumber)
	assert.Equal(t, 1, snap.Players[1].CardNumber)
	assert.Equal(t, prize.Amount(20), snap.Stakes)

	h.advance()
	assert.ErrorIs(t, join("carol", nil), engine.ErrWrongPhase)

	h.engine.Stop()
	assert.Equal(t, prize.Amount(100), h.balance("carol"), "rejected joins never debit")
}

func TestSameCardNumberGivesSameCard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.start()

	first := h.join("alice", cardNo(7), false)
	require.NoError(t, h.engine.Leave(h.ctx, "alice"))
	second := h.join("bob", cardNo(7), false)

	assert.True(t, first.Player.Card.Equal(second.Player.Card))
}

func TestJoinInsufficientFunds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.fund("alice", 5)
	h.start()

	_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: "alice", CardNumber: cardNo(1)})
	require.ErrorIs(t, err, engine.ErrInsufficientFunds)
	var ie *engine.IntentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, engine.KindValidation, ie.Kind)

	assert.Zero(t, h.engine.Status().Players)
	h.fund("bob", 100)
	assert.Equal(t, 1, h.join("bob", cardNo(1), false).Player.CardNumber, "reservation released")
}

func TestLeaveRefundsStake(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.start()
	h.join("alice", nil, false)
	h.join("bob", nil, false)

	require.NoError(t, h.engine.Leave(h.ctx, "alice"))
	assert.Equal(t, prize.Amount(100), h.balance("alice"))
	assert.ErrorIs(t, h.engine.Leave(h.ctx, "alice"), engine.ErrUnknownPlayer)

	left := eventsOf[engine.PlayerLeftEvent](h.events)
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].PlayerCount)
	assert.Equal(t, prize.Amount(8), left[0].PrizePool)

	h.advance()
	assert.ErrorIs(t, h.engine.Leave(h.ctx, "bob"), engine.ErrWrongPhase)
}

func TestMarkValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.fund("alice", 100)
	h.start()
	res := h.join("alice", cardNo(1), true)
	c := res.Player.Card

	_, err := h.engine.Mark("alice", c.Numbers()[0])
	assert.ErrorIs(t, err, engine.ErrWrongPhase)

	h.advanceTo(engine.PhaseActive)

	_, err = h.engine.Mark("mallory", 1)
	assert.ErrorIs(t, err, engine.ErrUnknownPlayer)
	_, err = h.engine.Mark("alice", 0)
	assert.ErrorIs(t, err, engine.ErrNumberOutOfRange)
	_, err = h.engine.Mark("alice", 76)
	assert.ErrorIs(t, err, engine.ErrNumberOutOfRange)

	on, off := 0, 0
	for i := 0; i < 75 && (on == 0 || off == 0); i++ {
		h.advance()
		n := h.engine.Status().LastNumber
		if c.Contains(n) {
			if on == 0 {
				on = n
			}
		} else if off == 0 {
			off = n
		}
	}
	require.NotZero(t, on)
	require.NotZero(t, off)
	require.Equal(t, engine.PhaseActive, h.engine.Status().Phase, "manual players never win without marking")

	drawn := map[int]bool{}
	for _, n := range h.engine.Status().Drawn {
		drawn[n] = true
	}
	for _, n := range c.Numbers() {
		if !drawn[n] {
			_, err = h.engine.Mark("alice", n)
			assert.ErrorIs(t, err, engine.ErrNumberNotDrawn)
			break
		}
	}

	_, err = h.engine.Mark("alice", off)
	assert.ErrorIs(t, err, engine.ErrNumberNotOnCard)

	marked, err := h.engine.Mark("alice", on)
	require.NoError(t, err)
	assert.Equal(t, []int{on}, marked.Marked)
	assert.False(t, marked.Won)

	_, err = h.engine.Mark("alice", on)
	assert.ErrorIs(t, err, engine.ErrAlreadyMarked)
}

func TestManualMarkCompletesPattern(t *testing.T) {
	t.Parallel()
	h := newHarness(t, pairConfig())
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, true)
	h.advanceTo(engine.PhaseActive)
	h.advance()
	h.advance()
	require.Equal(t, engine.PhaseActive, h.engine.Status().Phase)

	drawn := h.engine.Status().Drawn
	require.Len(t, drawn, 2)

	first, err := h.engine.Mark("alice", drawn[0])
	require.NoError(t, err)
	assert.False(t, first.Won)

	second, err := h.engine.Mark("alice", drawn[1])
	require.NoError(t, err)
	assert.True(t, second.Won)
	assert.NotEmpty(t, second.Pattern)
	assert.Equal(t, engine.PhaseAnnouncing, h.engine.Status().Phase)

	ended := eventsOf[engine.RoundEndedEvent](h.events)
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Winners, 1)
	assert.Equal(t, "alice", ended[0].Winners[0].PlayerID)
	assert.Equal(t, prize.Amount(8), ended[0].Winners[0].Share)

	// The next draw was cancelled by the win.
	assert.Equal(t, 3*time.Second, h.advance())
}

func TestClaim(t *testing.T) {
	t.Parallel()
	h := newHarness(t, pairConfig())
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.start()
	h.join("alice", nil, false)
	h.join("bob", nil, true)

	assert.ErrorIs(t, h.engine.Claim("alice"), engine.ErrWrongPhase)

	h.advanceTo(engine.PhaseActive)
	h.advance()
	assert.ErrorIs(t, h.engine.Claim("alice"), engine.ErrNoWinToClaim)

	h.advance()
	require.Equal(t, engine.PhaseAnnouncing, h.engine.Status().Phase)

	require.NoError(t, h.engine.Claim("alice"))
	assert.ErrorIs(t, h.engine.Claim("alice"), engine.ErrAlreadyClaimed)
	assert.ErrorIs(t, h.engine.Claim("bob"), engine.ErrNoWinToClaim)
	assert.ErrorIs(t, h.engine.Claim("carol"), engine.ErrUnknownPlayer)

	claims := eventsOf[engine.WinClaimedEvent](h.events)
	require.Len(t, claims, 1)
	assert.Equal(t, "alice", claims[0].PlayerID)
	assert.NotEmpty(t, claims[0].Pattern)
}

func TestGatewayFailuresDoNotBlockTimers(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	w := mocks.NewMockWallet(ctrl)
	s := mocks.NewMockStore(ctrl)

	w.EXPECT().Debit(gomock.Any(), gomock.Any(), prize.Amount(10)).Return(nil).Times(2)
	w.EXPECT().Credit(gomock.Any(), gomock.Any(), prize.Amount(8)).Return(errors.New("ledger unavailable")).Times(2)
	s.EXPECT().SaveCompletedRound(gomock.Any(), gomock.Any()).Return(errors.New("redis down")).Times(1)

	h := newHarness(t, pairConfig(), withGateways(w, s))
	h.start()
	first := h.join("alice", nil, false).RoundID
	h.join("bob", nil, false)

	h.advanceTo(engine.PhaseAnnouncing)
	assert.Equal(t, 3*time.Second, h.advance())

	status := h.engine.Status()
	assert.Equal(t, engine.PhaseCardSelection, status.Phase)
	assert.NotEqual(t, first, status.RoundID)
	assert.NoError(t, h.engine.Err())

	h.engine.Stop()
}

func TestJoinRefundedWhenSelectionClosesDuringDebit(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	w := mocks.NewMockWallet(ctrl)

	debiting := make(chan struct{})
	release := make(chan struct{})
	w.EXPECT().Debit(gomock.Any(), "alice", prize.Amount(10)).DoAndReturn(
		func(context.Context, string, prize.Amount) error {
			close(debiting)
			<-release
			return nil
		})
	w.EXPECT().Credit(gomock.Any(), "alice", prize.Amount(10)).Return(nil).Times(1)

	h := newHarness(t, testConfig(), withGateways(w, mocks.NewMockStore(ctrl)))
	h.start()
	first := h.engine.Status().RoundID

	joined := make(chan error, 1)
	go func() {
		_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: "alice"})
		joined <- err
	}()

	select {
	case <-debiting:
	case <-h.ctx.Done():
		t.Fatal("debit never started")
	}
	assert.Equal(t, 10*time.Second, h.advance())
	close(release)

	err := <-joined
	assert.ErrorIs(t, err, engine.ErrWrongPhase)

	status := h.engine.Status()
	assert.NotEqual(t, first, status.RoundID, "empty selection restarts the round")
	assert.Zero(t, status.Players)
	assert.Empty(t, eventsOf[engine.PlayerJoinedEvent](h.events))
	assert.NoError(t, h.engine.Err())
}

func TestUpdateConfigAppliesToNextRound(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MinPlayers = 2
	h := newHarness(t, cfg)
	h.fund("alice", 100)
	h.start()
	h.join("alice", nil, false)

	next := cfg
	next.BetAmount = 20
	next.PayoutPercent = decimal.NewFromInt(90)
	require.NoError(t, h.engine.UpdateConfig(next))
	assert.Equal(t, prize.Amount(10), h.engine.Status().BetAmount)

	bad := cfg
	bad.DrawInterval = time.Hour
	assert.ErrorIs(t, h.engine.UpdateConfig(bad), engine.ErrInvalidConfig)

	h.advance()
	h.advance()
	require.Len(t, eventsOf[engine.RoundCancelledEvent](h.events), 1)
	require.Equal(t, engine.PhaseCardSelection, h.engine.Status().Phase)
	assert.Equal(t, prize.Amount(20), h.engine.Status().BetAmount)
	assert.Equal(t, prize.Amount(20), h.engine.Config().BetAmount)
}

func TestStopRejectsIntents(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start()
	assert.ErrorIs(t, h.engine.Start(h.ctx), engine.ErrAlreadyStarted)

	h.engine.Stop()
	select {
	case <-h.engine.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	assert.NoError(t, h.engine.Err())

	_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: "alice"})
	assert.ErrorIs(t, err, engine.ErrEngineHalted)
	_, err = h.engine.Mark("alice", 1)
	assert.ErrorIs(t, err, engine.ErrEngineHalted)
	assert.ErrorIs(t, h.engine.Claim("alice"), engine.ErrEngineHalted)
	assert.ErrorIs(t, h.engine.Start(h.ctx), engine.ErrEngineHalted)
}

func TestIntentsBeforeStart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: "alice"})
	assert.ErrorIs(t, err, engine.ErrNotStarted)
	assert.Equal(t, engine.PhaseIdle, h.engine.Status().Phase)
	_, ok := h.engine.Snapshot()
	assert.False(t, ok)
}

func TestConcurrentJoinsGetDistinctCards(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxPlayers = 50
	cfg.MaxCards = 50
	h := newHarness(t, cfg)
	players := make([]string, 60)
	for i := range players {
		players[i] = "player-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		h.fund(players[i], 100)
	}
	h.start()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for _, id := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: id})
			if err != nil {
				assert.ErrorIs(t, err, engine.ErrRoundFull)
				mu.Lock()
				full++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, full)
	snap, ok := h.engine.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Players, 50)

	cards := map[int]bool{}
	for _, p := range snap.Players {
		assert.False(t, cards[p.CardNumber], "card %d assigned twice", p.CardNumber)
		cards[p.CardNumber] = true
	}
	assert.Equal(t, prize.Amount(500), snap.Stakes)
	assert.Equal(t, prize.Amount(425), snap.PrizePool)
}

func TestSameSeedReplaysDrawOrder(t *testing.T) {
	t.Parallel()
	run := func() []int {
		h := newHarness(t, testConfig(), withSeed(7))
		h.fund("alice", 100)
		h.start()
		h.join("alice", nil, true)
		h.advanceTo(engine.PhaseActive)
		for i := 0; i < 10; i++ {
			h.advance()
		}
		return h.engine.Status().Drawn
	}

	first := run()
	assert.Len(t, first, 10)
	assert.Equal(t, first, run())
}
