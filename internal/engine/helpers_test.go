package engine_test

import (
	"context"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/wallet"
	"github.com/stretchr/testify/require"
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *recorder) OnEvent(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func eventsOf[T engine.Event](r *recorder) []T {
	var out []T
	for _, ev := range r.all() {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) phases() []engine.Phase {
	var out []engine.Phase
	for _, ev := range eventsOf[engine.PhaseChangedEvent](r) {
		out = append(out, ev.Phase)
	}
	return out
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *quartz.Mock
	engine *engine.Engine
	wallet *wallet.Memory
	store  *store.Memory
	events *recorder
}

type harnessOption func(*engine.Options)

func withGateways(w engine.Wallet, s engine.Store) harnessOption {
	return func(o *engine.Options) {
		o.Wallet = w
		o.Store = s
	}
}

func withSeed(seed int64) harnessOption {
	return func(o *engine.Options) { o.Seed = seed }
}

func newHarness(t *testing.T, cfg engine.Config, opts ...harnessOption) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	mClock := quartz.NewMock(t)
	h := &harness{
		t:      t,
		ctx:    ctx,
		clock:  mClock,
		wallet: wallet.NewMemory(mClock),
		store:  store.NewMemory(),
		events: &recorder{},
	}

	o := engine.Options{
		Config: cfg,
		Clock:  mClock,
		Wallet: h.wallet,
		Store:  h.store,
		Logger: log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}),
		Seed:   42,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e, err := engine.New(o)
	require.NoError(t, err)
	e.Bus().Subscribe(h.events)
	h.engine = e
	t.Cleanup(e.Stop)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.engine.Start(h.ctx))
}

// advance fires the next pending timer and waits for its callback.
func (h *harness) advance() time.Duration {
	h.t.Helper()
	d, w := h.clock.AdvanceNext()
	w.MustWait(h.ctx)
	return d
}

// advanceTo fires timers until the round reaches phase.
func (h *harness) advanceTo(phase engine.Phase) {
	h.t.Helper()
	for i := 0; i < 200; i++ {
		if h.engine.Status().Phase == phase {
			return
		}
		h.advance()
	}
	h.t.Fatalf("round never reached %s, stuck in %s", phase, h.engine.Status().Phase)
}

func (h *harness) fund(playerID string, amount prize.Amount) {
	h.t.Helper()
	require.NoError(h.t, h.wallet.Deposit(context.Background(), playerID, amount))
}

func (h *harness) balance(playerID string) prize.Amount {
	h.t.Helper()
	bal, err := h.wallet.Balance(context.Background(), playerID)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) join(playerID string, cardNumber *int, manual bool) engine.JoinResult {
	h.t.Helper()
	res, err := h.engine.Join(h.ctx, engine.JoinRequest{PlayerID: playerID, CardNumber: cardNumber, ManualMark: manual})
	require.NoError(h.t, err)
	return res
}

func cardNo(n int) *int { return &n }

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.DrawInterval = time.Second
	cfg.CountdownDuration = 5 * time.Second
	cfg.CardSelectionDuration = 10 * time.Second
	cfg.AnnouncementDuration = 3 * time.Second
	cfg.MaxRoundDuration = 10 * time.Minute
	cfg.MinPlayers = 1
	cfg.MaxPlayers = 4
	cfg.MaxCards = 10
	cfg.BetAmount = 10
	return cfg
}

// pairConfig uses a 2x2 layout in which every card is identical and any two
// drawn numbers complete a pattern, so every auto-marking player wins on
// the second draw.
func pairConfig() engine.Config {
	cfg := testConfig()
	cfg.Layout = card.Layout{
		Size: 2,
		Columns: []card.Column{
			{Label: "A", Min: 1, Max: 2},
			{Label: "B", Min: 3, Max: 4},
		},
	}
	return cfg
}
