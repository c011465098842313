package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
	"github.com/lox/bingohall/internal/server"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	ctx    context.Context
	clock  *quartz.Mock
	engine *engine.Engine
	wallet *wallet.Memory
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})

	mClock := quartz.NewMock(t)
	cfg := engine.DefaultConfig()
	cfg.MinPlayers = 1
	cfg.MaxCards = 400
	cfg.CardSelectionDuration = 10 * time.Second
	cfg.DrawInterval = time.Second

	w := wallet.NewMemory(mClock)
	e, err := engine.New(engine.Options{
		Config: cfg,
		Clock:  mClock,
		Wallet: w,
		Store:  store.NewMemory(),
		Logger: logger,
		Seed:   11,
	})
	require.NoError(t, err)

	srv := server.NewServer(e, logger, server.WithClock(mClock))
	ts := httptest.NewServer(srv.Handler())
	require.NoError(t, e.Start(ctx))

	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		e.Stop()
		cancel()
	})
	return &testEnv{ctx: ctx, clock: mClock, engine: e, wallet: w, url: ts.URL}
}

func (env *testEnv) connect(t *testing.T) *Client {
	t.Helper()
	c := NewClient(env.url, log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}))
	require.NoError(t, c.Connect(env.ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.connect(t)

	welcome, err := c.Hello(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", welcome.PlayerID)
	assert.Equal(t, "alice", c.PlayerID())
	assert.Equal(t, engine.PhaseCardSelection, welcome.Status.Phase)

	_, err = c.Join(env.ctx, nil, false)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, engine.ErrInsufficientFunds.Error(), reqErr.Code)

	require.NoError(t, env.wallet.Deposit(env.ctx, "alice", 50))
	card := 42
	res, err := c.Join(env.ctx, &card, true)
	require.NoError(t, err)
	assert.Equal(t, 42, res.Player.CardNumber)
	assert.True(t, res.Player.ManualMark)
	assert.Equal(t, prize.Amount(10), res.Player.Stake)

	status, err := c.Status(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Players)
	assert.Equal(t, res.RoundID, status.RoundID)

	_, err = c.Mark(env.ctx, 5)
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, engine.ErrWrongPhase.Error(), reqErr.Code)

	require.NoError(t, c.Leave(env.ctx))
	balance, err := env.wallet.Balance(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, prize.Amount(50), balance)
}

func TestClientReceivesEvents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.connect(t)
	_, err := c.Hello(env.ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, env.wallet.Deposit(env.ctx, "bob", 10))
	_, err = c.Join(env.ctx, nil, false)
	require.NoError(t, err)

	_, w := env.clock.AdvanceNext()
	w.MustWait(env.ctx)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-c.Events():
			require.True(t, ok, "events closed early")
			if msg.Type != server.MessageType(engine.EventTypePhaseChanged) {
				continue
			}
			var ev engine.PhaseChangedEvent
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			if ev.Phase == engine.PhaseCountdown {
				assert.Equal(t, engine.PhaseCardSelection, ev.From)
				return
			}
		case <-timeout:
			t.Fatal("no countdown event received")
		}
	}
}

func TestClientClosed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.connect(t)
	require.NoError(t, c.Close())

	_, err := c.Status(env.ctx)
	assert.True(t, errors.Is(err, ErrClosed))

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed")
	}
}
