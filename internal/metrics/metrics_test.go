package metrics

import (
	"testing"
	"time"

	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/prize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsFollowRoundEvents(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)
	h := engine.Header{Round: "r1"}

	m.OnEvent(engine.PhaseChangedEvent{Header: engine.Header{Round: "r1", Phase: engine.PhaseCardSelection}})
	m.OnEvent(engine.PlayerJoinedEvent{Header: h, PlayerID: "a", PlayerCount: 1})
	m.OnEvent(engine.PlayerJoinedEvent{Header: h, PlayerID: "b", PlayerCount: 2})
	m.OnEvent(engine.PlayerJoinedEvent{Header: h, PlayerID: "c", PlayerCount: 3})
	m.OnEvent(engine.PlayerLeftEvent{Header: h, PlayerID: "c", PlayerCount: 2})
	m.OnEvent(engine.PhaseChangedEvent{Header: engine.Header{Round: "r1", Phase: engine.PhaseActive}})
	for i := 1; i <= 4; i++ {
		m.OnEvent(engine.NumberDrawnEvent{Header: h, Number: i, TotalDrawn: i})
	}
	m.OnEvent(engine.RoundEndedEvent{
		Header:       h,
		Reason:       engine.EndWinner,
		Winners:      []engine.Winner{{PlayerID: "a", Share: 8}, {PlayerID: "b", Share: 8}},
		DrawnNumbers: []int{1, 2, 3, 4},
		PrizePool:    17,
		Residual:     prize.Amount(1),
	})
	m.OnEvent(engine.WinClaimedEvent{Header: h, PlayerID: "a"})
	m.OnEvent(engine.RoundCancelledEvent{Header: engine.Header{Round: "r2"}, Reason: "insufficient players"})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.playersJoined))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.playersLeft))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.numbersDrawn))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.prizePaid))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.residual))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("winner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phase.WithLabelValues("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.phase.WithLabelValues("card_selection")))
	assert.Empty(t, m.players, "per-round bookkeeping is released")

	n, err := testutil.GatherAndCount(reg, "bingo_round_players", "bingo_round_draws")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordIntent(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.RecordIntent("JOIN", "", time.Millisecond)
	m.RecordIntent("join", "card_taken", time.Millisecond)
	m.RecordIntent("mark", "", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.intents.WithLabelValues("join", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.intents.WithLabelValues("join", "card_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.intents.WithLabelValues("mark", "success")))
}
