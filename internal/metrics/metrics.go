// Package metrics exports round engine activity to Prometheus.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/lox/bingohall/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allPhases = []engine.Phase{
	engine.PhaseIdle,
	engine.PhaseCardSelection,
	engine.PhaseCountdown,
	engine.PhaseActive,
	engine.PhaseAnnouncing,
	engine.PhaseCancelled,
}

// Metrics holds the collectors and implements engine.EventSubscriber.
type Metrics struct {
	rounds        *prometheus.CounterVec
	numbersDrawn  prometheus.Counter
	playersJoined prometheus.Counter
	playersLeft   prometheus.Counter
	prizePaid     prometheus.Counter
	residual      prometheus.Counter
	claims        prometheus.Counter
	phase         *prometheus.GaugeVec
	roundPlayers  prometheus.Histogram
	roundDraws    prometheus.Histogram
	intents       *prometheus.CounterVec
	intentLatency *prometheus.HistogramVec

	mu      sync.Mutex
	players map[string]int
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bingo_rounds_total",
				Help: "Rounds finished by outcome",
			},
			[]string{"outcome"},
		),
		numbersDrawn: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_numbers_drawn_total",
			Help: "Numbers drawn across all rounds",
		}),
		playersJoined: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_players_joined_total",
			Help: "Successful joins",
		}),
		playersLeft: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_players_left_total",
			Help: "Players who left during card selection",
		}),
		prizePaid: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_prize_paid_units_total",
			Help: "Prize money distributed to winners in minor units",
		}),
		residual: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_prize_residual_units_total",
			Help: "Prize money retained by the house in minor units",
		}),
		claims: f.NewCounter(prometheus.CounterOpts{
			Name: "bingo_win_claims_total",
			Help: "Wins acknowledged by players",
		}),
		phase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bingo_phase",
				Help: "1 for the phase the current round is in",
			},
			[]string{"phase"},
		),
		roundPlayers: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bingo_round_players",
			Help:    "Players seated in each completed round",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		roundDraws: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bingo_round_draws",
			Help:    "Numbers drawn in each completed round",
			Buckets: prometheus.LinearBuckets(5, 5, 15),
		}),
		intents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bingo_intents_total",
				Help: "Player intents by type and result",
			},
			[]string{"intent", "result"},
		),
		intentLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bingo_intent_duration_ms",
				Help:    "Intent handling duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"intent"},
		),
		players: make(map[string]int),
	}
}

// OnEvent updates collectors from engine events.
func (m *Metrics) OnEvent(event engine.Event) {
	switch e := event.(type) {
	case engine.PhaseChangedEvent:
		for _, p := range allPhases {
			v := 0.0
			if p == e.Phase {
				v = 1
			}
			m.phase.WithLabelValues(string(p)).Set(v)
		}
	case engine.PlayerJoinedEvent:
		m.playersJoined.Inc()
		m.setPlayers(e.RoundID(), e.PlayerCount)
	case engine.PlayerLeftEvent:
		m.playersLeft.Inc()
		m.setPlayers(e.RoundID(), e.PlayerCount)
	case engine.NumberDrawnEvent:
		m.numbersDrawn.Inc()
	case engine.RoundEndedEvent:
		m.rounds.WithLabelValues(string(e.Reason)).Inc()
		for _, w := range e.Winners {
			m.prizePaid.Add(float64(w.Share))
		}
		m.residual.Add(float64(e.Residual))
		m.roundDraws.Observe(float64(len(e.DrawnNumbers)))
		m.roundPlayers.Observe(float64(m.takePlayers(e.RoundID())))
	case engine.RoundCancelledEvent:
		m.rounds.WithLabelValues("cancelled").Inc()
		m.takePlayers(e.RoundID())
	case engine.WinClaimedEvent:
		m.claims.Inc()
	}
}

// RecordIntent records the outcome of a player intent.
// result should be "success" or an error code; intent is normalized to lower-case.
func (m *Metrics) RecordIntent(intent, result string, elapsed time.Duration) {
	in := strings.ToLower(intent)
	if result == "" {
		result = "success"
	}
	m.intents.WithLabelValues(in, result).Inc()
	m.intentLatency.WithLabelValues(in).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) setPlayers(roundID string, n int) {
	m.mu.Lock()
	m.players[roundID] = n
	m.mu.Unlock()
}

func (m *Metrics) takePlayers(roundID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.players[roundID]
	delete(m.players, roundID)
	return n
}
