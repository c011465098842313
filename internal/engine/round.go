package engine

import (
	"slices"
	"time"

	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/pattern"
	"github.com/lox/bingohall/internal/prize"
	"github.com/shopspring/decimal"
)

// Phase is a state of the round lifecycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCardSelection Phase = "card_selection"
	PhaseCountdown     Phase = "countdown"
	PhaseActive        Phase = "active"
	PhaseAnnouncing    Phase = "announcing"
	PhaseCancelled     Phase = "cancelled"
)

func (p Phase) String() string { return string(p) }

// player is the engine's mutable view of a participant.
type player struct {
	id         string
	card       card.Card
	stake      prize.Amount
	marked     pattern.Marked
	manualMark bool
	joinedAt   time.Time

	won     bool
	pattern pattern.Pattern
	share   prize.Amount
	claimed bool
}

func (p *player) snapshot() PlayerSnapshot {
	s := PlayerSnapshot{
		ID:         p.id,
		CardNumber: p.card.Number,
		Card:       p.card,
		Stake:      p.stake,
		Marked:     make([]int, 0, len(p.marked)),
		ManualMark: p.manualMark,
		JoinedAt:   p.joinedAt,
		Won:        p.won,
		Share:      p.share,
		Claimed:    p.claimed,
	}
	for n := range p.marked {
		s.Marked = append(s.Marked, n)
	}
	slices.Sort(s.Marked)
	if p.won {
		s.Pattern = p.pattern.Name()
	}
	return s
}

// round is the single current round. It is only touched with the engine
// lock held.
type round struct {
	id       string
	phase    Phase
	settings Config

	drawer   *draw.Drawer
	detector *pattern.Detector

	players  []*player
	byID     map[string]*player
	cards    map[int]string
	reserved map[string]int

	drawn    []int
	drawnSet map[int]struct{}

	stakes prize.Amount
	pool   prize.Amount

	winners    []Winner
	settlement *prize.Settlement
	endReason  EndReason

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	deadline  time.Time
}

func newRound(id string, settings Config, drawer *draw.Drawer, now time.Time) *round {
	return &round{
		id:        id,
		phase:     PhaseIdle,
		settings:  settings,
		drawer:    drawer,
		detector:  pattern.NewDetector(settings.Layout),
		byID:      make(map[string]*player),
		cards:     make(map[int]string),
		reserved:  make(map[string]int),
		drawnSet:  make(map[int]struct{}),
		createdAt: now,
	}
}

// seats returns committed plus in-flight joins.
func (r *round) seats() int { return len(r.players) + len(r.reserved) }

func (r *round) cardTaken(n int) bool {
	if _, ok := r.cards[n]; ok {
		return true
	}
	for _, c := range r.reserved {
		if c == n {
			return true
		}
	}
	return false
}

func (r *round) lowestFreeCard() (int, bool) {
	for n := 1; n <= r.settings.MaxCards; n++ {
		if !r.cardTaken(n) {
			return n, true
		}
	}
	return 0, false
}

func (r *round) recomputePool() {
	r.pool = prize.Pool(r.stakes, r.settings.PayoutPercent)
}

func (r *round) removePlayer(id string) *player {
	p, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.cards, p.card.Number)
	r.players = slices.DeleteFunc(r.players, func(q *player) bool { return q.id == id })
	r.stakes -= p.stake
	r.recomputePool()
	return p
}

func (r *round) snapshot() RoundSnapshot {
	s := RoundSnapshot{
		ID:            r.id,
		Phase:         r.phase,
		Players:       make([]PlayerSnapshot, 0, len(r.players)),
		Drawn:         slices.Clone(r.drawn),
		Stakes:        r.stakes,
		PrizePool:     r.pool,
		Winners:       slices.Clone(r.winners),
		EndReason:     r.endReason,
		BetAmount:     r.settings.BetAmount,
		PayoutPercent: r.settings.PayoutPercent,
		CreatedAt:     r.createdAt,
		StartedAt:     r.startedAt,
		EndedAt:       r.endedAt,
	}
	for _, p := range r.players {
		s.Players = append(s.Players, p.snapshot())
	}
	if r.settlement != nil {
		s.Residual = r.settlement.Residual
	}
	return s
}

// PlayerSnapshot is an immutable copy of a player entry.
type PlayerSnapshot struct {
	ID         string       `json:"id"`
	CardNumber int          `json:"cardNumber"`
	Card       card.Card    `json:"card"`
	Stake      prize.Amount `json:"stake"`
	Marked     []int        `json:"marked"`
	ManualMark bool         `json:"manualMark,omitempty"`
	JoinedAt   time.Time    `json:"joinedAt"`
	Won        bool         `json:"won"`
	Pattern    string       `json:"pattern,omitempty"`
	Share      prize.Amount `json:"share"`
	Claimed    bool         `json:"claimed,omitempty"`
}

// RoundSnapshot is an immutable copy of a round, handed to the store once
// the round is settled.
type RoundSnapshot struct {
	ID            string           `json:"id"`
	Phase         Phase            `json:"phase"`
	Players       []PlayerSnapshot `json:"players"`
	Drawn         []int            `json:"drawn"`
	Stakes        prize.Amount     `json:"stakes"`
	PrizePool     prize.Amount     `json:"prizePool"`
	Winners       []Winner         `json:"winners"`
	Residual      prize.Amount     `json:"residual"`
	EndReason     EndReason        `json:"endReason,omitempty"`
	BetAmount     prize.Amount     `json:"betAmount"`
	PayoutPercent decimal.Decimal  `json:"payoutPercent"`
	CreatedAt     time.Time        `json:"createdAt"`
	StartedAt     time.Time        `json:"startedAt,omitzero"`
	EndedAt       time.Time        `json:"endedAt,omitzero"`
}

// Status is a lightweight summary of the current round.
type Status struct {
	RoundID    string        `json:"roundId"`
	Phase      Phase         `json:"phase"`
	Players    int           `json:"players"`
	MinPlayers int           `json:"minPlayers"`
	MaxPlayers int           `json:"maxPlayers"`
	Drawn      []int         `json:"drawn"`
	LastNumber int           `json:"lastNumber,omitempty"`
	PrizePool  prize.Amount  `json:"prizePool"`
	BetAmount  prize.Amount  `json:"betAmount"`
	ETA        time.Duration `json:"-"`
	ETASeconds int           `json:"etaSeconds"`
	// Halted is set once the engine has stopped, cleanly or not.
	Halted bool `json:"halted,omitempty"`
}

// JoinRequest asks to enter the round in card selection.
type JoinRequest struct {
	PlayerID string
	// CardNumber selects a specific card; nil assigns the lowest free one.
	CardNumber *int
	// ManualMark disables automatic marking of drawn numbers.
	ManualMark bool
}

// JoinResult reports the assigned card.
type JoinResult struct {
	RoundID   string         `json:"roundId"`
	Player    PlayerSnapshot `json:"player"`
	PrizePool prize.Amount   `json:"prizePool"`
}

// MarkResult reports the player's marks after a successful Mark.
type MarkResult struct {
	Marked  []int  `json:"marked"`
	Pattern string `json:"pattern,omitempty"`
	Won     bool   `json:"won"`
}
