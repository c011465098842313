package engine

import (
	"sync"
	"time"

	"github.com/lox/bingohall/internal/prize"
)

// EventType represents an engine event type with type safety
type EventType string

const (
	EventTypePhaseChanged   EventType = "phase_changed"
	EventTypePlayerJoined   EventType = "player_joined"
	EventTypePlayerLeft     EventType = "player_left"
	EventTypeNumberDrawn    EventType = "number_drawn"
	EventTypeRoundEnded     EventType = "round_ended"
	EventTypeRoundCancelled EventType = "round_cancelled"
	EventTypeWinClaimed     EventType = "win_claimed"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event is anything the engine publishes. Every event names the round and
// the phase it was emitted in.
type Event interface {
	EventType() EventType
	RoundID() string
	RoundPhase() Phase
	Timestamp() time.Time
}

// Header carries the fields shared by every event.
type Header struct {
	Round string    `json:"roundId"`
	Phase Phase     `json:"phase"`
	At    time.Time `json:"timestamp"`
}

func (h Header) RoundID() string      { return h.Round }
func (h Header) RoundPhase() Phase    { return h.Phase }
func (h Header) Timestamp() time.Time { return h.At }

// PhaseChangedEvent is published once per transition. ETA is how long the
// new phase lasts before its timer fires; zero for Cancelled, which is left
// immediately. ETASeconds carries the same value on the wire, rounded up.
type PhaseChangedEvent struct {
	Header
	From       Phase         `json:"from"`
	ETA        time.Duration `json:"-"`
	ETASeconds int           `json:"etaSeconds"`
}

// Seconds rounds d up to whole seconds for clients.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (PhaseChangedEvent) EventType() EventType { return EventTypePhaseChanged }

// PlayerJoinedEvent is published when a stake has been taken and a card
// assigned.
type PlayerJoinedEvent struct {
	Header
	PlayerID    string       `json:"playerId"`
	CardNumber  int          `json:"cardNumber"`
	PlayerCount int          `json:"playerCount"`
	PrizePool   prize.Amount `json:"prizePool"`
}

func (PlayerJoinedEvent) EventType() EventType { return EventTypePlayerJoined }

// PlayerLeftEvent is published when a player withdraws during card
// selection.
type PlayerLeftEvent struct {
	Header
	PlayerID    string       `json:"playerId"`
	PlayerCount int          `json:"playerCount"`
	PrizePool   prize.Amount `json:"prizePool"`
}

func (PlayerLeftEvent) EventType() EventType { return EventTypePlayerLeft }

// NumberDrawnEvent is published for every draw.
type NumberDrawnEvent struct {
	Header
	Number     int    `json:"number"`
	Call       string `json:"call"`
	TotalDrawn int    `json:"totalDrawn"`
}

func (NumberDrawnEvent) EventType() EventType { return EventTypeNumberDrawn }

// EndReason says why an active round stopped drawing.
type EndReason string

const (
	EndWinner      EndReason = "winner"
	EndExhausted   EndReason = "exhausted"
	EndDrawLimit   EndReason = "draw_limit"
	EndMaxDuration EndReason = "max_duration"
)

// Winner is one settled winning player.
type Winner struct {
	PlayerID   string       `json:"playerId"`
	CardNumber int          `json:"cardNumber"`
	Pattern    string       `json:"pattern"`
	Numbers    []int        `json:"numbers"`
	Share      prize.Amount `json:"share"`
}

// RoundEndedEvent is published once per completed round, after settlement.
type RoundEndedEvent struct {
	Header
	Reason       EndReason    `json:"reason"`
	Winners      []Winner     `json:"winners"`
	DrawnNumbers []int        `json:"drawnNumbers"`
	PrizePool    prize.Amount `json:"prizePool"`
	Residual     prize.Amount `json:"residual"`
}

func (RoundEndedEvent) EventType() EventType { return EventTypeRoundEnded }

// RoundCancelledEvent is published when a round is abandoned before it
// becomes active. Refunds lists the compensating credits issued.
type RoundCancelledEvent struct {
	Header
	Reason  string        `json:"reason"`
	Refunds []prize.Share `json:"refunds"`
}

func (RoundCancelledEvent) EventType() EventType { return EventTypeRoundCancelled }

// WinClaimedEvent is published when a winner acknowledges their win.
type WinClaimedEvent struct {
	Header
	PlayerID string `json:"playerId"`
	Pattern  string `json:"pattern"`
}

func (WinClaimedEvent) EventType() EventType { return EventTypeWinClaimed }

// EventSubscriber can subscribe to engine events. OnEvent is called while
// the engine holds its lock: it must not block and must not call back into
// the engine.
type EventSubscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to EventSubscriber.
type SubscriberFunc func(Event)

func (f SubscriberFunc) OnEvent(event Event) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	// Subscribe registers a subscriber and returns a function removing it.
	Subscribe(subscriber EventSubscriber) (unsubscribe func())
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus implementation
type SimpleEventBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]EventSubscriber
	order       []int
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{subscribers: make(map[int]EventSubscriber)}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	id := bus.nextID
	bus.nextID++
	bus.subscribers[id] = subscriber
	bus.order = append(bus.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.mu.Lock()
			defer bus.mu.Unlock()
			delete(bus.subscribers, id)
			for i, v := range bus.order {
				if v == id {
					bus.order = append(bus.order[:i], bus.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish sends an event to all subscribers in subscription order
func (bus *SimpleEventBus) Publish(event Event) {
	bus.mu.RLock()
	subs := make([]EventSubscriber, 0, len(bus.order))
	for _, id := range bus.order {
		subs = append(subs, bus.subscribers[id])
	}
	bus.mu.RUnlock()

	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}
