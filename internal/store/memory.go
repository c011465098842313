package store

import (
	"context"
	"sync"

	"github.com/lox/bingohall/internal/engine"
)

// Memory keeps completed rounds in process.
type Memory struct {
	mu     sync.RWMutex
	rounds map[string]engine.RoundSnapshot
}

func NewMemory() *Memory {
	return &Memory{rounds: make(map[string]engine.RoundSnapshot)}
}

func (m *Memory) SaveCompletedRound(_ context.Context, round engine.RoundSnapshot) error {
	if err := validateSnapshot(round); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[round.ID] = round
	return nil
}

func (m *Memory) GetRound(_ context.Context, id string) (engine.RoundSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	round, ok := m.rounds[id]
	if !ok {
		return engine.RoundSnapshot{}, ErrRoundNotFound
	}
	return round, nil
}

func (m *Memory) ListRecent(_ context.Context, limit int) ([]engine.RoundSnapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]engine.RoundSnapshot, 0, len(m.rounds))
	for _, r := range m.rounds {
		out = append(out, r)
	}
	m.mu.RUnlock()

	newestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
