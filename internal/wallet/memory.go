package wallet

import (
	"context"
	"sync"

	"github.com/coder/quartz"
	"github.com/lox/bingohall/internal/prize"
)

// Memory is an in-process wallet for simulations and tests.
type Memory struct {
	clock quartz.Clock

	mu       sync.Mutex
	balances map[string]prize.Amount
	ledger   map[string][]Entry
}

// NewMemory returns an empty wallet. A nil clock uses the real clock.
func NewMemory(clock quartz.Clock) *Memory {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Memory{
		clock:    clock,
		balances: make(map[string]prize.Amount),
		ledger:   make(map[string][]Entry),
	}
}

// Deposit adds funds outside of any round.
func (m *Memory) Deposit(ctx context.Context, playerID string, amount prize.Amount) error {
	return m.Credit(ctx, playerID, amount)
}

func (m *Memory) Debit(_ context.Context, playerID string, amount prize.Amount) error {
	if err := validate(playerID, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balances[playerID]
	if bal < amount {
		return insufficient(playerID, bal, amount)
	}
	m.balances[playerID] = bal - amount
	m.record(playerID, EntryDebit, amount)
	return nil
}

func (m *Memory) Credit(_ context.Context, playerID string, amount prize.Amount) error {
	if err := validate(playerID, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[playerID] += amount
	m.record(playerID, EntryCredit, amount)
	return nil
}

func (m *Memory) Balance(_ context.Context, playerID string) (prize.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[playerID], nil
}

// Ledger returns up to limit entries, newest first.
func (m *Memory) Ledger(_ context.Context, playerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.ledger[playerID]
	out := make([]Entry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *Memory) record(playerID string, typ EntryType, amount prize.Amount) {
	m.ledger[playerID] = append(m.ledger[playerID], Entry{
		Type:    typ,
		Amount:  amount,
		Balance: m.balances[playerID],
		At:      m.clock.Now(),
	})
}
