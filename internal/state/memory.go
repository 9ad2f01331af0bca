package state

import (
	"context"
	"sync"
)

// Memory is the single-process Store. Deployments use the redis backend so
// buffered fragments survive restarts; Memory serves tests and local runs.
type Memory struct {
	mu      sync.Mutex
	pending map[int64][]string
	tokens  map[int64]int64
	paused  map[int64]bool
	blocked map[int64]bool
}

func NewMemory() *Memory {
	return &Memory{
		pending: make(map[int64][]string),
		tokens:  make(map[int64]int64),
		paused:  make(map[int64]bool),
		blocked: make(map[int64]bool),
	}
}

func (m *Memory) AppendPending(_ context.Context, userID int64, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[userID] = append(m.pending[userID], text)
	m.tokens[userID]++
	return m.tokens[userID], nil
}

func (m *Memory) PendingSnapshot(_ context.Context, userID int64) ([]string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fragments := make([]string, len(m.pending[userID]))
	copy(fragments, m.pending[userID])
	return fragments, m.tokens[userID], nil
}

func (m *Memory) CurrentToken(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tokens[userID], nil
}

func (m *Memory) ClearPendingIf(_ context.Context, userID int64, token int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tokens[userID] != token {
		return false, nil
	}
	delete(m.pending, userID)
	return true, nil
}

func (m *Memory) SetPaused(_ context.Context, userID int64, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if paused {
		m.paused[userID] = true
	} else {
		delete(m.paused, userID)
	}
	return nil
}

func (m *Memory) IsPaused(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.paused[userID], nil
}

func (m *Memory) SetBlocked(_ context.Context, userID int64, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if blocked {
		m.blocked[userID] = true
	} else {
		delete(m.blocked, userID)
	}
	return nil
}

func (m *Memory) IsBlocked(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.blocked[userID], nil
}
