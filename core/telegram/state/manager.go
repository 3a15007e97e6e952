package state

import (
	"sync"
)

type memoryManager struct {
	mu      sync.Mutex
	pending map[int64]State
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager() Manager {
	return &memoryManager{
		pending: make(map[int64]State),
	}
}

// Arm records st as the next step for chatID. Arming StateIdle clears the chat.
func (m *memoryManager) Arm(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st == StateIdle || st == "" {
		delete(m.pending, chatID)
		return
	}
	m.pending[chatID] = st
}

// Take returns and removes the pending step for chatID.
func (m *memoryManager) Take(chatID int64) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.pending[chatID]
	if !ok {
		return StateIdle, false
	}
	delete(m.pending, chatID)
	return st, true
}

// Pending returns the pending step for chatID, or StateIdle if none exists.
func (m *memoryManager) Pending(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.pending[chatID]; ok {
		return st
	}
	return StateIdle
}
