package storage

import (
	"context"
	"sync"

	"github.com/example/boskobot/internal/dialog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/sched"
)

// MemoryStates is an in-memory conversation state store. All users start IDLE
// and nothing survives a restart.
type MemoryStates struct {
	mu     sync.RWMutex
	states map[int64]dialog.State
}

// NewMemoryStates creates an empty state store.
func NewMemoryStates() *MemoryStates {
	return &MemoryStates{states: make(map[int64]dialog.State)}
}

func (m *MemoryStates) Load(ctx context.Context, chatID int64) (dialog.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[chatID]
	return st, ok, nil
}

func (m *MemoryStates) Save(ctx context.Context, chatID int64, st dialog.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chatID] = st
	return nil
}

// MemoryFavorites is an in-memory favorites store.
type MemoryFavorites struct {
	mu   sync.RWMutex
	sets map[int64]favorites.Set
}

// NewMemoryFavorites creates an empty favorites store.
func NewMemoryFavorites() *MemoryFavorites {
	return &MemoryFavorites{sets: make(map[int64]favorites.Set)}
}

func (m *MemoryFavorites) Load(ctx context.Context, userID int64) (favorites.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[userID]
	return set.Clone(), nil
}

func (m *MemoryFavorites) Save(ctx context.Context, userID int64, set favorites.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[userID] = set.Clone()
	return nil
}

// MemorySchedules is an in-memory schedule store.
type MemorySchedules struct {
	mu        sync.RWMutex
	schedules map[int64]sched.Schedule
}

// NewMemorySchedules creates an empty schedule store.
func NewMemorySchedules() *MemorySchedules {
	return &MemorySchedules{schedules: make(map[int64]sched.Schedule)}
}

func (m *MemorySchedules) All(ctx context.Context) ([]sched.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sched.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemorySchedules) Save(ctx context.Context, s sched.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.UserID] = s
	return nil
}

func (m *MemorySchedules) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, userID)
	return nil
}
