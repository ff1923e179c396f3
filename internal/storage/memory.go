package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/royalfresh/freshbridge/internal/types"
)

// MemoryStore is an in-memory schedule store with the same contract as the
// Postgres client: replace-on-conflict insert, silent no-op update/delete,
// ascending-id listing. Used by tests and by the demo mode.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]types.Schedule
	prefs  map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		rows:   make(map[int64]types.Schedule),
		prefs:  make(map[string]bool),
	}
}

func (m *MemoryStore) ListSchedules(ctx context.Context) ([]types.Schedule, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Schedule, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertSchedule(ctx context.Context, s types.Schedule) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == 0 {
		s.ID = m.nextID
		m.nextID++
	} else if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	m.rows[s.ID] = s
	return s.ID, nil
}

func (m *MemoryStore) UpdateSchedule(ctx context.Context, s types.Schedule) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[s.ID]; !ok {
		return nil
	}
	m.rows[s.ID] = s
	return nil
}

func (m *MemoryStore) DeleteSchedule(ctx context.Context, id int64) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) SetScheduleToggle(ctx context.Context, id int64, isOn bool) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.rows[id]
	if !ok {
		return nil
	}
	s.IsOn = isOn
	m.rows[id] = s
	return nil
}

func (m *MemoryStore) GetBoolPref(ctx context.Context, name string, fallback bool) (bool, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.prefs[name]; ok {
		return v, nil
	}
	return fallback, nil
}

func (m *MemoryStore) SetBoolPref(ctx context.Context, name string, value bool) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefs[name] = value
	return nil
}
