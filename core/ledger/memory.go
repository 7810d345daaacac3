package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/dobi/core/model"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	chargers map[string]model.Charger
	order    []string
	logs     []model.LogEntry
	nextID   int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chargers: make(map[string]model.Charger)}
}

func (m *MemoryStore) CreateCharger(_ context.Context, c model.Charger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chargers[c.ID]; ok {
		return ErrExists
	}
	m.chargers[c.ID] = c
	m.order = append(m.order, c.ID)
	return nil
}

func (m *MemoryStore) GetCharger(_ context.Context, id string) (model.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chargers[id]
	if !ok {
		return model.Charger{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListChargers(context.Context) ([]model.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Charger, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.chargers[id])
	}
	return out, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chargers[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	m.chargers[id] = c
	return nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, status model.Status, msg string, at time.Time) (model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chargers[id]
	if !ok {
		return model.LogEntry{}, ErrNotFound
	}
	c.Status = status
	m.chargers[id] = c
	return m.appendLocked(c, msg, at), nil
}

func (m *MemoryStore) ApplyTotals(_ context.Context, id string, totals model.Totals, msg string, at time.Time) (model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chargers[id]
	if !ok {
		return model.LogEntry{}, ErrNotFound
	}
	c.Totals = totals
	m.chargers[id] = c
	return m.appendLocked(c, msg, at), nil
}

func (m *MemoryStore) AppendLog(_ context.Context, id string, msg string, at time.Time) (model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chargers[id]
	if !ok {
		return model.LogEntry{}, ErrNotFound
	}
	return m.appendLocked(c, msg, at), nil
}

func (m *MemoryStore) appendLocked(c model.Charger, msg string, at time.Time) model.LogEntry {
	m.nextID++
	e := model.LogEntry{ID: m.nextID, ChargerID: c.ID, Message: msg, Timestamp: at.UTC(), Totals: c.Totals}
	m.logs = append(m.logs, e)
	return e
}

func (m *MemoryStore) Logs(_ context.Context, q LogQuery) ([]model.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.LogEntry
	for _, e := range m.logs {
		if q.ChargerID != "" && e.ChargerID != q.ChargerID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
