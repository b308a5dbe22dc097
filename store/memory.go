package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// MemoryBackend implements Backend using an in-memory table.
// This is useful for testing but not recommended for production.
type MemoryBackend struct {
	mu     sync.RWMutex
	rows   map[int64]Row
	nextID int64
	closed bool
}

// NewMemory creates a new in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		rows: make(map[int64]Row),
	}
}

var errMemoryClosed = errors.New("memory: backend is closed")

// CreateSchema is a no-op; the table always exists.
func (m *MemoryBackend) CreateSchema(ctx context.Context) error {
	return nil
}

// DropSchema removes every row and resets the id sequence.
func (m *MemoryBackend) DropSchema(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = make(map[int64]Row)
	m.nextID = 0
	return nil
}

// FindLive returns the newest live row for session.
func (m *MemoryBackend) FindLive(ctx context.Context, session string, now float64) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errMemoryClosed
	}

	var found *Row
	for id, row := range m.rows {
		if row.Session != session || !row.Alive || row.Expires < now {
			continue
		}
		if found == nil || id > found.ID.Int64 {
			r := copyRow(row)
			found = &r
		}
	}

	if found == nil {
		return nil, ErrNoRows
	}
	return found, nil
}

// FindByID returns the row with the given id.
func (m *MemoryBackend) FindByID(ctx context.Context, id int64) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errMemoryClosed
	}

	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNoRows
	}
	r := copyRow(row)
	return &r, nil
}

// Insert stores a new row under the next id.
func (m *MemoryBackend) Insert(ctx context.Context, row Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errMemoryClosed
	}

	m.nextID++
	row = copyRow(row)
	row.ID = sql.NullInt64{Int64: m.nextID, Valid: true}
	m.rows[m.nextID] = row
	return m.nextID, nil
}

// Update overwrites the row with row.ID.
func (m *MemoryBackend) Update(ctx context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errMemoryClosed
	}
	if !row.ID.Valid {
		return errors.New("memory: cannot update a row without id")
	}
	if _, ok := m.rows[row.ID.Int64]; !ok {
		return ErrNoRows
	}

	m.rows[row.ID.Int64] = copyRow(row)
	return nil
}

// ExpireBefore marks every row with expires < now as dead.
func (m *MemoryBackend) ExpireBefore(ctx context.Context, now float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errMemoryClosed
	}

	var n int64
	for id, row := range m.rows {
		if row.Alive && row.Expires < now {
			row.Alive = false
			m.rows[id] = row
			n++
		}
	}
	return n, nil
}

// CountLive counts the live rows for session.
func (m *MemoryBackend) CountLive(ctx context.Context, session string, now float64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, errMemoryClosed
	}

	count := 0
	for _, row := range m.rows {
		if row.Session == session && row.Alive && row.Expires > now {
			count++
		}
	}
	return count, nil
}

// Close marks the backend closed; later calls fail.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// copyRow detaches the payload so callers can't mutate stored rows.
func copyRow(row Row) Row {
	if row.Data != nil {
		row.Data = append([]byte(nil), row.Data...)
	}
	return row
}
