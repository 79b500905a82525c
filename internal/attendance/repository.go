package attendance

import (
	"context"
	"sync"
)

// Filter narrows a Query. Empty fields match everything.
type Filter struct {
	UserID string
	Date   string
}

func (f Filter) match(r Record) bool {
	return (f.UserID == "" || r.UserID == f.UserID) && (f.Date == "" || r.Date == f.Date)
}

// Repository persists records keyed by (user id, date). Append never
// overwrites: when the key already exists it returns the stored record
// and created=false.
type Repository interface {
	Get(ctx context.Context, userID, date string) (*Record, error)
	Append(ctx context.Context, rec Record) (stored Record, created bool, err error)
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs map[string]Record
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recs: make(map[string]Record)}
}

func (m *MemoryRepository) Get(_ context.Context, userID, date string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.recs[RecordID(userID, date)]; ok {
		return cloneRecord(r), nil
	}
	return nil, nil
}

func (m *MemoryRepository) Append(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := RecordID(rec.UserID, rec.Date)
	if existing, ok := m.recs[key]; ok {
		return *cloneRecord(existing), false, nil
	}
	rec.ID = key
	m.recs[key] = *cloneRecord(rec)
	return rec, true, nil
}

func (m *MemoryRepository) Query(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.recs {
		if f.match(r) {
			out = append(out, *cloneRecord(r))
		}
	}
	sortRecent(out)
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

func cloneRecord(r Record) *Record {
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	return &r
}
