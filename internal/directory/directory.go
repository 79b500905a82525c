package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Role is the enumerated position of a user on campus.
type Role string

const (
	RolePrincipal Role = "PRINCIPAL"
	RoleHOD       Role = "HOD"
	RoleFaculty   Role = "FACULTY"
	RoleStaff     Role = "STAFF"
	RoleStudent   Role = "STUDENT"
)

// User is the subset of the identity record the capture pipeline reads.
type User struct {
	ID                  string `json:"id"`
	PIN                 string `json:"pin"`
	Name                string `json:"name"`
	Role                Role   `json:"role"`
	Branch              string `json:"branch"`
	Email               string `json:"email,omitempty"`
	EmailVerified       bool   `json:"email_verified"`
	ParentEmail         string `json:"parent_email,omitempty"`
	ParentEmailVerified bool   `json:"parent_email_verified"`
	PhoneNumber         string `json:"phone_number,omitempty"`
}

// IsStudent reports whether u counts towards the student roster.
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// Directory is the read-only view of the external identity store.
// Lookups that match nothing return a nil user and a nil error.
type Directory interface {
	ResolveByPin(ctx context.Context, pin string) (*User, error)
	ResolveByID(ctx context.Context, id string) (*User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
}

// Memory is a Directory held in process memory.
type Memory struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Directory = (*Memory)(nil)

// NewMemory builds a directory seeded with users.
func NewMemory(users ...User) *Memory {
	m := &Memory{users: make(map[string]User, len(users))}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// Put adds or replaces a user.
func (m *Memory) Put(u User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

func (m *Memory) ResolveByPin(_ context.Context, pin string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.PIN, pin) {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ResolveByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *Memory) ListByRole(_ context.Context, role Role) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PIN < out[j].PIN })
	return out, nil
}
