package capture

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/directory"
	"campusattend/internal/metrics"
)

// Registry keeps the live sessions, one per kiosk tab.
type Registry struct {
	p   *Pipeline
	dir directory.Directory

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(p *Pipeline, dir directory.Directory) *Registry {
	return &Registry{
		p:        p.withDefaults(),
		dir:      dir,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session owned by owner.
func (r *Registry) Create(owner string) *Session {
	s := newSession(uuid.NewString(), owner, r.p, r.dir)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	metrics.CaptureSessions.Inc()
	s.log.Info("capture session opened", zap.String("owner", owner))
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("capture.session", errors.Errorf("session %s", id))
	}
	return s, nil
}

// Close removes the session and waits for its pending work.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return apperr.NotFound("capture.session", errors.Errorf("session %s", id))
	}
	s.Close()
	metrics.CaptureSessions.Dec()
	return nil
}

// Shutdown closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
			metrics.CaptureSessions.Dec()
		}(s)
	}
	wg.Wait()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
