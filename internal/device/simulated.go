package device

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"campusattend/internal/geofence"
)

// SimCamera is an in-process camera. It records how many streams are open.
type SimCamera struct {
	mu      sync.Mutex
	err     error
	open    map[string]bool
	started int
}

var _ Camera = (*SimCamera)(nil)

func NewSimCamera() *SimCamera {
	return &SimCamera{open: make(map[string]bool)}
}

func (c *SimCamera) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s := &simStream{id: uuid.NewString(), cam: c}
	c.open[s.id] = true
	c.started++
	return s, nil
}

// SetErr makes subsequent acquisitions fail with err.
func (c *SimCamera) SetErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Open returns the number of streams not yet stopped.
func (c *SimCamera) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// Started returns the number of streams ever acquired.
func (c *SimCamera) Started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

type simStream struct {
	id  string
	cam *SimCamera
}

func (s *simStream) ID() string { return s.id }

func (s *simStream) Stop() {
	s.cam.mu.Lock()
	delete(s.cam.open, s.id)
	s.cam.mu.Unlock()
}

// SimLocator returns a fixed position or error. With Block set it waits
// for the context to end and reports a timeout, like a browser that never
// answers.
type SimLocator struct {
	Position geofence.Coordinate
	Err      error
	Block    bool
}

var _ Locator = (*SimLocator)(nil)

func (l *SimLocator) Locate(ctx context.Context) (geofence.Coordinate, error) {
	if l.Block {
		<-ctx.Done()
		return geofence.Coordinate{}, &LocationError{Failure: LocationTimeout, Err: ctx.Err()}
	}
	if l.Err != nil {
		return geofence.Coordinate{}, l.Err
	}
	return l.Position, nil
}
