package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"campusattend/internal/directory"
)

// RollLength is the fixed number of digits in a roll number.
const RollLength = 3

// ErrSuperseded is returned by a lookup whose identifier changed before it
// completed. The caller should drop the result.
var ErrSuperseded = errors.New("identity: lookup superseded by a newer identifier")

// Identifier is the structured form of a PIN as typed at the kiosk.
type Identifier struct {
	YearPrefix   string `json:"year_prefix"`
	Branch       string `json:"branch"`
	RollFragment string `json:"roll"`
}

// Normalize keeps only the digits of the roll fragment, truncated to
// RollLength, and upper-cases the branch.
func (id Identifier) Normalize() Identifier {
	var b strings.Builder
	for _, r := range id.RollFragment {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == RollLength {
				break
			}
		}
	}
	return Identifier{
		YearPrefix:   strings.TrimSpace(id.YearPrefix),
		Branch:       strings.ToUpper(strings.TrimSpace(id.Branch)),
		RollFragment: b.String(),
	}
}

// Complete reports whether the roll fragment has reached full length.
func (id Identifier) Complete() bool {
	return len(id.RollFragment) == RollLength
}

// PIN renders the identifier as "<year>-<branch>-<roll>".
func (id Identifier) PIN() string {
	return id.YearPrefix + "-" + id.Branch + "-" + id.RollFragment
}

// Resolver turns a partially typed identifier into a student. Each Update
// cancels the lookup started by the previous one; only the newest lookup
// may set the current match.
type Resolver struct {
	dir directory.Directory
	log *zap.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	ident   Identifier
	current *directory.User
}

func NewResolver(dir directory.Directory, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{dir: dir, log: log}
}

// Update records a new identifier and, once the roll is complete, looks up
// the matching student. A miss yields a nil user and a nil error.
func (r *Resolver) Update(ctx context.Context, id Identifier) (*directory.User, error) {
	id = id.Normalize()

	r.mu.Lock()
	r.seq++
	seq := r.seq
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if id.Branch != r.ident.Branch || id.YearPrefix != r.ident.YearPrefix || !id.Complete() {
		r.current = nil
	}
	r.ident = id
	if !id.Complete() {
		r.mu.Unlock()
		return nil, nil
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	user, err := r.dir.ResolveByPin(lookupCtx, id.PIN())

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		cancel()
		return nil, ErrSuperseded
	}
	cancel()
	r.cancel = nil
	if err != nil {
		r.current = nil
		r.log.Warn("pin lookup failed", zap.String("pin", id.PIN()), zap.Error(err))
		return nil, err
	}
	if user != nil && !user.IsStudent() {
		user = nil
	}
	r.current = user
	if user == nil {
		r.log.Debug("no student for pin", zap.String("pin", id.PIN()))
		return nil, nil
	}
	u := *user
	return &u, nil
}

// Current returns the resolved student, if any.
func (r *Resolver) Current() *directory.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	u := *r.current
	return &u
}

// Identifier returns the last normalized identifier.
func (r *Resolver) Identifier() Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ident
}

// Reset clears the identifier and match and abandons any pending lookup.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.ident = Identifier{}
	r.current = nil
}
