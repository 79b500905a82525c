package capture

import (
	"github.com/pkg/errors"

	"campusattend/internal/apperr"
	"campusattend/internal/directory"
	"campusattend/internal/identity"
)

// Phase is the step a capture session is in.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAligning  Phase = "aligning"
	PhaseLiveness  Phase = "liveness"
	PhaseVerifying Phase = "verifying"
	PhaseResult    Phase = "result"
	PhaseError     Phase = "error"
)

// Capturing reports whether p is one of the camera phases.
func (p Phase) Capturing() bool {
	return p == PhaseAligning || p == PhaseLiveness || p == PhaseVerifying
}

var (
	// ErrStale marks an event that no longer applies to the session,
	// such as a timer that fired after a cancel.
	ErrStale = errors.New("capture: stale event")
	// ErrCancelled is returned by Start when the attempt was cancelled
	// while the camera was being acquired.
	ErrCancelled = errors.New("capture: cancelled")
)

// State is a snapshot of a session.
type State struct {
	Phase      Phase               `json:"phase"`
	Identifier identity.Identifier `json:"identifier"`
	Student    *directory.User     `json:"student,omitempty"`
	// Acquiring is set between Start and the camera answering.
	Acquiring bool    `json:"acquiring"`
	StreamID  string  `json:"stream_id,omitempty"`
	Err       error   `json:"-"`
	Result    *Result `json:"result,omitempty"`
	// Epoch changes on every start, cancel and reset. Timer and
	// verification events carry the epoch they were scheduled in.
	Epoch uint64 `json:"epoch"`
}

// ErrorText returns the session error as a string.
func (s State) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

type eventKind int

const (
	evIdentify eventKind = iota
	evStart
	evCameraReady
	evCameraFailed
	evAligned
	evLivenessPassed
	evVerified
	evFailed
	evCancel
	evReset
)

func (k eventKind) String() string {
	return [...]string{
		"identify", "start", "camera_ready", "camera_failed", "aligned",
		"liveness_passed", "verified", "failed", "cancel", "reset",
	}[k]
}

type event struct {
	kind     eventKind
	epoch    uint64
	student  *directory.User
	ident    identity.Identifier
	streamID string
	result   *Result
	err      error
}

// next is the only transition function of a session. It never performs
// side effects; the caller releases devices and schedules timers based on
// the returned state.
func next(st State, ev event) (State, error) {
	switch ev.kind {
	case evIdentify:
		if st.Acquiring || !(st.Phase == PhaseIdle || st.Phase == PhaseError) {
			return st, apperr.Conflict("capture.identify", errors.Errorf("session is %s", st.Phase))
		}
		st.Identifier = ev.ident
		st.Student = ev.student
		st.Phase, st.Err = PhaseIdle, nil
		return st, nil

	case evStart:
		if st.Acquiring || !(st.Phase == PhaseIdle || st.Phase == PhaseError) {
			return st, apperr.Conflict("capture.start", errors.Errorf("session is %s", st.Phase))
		}
		if st.Student == nil {
			return st, apperr.Invalid("capture.start", "no student resolved")
		}
		st.Acquiring = true
		st.Epoch++
		return st, nil

	case evCameraReady:
		if !st.Acquiring || ev.epoch != st.Epoch {
			return st, ErrStale
		}
		st.Acquiring = false
		st.Phase, st.Err, st.Result = PhaseAligning, nil, nil
		st.StreamID = ev.streamID
		return st, nil

	case evCameraFailed:
		if !st.Acquiring || ev.epoch != st.Epoch {
			return st, ErrStale
		}
		st.Acquiring = false
		st.Phase, st.Err = PhaseError, ev.err
		return st, nil

	case evAligned:
		return advance(st, ev, PhaseAligning, PhaseLiveness)

	case evLivenessPassed:
		return advance(st, ev, PhaseLiveness, PhaseVerifying)

	case evVerified:
		st, err := advance(st, ev, PhaseVerifying, PhaseResult)
		if err == nil {
			st.Result, st.StreamID = ev.result, ""
		}
		return st, err

	case evFailed:
		st, err := advance(st, ev, PhaseVerifying, PhaseError)
		if err == nil {
			st.Err, st.StreamID = ev.err, ""
		}
		return st, err

	case evCancel:
		st.Epoch++
		st.Acquiring = false
		st.Phase, st.StreamID, st.Err, st.Result = PhaseIdle, "", nil, nil
		return st, nil

	case evReset:
		return State{Phase: PhaseIdle, Epoch: st.Epoch + 1}, nil
	}
	return st, errors.Errorf("capture: unknown event %d", ev.kind)
}

func advance(st State, ev event, from, to Phase) (State, error) {
	if st.Phase != from || ev.epoch != st.Epoch {
		return st, ErrStale
	}
	st.Phase = to
	return st, nil
}
