package capture

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
	"campusattend/internal/directory"
	"campusattend/internal/identity"
)

var asha = &directory.User{ID: "s1", PIN: "23210-CM-001", Name: "Asha", Role: directory.RoleStudent}

func mustNext(t *testing.T, st State, ev event) State {
	t.Helper()
	st, err := next(st, ev)
	require.NoError(t, err, ev.kind.String())
	return st
}

func TestTransitionsHappyPath(t *testing.T) {
	st := mustNext(t, State{Phase: PhaseIdle}, event{kind: evIdentify, student: asha, ident: identity.Identifier{YearPrefix: "23210", Branch: "CM", RollFragment: "001"}})
	assert.Equal(t, PhaseIdle, st.Phase)

	st = mustNext(t, st, event{kind: evStart})
	assert.True(t, st.Acquiring)
	epoch := st.Epoch

	st = mustNext(t, st, event{kind: evCameraReady, epoch: epoch, streamID: "cam"})
	assert.Equal(t, PhaseAligning, st.Phase)
	assert.False(t, st.Acquiring)

	st = mustNext(t, st, event{kind: evAligned, epoch: epoch})
	assert.Equal(t, PhaseLiveness, st.Phase)
	st = mustNext(t, st, event{kind: evLivenessPassed, epoch: epoch})
	assert.Equal(t, PhaseVerifying, st.Phase)

	res := &Result{Created: true}
	st = mustNext(t, st, event{kind: evVerified, epoch: epoch, result: res})
	assert.Equal(t, PhaseResult, st.Phase)
	assert.Same(t, res, st.Result)
	assert.Empty(t, st.StreamID)
}

func TestStartRequiresStudentAndIdleOrError(t *testing.T) {
	_, err := next(State{Phase: PhaseIdle}, event{kind: evStart})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = next(State{Phase: PhaseAligning, Student: asha}, event{kind: evStart})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = next(State{Phase: PhaseIdle, Student: asha, Acquiring: true}, event{kind: evStart})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	st, err := next(State{Phase: PhaseError, Student: asha, Err: errors.New("x")}, event{kind: evStart})
	require.NoError(t, err)
	assert.True(t, st.Acquiring)
}

func TestStaleEventsAreRejected(t *testing.T) {
	st := State{Phase: PhaseAligning, Student: asha, Epoch: 3}
	tests := []struct {
		name string
		ev   event
	}{
		{"old epoch", event{kind: evAligned, epoch: 2}},
		{"wrong phase", event{kind: evLivenessPassed, epoch: 3}},
		{"verify while aligning", event{kind: evVerified, epoch: 3}},
		{"camera without start", event{kind: evCameraReady, epoch: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := next(st, tt.ev)
			assert.ErrorIs(t, err, ErrStale)
			assert.Equal(t, st, got)
		})
	}
}

func TestCancelAndReset(t *testing.T) {
	st := State{Phase: PhaseLiveness, Student: asha, StreamID: "cam", Epoch: 4}

	cancelled := mustNext(t, st, event{kind: evCancel})
	assert.Equal(t, PhaseIdle, cancelled.Phase)
	assert.Equal(t, asha, cancelled.Student)
	assert.Empty(t, cancelled.StreamID)
	assert.Equal(t, uint64(5), cancelled.Epoch)

	_, err := next(cancelled, event{kind: evLivenessPassed, epoch: 4})
	assert.ErrorIs(t, err, ErrStale)

	reset := mustNext(t, st, event{kind: evReset})
	assert.Equal(t, State{Phase: PhaseIdle, Epoch: 5}, reset)
	assert.Nil(t, reset.Student)
}

func TestIdentifyBlockedWhileCapturing(t *testing.T) {
	_, err := next(State{Phase: PhaseVerifying}, event{kind: evIdentify})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	st := mustNext(t, State{Phase: PhaseError, Err: errors.New("camera")}, event{kind: evIdentify, student: asha})
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.NoError(t, st.Err)
}

func TestFailureMovesToError(t *testing.T) {
	st := State{Phase: PhaseVerifying, Student: asha, StreamID: "cam", Epoch: 1}
	boom := apperr.Persistence("ledger", errors.New("disk"))
	st = mustNext(t, st, event{kind: evFailed, epoch: 1, err: boom})
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, boom, st.Err)
	assert.Empty(t, st.StreamID)
	assert.Equal(t, "ledger: disk", st.ErrorText())
}
