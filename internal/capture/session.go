package capture

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/device"
	"campusattend/internal/directory"
	"campusattend/internal/identity"
	"campusattend/internal/metrics"
	"campusattend/internal/notify"
)

// Session is one kiosk's capture flow. All transitions go through next
// under mu; timers and the verification goroutine deliver events tagged
// with the epoch they were started in so that nothing fires after a
// cancel or reset.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	p        *Pipeline
	resolver *identity.Resolver
	log      *zap.Logger

	// ctx parents verification; it ends when the session is closed.
	ctx  context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	state        State
	closed       bool
	stream       device.Stream
	timer        clockwork.Timer
	verifyCancel context.CancelFunc
	deliveries   []*notify.Delivery
	verifying    sync.WaitGroup
}

func newSession(id, owner string, p *Pipeline, dir directory.Directory) *Session {
	ctx, stop := context.WithCancel(context.Background())
	log := p.Log.With(zap.String("session_id", id))
	return &Session{
		ID:        id,
		Owner:     owner,
		CreatedAt: p.Clock.Now(),
		p:         p,
		resolver:  identity.NewResolver(dir, log),
		log:       log,
		ctx:       ctx,
		stop:      stop,
		state:     State{Phase: PhaseIdle},
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identify updates the typed identifier and resolves the student once the
// roll is complete. Only allowed while no capture is running.
func (s *Session) Identify(ctx context.Context, ident identity.Identifier) (*directory.User, error) {
	s.mu.Lock()
	if s.state.Acquiring || s.state.Phase.Capturing() || s.state.Phase == PhaseResult {
		phase := s.state.Phase
		s.mu.Unlock()
		return nil, apperr.Conflict("capture.identify", errors.Errorf("session is %s", phase))
	}
	s.mu.Unlock()

	user, err := s.resolver.Update(ctx, ident)
	if errors.Is(err, identity.ErrSuperseded) {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A failed lookup still replaces the identifier and drops the old match.
	if aerr := s.apply(event{
		kind:    evIdentify,
		student: s.resolver.Current(),
		ident:   s.resolver.Identifier(),
	}); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, apperr.Persistence("capture.identify", err)
	}
	return user, nil
}

// Start acquires the camera and enters Aligning. It is allowed from Idle
// and, as a retry, from Error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.Conflict("capture.start", errors.New("session closed"))
	}
	if err := s.apply(event{kind: evStart}); err != nil {
		s.mu.Unlock()
		return err
	}
	epoch := s.state.Epoch
	s.mu.Unlock()

	stream, err := s.p.Camera.Acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		derr := apperr.Device("capture.acquire_camera", err)
		if s.apply(event{kind: evCameraFailed, epoch: epoch, err: derr}) != nil {
			return ErrCancelled
		}
		metrics.CaptureOutcomes.WithLabelValues("device_error").Inc()
		s.log.Warn("camera unavailable", zap.Error(err))
		return derr
	}
	if s.apply(event{kind: evCameraReady, epoch: epoch, streamID: stream.ID()}) != nil {
		stream.Stop()
		return ErrCancelled
	}
	s.stream = stream
	s.schedule(s.p.AlignDelay, event{kind: evAligned, epoch: epoch})
	return nil
}

// Cancel abandons the running attempt and returns to Idle keeping the
// resolved student. A commit that already happened is kept.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abort(evCancel)
}

// Reset returns to Idle and forgets the student.
func (s *Session) Reset() {
	s.mu.Lock()
	s.abort(evReset)
	s.mu.Unlock()
	s.resolver.Reset()
}

// Close cancels the session and waits for the running verification and
// every notification it started.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.abort(evCancel)
	s.mu.Unlock()

	s.verifying.Wait()

	s.mu.Lock()
	dels := s.deliveries
	s.deliveries = nil
	s.mu.Unlock()
	for _, d := range dels {
		d.Wait()
	}
	s.stop()
}

func (s *Session) apply(ev event) error {
	st, err := next(s.state, ev)
	if err != nil {
		if errors.Is(err, ErrStale) {
			s.log.Debug("stale event dropped", zap.Stringer("event", ev.kind), zap.Uint64("epoch", ev.epoch))
		}
		return err
	}
	if st.Phase != s.state.Phase {
		s.log.Debug("phase change",
			zap.String("from", string(s.state.Phase)),
			zap.String("to", string(st.Phase)),
			zap.Stringer("event", ev.kind))
	}
	s.state = st
	return nil
}

// abort must be called with mu held.
func (s *Session) abort(kind eventKind) {
	active := s.state.Acquiring || s.state.Phase.Capturing()
	_ = s.apply(event{kind: kind})
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.verifyCancel != nil {
		s.verifyCancel()
		s.verifyCancel = nil
	}
	s.releaseStream()
	if active {
		metrics.CaptureOutcomes.WithLabelValues("cancelled").Inc()
		s.log.Info("capture cancelled")
	}
}

func (s *Session) releaseStream() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

func (s *Session) schedule(d time.Duration, ev event) {
	s.timer = s.p.Clock.AfterFunc(d, func() { s.fire(ev) })
}

func (s *Session) fire(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apply(ev) != nil {
		return
	}
	s.timer = nil
	switch ev.kind {
	case evAligned:
		s.schedule(s.p.LivenessDelay, event{kind: evLivenessPassed, epoch: ev.epoch})
	case evLivenessPassed:
		s.startVerify(ev.epoch)
	}
}

// startVerify must be called with mu held.
func (s *Session) startVerify(epoch uint64) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.verifyCancel = cancel
	student := *s.state.Student

	s.verifying.Add(1)
	go func() {
		defer s.verifying.Done()
		defer cancel()
		res, del, err := s.p.Verify(ctx, student)
		s.finish(epoch, res, del, err)
	}()
}

func (s *Session) finish(epoch uint64, res *Result, del *notify.Delivery, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if del != nil {
		s.deliveries = append(s.deliveries, del)
	}

	ev := event{kind: evVerified, epoch: epoch, result: res}
	if err != nil {
		ev = event{kind: evFailed, epoch: epoch, err: err}
	}
	if s.apply(ev) != nil {
		return
	}
	s.verifyCancel = nil
	s.releaseStream()

	if err != nil {
		metrics.CaptureOutcomes.WithLabelValues(string(apperr.KindOf(err))).Inc()
		s.log.Error("verification failed", zap.Error(err))
		return
	}
	metrics.CaptureOutcomes.WithLabelValues("result").Inc()
	s.log.Info("capture finished",
		zap.String("record_id", res.Record.ID),
		zap.Bool("created", res.Created),
		zap.String("timestamp", res.Record.Timestamp))
}
