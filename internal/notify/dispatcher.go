package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/directory"
	"campusattend/internal/metrics"
)

// Channel names one notification route.
type Channel string

const (
	ChannelStudentEmail Channel = "student_email"
	ChannelParentEmail  Channel = "parent_email"
	ChannelMessaging    Channel = "messaging"
)

// Outcome is the result of one channel attempt.
type Outcome struct {
	Channel Channel `json:"channel"`
	Target  string  `json:"target"`
	Err     error   `json:"-"`
}

// Delivery tracks the channel attempts started by one Dispatch.
type Delivery struct {
	// Link is the messaging deep link, available immediately.
	Link string

	wg       sync.WaitGroup
	mu       sync.Mutex
	outcomes []Outcome
}

// Wait blocks until every channel attempt has finished and returns their
// outcomes. It is for logging and tests; callers must not gate control
// flow on it.
func (d *Delivery) Wait() []Outcome {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Outcome, len(d.outcomes))
	copy(out, d.outcomes)
	return out
}

func (d *Delivery) record(o Outcome) {
	d.mu.Lock()
	d.outcomes = append(d.outcomes, o)
	d.mu.Unlock()
}

// Dispatcher fans a presence notice out to every eligible channel.
type Dispatcher struct {
	email    EmailSender
	opener   Opener
	operator string
	log      *zap.Logger

	inflight sync.WaitGroup
}

func NewDispatcher(email EmailSender, opener Opener, operator string, log *zap.Logger) *Dispatcher {
	if operator == "" {
		operator = DefaultOperator
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{email: email, opener: opener, operator: operator, log: log}
}

// Dispatch starts one goroutine per eligible channel and returns without
// waiting. Channel failures are logged and counted only.
func (d *Dispatcher) Dispatch(ctx context.Context, rec attendance.Record, user directory.User) *Delivery {
	body := Body(rec, user)
	text := MessageText(rec, user)
	del := &Delivery{Link: DeepLink(d.operator, text)}

	if user.ParentEmail != "" && user.ParentEmailVerified {
		d.start(ctx, del, ChannelParentEmail, user.ParentEmail, func(ctx context.Context) error {
			return d.email.Send(ctx, user.ParentEmail, ParentSubject(user), body)
		})
	}
	if user.Email != "" && user.EmailVerified {
		d.start(ctx, del, ChannelStudentEmail, user.Email, func(ctx context.Context) error {
			return d.email.Send(ctx, user.Email, StudentSubject, body)
		})
	}
	d.start(ctx, del, ChannelMessaging, d.operator, func(ctx context.Context) error {
		return d.opener.Open(ctx, del.Link)
	})
	return del
}

func (d *Dispatcher) start(ctx context.Context, del *Delivery, ch Channel, target string, send func(context.Context) error) {
	del.wg.Add(1)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer del.wg.Done()

		err := send(ctx)
		result := "sent"
		if err != nil {
			err = apperr.Notification("notify."+string(ch), err)
			result = "failed"
			d.log.Warn("notification failed",
				zap.String("channel", string(ch)),
				zap.String("target", target),
				zap.Error(err))
		} else {
			d.log.Debug("notification sent", zap.String("channel", string(ch)), zap.String("target", target))
		}
		metrics.Notifications.WithLabelValues(string(ch), result).Inc()
		del.record(Outcome{Channel: ch, Target: target, Err: err})
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
